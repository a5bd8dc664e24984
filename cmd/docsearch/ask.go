package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"docsearch/internal/domain"
	"docsearch/internal/server"
	"docsearch/internal/watch"
)

var (
	askProvider string
	askModel    string
	askDocument string
	askFile     string
	askNoRAG    bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Stream an answer to a question",
	Long: `Streams an answer from the selected provider to stdout. With --file the
document is indexed first and the question is grounded in it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	addSessionFlags(askCmd, &askProvider, &askModel, &askDocument, &askFile, &askNoRAG)
	rootCmd.AddCommand(askCmd)
}

// addSessionFlags registers the provider and grounding flags shared by ask and chat.
func addSessionFlags(cmd *cobra.Command, prov, model, doc, file *string, noRAG *bool) {
	cmd.Flags().StringVarP(prov, "provider", "p", "ollama", "provider: deepseek, groq or ollama")
	cmd.Flags().StringVarP(model, "model", "m", "llama2", "model name")
	cmd.Flags().StringVarP(doc, "doc", "d", "", "document id to ground the answer in")
	cmd.Flags().StringVarP(file, "file", "f", "", "index this file first and ground the answer in it")
	cmd.Flags().BoolVar(noRAG, "no-rag", false, "send the question without retrieved context")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	docID := askDocument
	if askFile != "" {
		if docID, err = ingestPath(ctx, a, askFile, askDocument); err != nil {
			return err
		}
	}
	req := domain.QueryRequest{
		Query:      strings.Join(args, " "),
		Provider:   askProvider,
		Model:      askModel,
		DocumentID: docID,
		UseRAG:     !askNoRAG,
	}
	out := cmd.OutOrStdout()
	var streamErr error
	for tok := range a.svc.QueryAs(ctx, server.AnonymousPrincipal, req) {
		switch {
		case tok.IsError():
			streamErr = errors.New(tok.Error)
		case tok.Done:
		default:
			fmt.Fprint(out, tok.Content)
		}
	}
	fmt.Fprintln(out)
	return streamErr
}

// ingestPath extracts and indexes one file. An empty id derives one from the path.
func ingestPath(ctx context.Context, a *app, path, id string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text, err := a.extractor.Extract(data, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	if id == "" {
		id = watch.DocumentID(path)
	}
	msg, err := a.svc.Ingest(ctx, id, text)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	a.logger.Info("indexed", "path", path, "document_id", id, "result", msg)
	return id, nil
}
