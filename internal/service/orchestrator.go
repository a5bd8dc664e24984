package service

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"docsearch/internal/domain"
	"docsearch/internal/provider"
)

// DefaultContextChunks is how many chunks are retrieved to ground an answer.
const DefaultContextChunks = 3

const groundedPromptTemplate = "Answer the question based on the following context. " +
	"If the context does not contain the relevant information, say explicitly that the answer cannot be found in the document.\n\n" +
	"Context:\n%s\n\nQuestion: %s"

// Orchestrator turns a query into a single token stream: it optionally
// retrieves context from the index, builds the prompt and relays the tokens of
// the selected provider.
type Orchestrator struct {
	index     domain.VectorIndex
	providers *provider.Registry
	topK      int
	logger    *slog.Logger
}

func NewOrchestrator(index domain.VectorIndex, providers *provider.Registry, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{index: index, providers: providers, topK: DefaultContextChunks, logger: logger}
}

// Answer streams the response to req. Nothing runs until the sequence is
// ranged over; every failure is reported as an error token followed by done.
func (o *Orchestrator) Answer(ctx context.Context, req domain.QueryRequest) iter.Seq[domain.StreamToken] {
	return func(yield func(domain.StreamToken) bool) {
		adapter, err := o.providers.Get(req.Provider)
		if err != nil {
			relay(provider.Fail(err), yield)
			return
		}
		prompt, err := o.BuildPrompt(ctx, req)
		if err != nil {
			o.logger.Error("context retrieval failed", "document_id", req.DocumentID, "error", err)
			relay(provider.Fail(fmt.Errorf("retrieve context: %w", err)), yield)
			return
		}
		o.logger.Debug("streaming answer", "provider", req.Provider, "model", req.Model, "grounded", prompt != req.Query)
		relay(adapter.Stream(ctx, prompt, req.Model), yield)
	}
}

// BuildPrompt returns the grounded prompt when retrieval is requested for a
// document and finds chunks, otherwise the bare query.
func (o *Orchestrator) BuildPrompt(ctx context.Context, req domain.QueryRequest) (string, error) {
	if !req.UseRAG || req.DocumentID == "" {
		return req.Query, nil
	}
	chunks, err := o.index.Search(ctx, req.Query, o.topK, req.DocumentID)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return req.Query, nil
	}
	return fmt.Sprintf(groundedPromptTemplate, strings.Join(chunks, "\n\n"), req.Query), nil
}

func relay(seq iter.Seq[domain.StreamToken], yield func(domain.StreamToken) bool) {
	for tok := range seq {
		if !yield(tok) {
			return
		}
	}
}
