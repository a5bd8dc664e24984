package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"docsearch/internal/tui"
)

var (
	chatProvider string
	chatModel    string
	chatDocument string
	chatFile     string
	chatNoRAG    bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Launch the interactive streaming chat",
	Long: `Opens a terminal chat that streams answers as they are generated.

Controls:
  Enter    - Ask
  Esc      - Cancel the current answer
  Ctrl+C   - Quit`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	addSessionFlags(chatCmd, &chatProvider, &chatModel, &chatDocument, &chatFile, &chatNoRAG)
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	docID := chatDocument
	if chatFile != "" {
		if docID, err = ingestPath(ctx, a, chatFile, chatDocument); err != nil {
			return err
		}
	}
	m := tui.New(a.svc, tui.Session{
		Provider:   chatProvider,
		Model:      chatModel,
		DocumentID: docID,
		UseRAG:     !chatNoRAG,
	})
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	return nil
}
