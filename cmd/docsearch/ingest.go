package main

import (
	"github.com/spf13/cobra"
)

var ingestID string

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Index documents",
	Long: `Extracts text from PDF, DOCX, HTML, Markdown or plain-text files and
indexes it. Re-ingesting a file replaces its previous chunks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestID, "id", "", "document id (single file only; derived from the path by default)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestID != "" && len(args) > 1 {
		return errTooManyFiles
	}
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	for _, path := range args {
		id, err := ingestPath(cmd.Context(), a, path, ingestID)
		if err != nil {
			return err
		}
		cmd.Printf("%s\t%s\n", id, path)
	}
	return nil
}
