package main

import (
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"docsearch/internal/server"
)

var errTooManyFiles = errors.New("--id can only be used with a single file")

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models of every enabled provider",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		models := a.svc.ListModels(cmd.Context())
		for _, name := range slices.Sorted(maps.Keys(models)) {
			cmd.Printf("%s: %s\n", name, strings.Join(models[name], ", "))
		}
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge [document-id]",
	Short: "Remove a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.svc.Purge(cmd.Context(), args[0]); err != nil {
			return err
		}
		cmd.Printf("purged %s\n", args[0])
		return nil
	},
}

var (
	historyPrincipal string
	historyLimit     int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print recorded searches and analyses as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		searches, analyses, err := a.svc.ListHistory(cmd.Context(), historyPrincipal, 0, historyLimit)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"searches": searches, "analyses": analyses})
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyPrincipal, "user", server.AnonymousPrincipal, "principal id")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "maximum entries per kind")
	rootCmd.AddCommand(modelsCmd, purgeCmd, historyCmd)
}
