package main

import (
	"github.com/spf13/cobra"

	"docsearch/internal/watch"
)

var watchSkipExisting bool

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Index a directory and keep it in sync",
	Long: `Indexes every supported file in dir (default: the configured documents
directory), re-indexes files when they change and purges them when deleted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchSkipExisting, "skip-existing", false, "only react to changes, do not index files already present")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	dir := a.cfg.Server.DocumentsDir
	if len(args) == 1 {
		dir = args[0]
	}
	w := watch.New(dir, a.svc, a.extractor, watch.Options{
		SkipExisting: watchSkipExisting,
		Logger:       a.logger,
		OnResult: func(r watch.Result) {
			switch {
			case r.Err != nil:
				cmd.PrintErrf("%s: %v\n", r.Path, r.Err)
			case r.Removed:
				cmd.Printf("removed %s (%s)\n", r.Path, r.DocumentID)
			default:
				cmd.Printf("%s (%s): %s\n", r.Path, r.DocumentID, r.Message)
			}
		},
	})
	return w.Run(cmd.Context())
}
