package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"docsearch/internal/server"
	"docsearch/internal/watch"
)

var serveWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the streaming search, upload, purge, model and history endpoints.
With --watch the documents directory is indexed and kept in sync as well.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "index the documents directory and re-index files on change")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(server.Config{
		Addr:           a.cfg.Server.Addr,
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		MaxUploadBytes: int64(a.cfg.Server.MaxUploadMB) << 20,
	}, a.svc, server.NewAuthenticator(a.cfg.Server.AuthTokens), a.logger)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error { return srv.Run(ctx) })
	if serveWatch {
		w := watch.New(a.cfg.Server.DocumentsDir, a.svc, a.extractor, watch.Options{Logger: a.logger})
		g.Go(func() error { return w.Run(ctx) })
	}
	return g.Wait()
}
