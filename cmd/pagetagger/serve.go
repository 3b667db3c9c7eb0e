package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve [document]",
	Short: "Start the annotation web interface",
	Long: `Serve the annotation interface over HTTP. The document is a PDF, a page
image or a directory of page images.

Example:
  pagetagger serve scan.pdf --addr :8080 --output ./exports`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		session, cleanup, err := newSession(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		if len(args) == 1 {
			if err := loadDocument(session, args[0]); err != nil {
				return err
			}
		}

		server := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           session.GetHTTPHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		slog.Info("Starting server", "addr", cfg.Server.Addr, "document", session.Document(), "output", cfg.Output.Dir, "ledger", cfg.Ledger.Path)

		errCh := make(chan error, 1)
		go func() { errCh <- server.ListenAndServe() }()
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server failed: %w", err)
		case <-cmd.Context().Done():
			slog.Info("Shutting down server")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(ctx)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to bind the webserver")
	serveCmd.Flags().StringP("output", "o", "exports", "Directory export archives are written to")
	serveCmd.Flags().StringP("ledger", "l", "exports.db", "SQLite ledger of finished exports")
	serveCmd.Flags().String("demographics", "", "YAML file with the participant record")
	serveCmd.Flags().String("rasterizer", "pdftoppm", "Command used to rasterize PDF pages")
}
