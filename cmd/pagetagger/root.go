/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/osfs"
	"github.com/spf13/cobra"

	"github.com/lewtec/pagetagger/annotation"
	"github.com/lewtec/pagetagger/internal/demographics"
	"github.com/lewtec/pagetagger/internal/repository"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pagetagger",
	Short: "Draw and classify regions on document pages",
	Long: strings.TrimSpace(`
Annotate rectangular regions of PDF pages or page images, classify them as
color, copy or drawing tasks, and export the result with the page crops and
the participant demographics as a zip archive.
    `),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		return nil
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (defaults are used when empty)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug messages")
}

// loadConfig reads --config and applies the path flags the command defines.
func loadConfig(cmd *cobra.Command) (*annotation.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	cfg := annotation.DefaultConfig()
	if configFile != "" {
		var err error
		cfg, err = annotation.LoadConfig(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	overrides := map[string]*string{
		"addr":         &cfg.Server.Addr,
		"output":       &cfg.Output.Dir,
		"ledger":       &cfg.Ledger.Path,
		"demographics": &cfg.Demographics.File,
		"rasterizer":   &cfg.Renderer.Rasterizer,
	}
	for name, dst := range overrides {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
	return cfg, cfg.Validate()
}

// splitPath returns a filesystem rooted at the parent of path and the name of
// path inside it.
func splitPath(path string) (billy.Filesystem, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	return osfs.New(filepath.Dir(abs)), filepath.Base(abs), nil
}

// newSession wires a session with the ledger and demographics of cfg. The
// returned cleanup closes both.
func newSession(cfg *annotation.Config) (*annotation.Session, func(), error) {
	db, err := annotation.GetDatabase(cfg.Ledger.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	opts := []annotation.SessionOption{
		annotation.WithLogger(slog.Default()),
		annotation.WithLedger(repository.NewExportRepository(db)),
	}
	if cfg.Demographics.File != "" {
		fs, name, err := splitPath(cfg.Demographics.File)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		opts = append(opts, annotation.WithDemographics(demographics.FileSource{FS: fs, Path: name}))
	}
	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	s := annotation.NewSession(cfg, opts...)
	cleanup := func() {
		if err := s.Close(); err != nil {
			slog.Warn("closing session", "error", err)
		}
		db.Close()
	}
	return s, cleanup, nil
}

func loadDocument(s *annotation.Session, path string) error {
	fs, name, err := splitPath(path)
	if err != nil {
		return err
	}
	return s.LoadDocument(fs, name)
}
