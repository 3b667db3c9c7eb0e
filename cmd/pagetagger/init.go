package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lewtec/pagetagger/annotation"
	"github.com/lewtec/pagetagger/internal/demographics"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Initialize a new annotation project",
	Long: `Initialize a new annotation project by creating:
- A sample configuration file (config.yaml)
- A demographics file to fill in (demographics.yaml)
- The export ledger (exports.db) and the exports directory

Existing files are left alone.

Example:
  pagetagger init ./study`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create project directory: %w", err)
		}

		configFile := filepath.Join(dir, "config.yaml")
		if err := createFile(configFile, annotation.WriteSampleConfig); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		cfg, err := annotation.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := createFile(filepath.Join(dir, "demographics.yaml"), demographics.WriteTemplate); err != nil {
			return fmt.Errorf("failed to create demographics file: %w", err)
		}

		outputDir := resolve(dir, cfg.Output.Dir)
		slog.Info("Creating exports directory", "path", outputDir)
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return fmt.Errorf("failed to create exports directory: %w", err)
		}

		ledgerPath := resolve(dir, cfg.Ledger.Path)
		slog.Info("Creating ledger", "path", ledgerPath)
		db, err := annotation.GetDatabase(ledgerPath)
		if err != nil {
			return fmt.Errorf("failed to create ledger: %w", err)
		}
		defer db.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Initialization complete!")
		fmt.Fprintln(out, "\nNext steps:")
		fmt.Fprintln(out, "  1. Review and customize your config file:", configFile)
		fmt.Fprintln(out, "  2. Start the annotation server:")
		fmt.Fprintf(out, "     cd %s && pagetagger serve -c config.yaml <document.pdf>\n", dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

// resolve makes relative config paths relative to the project directory.
func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func createFile(filename string, write func(io.Writer) error) error {
	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		slog.Info("File already exists", "path", filename)
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("Creating file", "path", filename)
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
