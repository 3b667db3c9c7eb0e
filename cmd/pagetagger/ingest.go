package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/go-git/go-billy/v6/osfs"
	"github.com/spf13/cobra"

	"github.com/lewtec/pagetagger/annotation"
	"github.com/lewtec/pagetagger/internal/render"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <document> <output>",
	Short: "Rasterize every page of a document to a folder of images",
	Long: `Render each page of a PDF (or page image folder) once, at a fixed scale, into
page_NNNN.png files. The folder can then be annotated like any other document
without running the rasterizer again.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(2)(cmd, args); err != nil {
			return err
		}
		if _, err := os.Stat(args[0]); err != nil {
			return fmt.Errorf("on 1st argument: %w", err)
		}
		return os.MkdirAll(args[1], 0o755)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		jobs, _ := cmd.Flags().GetUint("jobs")
		scale, _ := cmd.Flags().GetFloat64("scale")
		if scale <= 0 {
			return fmt.Errorf("invalid scale %v", scale)
		}

		fs, name, err := splitPath(args[0])
		if err != nil {
			return err
		}
		doc, err := render.Open(fs, name, render.WithRasterizer(cfg.Renderer.Rasterizer))
		if err != nil {
			return fmt.Errorf("failed to open document: %w", err)
		}
		defer doc.Close()

		slog.Info("ingest: rendering", "document", doc.Name, "pages", doc.PageCount(), "jobs", jobs)
		names, err := annotation.IngestPages(cmd.Context(), doc, osfs.New(args[1]), scale, int(jobs))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d pages written to %s\n", len(names), args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().UintP("jobs", "j", 1, "Amount of concurrent page renders")
	ingestCmd.Flags().Float64P("scale", "s", 1, "Scale pages are rendered at")
	ingestCmd.Flags().String("rasterizer", "", "PDF rasterizer command")
}
