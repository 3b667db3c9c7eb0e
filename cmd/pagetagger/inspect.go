package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lewtec/pagetagger/internal/render"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <document>",
	Short: "Show the pages of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
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

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "document\t%s\npages\t%d\n\n", doc.Name, doc.PageCount())
		switch r := doc.Renderer.(type) {
		case *render.PDFRenderer:
			fmt.Fprintln(w, "page\trotate")
			for _, p := range r.Pages() {
				fmt.Fprintf(w, "%d\t%d\n", p.Number, p.Rotate)
			}
		case *render.ImageRenderer:
			fmt.Fprintln(w, "page\tfile")
			for i, p := range r.Pages() {
				fmt.Fprintf(w, "%d\t%s\n", i+1, p)
			}
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
