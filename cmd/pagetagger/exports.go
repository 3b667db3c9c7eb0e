package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lewtec/pagetagger/annotation"
	"github.com/lewtec/pagetagger/internal/domain"
	"github.com/lewtec/pagetagger/internal/repository"
)

var exportsCmd = &cobra.Command{
	Use:   "exports",
	Short: "List finished exports",
	Long: `List the exports recorded in the ledger, newest first.

Example:
  pagetagger exports --limit 10
  pagetagger exports --document scan.pdf
  pagetagger exports --stats`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := annotation.GetDatabase(cfg.Ledger.Path)
		if err != nil {
			return fmt.Errorf("failed to open ledger: %w", err)
		}
		defer db.Close()
		repo := repository.NewExportRepository(db)
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if stats, _ := cmd.Flags().GetBool("stats"); stats {
			s, err := repo.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "exports\t%d\nannotations\t%d\ndocuments\t%d\n", s.TotalExports, s.TotalAnnotations, s.Documents)
			return nil
		}

		recs, err := listExports(ctx, cmd, repo)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "id\texported_at\tdocument\tarchive\tannotations\tpages\tsize\tsha256")
		for _, r := range recs {
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				r.ID, r.ExportedAt.Format(time.RFC3339), r.Document, r.Archive, r.Annotations, r.Pages, r.Size, r.SHA256)
		}
		return nil
	},
}

func listExports(ctx context.Context, cmd *cobra.Command, repo *repository.ExportRepository) ([]*domain.ExportRecord, error) {
	if document, _ := cmd.Flags().GetString("document"); document != "" {
		return repo.ListByDocument(ctx, document)
	}
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	return repo.List(ctx, limit, offset)
}

func init() {
	rootCmd.AddCommand(exportsCmd)

	exportsCmd.Flags().StringP("ledger", "l", "exports.db", "SQLite ledger of finished exports")
	exportsCmd.Flags().IntP("limit", "n", 20, "Maximum number of exports to list (0 for all)")
	exportsCmd.Flags().Int("offset", 0, "Number of exports to skip")
	exportsCmd.Flags().String("document", "", "Only list exports of this document")
	exportsCmd.Flags().Bool("stats", false, "Print ledger totals instead")
}
