package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay <document> <script>",
	Short: "Apply a command script to a document and export the result",
	Long: `Replay a JSON lines script of user commands against a document, then
export the annotations. Each line is one command:

  {"op":"down","x":20,"y":20}
  {"op":"up","x":120,"y":80}
  {"op":"save","type":"color","values":{"index":"1"}}

Supported ops: down, move, up, dblclick, delete, save, cancel, type, next,
prev, goto, rotate, zoom.`,
	Args: cobra.ExactArgs(2),
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

		if err := loadDocument(session, args[0]); err != nil {
			return err
		}
		script, err := os.Open(args[1])
		if err != nil {
			return fmt.Errorf("failed to open script: %w", err)
		}
		defer script.Close()

		res, err := session.Replay(cmd.Context(), script)
		if err != nil {
			return fmt.Errorf("replay failed: %w", err)
		}
		st := session.State()
		fmt.Fprintf(cmd.OutOrStdout(), "commands\t%d\nrejected\t%d\nannotations\t%d\nexportable\t%d\n", res.Commands, res.Rejected, st.Total, st.Exportable)

		if skip, _ := cmd.Flags().GetBool("no-export"); skip {
			return nil
		}
		out, err := session.Export(cmd.Context(), nil)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "archive\t%s\nentries\t%d\n", out.Name, len(out.Entries))
		if out.Record != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "sha256\t%s\n", out.Record.SHA256)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringP("output", "o", "exports", "Directory export archives are written to")
	replayCmd.Flags().StringP("ledger", "l", "exports.db", "SQLite ledger of finished exports")
	replayCmd.Flags().String("demographics", "", "YAML file with the participant record")
	replayCmd.Flags().String("rasterizer", "pdftoppm", "Command used to rasterize PDF pages")
	replayCmd.Flags().Bool("no-export", false, "Only apply the script")
}
