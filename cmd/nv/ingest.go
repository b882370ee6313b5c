package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/nirvana/internal/display"
	"github.com/daviddao/nirvana/internal/ingest"
)

var ingestEmail emailFlags

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Extract data from an email into the user's namespace",
	Long: `Show the model the namespace's current tables and an email, and execute
the SQL it proposes. New tables are catalogued as they are created.
Statements the database rejects are reported and skipped.`,
	Example: `  nv ingest --message 18c2f0a9e1b4d7aa
  nv ingest --file launch-update.eml
  pbpaste | nv ingest`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		email, err := ingestEmail.read(ctx, cmd.InOrStdin())
		if err != nil {
			return err
		}
		model, err := newModel()
		if err != nil {
			return err
		}
		sess, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()

		report, err := ingest.New(model, logger).Ingest(ctx, sess, email)
		if report != nil {
			out := cmd.OutOrStdout()
			if jsonOutput {
				if jerr := printJSON(out, map[string]any{
					"run_id":     report.RunID,
					"statements": report.Statements,
					"result":     newBatchJSON(&report.BatchResult),
				}); jerr != nil {
					return jerr
				}
			} else {
				fmt.Fprintln(out, display.Muted.Render("run "+report.RunID))
				display.Batch(out, &report.BatchResult)
			}
		}
		return err
	},
}

func init() {
	ingestEmail.register(ingestCmd)
	rootCmd.AddCommand(ingestCmd)
}
