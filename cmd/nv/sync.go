package main

import (
	"github.com/spf13/cobra"

	"github.com/daviddao/nirvana/internal/display"
	"github.com/daviddao/nirvana/internal/ingest"
	msync "github.com/daviddao/nirvana/internal/sync"
)

var syncOpts msync.Options

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Ingest new inbox mail into the user's namespace",
	Long: `Search Gmail for mail that arrived since the last sync and run each new
message through extraction, oldest first. Processed messages are recorded
in the IngestedEmails table and never ingested twice. The first sync looks
back 3 days.`,
	Example: `  nv sync
  nv sync --query "from:pm@example.com"
  nv sync --full --all-mail -n 20`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		model, err := newModel()
		if err != nil {
			return err
		}
		mail, err := newGmail(ctx)
		if err != nil {
			return err
		}
		sess, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()

		res, err := msync.New(mail, ingest.New(model, logger), logger).Run(ctx, sess, syncOpts)
		if res != nil {
			if jsonOutput {
				errs := make([]string, len(res.Errors))
				for i, e := range res.Errors {
					errs[i] = e.Error()
				}
				if jerr := printJSON(cmd.OutOrStdout(), map[string]any{
					"found": res.Found, "ingested": res.Ingested, "skipped": res.Skipped,
					"failed": res.Failed, "errors": errs,
				}); jerr != nil {
					return jerr
				}
			} else {
				display.Inbox(cmd.OutOrStdout(), res)
			}
		}
		return err
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncOpts.Query, "query", "", "Extra Gmail search terms")
	syncCmd.Flags().BoolVar(&syncOpts.Full, "full", false, "Ignore the last sync time")
	syncCmd.Flags().BoolVar(&syncOpts.AllMail, "all-mail", false, "Search all mail, not just the inbox")
	syncCmd.Flags().Int64VarP(&syncOpts.MaxResults, "max", "n", msync.DefaultMaxResults, "Maximum messages to fetch")
	rootCmd.AddCommand(syncCmd)
}
