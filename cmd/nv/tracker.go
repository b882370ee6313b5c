package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/nirvana/internal/display"
	"github.com/daviddao/nirvana/internal/tracker"
)

var trackerJQL string

var trackerCmd = &cobra.Command{
	Use:   "tracker",
	Short: "Load project-tracker issues into the user's namespace",
}

var trackerSyncCmd = &cobra.Command{
	Use:   "sync KIND",
	Short: "Replace a tracker table with the current Jira issues of one kind",
	Long: `Fetch every Jira issue of KIND and load it into a table named after the
kind ("epic" loads into Epics). The table is rebuilt on each sync, so issues
that no longer match are removed.`,
	Example: `  nv tracker sync epic
  nv tracker sync story --jql 'project = APL AND issuetype = Story'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kind := args[0]
		if _, err := tracker.TableName(kind); err != nil {
			return err
		}
		jql := trackerJQL
		if jql == "" {
			jql = fmt.Sprintf("issuetype = %q ORDER BY created ASC", kind)
		}

		client, err := newJira(ctx)
		if err != nil {
			return err
		}
		issues, err := client.Search(ctx, jql)
		if err != nil {
			return err
		}

		sess, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()

		res, err := tracker.NewLoader(logger).Sync(ctx, sess, kind, tracker.FromIssues(issues))
		if err != nil {
			return err
		}
		if jsonOutput {
			errs := make([]string, len(res.Failures))
			for i, e := range res.Failures {
				errs[i] = e.Error()
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"table": res.Table, "loaded": res.Loaded, "failed": res.Failed, "failures": errs,
			})
		}
		display.Sync(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	trackerSyncCmd.Flags().StringVar(&trackerJQL, "jql", "", "JQL selecting the issues (default: all issues of KIND)")
	trackerCmd.AddCommand(trackerSyncCmd)
	rootCmd.AddCommand(trackerCmd)
}
