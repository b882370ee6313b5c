package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/daviddao/nirvana/internal/actions"
	"github.com/daviddao/nirvana/internal/display"
)

var (
	proposeEmail emailFlags
	proposeApply bool
)

var actionsCmd = &cobra.Command{
	Use:         "actions",
	Short:       "Propose and apply Jira changes from email",
	Annotations: noStore,
}

var actionsProposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Ask the model which Jira changes an email calls for",
	Long: `Show the model an email together with the open Jira projects, their
members and issues, and print the actions it proposes. The output of
--json can be reviewed and passed to 'nv actions run'.`,
	Example: `  nv actions propose --message 18c2f0a9e1b4d7aa --json > plan.json
  nv actions propose --file update.eml --apply`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		email, err := proposeEmail.read(ctx, cmd.InOrStdin())
		if err != nil {
			return err
		}
		model, err := newModel()
		if err != nil {
			return err
		}
		client, err := newJira(ctx)
		if err != nil {
			return err
		}
		projects, err := client.Context(ctx)
		if err != nil {
			return err
		}

		acts, err := actions.NewProposer(model, logger).Propose(ctx, email, projects)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput && !proposeApply {
			return printActions(cmd, acts)
		}
		display.Actions(out, acts)
		if proposeApply && len(acts) > 0 {
			display.Run(out, actions.Run(ctx, client, acts))
		}
		return nil
	},
}

var actionsRunCmd = &cobra.Command{
	Use:   "run [FILE]",
	Short: "Apply a JSON list of actions to Jira",
	Long: `Apply actions read from FILE (or stdin) in order. A failed action is
reported and the rest still run.`,
	Example: `  nv actions run plan.json`,
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		data, err := readInput(path, cmd.InOrStdin())
		if err != nil {
			return err
		}
		acts, err := actions.DecodeList([]byte(data))
		if err != nil {
			return err
		}
		client, err := newJira(ctx)
		if err != nil {
			return err
		}

		res := actions.Run(ctx, client, acts)
		if jsonOutput {
			errs := make([]string, len(res.Errors))
			for i, e := range res.Errors {
				errs[i] = e.Error()
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"succeeded": res.Succeeded, "failed": res.Failed, "issues": res.Issues, "errors": errs,
			})
		}
		display.Run(cmd.OutOrStdout(), res)
		return nil
	},
}

func printActions(cmd *cobra.Command, acts []actions.Action) error {
	list := make([]json.RawMessage, 0, len(acts))
	for _, a := range acts {
		data, err := actions.Encode(a)
		if err != nil {
			return err
		}
		list = append(list, data)
	}
	return printJSON(cmd.OutOrStdout(), list)
}

func init() {
	proposeEmail.register(actionsProposeCmd)
	actionsProposeCmd.Flags().BoolVar(&proposeApply, "apply", false, "Apply the proposed actions immediately")
	actionsCmd.AddCommand(actionsProposeCmd)
	actionsCmd.AddCommand(actionsRunCmd)
	rootCmd.AddCommand(actionsCmd)
}
