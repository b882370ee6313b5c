package main

import (
	"github.com/spf13/cobra"

	"github.com/daviddao/nirvana/internal/display"
)

var catalogDrift bool

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Show the tables catalogued in the user's namespace",
	Long: `Show every catalogued table and its columns.

With --drift, compare the catalog with the tables that physically exist.
Drift appears when tables are changed by statements the catalog does not
track, such as ALTER TABLE or --raw execution.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sess, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()
		out := cmd.OutOrStdout()

		cat, err := sess.Snapshot(ctx)
		if err != nil {
			return err
		}
		if !catalogDrift {
			if jsonOutput {
				return printJSON(out, cat)
			}
			display.Catalog(out, sess.Namespace(), cat)
			return nil
		}

		physical, err := sess.PhysicalTables(ctx)
		if err != nil {
			return err
		}
		missing, untracked := cat.Drift(physical)
		if jsonOutput {
			return printJSON(out, map[string][]string{"missing": missing, "untracked": untracked})
		}
		display.Drift(out, missing, untracked)
		return nil
	},
}

func init() {
	catalogCmd.Flags().BoolVar(&catalogDrift, "drift", false, "Compare the catalog with physical tables")
	rootCmd.AddCommand(catalogCmd)
}
