package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/nirvana/internal/display"
	"github.com/daviddao/nirvana/internal/sqlclass"
	"github.com/daviddao/nirvana/internal/store"
)

var (
	execRaw     bool
	execMaxRows int
)

var execCmd = &cobra.Command{
	Use:   "exec SQL...",
	Short: "Execute SQL in the user's namespace",
	Long: `Execute one or more SQL statements in the user's namespace.

CREATE TABLE and DROP TABLE keep the catalog in step. A single read-only
statement prints its rows. Several statements run as a batch that continues
past failures.`,
	Example: `  nv exec "CREATE TABLE IF NOT EXISTS Notes (id VARCHAR(255), body TEXT)"
  nv exec "INSERT INTO Notes VALUES ('n1', 'call Bob')" "SELECT * FROM Notes"
  nv exec --raw "DROP TABLE scratch"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sess, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()
		out := cmd.OutOrStdout()

		if len(args) > 1 {
			res, err := sess.ExecuteBatch(ctx, args)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(out, newBatchJSON(res))
			}
			display.Batch(out, res)
			return nil
		}

		stmt := args[0]
		if sqlclass.IsQuery(stmt) {
			rows, err := sess.Query(ctx, stmt)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(out, newRowsJSON(rows))
			}
			display.Rows(out, rows, execMaxRows)
			return nil
		}

		var res store.Result
		if execRaw {
			res, err = sess.ExecuteRaw(ctx, stmt)
		} else {
			res, err = sess.Execute(ctx, stmt)
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, newResultJSON(res))
		}
		msg := fmt.Sprintf("%d rows affected", res.RowsAffected)
		if res.CatalogChanged {
			msg = fmt.Sprintf("%s %s, catalog updated", res.Statement.Kind, res.Statement.Table)
		}
		display.SuccessMsg(out, "%s", msg)
		return nil
	},
}

func init() {
	execCmd.Flags().BoolVar(&execRaw, "raw", false, "Execute without updating the catalog")
	execCmd.Flags().IntVarP(&execMaxRows, "max-rows", "n", 100, "Maximum rows to print")
	rootCmd.AddCommand(execCmd)
}
