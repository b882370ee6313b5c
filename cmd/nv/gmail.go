package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/daviddao/nirvana/internal/display"
)

var gmailMaxResults int64

var gmailCmd = &cobra.Command{
	Use:         "gmail",
	Short:       "Search and read Gmail messages",
	Annotations: noStore,
}

var gmailSearchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search Gmail messages",
	Long: `Search messages with Gmail's query syntax. Use the printed IDs with
'nv ingest --message' or 'nv actions propose --message'.`,
	Example: `  nv gmail search "from:pm@example.com newer_than:7d"
  nv gmail search "subject:launch" -n 5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := newGmail(ctx)
		if err != nil {
			return err
		}
		msgs, err := c.Search(ctx, args[0], gmailMaxResults)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), msgs)
		}
		display.Messages(cmd.OutOrStdout(), msgs, time.Now())
		return nil
	},
}

var gmailReadCmd = &cobra.Command{
	Use:   "read ID",
	Short: "Print a Gmail message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := newGmail(ctx)
		if err != nil {
			return err
		}
		msg, err := c.Read(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), msg)
		}
		fmt.Fprint(cmd.OutOrStdout(), msg.Text())
		return nil
	},
}

func init() {
	gmailSearchCmd.Flags().Int64VarP(&gmailMaxResults, "max", "n", 10, "Maximum messages to return")
	gmailCmd.AddCommand(gmailSearchCmd)
	gmailCmd.AddCommand(gmailReadCmd)
	rootCmd.AddCommand(gmailCmd)
}
