package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/daviddao/nirvana/internal/chat"
	"github.com/daviddao/nirvana/internal/display"
	"github.com/daviddao/nirvana/internal/store"
)

var chatShowSQL bool

var chatCmd = &cobra.Command{
	Use:   "chat [QUESTION]",
	Short: "Ask questions about the user's stored data",
	Long: `Answer questions from the user's namespace. The model writes SQL against
the catalogued tables, the result is shown to it, and it answers in prose.
Without QUESTION, read questions from stdin until EOF or "exit".`,
	Example: `  nv chat "when is the Apollo launch now?"
  nv chat --show-sql`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		model, err := newModel()
		if err != nil {
			return err
		}
		sess, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()

		agent := chat.New(model, logger)
		out := cmd.OutOrStdout()
		if len(args) == 1 {
			return ask(cmd, agent, sess, args[0])
		}

		prompt := display.Muted.Render("> ")
		fmt.Fprint(out, prompt)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			q := strings.TrimSpace(scanner.Text())
			switch q {
			case "":
			case "exit", "quit":
				return nil
			default:
				if err := ask(cmd, agent, sess, q); err != nil {
					display.ErrorMsg(cmd.ErrOrStderr(), "%v", err)
					if ctx.Err() != nil {
						return ctx.Err()
					}
				}
			}
			fmt.Fprint(out, prompt)
		}
		fmt.Fprintln(out)
		return scanner.Err()
	},
}

func ask(cmd *cobra.Command, agent *chat.Agent, sess *store.Session, question string) error {
	ans, err := agent.Ask(cmd.Context(), sess, question)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		res := map[string]any{"question": question, "answer": ans.Text, "sql": ans.SQL}
		if ans.Rows != nil {
			res["rows"] = newRowsJSON(ans.Rows)
		}
		if ans.SQLError != nil {
			res["sql_error"] = ans.SQLError.Error()
		}
		return printJSON(out, res)
	}
	if chatShowSQL {
		showSQL(out, ans)
	}
	fmt.Fprintln(out, ans.Text)
	return nil
}

func showSQL(w io.Writer, ans *chat.Answer) {
	if ans.SQL == "" {
		return
	}
	fmt.Fprintln(w, display.Dim.Render(ans.SQL))
	switch {
	case ans.SQLError != nil:
		display.ErrorMsg(w, "%v", ans.SQLError)
	case ans.Rows != nil:
		display.Rows(w, ans.Rows, chat.DefaultMaxRows)
	}
}

func init() {
	chatCmd.Flags().BoolVar(&chatShowSQL, "show-sql", false, "Print the SQL behind each answer")
	rootCmd.AddCommand(chatCmd)
}
