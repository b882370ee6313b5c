// Package chat answers questions about a tenant's stored data. The model
// sees the catalog, writes at most one SQL statement, and then answers from
// the rows it returned.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/daviddao/nirvana/internal/llm"
	"github.com/daviddao/nirvana/internal/sqlclass"
	"github.com/daviddao/nirvana/internal/store"
)

// DefaultMaxRows caps the rows shown to the model when answering.
const DefaultMaxRows = 50

const systemPrompt = `You are the assistant of Nirvana, an app that helps managers keep track of
their work and their team using facts extracted from their email.`

const sqlInstructions = `Decide whether the question below needs data from the user's database.
If it does, reply with exactly one SQL statement in a ` + "```sql" + ` code block, using only the
tables and columns listed. If the user asks you to remember something, you may write an
INSERT or CREATE TABLE IF NOT EXISTS statement instead. If no data is needed, reply NONE.`

// Answer is the result of one question.
type Answer struct {
	Text string
	// SQL is the statement that was run, if any.
	SQL  string
	Rows *store.Rows
	// SQLError is set when the statement was rejected; the model was told.
	SQLError error
}

// Agent answers questions against a session.
type Agent struct {
	model   llm.Model
	log     *zap.Logger
	maxRows int
}

// New returns an Agent. A nil logger disables logging.
func New(model llm.Model, log *zap.Logger) *Agent {
	if log == nil {
		log = zap.NewNop()
	}
	return &Agent{model: model, log: log, maxRows: DefaultMaxRows}
}

// Ask answers question using the data in the session's namespace.
func (a *Agent) Ask(ctx context.Context, sess *store.Session, question string) (*Answer, error) {
	cat, err := sess.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	prompt := fmt.Sprintf("%s\n\nDatabase:\n%s\nQuestion: %s", sqlInstructions, cat.Describe(), question)
	reply, err := a.model.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("plan query: %w", err)
	}

	ans := &Answer{}
	stmts := llm.ExtractSQL(reply)
	if len(stmts) > 0 {
		ans.SQL = stmts[0]
		if err := a.run(ctx, sess, ans); err != nil {
			return nil, err
		}
	}

	text, err := a.model.Complete(ctx, systemPrompt, answerPrompt(question, ans, a.maxRows))
	if err != nil {
		return nil, fmt.Errorf("answer: %w", err)
	}
	ans.Text = strings.TrimSpace(text)
	return ans, nil
}

// run executes ans.SQL. Statement failures are recorded on ans; only
// connection failures are returned.
func (a *Agent) run(ctx context.Context, sess *store.Session, ans *Answer) error {
	var err error
	if sqlclass.IsQuery(ans.SQL) {
		ans.Rows, err = sess.Query(ctx, ans.SQL)
	} else {
		_, err = sess.Execute(ctx, ans.SQL)
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrSQLExecution) {
		a.log.Warn("chat statement failed", zap.String("statement", ans.SQL), zap.Error(err))
		ans.SQLError = err
		return nil
	}
	return fmt.Errorf("run %q: %w", ans.SQL, err)
}

func answerPrompt(question string, ans *Answer, maxRows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	switch {
	case ans.SQL == "":
		b.WriteString("No data was needed. Answer directly and briefly.\n")
	case ans.SQLError != nil:
		fmt.Fprintf(&b, "The statement\n%s\nfailed: %v\nTell the user the data could not be retrieved.\n", ans.SQL, ans.SQLError)
	case ans.Rows == nil:
		fmt.Fprintf(&b, "The statement\n%s\nwas executed. Confirm briefly what was stored.\n", ans.SQL)
	default:
		fmt.Fprintf(&b, "The query\n%s\nreturned:\n%s\nAnswer the question from these rows only.\n", ans.SQL, FormatRows(ans.Rows, maxRows))
	}
	return b.String()
}

// FormatRows renders rows as pipe-separated lines, at most max rows.
func FormatRows(rows *store.Rows, max int) string {
	if rows == nil || len(rows.Values) == 0 {
		return "(no rows)\n"
	}
	var b strings.Builder
	b.WriteString(strings.Join(rows.Columns, " | "))
	b.WriteString("\n")
	for i, row := range rows.Values {
		if i == max {
			fmt.Fprintf(&b, "... %d more rows\n", len(rows.Values)-max)
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			if v == nil {
				cells[j] = "NULL"
			} else {
				cells[j] = fmt.Sprint(v)
			}
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	return b.String()
}
