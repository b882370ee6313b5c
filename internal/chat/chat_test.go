package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/daviddao/nirvana/internal/store"
)

// scriptedModel returns its replies in order.
type scriptedModel struct {
	replies []string
	prompts []string
}

func (m *scriptedModel) Complete(ctx context.Context, system, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

func openSession(t *testing.T) *store.Session {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, store.Config{DataDir: t.TempDir()}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	sess, err := st.Session(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	_, err = sess.Use(ctx, "john@yourcompany.com")
	require.NoError(t, err)

	for _, stmt := range []string{
		"CREATE TABLE Date_Changes (project TEXT, new_date TEXT)",
		"INSERT INTO Date_Changes VALUES ('Falcon', '2024-06-30')",
	} {
		_, err := sess.Execute(ctx, stmt)
		require.NoError(t, err)
	}
	return sess
}

func TestAsk_Query(t *testing.T) {
	sess := openSession(t)
	model := &scriptedModel{replies: []string{
		"```sql\nSELECT project, new_date FROM Date_Changes\n```",
		"Falcon is now due June 30.",
	}}

	ans, err := New(model, zaptest.NewLogger(t)).Ask(context.Background(), sess, "When is Falcon due?")
	require.NoError(t, err)
	assert.Equal(t, "Falcon is now due June 30.", ans.Text)
	assert.Equal(t, "SELECT project, new_date FROM Date_Changes", ans.SQL)
	require.NotNil(t, ans.Rows)
	assert.Len(t, ans.Rows.Values, 1)

	require.Len(t, model.prompts, 2)
	assert.Contains(t, model.prompts[0], "Table: Date_Changes\nColumns: project, new_date")
	assert.Contains(t, model.prompts[1], "project | new_date\nFalcon | 2024-06-30")
}

func TestAsk_NoDataNeeded(t *testing.T) {
	sess := openSession(t)
	model := &scriptedModel{replies: []string{"NONE", "Hello!"}}

	ans, err := New(model, nil).Ask(context.Background(), sess, "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", ans.Text)
	assert.Empty(t, ans.SQL)
	assert.Contains(t, model.prompts[1], "No data was needed")
}

func TestAsk_WriteIsCatalogued(t *testing.T) {
	sess := openSession(t)
	model := &scriptedModel{replies: []string{
		"```sql\nCREATE TABLE IF NOT EXISTS Reminders (note TEXT)\n```",
		"Noted.",
	}}

	ans, err := New(model, nil).Ask(context.Background(), sess, "Start keeping reminders")
	require.NoError(t, err)
	assert.Nil(t, ans.Rows)
	assert.Nil(t, ans.SQLError)

	cat, err := sess.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"note"}, cat["Reminders"])
}

func TestAsk_BadSQLIsReportedToModel(t *testing.T) {
	sess := openSession(t)
	model := &scriptedModel{replies: []string{
		"```sql\nSELECT * FROM Missing\n```",
		"Sorry, I could not find that.",
	}}

	ans, err := New(model, nil).Ask(context.Background(), sess, "What is missing?")
	require.NoError(t, err)
	assert.ErrorIs(t, ans.SQLError, store.ErrSQLExecution)
	assert.Contains(t, model.prompts[1], "failed")
}

func TestFormatRows(t *testing.T) {
	rows := &store.Rows{
		Columns: []string{"a", "b"},
		Values:  [][]any{{int64(1), nil}, {int64(2), "x"}, {int64(3), "y"}},
	}
	assert.Equal(t, "a | b\n1 | NULL\n2 | x\n... 1 more rows\n", FormatRows(rows, 2))
	assert.Equal(t, "(no rows)\n", FormatRows(&store.Rows{Columns: []string{"a"}}, 10))
}
