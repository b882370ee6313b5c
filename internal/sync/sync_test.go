package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/daviddao/nirvana/internal/gmail"
	"github.com/daviddao/nirvana/internal/ingest"
	"github.com/daviddao/nirvana/internal/store"
)

type fakeMailbox struct {
	messages map[string]*gmail.Message
	order    []string // newest first, as Gmail lists
	queries  []string
	readErr  map[string]error
}

func (m *fakeMailbox) Search(ctx context.Context, query string, max int64) ([]gmail.Summary, error) {
	m.queries = append(m.queries, query)
	var out []gmail.Summary
	for _, id := range m.order {
		out = append(out, gmail.Summary{ID: id, ThreadID: m.messages[id].ThreadID})
	}
	return out, nil
}

func (m *fakeMailbox) Read(ctx context.Context, id string) (*gmail.Message, error) {
	if err := m.readErr[id]; err != nil {
		return nil, err
	}
	return m.messages[id], nil
}

type fakeIngester struct {
	emails []string
	fail   map[string]bool
}

func (f *fakeIngester) Ingest(ctx context.Context, sess *store.Session, email string) (*ingest.Report, error) {
	f.emails = append(f.emails, email)
	for marker := range f.fail {
		if strings.Contains(email, marker) {
			return nil, errors.New("model unavailable")
		}
	}
	return &ingest.Report{RunID: fmt.Sprintf("run-%d", len(f.emails)), BatchResult: store.BatchResult{Total: 1, Succeeded: 1}}, nil
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
	return sess
}

func newMailbox() *fakeMailbox {
	return &fakeMailbox{
		messages: map[string]*gmail.Message{
			"m1": {ID: "m1", ThreadID: "t1", From: "pm@example.com", Subject: "Kickoff", Body: "first"},
			"m2": {ID: "m2", ThreadID: "t1", From: "pm@example.com", Subject: "Re: Kickoff", Body: "second"},
		},
		order: []string{"m2", "m1"},
	}
}

func TestRun_IngestsOldestFirstAndRecords(t *testing.T) {
	ctx := context.Background()
	sess := openSession(t)
	mail := newMailbox()
	ing := &fakeIngester{}
	s := New(mail, ing, zaptest.NewLogger(t))
	s.now = func() time.Time { return time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC) }

	res, err := s.Run(ctx, sess, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Found)
	assert.Equal(t, 2, res.Ingested)
	assert.Zero(t, res.Failed)
	require.Len(t, ing.emails, 2)
	assert.Contains(t, ing.emails[0], "first")
	assert.Contains(t, ing.emails[1], "second")
	assert.Equal(t, []string{"newer_than:3d in:inbox"}, mail.queries)

	cat, err := sess.Snapshot(ctx)
	require.NoError(t, err)
	assert.Contains(t, cat, LogTable)

	rows, err := sess.Query(ctx, "SELECT id, run_id FROM "+LogTable+" ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"m1", "run-1"}, {"m2", "run-2"}}, rows.Values)

	// A second run searches after the last ingestion and skips known mail.
	res, err = s.Run(ctx, sess, Options{Query: "from:pm@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Zero(t, res.Ingested)
	assert.Len(t, ing.emails, 2)
	assert.Equal(t, "after:2026/03/10 from:pm@example.com in:inbox", mail.queries[1])
}

func TestRun_FailuresContinue(t *testing.T) {
	ctx := context.Background()
	sess := openSession(t)
	mail := newMailbox()
	mail.messages["m3"] = &gmail.Message{ID: "m3", Subject: "Budget", Body: "third"}
	mail.order = []string{"m3", "m2", "m1"}
	mail.readErr = map[string]error{"m1": errors.New("gone")}
	ing := &fakeIngester{fail: map[string]bool{"Budget": true}}

	res, err := New(mail, ing, zaptest.NewLogger(t)).Run(ctx, sess, Options{Full: true, AllMail: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Ingested)
	assert.Equal(t, 2, res.Failed)
	assert.Len(t, res.Errors, 2)
	assert.Equal(t, []string{""}, mail.queries)

	// Failed messages are retried on the next run.
	mail.readErr = nil
	ing.fail = nil
	res, err = New(mail, ing, zaptest.NewLogger(t)).Run(ctx, sess, Options{Full: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Ingested)
	assert.Equal(t, 1, res.Skipped)
}
