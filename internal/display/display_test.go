package display

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/daviddao/nirvana/internal/actions"
	"github.com/daviddao/nirvana/internal/gmail"
	"github.com/daviddao/nirvana/internal/ingest"
	"github.com/daviddao/nirvana/internal/store"
	msync "github.com/daviddao/nirvana/internal/sync"
	"github.com/daviddao/nirvana/internal/tracker"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Equal(t, "héllo w...", Truncate("héllo wörld!", 10))
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "just now", TimeAgo("Tue, 10 Mar 2026 11:59:30 +0000", now))
	assert.Equal(t, "5m ago", TimeAgo("Tue, 10 Mar 2026 11:55:00 +0000", now))
	assert.Equal(t, "3h ago", TimeAgo("Tue, 10 Mar 2026 10:00:00 +0100 (CET)", now))
	assert.Equal(t, "2d ago", TimeAgo("8 Mar 2026 12:00:00 +0000", now))
	assert.Equal(t, "Feb 1", TimeAgo("Sun, 1 Feb 2026 09:00:00 +0000", now))
	assert.Equal(t, "yesterday-ish", TimeAgo("yesterday-ish", now))
	assert.Equal(t, "", TimeAgo("", now))
}

func TestCell(t *testing.T) {
	assert.Equal(t, "NULL", Cell(nil))
	assert.Equal(t, "2026-03-14", Cell(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-03-14T09:30:00Z", Cell(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)))
	assert.Equal(t, "42", Cell(int64(42)))
}

func TestCatalog(t *testing.T) {
	var buf bytes.Buffer
	Catalog(&buf, "alice_example_com", store.Catalog{"Notes": {"id", "body"}, "Epics": {"IssueID"}})
	out := buf.String()
	assert.Contains(t, out, "alice_example_com")
	assert.Contains(t, out, "Notes")
	assert.Contains(t, out, "(id, body)")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("Epics")), bytes.Index(buf.Bytes(), []byte("Notes")))

	buf.Reset()
	Catalog(&buf, "empty", store.Catalog{})
	assert.Contains(t, buf.String(), "(no tables)")
}

func TestDrift(t *testing.T) {
	var buf bytes.Buffer
	Drift(&buf, []string{"Gone"}, []string{"Stray"})
	assert.Contains(t, buf.String(), "Gone")
	assert.Contains(t, buf.String(), "catalogued but not present")
	assert.Contains(t, buf.String(), "Stray")

	buf.Reset()
	Drift(&buf, nil, nil)
	assert.Contains(t, buf.String(), "catalog matches")
}

func TestRows(t *testing.T) {
	var buf bytes.Buffer
	Rows(&buf, &store.Rows{
		Columns: []string{"project", "new_date"},
		Values:  [][]any{{"Apollo", "2026-03-14"}, {"Gemini", nil}, {"Mercury", "2026-04-01"}},
	}, 2)
	out := buf.String()
	assert.Contains(t, out, "project")
	assert.Contains(t, out, "Apollo")
	assert.Contains(t, out, "NULL")
	assert.NotContains(t, out, "Mercury")
	assert.Contains(t, out, "1 more rows")

	buf.Reset()
	Rows(&buf, &store.Rows{Columns: []string{"a"}}, 10)
	assert.Contains(t, buf.String(), "(no rows)")
}

func TestBatch(t *testing.T) {
	var buf bytes.Buffer
	Batch(&buf, &store.BatchResult{
		Total: 3, Succeeded: 1, Failed: 1, Skipped: 1,
		Failures: []*store.SQLError{{Statement: "INSERT INTO Nope VALUES (1)", Stage: store.StageExecute, Cause: errors.New("no such table: Nope")}},
	})
	out := buf.String()
	assert.Contains(t, out, "1/3 statements succeeded, 1 skipped, 1 failed")
	assert.Contains(t, out, "INSERT INTO Nope")
	assert.Contains(t, out, "no such table")
}

func TestSync(t *testing.T) {
	var buf bytes.Buffer
	Sync(&buf, &tracker.SyncResult{Table: "Epics", Loaded: 4})
	assert.Contains(t, buf.String(), "loaded 4 records into Epics")
}

func TestActionsAndRun(t *testing.T) {
	var buf bytes.Buffer
	Actions(&buf, []actions.Action{
		actions.CreateIssue{Project: "APL", Summary: "Prepare launch"},
		actions.UpdateIssue{Issue: "APL-7", DueDate: "2026-03-14", Status: "In Progress"},
	})
	out := buf.String()
	assert.Contains(t, out, "create_issue")
	assert.Contains(t, out, "APL: Prepare launch")
	assert.Contains(t, out, "APL-7")
	assert.Contains(t, out, "due=2026-03-14 status=In Progress")

	buf.Reset()
	Run(&buf, &actions.RunResult{Succeeded: 1, Failed: 1, Issues: []string{"APL-8"}, Errors: []error{errors.New("boom")}})
	assert.Contains(t, buf.String(), "APL-8")
	assert.Contains(t, buf.String(), "boom")
	assert.Contains(t, buf.String(), "1 succeeded, 1 failed")
}

func TestMessages(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	Messages(&buf, []gmail.Summary{{ID: "m1", From: "pm@example.com", Subject: "Launch moved", Date: "Tue, 10 Mar 2026 10:00:00 +0000"}}, now)
	out := buf.String()
	assert.Contains(t, out, "m1")
	assert.Contains(t, out, "Launch moved")
	assert.Contains(t, out, "2h ago")
}

func TestInbox(t *testing.T) {
	var buf bytes.Buffer
	Inbox(&buf, &msync.Result{
		Found: 3, Ingested: 1, Skipped: 1, Failed: 1,
		Reports: []*ingest.Report{{RunID: "r1", BatchResult: store.BatchResult{Total: 2, Succeeded: 2}}},
		Errors:  []error{errors.New("read m3: gone")},
	})
	out := buf.String()
	assert.Contains(t, out, "1 ingested, 1 already seen, 1 failed")
	assert.Contains(t, out, "run r1: 2/2 statements")
	assert.Contains(t, out, "read m3: gone")
}
