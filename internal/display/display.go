// Package display renders command output for the terminal.
package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/daviddao/nirvana/internal/actions"
	"github.com/daviddao/nirvana/internal/gmail"
	"github.com/daviddao/nirvana/internal/store"
	msync "github.com/daviddao/nirvana/internal/sync"
	"github.com/daviddao/nirvana/internal/tracker"
)

var (
	Muted    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	Warn     = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
)

// SuccessMsg prints a green checkmark and message.
func SuccessMsg(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, Success.Render("✓")+" "+fmt.Sprintf(format, args...))
}

// ErrorMsg prints a red X and message.
func ErrorMsg(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, ErrStyle.Render("✗")+" "+fmt.Sprintf(format, args...))
}

// Header prints a section header.
func Header(w io.Writer, title string) {
	fmt.Fprintln(w, Bold.Render(title))
}

// Truncate shortens s to maxLen runes, adding an ellipsis if needed.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// mailDateLayouts are the Date header forms seen in practice.
var mailDateLayouts = []string{
	time.RFC1123Z,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC3339,
}

// TimeAgo formats a mail Date header relative to now. Unparseable dates
// are returned as given.
func TimeAgo(date string, now time.Time) string {
	if date == "" {
		return ""
	}
	var (
		t   time.Time
		err error
	)
	for _, layout := range mailDateLayouts {
		if t, err = time.Parse(layout, date); err == nil {
			break
		}
	}
	if err != nil {
		return date
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

// Catalog prints every catalogued table with its columns.
func Catalog(w io.Writer, ns string, cat store.Catalog) {
	Header(w, "Namespace "+ns)
	if len(cat) == 0 {
		fmt.Fprintln(w, Dim.Render("  (no tables)"))
		return
	}
	for _, name := range cat.Tables() {
		fmt.Fprintf(w, "  %s %s\n", Bold.Render(name), Muted.Render("("+strings.Join(cat[name], ", ")+")"))
	}
}

// Drift prints the differences between the catalog and physical tables.
func Drift(w io.Writer, missing, untracked []string) {
	if len(missing) == 0 && len(untracked) == 0 {
		SuccessMsg(w, "catalog matches physical tables")
		return
	}
	for _, t := range missing {
		fmt.Fprintf(w, "  %s %s %s\n", ErrStyle.Render("-"), t, Dim.Render("catalogued but not present"))
	}
	for _, t := range untracked {
		fmt.Fprintf(w, "  %s %s %s\n", Warn.Render("+"), t, Dim.Render("present but not catalogued"))
	}
}

// Rows prints a result set as a table, at most maxRows rows.
func Rows(w io.Writer, rows *store.Rows, maxRows int) {
	if rows == nil || len(rows.Values) == 0 {
		fmt.Fprintln(w, Dim.Render("(no rows)"))
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(Muted).
		Headers(rows.Columns...)
	for i, row := range rows.Values {
		if i == maxRows {
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = Cell(v)
		}
		t.Row(cells...)
	}
	fmt.Fprintln(w, t.Render())
	if extra := len(rows.Values) - maxRows; maxRows >= 0 && extra > 0 {
		fmt.Fprintln(w, Dim.Render(fmt.Sprintf("... %d more rows", extra)))
	}
}

// Cell formats one column value.
func Cell(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format(time.DateOnly)
		}
		return v.Format(time.RFC3339)
	default:
		return Truncate(fmt.Sprint(v), 60)
	}
}

// Batch prints the outcome of executing a list of statements.
func Batch(w io.Writer, res *store.BatchResult) {
	summary := fmt.Sprintf("%d/%d statements succeeded", res.Succeeded, res.Total)
	if res.Skipped > 0 {
		summary += fmt.Sprintf(", %d skipped", res.Skipped)
	}
	if res.Failed == 0 {
		SuccessMsg(w, "%s", summary)
	} else {
		ErrorMsg(w, "%s, %d failed", summary, res.Failed)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(w, "  %s %s\n", Muted.Render("└─"), Truncate(f.Statement, 80))
		fmt.Fprintf(w, "     %s\n", ErrStyle.Render(f.Cause.Error()))
	}
}

// Sync prints the outcome of a tracker sync.
func Sync(w io.Writer, res *tracker.SyncResult) {
	if res.Failed == 0 {
		SuccessMsg(w, "loaded %d records into %s", res.Loaded, res.Table)
		return
	}
	ErrorMsg(w, "loaded %d records into %s, %d failed", res.Loaded, res.Table, res.Failed)
	for _, err := range res.Failures {
		fmt.Fprintf(w, "  %s %s\n", Muted.Render("└─"), ErrStyle.Render(err.Error()))
	}
}

// Actions lists proposed tracker actions.
func Actions(w io.Writer, acts []actions.Action) {
	if len(acts) == 0 {
		fmt.Fprintln(w, Dim.Render("(no actions proposed)"))
		return
	}
	for i, a := range acts {
		fmt.Fprintf(w, "%s %s %s\n", Muted.Render(fmt.Sprintf("%2d.", i+1)), Bold.Render(a.Type()), describeAction(a))
	}
}

func describeAction(a actions.Action) string {
	switch a := a.(type) {
	case actions.CreateIssue:
		return fmt.Sprintf("%s: %s", a.Project, a.Summary)
	case actions.UpdateIssue:
		var changes []string
		for _, kv := range [][2]string{{"due", a.DueDate}, {"assignee", a.Assignee}, {"status", a.Status}, {"priority", a.Priority}} {
			if kv[1] != "" {
				changes = append(changes, kv[0]+"="+kv[1])
			}
		}
		return fmt.Sprintf("%s %s", a.Issue, Dim.Render(strings.Join(changes, " ")))
	default:
		return ""
	}
}

// Run prints the outcome of dispatching actions.
func Run(w io.Writer, res *actions.RunResult) {
	for _, key := range res.Issues {
		SuccessMsg(w, "%s", key)
	}
	for _, err := range res.Errors {
		ErrorMsg(w, "%v", err)
	}
	fmt.Fprintln(w, Muted.Render(fmt.Sprintf("%d succeeded, %d failed", res.Succeeded, res.Failed)))
}

// Messages lists Gmail search hits.
func Messages(w io.Writer, msgs []gmail.Summary, now time.Time) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, Dim.Render("(no messages)"))
		return
	}
	for _, m := range msgs {
		fmt.Fprintf(w, "%s  %s  %s\n", Muted.Render(m.ID), Bold.Render(Truncate(m.From, 30)), Dim.Render(TimeAgo(m.Date, now)))
		fmt.Fprintf(w, "  %s\n", Truncate(m.Subject, 80))
	}
}

// Inbox prints the outcome of an inbox sync.
func Inbox(w io.Writer, res *msync.Result) {
	summary := fmt.Sprintf("%d ingested, %d already seen", res.Ingested, res.Skipped)
	if res.Failed == 0 {
		SuccessMsg(w, "%s", summary)
	} else {
		ErrorMsg(w, "%s, %d failed", summary, res.Failed)
	}
	for _, r := range res.Reports {
		fmt.Fprintf(w, "  %s run %s: %d/%d statements\n", Muted.Render("├─"), r.RunID, r.Succeeded, r.Total)
	}
	for _, err := range res.Errors {
		fmt.Fprintf(w, "  %s %s\n", Muted.Render("└─"), ErrStyle.Render(err.Error()))
	}
}
