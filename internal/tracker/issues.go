package tracker

import (
	"time"

	"github.com/daviddao/nirvana/internal/jira"
)

// jiraTimeLayout is the timestamp format Jira uses for created/updated.
const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

// FromIssues adapts Jira issues to records. Unparseable timestamps are
// left zero and an unparseable due date is left nil.
func FromIssues(issues []jira.Issue) []Record {
	records := make([]Record, 0, len(issues))
	for _, is := range issues {
		rec := Record{
			ID:          is.ID,
			Summary:     is.Fields.Summary,
			Description: is.Fields.DescriptionText(),
			Created:     parseTime(is.Fields.Created),
			Updated:     parseTime(is.Fields.Updated),
		}
		if is.Fields.Status != nil {
			rec.Status = is.Fields.Status.Name
		}
		if is.Fields.DueDate != "" {
			if due, err := time.Parse(time.DateOnly, is.Fields.DueDate); err == nil {
				rec.Due = &due
			}
		}
		records = append(records, rec)
	}
	return records
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{jiraTimeLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
