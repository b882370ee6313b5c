package jira

import (
	"context"
	"fmt"
	"sort"
)

// IssueSummary is the trimmed view of an issue given to a model.
type IssueSummary struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	Summary  string `json:"summary"`
	Status   string `json:"status"`
	DueDate  string `json:"duedate,omitempty"`
	Assignee string `json:"assignee,omitempty"`
}

// Member is an account seen as an assignee in a project.
type Member struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
}

// ProjectContext describes what exists in one project: its issues and the
// members, labels and priorities in use.
type ProjectContext struct {
	Key        string         `json:"key"`
	Issues     []IssueSummary `json:"issues"`
	Members    []Member       `json:"members"`
	Labels     []string       `json:"labels"`
	Priorities []string       `json:"priorities"`
}

// Context gathers a ProjectContext for every visible project, keyed by
// project name.
func (c *Client) Context(ctx context.Context) (map[string]ProjectContext, error) {
	projects, err := c.Projects(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]ProjectContext, len(projects))
	for _, p := range projects {
		issues, err := c.Search(ctx, fmt.Sprintf("project = %q", p.Key))
		if err != nil {
			return nil, err
		}
		out[p.Name] = summarize(p, issues)
	}
	return out, nil
}

func summarize(p Project, issues []Issue) ProjectContext {
	pc := ProjectContext{Key: p.Key, Issues: []IssueSummary{}}
	members := map[string]string{}
	labels := map[string]bool{}
	priorities := map[string]bool{}

	for _, is := range issues {
		s := IssueSummary{
			ID:      is.ID,
			Key:     is.Key,
			Summary: is.Fields.Summary,
			Status:  "Unknown",
			DueDate: is.Fields.DueDate,
		}
		if is.Fields.Status != nil {
			s.Status = is.Fields.Status.Name
		}
		if a := is.Fields.Assignee; a != nil {
			s.Assignee = a.DisplayName
			members[a.AccountID] = a.DisplayName
		}
		for _, l := range is.Fields.Labels {
			labels[l] = true
		}
		if is.Fields.Priority != nil {
			priorities[is.Fields.Priority.Name] = true
		}
		pc.Issues = append(pc.Issues, s)
	}

	pc.Members = make([]Member, 0, len(members))
	for id, name := range members {
		pc.Members = append(pc.Members, Member{AccountID: id, Name: name})
	}
	sort.Slice(pc.Members, func(i, j int) bool { return pc.Members[i].Name < pc.Members[j].Name })
	pc.Labels = sortedKeys(labels)
	pc.Priorities = sortedKeys(priorities)
	return pc
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
