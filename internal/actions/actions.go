// Package actions defines the tracker actions a model may propose from an
// email. Actions are plain data decoded from JSON and dispatched by type;
// nothing in a model reply is ever executed as code.
package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/daviddao/nirvana/internal/jira"
)

// Action type tags.
const (
	TypeCreateIssue = "create_issue"
	TypeUpdateIssue = "update_issue"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrInvalidAction = errors.New("invalid action")
)

// Action is one of CreateIssue or UpdateIssue.
type Action interface {
	Type() string
	Validate() error
	isAction()
}

// CreateIssue opens a new issue. Project is a project name or key;
// Assignee is an account ID.
type CreateIssue struct {
	Project     string   `json:"project"`
	Summary     string   `json:"summary"`
	Description string   `json:"description,omitempty"`
	Assignee    string   `json:"assignee,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	IssueType   string   `json:"issue_type,omitempty"`
	DueDate     string   `json:"due_date,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

func (CreateIssue) Type() string { return TypeCreateIssue }
func (CreateIssue) isAction()    {}

func (a CreateIssue) Validate() error {
	if strings.TrimSpace(a.Project) == "" || strings.TrimSpace(a.Summary) == "" {
		return fmt.Errorf("%w: create_issue needs project and summary", ErrInvalidAction)
	}
	return nil
}

// UpdateIssue changes an existing issue, addressed by ID or key. Status is
// applied as a workflow transition.
type UpdateIssue struct {
	Issue    string `json:"issue"`
	DueDate  string `json:"due_date,omitempty"`
	Assignee string `json:"assignee,omitempty"`
	Status   string `json:"status,omitempty"`
	Priority string `json:"priority,omitempty"`
}

func (UpdateIssue) Type() string { return TypeUpdateIssue }
func (UpdateIssue) isAction()    {}

func (a UpdateIssue) Validate() error {
	if strings.TrimSpace(a.Issue) == "" {
		return fmt.Errorf("%w: update_issue needs issue", ErrInvalidAction)
	}
	return nil
}

// Decode reads one tagged action object.
func Decode(data []byte) (Action, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}

	var a Action
	switch head.Type {
	case TypeCreateIssue:
		var c CreateIssue
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		a = c
	case TypeUpdateIssue:
		var u UpdateIssue
		if err := json.Unmarshal(data, &u); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		a = u
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, head.Type)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// DecodeList reads a JSON array of tagged actions.
func DecodeList(data []byte) ([]Action, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode action list: %w", err)
	}
	out := make([]Action, 0, len(raws))
	for i, raw := range raws {
		a, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// Encode writes a as a tagged JSON object.
func Encode(a Action) ([]byte, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"] = a.Type()
	return json.Marshal(fields)
}

// Tracker is the subset of the Jira client actions need.
type Tracker interface {
	CreateIssue(ctx context.Context, in jira.IssueInput) (*jira.CreatedIssue, error)
	UpdateIssue(ctx context.Context, issue string, u jira.IssueUpdate) error
	TransitionIssue(ctx context.Context, issue, status string) error
}

// Dispatch performs a against t and returns the key of the affected issue.
func Dispatch(ctx context.Context, t Tracker, a Action) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	switch a := a.(type) {
	case CreateIssue:
		created, err := t.CreateIssue(ctx, jira.IssueInput{
			Project:     a.Project,
			Summary:     a.Summary,
			Description: a.Description,
			AssigneeID:  a.Assignee,
			Priority:    a.Priority,
			IssueType:   a.IssueType,
			DueDate:     a.DueDate,
			Labels:      a.Labels,
		})
		if err != nil {
			return "", err
		}
		return created.Key, nil

	case UpdateIssue:
		err := t.UpdateIssue(ctx, a.Issue, jira.IssueUpdate{
			AssigneeID: a.Assignee,
			Priority:   a.Priority,
			DueDate:    a.DueDate,
		})
		if err != nil {
			return "", err
		}
		if a.Status != "" {
			if err := t.TransitionIssue(ctx, a.Issue, a.Status); err != nil {
				return "", err
			}
		}
		return a.Issue, nil

	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownAction, a)
	}
}

// RunResult aggregates a Run.
type RunResult struct {
	Succeeded int
	Failed    int
	Issues    []string
	Errors    []error
}

// Run dispatches every action in order, continuing past failures.
func Run(ctx context.Context, t Tracker, acts []Action) *RunResult {
	res := &RunResult{}
	for i, a := range acts {
		key, err := Dispatch(ctx, t, a)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Errorf("action %d (%s): %w", i, a.Type(), err))
			continue
		}
		res.Succeeded++
		res.Issues = append(res.Issues, key)
	}
	return res
}
