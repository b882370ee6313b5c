// Package jira is a small Jira Cloud REST v3 client covering what nirvana
// needs: listing projects, searching issues, and creating, updating and
// transitioning issues.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// DefaultBaseURL is the Atlassian API gateway. Cloud sites live under
// /ex/jira/{cloudID}.
const DefaultBaseURL = "https://api.atlassian.com"

const searchPageSize = 50

// searchFields are the issue fields requested from search.
var searchFields = []string{
	"summary", "description", "status", "created", "updated", "duedate",
	"assignee", "priority", "issuetype", "labels", "project",
}

var (
	ErrProjectNotFound    = errors.New("jira project not found")
	ErrTransitionNotFound = errors.New("jira transition not found")
)

// APIError is a non-2xx response from Jira.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira %s %s: %d %s", e.Method, e.Path, e.StatusCode, strings.TrimSpace(e.Body))
}

// Client talks to one Jira Cloud site.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the site URL (everything before /rest/api/3).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the OAuth2 HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for cloudID that authenticates with a bearer access
// token.
func New(ctx context.Context, cloudID, accessToken string, opts ...Option) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	c := &Client{
		baseURL: DefaultBaseURL + "/ex/jira/" + url.PathEscape(cloudID),
		http:    oauth2.NewClient(ctx, ts),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Project is a Jira project.
type Project struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Named is any Jira entity referenced by name (status, priority, issue type).
type Named struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// User is a Jira account.
type User struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

// Issue is an issue as returned by search.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

// IssueFields holds the fields nirvana reads.
type IssueFields struct {
	Summary string `json:"summary"`
	// Description is a plain string or an Atlassian document; see
	// DescriptionText.
	Description json.RawMessage `json:"description,omitempty"`
	Status      *Named          `json:"status,omitempty"`
	Created     string          `json:"created,omitempty"`
	Updated     string          `json:"updated,omitempty"`
	DueDate     string          `json:"duedate,omitempty"`
	Assignee    *User           `json:"assignee,omitempty"`
	Priority    *Named          `json:"priority,omitempty"`
	IssueType   *Named          `json:"issuetype,omitempty"`
	Labels      []string        `json:"labels,omitempty"`
	Project     *Project        `json:"project,omitempty"`
}

// Transition is a workflow step available on an issue.
type Transition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	To   *Named `json:"to,omitempty"`
}

// CreatedIssue identifies a newly created issue.
type CreatedIssue struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

// Projects lists every project visible to the token.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.do(ctx, http.MethodGet, "/rest/api/3/project", nil, nil, &projects); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// ProjectKeyByName resolves a project name (or key) to its key.
func (c *Client) ProjectKeyByName(ctx context.Context, name string) (string, error) {
	projects, err := c.Projects(ctx)
	if err != nil {
		return "", err
	}
	for _, p := range projects {
		if strings.EqualFold(p.Name, name) || strings.EqualFold(p.Key, name) {
			return p.Key, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrProjectNotFound, name)
}

type searchPage struct {
	Issues        []Issue `json:"issues"`
	NextPageToken string  `json:"nextPageToken"`
	IsLast        bool    `json:"isLast"`
}

// Search runs a JQL query and follows pagination until every match is read.
func (c *Client) Search(ctx context.Context, jql string) ([]Issue, error) {
	var (
		issues []Issue
		token  string
	)
	for {
		q := url.Values{}
		q.Set("jql", jql)
		q.Set("maxResults", fmt.Sprint(searchPageSize))
		q.Set("fields", strings.Join(searchFields, ","))
		if token != "" {
			q.Set("nextPageToken", token)
		}

		var page searchPage
		if err := c.do(ctx, http.MethodGet, "/rest/api/3/search/jql", q, nil, &page); err != nil {
			return nil, fmt.Errorf("search %q: %w", jql, err)
		}
		issues = append(issues, page.Issues...)

		if page.IsLast || page.NextPageToken == "" || page.NextPageToken == token {
			return issues, nil
		}
		token = page.NextPageToken
	}
}

// IssueInput describes an issue to create. Project may be a name or a key.
type IssueInput struct {
	Project     string
	Summary     string
	Description string
	AssigneeID  string
	Priority    string
	IssueType   string
	DueDate     string // YYYY-MM-DD
	Labels      []string
}

// CreateIssue creates an issue. IssueType defaults to Task.
func (c *Client) CreateIssue(ctx context.Context, in IssueInput) (*CreatedIssue, error) {
	key, err := c.ProjectKeyByName(ctx, in.Project)
	if err != nil {
		return nil, err
	}

	issueType := in.IssueType
	if issueType == "" {
		issueType = "Task"
	}
	fields := map[string]any{
		"project":   map[string]string{"key": key},
		"summary":   in.Summary,
		"issuetype": map[string]string{"name": issueType},
	}
	if in.Description != "" {
		fields["description"] = document(in.Description)
	}
	if in.AssigneeID != "" {
		fields["assignee"] = map[string]string{"id": in.AssigneeID}
	}
	if in.Priority != "" {
		fields["priority"] = map[string]string{"name": in.Priority}
	}
	if in.DueDate != "" {
		fields["duedate"] = in.DueDate
	}
	if len(in.Labels) > 0 {
		fields["labels"] = in.Labels
	}

	var created CreatedIssue
	if err := c.do(ctx, http.MethodPost, "/rest/api/3/issue", nil, map[string]any{"fields": fields}, &created); err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	return &created, nil
}

// IssueUpdate lists field changes. Empty fields are left alone.
type IssueUpdate struct {
	AssigneeID string
	Priority   string
	DueDate    string
	Labels     []string
}

func (u IssueUpdate) empty() bool {
	return u.AssigneeID == "" && u.Priority == "" && u.DueDate == "" && len(u.Labels) == 0
}

// UpdateIssue edits the fields of an issue, addressed by ID or key.
func (c *Client) UpdateIssue(ctx context.Context, issue string, u IssueUpdate) error {
	if u.empty() {
		return nil
	}
	fields := map[string]any{}
	if u.AssigneeID != "" {
		fields["assignee"] = map[string]string{"id": u.AssigneeID}
	}
	if u.Priority != "" {
		fields["priority"] = map[string]string{"name": u.Priority}
	}
	if u.DueDate != "" {
		fields["duedate"] = u.DueDate
	}
	if len(u.Labels) > 0 {
		fields["labels"] = u.Labels
	}
	path := "/rest/api/3/issue/" + url.PathEscape(issue)
	if err := c.do(ctx, http.MethodPut, path, nil, map[string]any{"fields": fields}, nil); err != nil {
		return fmt.Errorf("update issue %s: %w", issue, err)
	}
	return nil
}

// Transitions lists the workflow transitions available on issue.
func (c *Client) Transitions(ctx context.Context, issue string) ([]Transition, error) {
	var resp struct {
		Transitions []Transition `json:"transitions"`
	}
	path := "/rest/api/3/issue/" + url.PathEscape(issue) + "/transitions"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("list transitions for %s: %w", issue, err)
	}
	return resp.Transitions, nil
}

// TransitionIssue moves issue to the named status. The name matches either
// the transition name or its target status, case-insensitively.
func (c *Client) TransitionIssue(ctx context.Context, issue, status string) error {
	transitions, err := c.Transitions(ctx, issue)
	if err != nil {
		return err
	}
	var id string
	for _, t := range transitions {
		if strings.EqualFold(t.Name, status) || (t.To != nil && strings.EqualFold(t.To.Name, status)) {
			id = t.ID
			break
		}
	}
	if id == "" {
		return fmt.Errorf("%w: %q on %s", ErrTransitionNotFound, status, issue)
	}

	body := map[string]any{"transition": map[string]string{"id": id}}
	path := "/rest/api/3/issue/" + url.PathEscape(issue) + "/transitions"
	if err := c.do(ctx, http.MethodPost, path, nil, body, nil); err != nil {
		return fmt.Errorf("transition %s to %q: %w", issue, status, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(msg)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
