package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/daviddao/nirvana/internal/jira"
	"github.com/daviddao/nirvana/internal/llm"
)

const systemPrompt = `You work for Nirvana, an assistant that helps managers keep their Jira
projects in step with the email they receive. You only ever reply with JSON or the word NONE.`

const instructions = `Given the email below and the current state of the user's Jira projects,
decide which Jira actions, if any, the email calls for. Creating projects is out of scope.

Reply with a JSON array of action objects. Each object has a "type" field and is one of:

{"type": "create_issue", "project": "<project name or key>", "summary": "...",
 "description": "...", "assignee": "<account_id>", "priority": "Low|Medium|High|Highest",
 "issue_type": "Task|Epic|Bug|Story", "due_date": "YYYY-MM-DD", "labels": ["..."]}

{"type": "update_issue", "issue": "<issue key>", "due_date": "YYYY-MM-DD",
 "assignee": "<account_id>", "status": "<status name>", "priority": "..."}

project and summary are required for create_issue; issue is required for update_issue.
Omit fields you have no value for. Use account IDs from the context for assignees.
If the email calls for no action, reply NONE.`

// Proposer asks a model which actions an email calls for.
type Proposer struct {
	model llm.Model
	log   *zap.Logger
}

// NewProposer returns a Proposer. A nil logger disables logging.
func NewProposer(model llm.Model, log *zap.Logger) *Proposer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Proposer{model: model, log: log}
}

// Propose returns the actions the model suggests for email given the
// tracker context. Objects the model gets wrong are dropped and logged.
func (p *Proposer) Propose(ctx context.Context, email string, projects map[string]jira.ProjectContext) ([]Action, error) {
	state, err := json.MarshalIndent(projects, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tracker context: %w", err)
	}
	prompt := fmt.Sprintf("%s\n\nContext:\n%s\n\nEmail:\n%s\n\nActions:", instructions, state, email)

	reply, err := p.model.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("propose actions: %w", err)
	}
	if llm.IsNone(reply) {
		return []Action{}, nil
	}

	raw, err := llm.ExtractJSON(reply)
	if err != nil {
		return nil, fmt.Errorf("propose actions: %w", err)
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("propose actions: decode reply: %w", err)
	}

	out := make([]Action, 0, len(items))
	for _, item := range items {
		a, err := Decode(item)
		if err != nil {
			p.log.Warn("dropping proposed action", zap.ByteString("action", item), zap.Error(err))
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
