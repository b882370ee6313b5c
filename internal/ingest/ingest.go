// Package ingest extracts facts from an email into the tenant's store: the
// model sees the current catalog and the email, and answers with SQL that
// is run as a batch.
package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/daviddao/nirvana/internal/llm"
	"github.com/daviddao/nirvana/internal/store"
)

const systemPrompt = `You work on the data aggregation module of Nirvana, an assistant for managers.
You turn emails into SQL that records what is worth remembering. You only reply with a JSON
array of SQL strings.`

const instructions = `Extract the information in the email below that will be useful for later
questions, insights or recommendations: dates, people, changes, commitments, numbers, patterns.
Do not record Jira projects, issues or users; those are synced separately.

Reply with a JSON array of SQL statements, executed in order. Reuse the existing tables where
they fit. If no table fits and the data will be useful later, create one with
CREATE TABLE IF NOT EXISTS and a plain, unquoted, unqualified name. Use one statement per array
element. If nothing is worth storing, reply with [].`

// Report describes one ingested email.
type Report struct {
	RunID      string
	Statements []string
	store.BatchResult
}

// Pipeline runs extractions.
type Pipeline struct {
	model llm.Model
	log   *zap.Logger
}

// New returns a Pipeline. A nil logger disables logging.
func New(model llm.Model, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{model: model, log: log}
}

// Ingest asks the model what to store from email and executes it in the
// session's namespace. Statements the database rejects are reported, not
// returned as errors.
func (p *Pipeline) Ingest(ctx context.Context, sess *store.Session, email string) (*Report, error) {
	runID := uuid.NewString()
	log := p.log.With(zap.String("run_id", runID), zap.String("namespace", sess.Namespace()))

	cat, err := sess.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	prompt := fmt.Sprintf("%s\n\nCurrent schema:\n%s\nEmail:\n%s\n\nSQL:", instructions, cat.Describe(), email)
	reply, err := p.model.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	stmts, err := llm.ParseStringList(reply)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	log.Debug("extraction proposed statements", zap.Int("count", len(stmts)))

	res, err := sess.ExecuteBatch(ctx, stmts)
	report := &Report{RunID: runID, Statements: stmts}
	if res != nil {
		report.BatchResult = *res
	}
	if err != nil {
		return report, fmt.Errorf("execute extraction: %w", err)
	}

	log.Info("email ingested",
		zap.Int("statements", len(stmts)),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed))
	return report, nil
}
