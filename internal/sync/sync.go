// Package sync ingests new inbox mail into a user's namespace. Each message
// is run through the extraction pipeline once; processed messages are
// recorded in an IngestedEmails table so later runs only fetch newer mail.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/daviddao/nirvana/internal/gmail"
	"github.com/daviddao/nirvana/internal/ingest"
	"github.com/daviddao/nirvana/internal/store"
)

// LogTable records every message that has been ingested. It is an ordinary
// catalogued table, so the chat agent can answer questions about it.
const LogTable = "IngestedEmails"

// DefaultWindow is searched when nothing has been ingested yet.
const DefaultWindow = "newer_than:3d"

// DefaultMaxResults caps messages fetched per run.
const DefaultMaxResults = 100

// Mailbox is the subset of the Gmail client a sync needs.
type Mailbox interface {
	Search(ctx context.Context, query string, maxResults int64) ([]gmail.Summary, error)
	Read(ctx context.Context, id string) (*gmail.Message, error)
}

// Ingester turns one email into stored data.
type Ingester interface {
	Ingest(ctx context.Context, sess *store.Session, email string) (*ingest.Report, error)
}

// Options narrow a sync run.
type Options struct {
	// Query is added to the search. The incremental window is still applied
	// unless Full is set.
	Query      string
	Full       bool
	AllMail    bool
	MaxResults int64
}

// Result aggregates a sync run.
type Result struct {
	Found    int
	Ingested int
	Skipped  int
	Failed   int
	Reports  []*ingest.Report
	Errors   []error
}

// Syncer pulls mail into a namespace.
type Syncer struct {
	mail   Mailbox
	ingest Ingester
	log    *zap.Logger
	now    func() time.Time
}

// New returns a Syncer. A nil logger disables logging.
func New(mail Mailbox, ing Ingester, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{mail: mail, ingest: ing, log: log, now: time.Now}
}

// Run searches the mailbox for messages not yet ingested into sess's
// namespace and ingests them oldest first. A message that fails to read or
// ingest is counted and the run continues; connection failures stop it.
func (s *Syncer) Run(ctx context.Context, sess *store.Session, opts Options) (*Result, error) {
	if _, err := sess.Execute(ctx, createLogStatement); err != nil {
		return nil, fmt.Errorf("prepare %s: %w", LogTable, err)
	}

	query, err := s.query(ctx, sess, opts)
	if err != nil {
		return nil, err
	}
	limit := opts.MaxResults
	if limit <= 0 {
		limit = DefaultMaxResults
	}

	hits, err := s.mail.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	log := s.log.With(zap.String("namespace", sess.Namespace()), zap.String("query", query))
	log.Info("mailbox searched", zap.Int("found", len(hits)))

	res := &Result{Found: len(hits)}
	// Gmail lists newest first.
	for i := len(hits) - 1; i >= 0; i-- {
		hit := hits[i]
		seen, err := s.seen(ctx, sess, hit.ID)
		if err != nil {
			return res, err
		}
		if seen {
			res.Skipped++
			continue
		}

		msg, err := s.mail.Read(ctx, hit.ID)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			res.Errors = append(res.Errors, fmt.Errorf("read %s: %w", hit.ID, err))
			log.Warn("failed to read message", zap.String("id", hit.ID), zap.Error(err))
			continue
		}

		report, err := s.ingest.Ingest(ctx, sess, msg.Text())
		if err != nil {
			if errors.Is(err, store.ErrConnection) || ctx.Err() != nil {
				return res, err
			}
			res.Failed++
			res.Errors = append(res.Errors, fmt.Errorf("ingest %s: %w", hit.ID, err))
			log.Warn("failed to ingest message", zap.String("id", hit.ID), zap.Error(err))
			continue
		}
		res.Ingested++
		res.Reports = append(res.Reports, report)
		if err := s.record(ctx, sess, msg, report); err != nil {
			if errors.Is(err, store.ErrConnection) {
				return res, err
			}
			// The data is stored; the message will be offered again next run.
			res.Errors = append(res.Errors, err)
			log.Warn("failed to record ingested message", zap.String("id", hit.ID), zap.Error(err))
		}
	}

	log.Info("mailbox synced",
		zap.Int("ingested", res.Ingested),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed))
	return res, nil
}

const createLogStatement = "CREATE TABLE IF NOT EXISTS " + LogTable + ` (
	id VARCHAR(255) PRIMARY KEY,
	thread_id VARCHAR(255),
	sender TEXT,
	subject TEXT,
	sent TEXT,
	ingested_at TEXT,
	run_id VARCHAR(64),
	statements_ok INTEGER,
	statements_failed INTEGER
)`

// query builds the Gmail search: after the day of the last ingestion, or
// DefaultWindow when there was none.
func (s *Syncer) query(ctx context.Context, sess *store.Session, opts Options) (string, error) {
	var parts []string
	if !opts.Full {
		rows, err := sess.Query(ctx, "SELECT MAX(ingested_at) FROM "+LogTable)
		if err != nil {
			return "", fmt.Errorf("read last ingestion: %w", err)
		}
		window := DefaultWindow
		if len(rows.Values) == 1 {
			if last, ok := rows.Values[0][0].(string); ok {
				if t, err := time.Parse(time.RFC3339, last); err == nil {
					window = "after:" + t.UTC().Format("2006/01/02")
				}
			}
		}
		parts = append(parts, window)
	}
	if q := strings.TrimSpace(opts.Query); q != "" {
		parts = append(parts, q)
	}
	if !opts.AllMail {
		parts = append(parts, "in:inbox")
	}
	return strings.Join(parts, " "), nil
}

func (s *Syncer) seen(ctx context.Context, sess *store.Session, id string) (bool, error) {
	rows, err := sess.Query(ctx, "SELECT id FROM "+LogTable+" WHERE id = "+sess.Placeholder(1), id)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", id, err)
	}
	return len(rows.Values) > 0, nil
}

func (s *Syncer) record(ctx context.Context, sess *store.Session, msg *gmail.Message, report *ingest.Report) error {
	marks := make([]string, 9)
	for i := range marks {
		marks[i] = sess.Placeholder(i + 1)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (id, thread_id, sender, subject, sent, ingested_at, run_id, statements_ok, statements_failed) VALUES (%s)",
		LogTable, strings.Join(marks, ", "))
	_, err := sess.Execute(ctx, stmt,
		msg.ID, msg.ThreadID, msg.From, msg.Subject, msg.Date,
		s.now().UTC().Format(time.RFC3339), report.RunID, report.Succeeded, report.Failed)
	if err != nil {
		return fmt.Errorf("record %s: %w", msg.ID, err)
	}
	return nil
}
