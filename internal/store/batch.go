package store

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// BatchResult aggregates an ExecuteBatch run.
type BatchResult struct {
	Total     int
	Succeeded int
	Failed    int
	// Skipped counts blank statements and, after a connection failure,
	// every statement that was not attempted.
	Skipped  int
	Failures []*SQLError
}

// ExecuteBatch runs stmts in order through Execute. A statement the
// database rejects is recorded and the batch continues; a connection
// failure stops the batch and is returned alongside the partial result.
func (s *Session) ExecuteBatch(ctx context.Context, stmts []string) (*BatchResult, error) {
	res := &BatchResult{Total: len(stmts)}
	for i, stmt := range stmts {
		if err := ctx.Err(); err != nil {
			res.Skipped += len(stmts) - i
			return res, err
		}
		if strings.TrimSpace(stmt) == "" {
			res.Skipped++
			continue
		}
		_, err := s.Execute(ctx, stmt)
		if err == nil {
			res.Succeeded++
			continue
		}
		var sqlErr *SQLError
		if errors.As(err, &sqlErr) {
			res.Failed++
			res.Failures = append(res.Failures, sqlErr)
			continue
		}
		res.Skipped += len(stmts) - i - 1
		res.Failed++
		return res, err
	}

	s.log.Info("batch executed",
		zap.Int("total", res.Total),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped))
	return res, nil
}
