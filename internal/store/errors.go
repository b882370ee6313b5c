package store

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrNoNamespace is returned by executor calls made before SelectNamespace.
	ErrNoNamespace = errors.New("no namespace selected")

	// ErrSQLExecution matches every *SQLError.
	ErrSQLExecution = errors.New("sql execution failed")

	// ErrConnection matches every *ConnectionError.
	ErrConnection = errors.New("store connection failed")
)

// Stage names the step of Execute that failed.
type Stage string

const (
	StageExecute Stage = "execute"
	StageCatalog Stage = "catalog"
)

// SQLError reports a single statement that the database rejected. The
// session stays usable; batch callers skip the statement and continue.
type SQLError struct {
	Statement string
	Args      []any
	Stage     Stage
	Cause     error
}

func (e *SQLError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Stage, abbreviate(e.Statement, 120), e.Cause)
}

func (e *SQLError) Unwrap() []error {
	return []error{ErrSQLExecution, e.Cause}
}

// ConnectionError reports that the underlying connection could not be
// established or was lost. It is fatal for the current call.
type ConnectionError struct {
	Op    string
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *ConnectionError) Unwrap() []error {
	return []error{ErrConnection, e.Cause}
}

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
