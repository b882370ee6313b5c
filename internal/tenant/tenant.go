// Package tenant maps external user identities (email addresses) to the
// namespace that isolates their data in the store.
package tenant

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidIdentity is returned when an identity cannot be mapped to a
// usable namespace name.
var ErrInvalidIdentity = errors.New("invalid identity")

// MaxNameLen is the longest namespace name accepted. Postgres truncates
// identifiers beyond 63 bytes, which would silently merge tenants.
const MaxNameLen = 63

var validName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Resolve returns the namespace name for an identity.
//
// Every "@" and "." becomes "_". The result is lower-cased (Postgres folds
// unquoted schema names anyway), any other character outside [a-z0-9_] is
// replaced with "_", and a leading digit gets a "u_" prefix.
//
// The mapping is not injective: identities that differ only in characters
// outside [a-z0-9], or only in case, share a namespace. "josé@x.com" and
// "jos_@x.com" both resolve to "jos__x_com", as do "a+b@x" and "a-b@x".
// Callers that accept such identities from untrusted sources must check for
// an existing owner before handing out the namespace.
//
//	Resolve("alice@example.com") // "alice_example_com"
func Resolve(identity string) (string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", fmt.Errorf("%w: empty identity", ErrInvalidIdentity)
	}

	name := strings.NewReplacer("@", "_", ".", "_").Replace(identity)
	name = strings.ToLower(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name[0] >= '0' && name[0] <= '9' {
		name = "u_" + name
	}

	if err := Valid(name); err != nil {
		return "", fmt.Errorf("resolve %q: %w", identity, err)
	}
	return name, nil
}

// Valid reports whether name can be used as a namespace. Callers that take a
// namespace name from outside Resolve must check it before it reaches SQL.
func Valid(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty namespace", ErrInvalidIdentity)
	case len(name) > MaxNameLen:
		return fmt.Errorf("%w: namespace %q exceeds %d bytes", ErrInvalidIdentity, name, MaxNameLen)
	case strings.HasPrefix(name, "pg_"):
		return fmt.Errorf("%w: namespace %q uses the reserved pg_ prefix", ErrInvalidIdentity, name)
	case !validName.MatchString(name):
		return fmt.Errorf("%w: namespace %q is not a valid identifier", ErrInvalidIdentity, name)
	}
	return nil
}
