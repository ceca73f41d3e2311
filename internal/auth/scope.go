// Package auth resolves the Execution Scope isolating a chat request to one
// trip or one user. Token issuance lives elsewhere; this package only
// verifies that a token binds exactly one scope.
package auth

import (
	"errors"
	"fmt"
	"regexp"
)

const (
	// ScopeTrip scopes queries to a single trip.
	ScopeTrip = "trip_id"
	// ScopeUser scopes queries to a single user.
	ScopeUser = "user_id"
)

var (
	// ErrNoScope indicates no credential resolved to a scope.
	ErrNoScope = errors.New("auth: no scope resolved")
	// ErrInvalidToken indicates a token that failed verification.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrInvalidID indicates a malformed explicit trip or user id.
	ErrInvalidID = errors.New("auth: invalid id format")
)

// Scope is the {column, id} pair every executed query is constrained by.
// It is established once per request from an authenticated identity and
// never taken from planner output.
type Scope struct {
	Column string
	ID     string
}

// Truncated returns a redacted scope id suitable for meta events and logs.
func (s Scope) Truncated() string {
	runes := []rune(s.ID)
	if len(runes) <= 8 {
		return s.ID
	}
	return string(runes[:8]) + "…"
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Policy controls whether unauthenticated explicit ids are honored.
type Policy struct {
	AllowAnonymous bool
}

// Mode names the active policy for the health endpoint.
func (p Policy) Mode() string {
	if p.AllowAnonymous {
		return "anonymous"
	}
	return "token"
}

// Credentials are the request inputs a scope may be derived from, in
// priority order: explicit token, Authorization bearer token, explicit ids.
type Credentials struct {
	Token  string
	Bearer string
	TripID string
	UserID string
}

// ResolveScope derives the request scope. Explicit trip/user ids are honored
// only when the anonymous policy allows them; otherwise only verified tokens
// resolve, and a request with no usable credential fails with ErrNoScope.
func ResolveScope(creds Credentials, secret []byte, policy Policy) (Scope, error) {
	if creds.Token != "" {
		return ParseScopedToken(creds.Token, secret)
	}
	if creds.Bearer != "" {
		return ParseScopedToken(creds.Bearer, secret)
	}
	if policy.AllowAnonymous {
		if creds.TripID != "" {
			return explicitScope(ScopeTrip, creds.TripID)
		}
		if creds.UserID != "" {
			return explicitScope(ScopeUser, creds.UserID)
		}
	}
	return Scope{}, ErrNoScope
}

func explicitScope(column, id string) (Scope, error) {
	if !idPattern.MatchString(id) {
		return Scope{}, fmt.Errorf("%w: %s", ErrInvalidID, column)
	}
	return Scope{Column: column, ID: id}, nil
}
