package audit

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Entry records one chat request. Scope ids and the question text are stored
// as digests only; raw values never reach the table.
type Entry struct {
	ID             string
	RequestID      string
	ScopeColumn    string
	ScopeDigest    string
	QuestionDigest string
	Intent         string
	Outcome        string
	FallbackReason string
	Model          string
	RowCount       int
	DurationMs     int64
	CreatedAt      time.Time
}

// Outcome values for Entry.Outcome.
const (
	OutcomeAnswered = "answered"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a random audit id.
func NewID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "audit-" + hex.EncodeToString(buf)
}

// Digest computes a SHA256 hex digest of free text.
func Digest(text string) string {
	if text == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
