package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository writes audit entries to Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs an audit repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log writes an audit entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO chat_audit_logs (
	id, request_id, scope_column, scope_digest, question_digest,
	intent, outcome, fallback_reason, model, row_count, duration_ms, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)`, entry.ID, entry.RequestID, entry.ScopeColumn, entry.ScopeDigest, entry.QuestionDigest,
		entry.Intent, entry.Outcome, entry.FallbackReason, entry.Model, entry.RowCount, entry.DurationMs, entry.CreatedAt)
	return err
}
