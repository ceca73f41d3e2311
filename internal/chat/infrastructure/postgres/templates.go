package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ShayFeldboy1010/tripay-sub000/internal/auth"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/domain"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/fallback"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/sqlguard"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/timewindow"
)

// Templates runs the fixed hand-authored fallback queries. They bypass the
// planner and validator entirely and bind scope and window through the same
// guard as the executor, producing the same ExecutionResult shape so
// downstream code cannot tell the paths apart.
type Templates struct {
	db *sql.DB
}

// NewTemplates constructs the fallback template runner.
func NewTemplates(db *sql.DB) (*Templates, error) {
	if db == nil {
		return nil, errors.New("templates: nil db")
	}
	return &Templates{db: db}, nil
}

// Run executes the named template for the scope and window.
func (t *Templates) Run(ctx context.Context, template fallback.Template, scope auth.Scope, window timewindow.Window) (*domain.ExecutionResult, error) {
	if scope.Column != auth.ScopeTrip && scope.Column != auth.ScopeUser {
		return nil, fmt.Errorf("templates: unknown scope column %q", scope.Column)
	}
	params := map[string]any{
		"scope_id": scope.ID,
		"since":    window.SinceDate(),
		"until":    window.UntilDate(),
	}

	switch template {
	case fallback.TemplateHighest:
		statement := fmt.Sprintf(
			"SELECT date, amount, currency, category, merchant, notes\nFROM %s\nWHERE %s = :scope_id AND date BETWEEN :since AND :until\nORDER BY amount DESC\nLIMIT 1",
			domain.Table, scope.Column,
		)
		return t.runRowQuery(ctx, statement, params)
	case fallback.TemplateByCategory:
		statement := fmt.Sprintf(
			"SELECT category, currency, SUM(amount) AS total, COUNT(id) AS n\nFROM %s\nWHERE %s = :scope_id AND date BETWEEN :since AND :until\nGROUP BY category, currency\nORDER BY total DESC",
			domain.Table, scope.Column,
		)
		return t.runGroupedQuery(ctx, statement, params, func(key, currency string, total float64) domain.ExpenseRow {
			return domain.ExpenseRow{Category: key, Currency: currency, Amount: total}
		})
	case fallback.TemplateTopMerchants:
		statement := fmt.Sprintf(
			"SELECT merchant, currency, SUM(amount) AS total, COUNT(id) AS n\nFROM %s\nWHERE %s = :scope_id AND date BETWEEN :since AND :until\nGROUP BY merchant, currency\nORDER BY total DESC\nLIMIT 10",
			domain.Table, scope.Column,
		)
		return t.runGroupedQuery(ctx, statement, params, func(key, currency string, total float64) domain.ExpenseRow {
			return domain.ExpenseRow{Merchant: key, Currency: currency, Amount: total}
		})
	case fallback.TemplateTotals:
		statement := fmt.Sprintf(
			"SELECT date, amount, currency, category, merchant, notes\nFROM %s\nWHERE %s = :scope_id AND date BETWEEN :since AND :until\nORDER BY date DESC\nLIMIT %d",
			domain.Table, scope.Column, domain.MaxRows,
		)
		return t.runRowQuery(ctx, statement, params)
	default:
		return nil, fmt.Errorf("templates: unknown template %q", template)
	}
}

func (t *Templates) runRowQuery(ctx context.Context, statement string, params map[string]any) (*domain.ExecutionResult, error) {
	rows, err := queryRows(ctx, t.db, statement, params)
	if err != nil {
		return nil, &ExecError{SQL: statement, Params: sqlguard.Sanitize(params), Err: err}
	}
	return &domain.ExecutionResult{
		Rows:       rows,
		SQL:        statement,
		Aggregates: domain.ComputeAggregates(rows),
	}, nil
}

// runGroupedQuery maps aggregate rows into pseudo expense rows: the grouped
// total takes the amount slot so aggregation and answer grounding treat both
// row shapes uniformly.
func (t *Templates) runGroupedQuery(ctx context.Context, statement string, params map[string]any, mapRow func(key, currency string, total float64) domain.ExpenseRow) (*domain.ExecutionResult, error) {
	prepared, err := sqlguard.Prepare(statement, params)
	if err != nil {
		return nil, err
	}
	result, err := t.db.QueryContext(ctx, prepared.SQL, prepared.Values...)
	if err != nil {
		return nil, &ExecError{SQL: statement, Params: sqlguard.Sanitize(params), Err: err}
	}
	defer result.Close()

	out := make([]domain.ExpenseRow, 0, 16)
	for result.Next() {
		var (
			key      sql.NullString
			currency string
			total    float64
			count    int
		)
		if err := result.Scan(&key, &currency, &total, &count); err != nil {
			return nil, err
		}
		out = append(out, mapRow(key.String, currency, total))
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return &domain.ExecutionResult{
		Rows:       out,
		SQL:        statement,
		Aggregates: domain.ComputeAggregates(out),
	}, nil
}
