// Package postgres executes validated query plans and the fixed fallback
// templates against the expense store. Scope and date predicates are always
// injected server-side; nothing from planner output reaches the database as
// SQL text.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/ShayFeldboy1010/tripay-sub000/internal/auth"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/domain"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/sqlguard"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/validator"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/timewindow"
)

// ExecError wraps a database failure together with the executed statement and
// its sanitized parameters so upstream logging never sees raw scope ids.
type ExecError struct {
	SQL    string
	Params map[string]any
	Err    error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("executor: %v (sql: %s, params: %v)", e.Err, e.SQL, e.Params)
}

func (e *ExecError) Unwrap() error { return e.Err }

// ExecInput is the server-resolved context a plan executes under.
type ExecInput struct {
	Scope      auth.Scope
	Window     timewindow.Window
	PreviewCap int
}

// Executor runs validated plans.
type Executor struct {
	db     *sql.DB
	logger *log.Logger
}

// NewExecutor constructs an Executor.
func NewExecutor(db *sql.DB, logger *log.Logger) (*Executor, error) {
	if db == nil {
		return nil, errors.New("executor: nil db")
	}
	return &Executor{db: db, logger: logger}, nil
}

// ExecutePlan validates the plan's proposed SQL for shape, rebuilds a safe
// statement from the plan's typed fields plus the scope and window, runs it,
// and computes currency-aware aggregates. Fallback policy on failure belongs
// to the caller.
func (e *Executor) ExecutePlan(ctx context.Context, plan *domain.Plan, in ExecInput) (*domain.ExecutionResult, error) {
	if plan == nil {
		return nil, errors.New("executor: nil plan")
	}
	safety, err := validator.EnsureSafe(plan.SQL)
	if err != nil {
		return nil, fmt.Errorf("executor: plan rejected: %w", err)
	}
	statement, params, err := buildPlanStatement(plan, in, safety.Limit)
	if err != nil {
		return nil, err
	}
	rows, err := queryRows(ctx, e.db, statement, params)
	if err != nil {
		return nil, &ExecError{SQL: statement, Params: sqlguard.Sanitize(params), Err: err}
	}
	return &domain.ExecutionResult{
		Rows:       rows,
		SQL:        statement,
		Aggregates: domain.ComputeAggregates(rows),
	}, nil
}

// buildPlanStatement derives the statement actually executed. The scope and
// date predicates come first and cannot be overridden by plan filters.
func buildPlanStatement(plan *domain.Plan, in ExecInput, safetyLimit int) (string, map[string]any, error) {
	if in.Scope.Column != auth.ScopeTrip && in.Scope.Column != auth.ScopeUser {
		return "", nil, fmt.Errorf("executor: unknown scope column %q", in.Scope.Column)
	}

	params := map[string]any{
		"scope_id": in.Scope.ID,
		"since":    in.Window.SinceDate(),
		"until":    in.Window.UntilDate(),
	}

	var where strings.Builder
	fmt.Fprintf(&where, "%s = :scope_id AND date BETWEEN :since AND :until", in.Scope.Column)

	filterIndex := 0
	for _, filter := range plan.Filters {
		if _, ok := domain.FilterColumns[filter.Column]; !ok {
			continue
		}
		if _, ok := domain.FilterOperators[filter.Operator]; !ok {
			continue
		}
		filterIndex++
		name := fmt.Sprintf("filter_%d", filterIndex)
		params[name] = filterValue(filter)
		fmt.Fprintf(&where, " AND %s %s :%s", filter.Column, filter.Operator, name)
	}

	statement := fmt.Sprintf(
		"SELECT date, amount, currency, category, merchant, notes\nFROM %s\nWHERE %s\nORDER BY %s\nLIMIT %d",
		domain.Table, where.String(), orderClause(plan), effectiveLimit(plan, in.PreviewCap, safetyLimit),
	)
	return statement, params, nil
}

// filterValue wraps ILIKE values in wildcards when the planner supplied none,
// so "cafe" matches the way a user expects a substring search to.
func filterValue(filter domain.Filter) any {
	if filter.Operator != "ILIKE" {
		return filter.Value
	}
	s, ok := filter.Value.(string)
	if !ok || strings.Contains(s, "%") {
		return filter.Value
	}
	return "%" + s + "%"
}

// orderClause prefers the plan's first order entry when it names an
// amount-like or date-like column; otherwise ranking plans sort by amount
// and everything else by recency.
func orderClause(plan *domain.Plan) string {
	for _, order := range plan.Order {
		if !orderableColumn(order.By) {
			continue
		}
		direction := order.Direction
		if direction != "ASC" && direction != "DESC" {
			direction = "DESC"
		}
		column := order.By
		if column != "date" {
			column = "amount"
		}
		return column + " " + direction
	}
	if plan.Intent == domain.IntentRanking {
		return "amount DESC"
	}
	return "date DESC"
}

func orderableColumn(by string) bool {
	by = strings.ToLower(by)
	return by == "date" || by == "amount" || strings.Contains(by, "amount") || strings.Contains(by, "total")
}

// effectiveLimit is the minimum of every applicable cap.
func effectiveLimit(plan *domain.Plan, previewCap, safetyLimit int) int {
	limit := domain.MaxRows
	if plan.Limit > 0 && plan.Limit < limit {
		limit = plan.Limit
	}
	if safetyLimit > 0 && safetyLimit < limit {
		limit = safetyLimit
	}
	if previewCap > 0 && previewCap < limit {
		limit = previewCap
	}
	return limit
}

func queryRows(ctx context.Context, db *sql.DB, statement string, params map[string]any) ([]domain.ExpenseRow, error) {
	prepared, err := sqlguard.Prepare(statement, params)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, prepared.SQL, prepared.Values...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExpenseRows(rows)
}
