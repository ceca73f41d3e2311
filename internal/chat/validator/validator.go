// Package validator statically checks planner-proposed SQL against an
// allow-list before any plan is considered executable. The checked text is
// never sent to the database: the executor rebuilds the real statement from
// validated plan fields, so this walk only has to prove the plan's shape is
// safe and derive its row limit.
package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/domain"
)

var (
	ErrEmptySQL           = errors.New("validator: empty sql")
	ErrMultipleStatements = errors.New("validator: exactly one statement required")
	ErrNotSelect          = errors.New("validator: only SELECT statements are allowed")
	ErrBadTable           = errors.New("validator: query must read from the ai_expenses table only")
	ErrWildcard           = errors.New("validator: wildcard selection is not allowed")
	ErrColumn             = errors.New("validator: column is not allow-listed")
	ErrFunction           = errors.New("validator: function is not allow-listed")
	ErrSubquery           = errors.New("validator: subqueries are not allowed")
	ErrParameter          = errors.New("validator: parameter placeholders are not allowed")
	ErrCurrencyGrouping   = errors.New("validator: aggregate queries must also select currency")
	ErrUnsupported        = errors.New("validator: unsupported SQL construct")
)

// Safety is what a structurally approved plan contributes downstream: the
// clamped row limit derived from its LIMIT clause.
type Safety struct {
	Limit int
}

var allowedColumns = map[string]struct{}{
	"id":       {},
	"date":     {},
	"amount":   {},
	"currency": {},
	"category": {},
	"merchant": {},
	"notes":    {},
	"trip_id":  {},
	"user_id":  {},
}

var allowedFunctions = map[string]struct{}{
	"sum":   {},
	"avg":   {},
	"max":   {},
	"min":   {},
	"count": {},
}

// ilikePattern rewrites ILIKE to LIKE for parsing only; the parser speaks the
// MySQL dialect and the rewritten text is discarded after the walk.
var ilikePattern = regexp.MustCompile(`(?i)\bILIKE\b`)

// EnsureSafe parses sql and walks its AST, failing closed on anything outside
// the allow-list: one SELECT over ai_expenses, no wildcards, allow-listed
// columns and aggregate functions only, no placeholders or subqueries, and a
// currency projection whenever an aggregate appears. The returned Safety
// carries the clamped LIMIT.
func EnsureSafe(sql string) (Safety, error) {
	sql = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sql), ";"))
	if sql == "" {
		return Safety{}, ErrEmptySQL
	}

	pieces, err := sqlparser.SplitStatementToPieces(sql)
	if err != nil {
		return Safety{}, fmt.Errorf("validator: split statements: %w", err)
	}
	if len(pieces) != 1 {
		return Safety{}, ErrMultipleStatements
	}

	stmt, err := sqlparser.Parse(ilikePattern.ReplaceAllString(sql, "LIKE"))
	if err != nil {
		return Safety{}, fmt.Errorf("validator: parse: %w", err)
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return Safety{}, ErrNotSelect
	}

	walker := &selectWalker{aliases: make(map[string]struct{})}
	if err := walker.checkFrom(sel.From); err != nil {
		return Safety{}, err
	}
	if err := walker.checkProjections(sel.SelectExprs); err != nil {
		return Safety{}, err
	}
	if sel.Where != nil {
		if err := walker.checkExpr(sel.Where.Expr); err != nil {
			return Safety{}, err
		}
	}
	for _, group := range sel.GroupBy {
		if err := walker.checkExpr(group); err != nil {
			return Safety{}, err
		}
	}
	if sel.Having != nil {
		if err := walker.checkExpr(sel.Having.Expr); err != nil {
			return Safety{}, err
		}
	}
	for _, order := range sel.OrderBy {
		if err := walker.checkExpr(order.Expr); err != nil {
			return Safety{}, err
		}
	}

	// Global sweep: nothing above may have hidden a subquery or placeholder
	// in a construct the structured checks did not descend into.
	if err := rejectForbiddenNodes(sel); err != nil {
		return Safety{}, err
	}

	if walker.sawAggregate && !walker.sawCurrency {
		return Safety{}, ErrCurrencyGrouping
	}

	limit, err := clampLimit(sel.Limit)
	if err != nil {
		return Safety{}, err
	}
	return Safety{Limit: limit}, nil
}

type selectWalker struct {
	tableAlias   string
	aliases      map[string]struct{}
	sawAggregate bool
	sawCurrency  bool
}

func (w *selectWalker) checkFrom(from sqlparser.TableExprs) error {
	if len(from) != 1 {
		return ErrBadTable
	}
	aliased, ok := from[0].(*sqlparser.AliasedTableExpr)
	if !ok {
		return ErrBadTable
	}
	table, ok := aliased.Expr.(sqlparser.TableName)
	if !ok {
		return ErrSubquery
	}
	if strings.ToLower(table.Name.String()) != domain.Table {
		return fmt.Errorf("%w: %s", ErrBadTable, table.Name.String())
	}
	w.tableAlias = strings.ToLower(aliased.As.String())
	return nil
}

func (w *selectWalker) checkProjections(exprs sqlparser.SelectExprs) error {
	for _, expr := range exprs {
		switch node := expr.(type) {
		case *sqlparser.StarExpr:
			return ErrWildcard
		case *sqlparser.AliasedExpr:
			alias := node.As.Lowered()
			if alias != "" {
				w.aliases[alias] = struct{}{}
			}
			if alias == "currency" {
				w.sawCurrency = true
			}
			if col, ok := node.Expr.(*sqlparser.ColName); ok && col.Name.Lowered() == "currency" {
				w.sawCurrency = true
			}
			if err := w.checkExpr(node.Expr); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %T in select list", ErrUnsupported, expr)
		}
	}
	return nil
}

// checkExpr recursively validates an expression, rejecting any node kind it
// does not explicitly recognize.
func (w *selectWalker) checkExpr(expr sqlparser.Expr) error {
	switch node := expr.(type) {
	case *sqlparser.ColName:
		return w.checkColumn(node)
	case *sqlparser.SQLVal:
		if node.Type == sqlparser.ValArg {
			return ErrParameter
		}
		return nil
	case *sqlparser.NullVal, sqlparser.BoolVal:
		return nil
	case *sqlparser.FuncExpr:
		return w.checkFunc(node)
	case *sqlparser.ParenExpr:
		return w.checkExpr(node.Expr)
	case *sqlparser.AndExpr:
		if err := w.checkExpr(node.Left); err != nil {
			return err
		}
		return w.checkExpr(node.Right)
	case *sqlparser.OrExpr:
		if err := w.checkExpr(node.Left); err != nil {
			return err
		}
		return w.checkExpr(node.Right)
	case *sqlparser.NotExpr:
		return w.checkExpr(node.Expr)
	case *sqlparser.ComparisonExpr:
		if err := w.checkExpr(node.Left); err != nil {
			return err
		}
		return w.checkExpr(node.Right)
	case *sqlparser.RangeCond:
		if err := w.checkExpr(node.Left); err != nil {
			return err
		}
		if err := w.checkExpr(node.From); err != nil {
			return err
		}
		return w.checkExpr(node.To)
	case *sqlparser.IsExpr:
		return w.checkExpr(node.Expr)
	case *sqlparser.BinaryExpr:
		if err := w.checkExpr(node.Left); err != nil {
			return err
		}
		return w.checkExpr(node.Right)
	case *sqlparser.UnaryExpr:
		return w.checkExpr(node.Expr)
	case *sqlparser.Subquery, *sqlparser.ExistsExpr:
		return ErrSubquery
	default:
		return fmt.Errorf("%w: %T", ErrUnsupported, expr)
	}
}

func (w *selectWalker) checkColumn(col *sqlparser.ColName) error {
	qualifier := strings.ToLower(col.Qualifier.Name.String())
	if qualifier != "" && qualifier != domain.Table && qualifier != w.tableAlias {
		return fmt.Errorf("%w: %s.%s", ErrColumn, qualifier, col.Name.String())
	}
	name := col.Name.Lowered()
	if _, ok := allowedColumns[name]; ok {
		return nil
	}
	if _, ok := w.aliases[name]; ok {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrColumn, col.Name.String())
}

func (w *selectWalker) checkFunc(fn *sqlparser.FuncExpr) error {
	name := fn.Name.Lowered()
	if _, ok := allowedFunctions[name]; !ok {
		return fmt.Errorf("%w: %s", ErrFunction, fn.Name.String())
	}
	w.sawAggregate = true
	for _, arg := range fn.Exprs {
		switch node := arg.(type) {
		case *sqlparser.StarExpr:
			// COUNT(*) is the only tolerated star
			if name != "count" {
				return ErrWildcard
			}
		case *sqlparser.AliasedExpr:
			if err := w.checkExpr(node.Expr); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %T as %s argument", ErrUnsupported, arg, fn.Name.String())
		}
	}
	return nil
}

func rejectForbiddenNodes(sel *sqlparser.Select) error {
	return sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch val := node.(type) {
		case *sqlparser.Subquery, *sqlparser.ExistsExpr:
			return false, ErrSubquery
		case *sqlparser.SQLVal:
			if val.Type == sqlparser.ValArg {
				return false, ErrParameter
			}
		}
		return true, nil
	}, sel)
}

// clampLimit derives the safety limit: absent or invalid LIMIT clauses fall
// back to the global maximum, anything larger is clamped down to it.
func clampLimit(limit *sqlparser.Limit) (int, error) {
	if limit == nil {
		return domain.MaxRows, nil
	}
	if limit.Offset != nil {
		if val, ok := limit.Offset.(*sqlparser.SQLVal); !ok || val.Type != sqlparser.IntVal {
			return 0, fmt.Errorf("%w: non-literal OFFSET", ErrUnsupported)
		}
	}
	val, ok := limit.Rowcount.(*sqlparser.SQLVal)
	if !ok || val.Type != sqlparser.IntVal {
		return 0, ErrParameter
	}
	parsed, err := strconv.Atoi(string(val.Val))
	if err != nil || parsed <= 0 {
		return domain.MaxRows, nil
	}
	if parsed > domain.MaxRows {
		return domain.MaxRows, nil
	}
	return parsed, nil
}
