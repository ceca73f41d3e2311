package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/domain"
)

var (
	errMissingIntent = errors.New("planner: missing or unknown intent")
	errMissingDates  = errors.New("planner: missing date bounds")
	errMissingSQL    = errors.New("planner: missing or non-SELECT sql")
)

type rawFilter struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

type rawOrder struct {
	By        string `json:"by"`
	Direction string `json:"direction"`
}

type rawPlan struct {
	Intent     string      `json:"intent"`
	Dimensions []string    `json:"dimensions"`
	Metrics    []string    `json:"metrics"`
	Filters    []rawFilter `json:"filters"`
	Since      string      `json:"since"`
	Until      string      `json:"until"`
	Order      []rawOrder  `json:"order"`
	Limit      any         `json:"limit"`
	SQL        string      `json:"sql"`
}

// parsePlan converts the model's JSON into a domain.Plan. The required core
// (intent, date bounds, a SELECT) is rejected outright when absent; every
// optional field is validated independently and silently dropped when bad,
// so one hallucinated dimension does not waste the whole plan.
func parsePlan(response string) (*domain.Plan, error) {
	cleaned := stripFences(response)
	var raw rawPlan
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("planner: invalid JSON: %w", err)
	}

	if !domain.ValidIntent(raw.Intent) {
		return nil, errMissingIntent
	}
	since, until := validDate(raw.Since), validDate(raw.Until)
	if since == "" || until == "" {
		return nil, errMissingDates
	}
	sql := strings.TrimSpace(raw.SQL)
	if sql == "" || !strings.HasPrefix(strings.ToUpper(sql), "SELECT") {
		return nil, errMissingSQL
	}

	plan := &domain.Plan{
		Intent: domain.Intent(raw.Intent),
		Since:  since,
		Until:  until,
		SQL:    sql,
		Limit:  coerceLimit(raw.Limit),
	}
	for _, dim := range raw.Dimensions {
		dim = strings.ToLower(strings.TrimSpace(dim))
		if _, ok := domain.PlanDimensions[dim]; ok {
			plan.Dimensions = append(plan.Dimensions, dim)
		}
	}
	for _, metric := range raw.Metrics {
		metric = strings.ToLower(strings.TrimSpace(metric))
		if _, ok := domain.PlanMetrics[metric]; ok {
			plan.Metrics = append(plan.Metrics, metric)
		}
	}
	for _, filter := range raw.Filters {
		if parsed, ok := parseFilter(filter); ok {
			plan.Filters = append(plan.Filters, parsed)
		}
	}
	for _, order := range raw.Order {
		if parsed, ok := parseOrder(order); ok {
			plan.Order = append(plan.Order, parsed)
		}
	}
	return plan, nil
}

func parseFilter(raw rawFilter) (domain.Filter, bool) {
	column := strings.ToLower(strings.TrimSpace(raw.Column))
	if _, ok := domain.FilterColumns[column]; !ok {
		return domain.Filter{}, false
	}
	operator := strings.ToUpper(strings.TrimSpace(raw.Operator))
	if _, ok := domain.FilterOperators[operator]; !ok {
		return domain.Filter{}, false
	}
	switch raw.Value.(type) {
	case string, float64:
	default:
		return domain.Filter{}, false
	}
	return domain.Filter{Column: column, Operator: operator, Value: raw.Value}, true
}

func parseOrder(raw rawOrder) (domain.Order, bool) {
	by := strings.ToLower(strings.TrimSpace(raw.By))
	if by == "" {
		return domain.Order{}, false
	}
	direction := strings.ToUpper(strings.TrimSpace(raw.Direction))
	if direction != "ASC" && direction != "DESC" {
		return domain.Order{}, false
	}
	return domain.Order{By: by, Direction: direction}, true
}

func coerceLimit(value any) int {
	var limit int
	switch v := value.(type) {
	case float64:
		limit = int(v)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		limit = parsed
	default:
		return 0
	}
	if limit <= 0 {
		return 0
	}
	if limit > domain.MaxRows {
		return domain.MaxRows
	}
	return limit
}

func validDate(s string) string {
	s = strings.TrimSpace(s)
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return ""
	}
	return s
}

// stripFences removes markdown code fences some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
