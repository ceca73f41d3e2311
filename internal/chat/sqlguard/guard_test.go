package sqlguard

import (
	"errors"
	"strings"
	"testing"
)

func TestPrepareConvertsNamedParameters(t *testing.T) {
	prepared, err := Prepare(
		"SELECT date, amount FROM ai_expenses WHERE trip_id = :scope_id AND date BETWEEN :since AND :until",
		map[string]any{"scope_id": "trip-1", "since": "2026-08-01", "until": "2026-08-31"},
	)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	want := "SELECT date, amount FROM ai_expenses WHERE trip_id = $1 AND date BETWEEN $2 AND $3"
	if prepared.SQL != want {
		t.Fatalf("got %q, want %q", prepared.SQL, want)
	}
	if len(prepared.Values) != 3 {
		t.Fatalf("expected 3 values, got %d", len(prepared.Values))
	}
	if prepared.Values[0] != "trip-1" {
		t.Fatalf("values out of order: %v", prepared.Values)
	}
}

func TestPrepareReusesIndexForRepeatedNames(t *testing.T) {
	prepared, err := Prepare(
		"SELECT amount FROM ai_expenses WHERE currency = :cur OR notes ILIKE :cur",
		map[string]any{"cur": "USD"},
	)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !strings.Contains(prepared.SQL, "currency = $1 OR notes ILIKE $1") {
		t.Fatalf("repeated name did not reuse index: %q", prepared.SQL)
	}
	if len(prepared.Values) != 1 {
		t.Fatalf("expected distinct-name value count 1, got %d", len(prepared.Values))
	}
}

func TestPrepareSkipsStringLiterals(t *testing.T) {
	prepared, err := Prepare(
		"SELECT notes FROM ai_expenses WHERE notes = 'why? :not_a_param' AND category = :cat",
		map[string]any{"cat": "food"},
	)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !strings.Contains(prepared.SQL, "'why? :not_a_param'") {
		t.Fatalf("literal was rewritten: %q", prepared.SQL)
	}
	if len(prepared.Values) != 1 {
		t.Fatalf("expected 1 value, got %d", len(prepared.Values))
	}
}

func TestPrepareKeepsTypeCasts(t *testing.T) {
	prepared, err := Prepare(
		"SELECT amount::numeric FROM ai_expenses WHERE trip_id = :scope_id",
		map[string]any{"scope_id": "trip-1"},
	)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !strings.Contains(prepared.SQL, "amount::numeric") {
		t.Fatalf("type cast mangled: %q", prepared.SQL)
	}
}

func TestPrepareFailures(t *testing.T) {
	cases := []struct {
		name   string
		sql    string
		params map[string]any
		want   error
	}{
		{
			name: "question placeholder",
			sql:  "SELECT amount FROM ai_expenses WHERE currency = ?",
			want: ErrQuestionPlaceholder,
		},
		{
			name: "unbound name",
			sql:  "SELECT amount FROM ai_expenses WHERE currency = :cur",
			want: ErrUnboundParameter,
		},
		{
			name:   "undefined value",
			sql:    "SELECT amount FROM ai_expenses WHERE currency = :cur",
			params: map[string]any{"cur": nil},
			want:   ErrUndefinedValue,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Prepare(tc.sql, tc.params)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSanitizeMasksSensitiveKeys(t *testing.T) {
	params := map[string]any{
		"scope_id":  "trip-secret-uuid",
		"api_token": "tkn",
		"since":     "2026-08-01",
		"filter_1":  strings.Repeat("x", 200),
	}

	clean := Sanitize(params)

	if clean["scope_id"] != "***" || clean["api_token"] != "***" {
		t.Fatalf("sensitive keys not masked: %v", clean)
	}
	if clean["since"] != "2026-08-01" {
		t.Fatalf("plain value altered: %v", clean["since"])
	}
	long, ok := clean["filter_1"].(string)
	if !ok || len([]rune(long)) > 64 || !strings.HasSuffix(long, "...") {
		t.Fatalf("long value not truncated: %v", clean["filter_1"])
	}
	if params["scope_id"] != "trip-secret-uuid" {
		t.Fatal("sanitize mutated its input")
	}
}
