package domain

// ExpenseRow is the canonical unit of a query result. Amount is always paired
// with its currency; rows are never merged across currencies.
type ExpenseRow struct {
	Date     string  `json:"date,omitempty"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Category string  `json:"category,omitempty"`
	Merchant string  `json:"merchant,omitempty"`
	Notes    string  `json:"notes,omitempty"`
}

// CurrencyTotal summarizes one currency partition of a result set.
type CurrencyTotal struct {
	Currency string      `json:"currency"`
	Total    float64     `json:"total"`
	Avg      float64     `json:"avg"`
	Count    int         `json:"count"`
	Max      *ExpenseRow `json:"max,omitempty"`
}

// RankedTotal is one entry of a top-N breakdown. Key plus currency identify
// the bucket; buckets with the same key but different currencies stay apart.
type RankedTotal struct {
	Key      string  `json:"key"`
	Currency string  `json:"currency"`
	Total    float64 `json:"total"`
	Count    int     `json:"count"`
}

// Aggregates are derived per-currency summary statistics. Total is set only
// when a single currency appears; otherwise it stays nil and CurrencyNote
// explains why.
type Aggregates struct {
	TotalsByCurrency []CurrencyTotal `json:"totalsByCurrency"`
	Total            *float64        `json:"total"`
	TopCategories    []RankedTotal   `json:"topCategories,omitempty"`
	TopMerchants     []RankedTotal   `json:"topMerchants,omitempty"`
	CurrencyNote     *string         `json:"currencyNote,omitempty"`
}

// ExecutionResult is what the executor or a fallback template produces.
// Downstream code is agnostic to which path built it.
type ExecutionResult struct {
	Rows       []ExpenseRow `json:"rows"`
	SQL        string       `json:"sql"`
	Aggregates Aggregates   `json:"aggregates"`
}

// FallbackReason records why a deterministic template stood in for the plan.
type FallbackReason string

const (
	FallbackNone         FallbackReason = ""
	FallbackPlannerError FallbackReason = "planner_error"
	FallbackDBError      FallbackReason = "db_error"
)

// Computation is the per-request union of plan and execution outcome. It is
// constructed fresh per question and never cached or persisted.
type Computation struct {
	Plan           *Plan
	Result         *ExecutionResult
	UsedFallback   bool
	FallbackReason FallbackReason
}

// TimeRange is the resolved query window reported back to callers.
type TimeRange struct {
	Since    string `json:"since"`
	Until    string `json:"until"`
	Timezone string `json:"timezone"`
}

// ChatResult is the terminal payload of a chat request, identical for the
// single-shot endpoint and the streaming result event.
type ChatResult struct {
	Answer         string         `json:"answer"`
	Model          string         `json:"model"`
	Provider       string         `json:"provider"`
	Plan           *Plan          `json:"plan"`
	UsedFallback   bool           `json:"usedFallback"`
	FallbackReason FallbackReason `json:"fallbackReason,omitempty"`
	SQL            string         `json:"sql,omitempty"`
	TimeRange      TimeRange      `json:"timeRange"`
	Aggregates     Aggregates     `json:"aggregates"`
	Rows           []ExpenseRow   `json:"rows"`
	CurrencyNote   *string        `json:"currencyNote,omitempty"`
}
