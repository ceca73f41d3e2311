package domain

// MaxRows is the global ceiling on rows any chat query may return.
const MaxRows = 200

// PreviewRows caps how many rows are embedded in answers and result payloads.
const PreviewRows = 20

// Table is the single relation chat queries are allowed to touch.
const Table = "ai_expenses"

// Intent classifies what a plan is trying to do.
type Intent string

const (
	IntentAggregation Intent = "aggregation"
	IntentLookup      Intent = "lookup"
	IntentRanking     Intent = "ranking"
)

// ValidIntent reports whether s names a known intent.
func ValidIntent(s string) bool {
	switch Intent(s) {
	case IntentAggregation, IntentLookup, IntentRanking:
		return true
	}
	return false
}

// Filter is a single planner-proposed predicate. Only allow-listed columns
// and operators survive parsing; everything else is dropped.
type Filter struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// Order is a planner-proposed sort term.
type Order struct {
	By        string `json:"by"`
	Direction string `json:"direction"`
}

// Plan is the typed output of the NL->SQL planner. The SQL field is advisory
// only: the executor rebuilds the statement it runs from the typed fields plus
// server-controlled scope and date predicates.
type Plan struct {
	Intent     Intent   `json:"intent"`
	Dimensions []string `json:"dimensions,omitempty"`
	Metrics    []string `json:"metrics,omitempty"`
	Filters    []Filter `json:"filters,omitempty"`
	Since      string   `json:"since"`
	Until      string   `json:"until"`
	Order      []Order  `json:"order,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	SQL        string   `json:"sql"`
}

// PlanDimensions lists the dimensions a plan may group by.
var PlanDimensions = map[string]struct{}{
	"category": {},
	"merchant": {},
	"date":     {},
}

// PlanMetrics lists the metrics a plan may request.
var PlanMetrics = map[string]struct{}{
	"sum":   {},
	"avg":   {},
	"max":   {},
	"min":   {},
	"count": {},
}

// FilterColumns lists the columns a plan filter may reference.
var FilterColumns = map[string]struct{}{
	"category": {},
	"merchant": {},
	"currency": {},
	"amount":   {},
	"notes":    {},
}

// FilterOperators lists the comparison operators a plan filter may use.
var FilterOperators = map[string]struct{}{
	"=":     {},
	"!=":    {},
	">":     {},
	"<":     {},
	">=":    {},
	"<=":    {},
	"ILIKE": {},
}
