package planner

import (
	"fmt"

	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/domain"
)

// PlanInput carries the server-resolved request context the prompt embeds.
// The scope column is named so the model knows rows are pre-filtered; the
// scope id itself is never shared with the model.
type PlanInput struct {
	Since       string
	Until       string
	Timezone    string
	ScopeColumn string
}

const schemaDescription = `Table ai_expenses:
  id       uuid        primary key
  trip_id  text        owning trip
  user_id  text        owning user
  date     date        expense date
  amount   numeric     expense amount, always positive
  currency text        ISO 4217 code, e.g. USD, EUR, ILS
  category text        free-form category, nullable
  merchant text        free-form merchant name, nullable
  notes    text        free-form notes, nullable`

func systemPrompt(in PlanInput) string {
	return fmt.Sprintf(`You translate questions about travel expenses into a structured query plan.

%s

Respond with a SINGLE JSON object and nothing else. Shape:
{
  "intent": "aggregation" | "lookup" | "ranking",
  "dimensions": subset of ["category", "merchant", "date"],
  "metrics": subset of ["sum", "avg", "max", "min", "count"],
  "filters": [{"column": one of ["category","merchant","currency","amount","notes"], "operator": one of ["=","!=",">","<",">=","<=","ILIKE"], "value": string or number}],
  "since": "YYYY-MM-DD",
  "until": "YYYY-MM-DD",
  "order": [{"by": column or alias, "direction": "ASC" | "DESC"}],
  "limit": positive integer,
  "sql": "a single standard SELECT over ai_expenses only"
}

Rules:
- The query window is %s to %s (timezone %s); use it for "since" and "until" unless the question narrows it.
- Rows are already scoped to the caller's %s; never filter or select by trip_id or user_id yourself.
- "limit" must never exceed %d.
- In "sql": one SELECT statement, no wildcard (*) projections, no subqueries, no parameters, no casts, only the columns listed above and the functions SUM, AVG, MAX, MIN, COUNT.
- Any aggregate function in "sql" MUST be accompanied by a selected currency column: amounts in different currencies must NEVER be summed into one number.
- Never merge totals across currencies anywhere in the plan.`,
		schemaDescription, in.Since, in.Until, in.Timezone, in.ScopeColumn, domain.MaxRows)
}

const jsonReminder = "\n\nRemember: respond with a single JSON object only, no prose and no code fences."

const translatePrompt = `Translate the user's question to English. Respond with the translation only, no commentary.`
