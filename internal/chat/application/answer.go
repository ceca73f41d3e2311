package application

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/domain"
)

const answerSystemPrompt = `You answer questions about a traveler's expenses.
You are given the question, the resolved time range, computed aggregates, and
a sample of matching rows. Rules:
- Answer ONLY from the supplied data. If the data cannot answer the question,
  say so; never invent numbers, merchants, or categories.
- Every amount you mention must name its currency.
- Never add amounts in different currencies together. When totals exist in
  more than one currency, list each currency's total separately.
- Answer in the language of the question.
- Be concise: one short paragraph, no preamble.`

// buildAnswerPrompt renders the grounding context the answer model sees. Rows
// beyond the preview cap are summarized by the aggregates only.
func buildAnswerPrompt(question string, comp domain.Computation, timeRange domain.TimeRange, previewCap int) (system, user string) {
	var b strings.Builder

	fmt.Fprintf(&b, "Question: %s\n", question)
	fmt.Fprintf(&b, "Time range: %s to %s (%s)\n", timeRange.Since, timeRange.Until, timeRange.Timezone)

	if comp.UsedFallback {
		b.WriteString("Note: the data below comes from a generic summary query, not a query tailored to the question. Present what it shows and say what it cannot answer.\n")
	} else if comp.Plan != nil {
		fmt.Fprintf(&b, "Query intent: %s\n", comp.Plan.Intent)
	}

	if comp.Result != nil {
		aggregates, err := json.Marshal(comp.Result.Aggregates)
		if err == nil {
			fmt.Fprintf(&b, "Aggregates: %s\n", aggregates)
		}
		if note := comp.Result.Aggregates.CurrencyNote; note != nil {
			fmt.Fprintf(&b, "Currency note: %s\n", *note)
		}

		rows := comp.Result.Rows
		total := len(rows)
		if total > previewCap {
			rows = rows[:previewCap]
		}
		if total == 0 {
			b.WriteString("Rows: none matched.\n")
		} else {
			sample, err := json.Marshal(rows)
			if err == nil {
				fmt.Fprintf(&b, "Rows (%d of %d): %s\n", len(rows), total, sample)
			}
		}
	}

	return answerSystemPrompt, b.String()
}
