// Package fallback selects a deterministic hand-authored query template when
// planning or execution has failed. Classification is a pure function over
// the failed plan's intent (if any) and the raw question text, so the
// orchestrator's recovery path stays trivially testable.
package fallback

import (
	"strings"

	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/domain"
)

// Template names one of the fixed fallback queries.
type Template string

const (
	// TemplateHighest returns the single largest expense in the window.
	TemplateHighest Template = "highest_expense"
	// TemplateByCategory returns per-category, per-currency totals.
	TemplateByCategory Template = "totals_by_category"
	// TemplateTopMerchants returns the top merchants by per-currency spend.
	TemplateTopMerchants Template = "top_merchants"
	// TemplateTotals is the generic recent-expenses listing.
	TemplateTotals Template = "totals"
)

// Keyword groups are bilingual (English/Hebrew); Hebrew stems match any
// inflection, e.g. "קטגור" covers קטגוריה and קטגוריות.
var (
	highestKeywords  = []string{"highest", "biggest", "largest", "most expensive", "top expense", "הכי", "הגבוה", "היקר"}
	categoryKeywords = []string{"category", "categories", "קטגור"}
	merchantKeywords = []string{"merchant", "store", "shop", "vendor", "חנות", "ספק"}
)

// Classify picks the template for a failed question. Precedence is fixed:
// a ranking intent or highest-expense wording wins, then category wording,
// then merchant wording; anything else falls back to the totals listing.
func Classify(intent domain.Intent, question string) Template {
	lower := strings.ToLower(question)

	if intent == domain.IntentRanking || matchesAny(lower, highestKeywords) {
		return TemplateHighest
	}
	if matchesAny(lower, categoryKeywords) {
		return TemplateByCategory
	}
	if matchesAny(lower, merchantKeywords) {
		return TemplateTopMerchants
	}
	return TemplateTotals
}

func matchesAny(question string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(question, keyword) {
			return true
		}
	}
	return false
}
