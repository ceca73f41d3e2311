package domain

import "sort"

const topN = 20

// ComputeAggregates derives per-currency totals, the max row per currency,
// and top-N breakdowns by category and merchant. Amounts are never summed
// across currencies: each currency gets its own partition, and the overall
// Total is populated only when exactly one currency appears.
func ComputeAggregates(rows []ExpenseRow) Aggregates {
	var agg Aggregates
	if len(rows) == 0 {
		agg.TotalsByCurrency = []CurrencyTotal{}
		return agg
	}

	totals := make(map[string]*CurrencyTotal)
	currencyOrder := make([]string, 0, 2)
	for i := range rows {
		row := rows[i]
		entry := totals[row.Currency]
		if entry == nil {
			entry = &CurrencyTotal{Currency: row.Currency}
			totals[row.Currency] = entry
			currencyOrder = append(currencyOrder, row.Currency)
		}
		entry.Total += row.Amount
		entry.Count++
		if entry.Max == nil || row.Amount > entry.Max.Amount {
			max := row
			entry.Max = &max
		}
	}

	agg.TotalsByCurrency = make([]CurrencyTotal, 0, len(currencyOrder))
	for _, currency := range currencyOrder {
		entry := totals[currency]
		if entry.Count > 0 {
			entry.Avg = entry.Total / float64(entry.Count)
		}
		agg.TotalsByCurrency = append(agg.TotalsByCurrency, *entry)
	}

	if len(agg.TotalsByCurrency) == 1 {
		total := agg.TotalsByCurrency[0].Total
		agg.Total = &total
	} else {
		note := "Results span multiple currencies; totals are reported per currency and must not be summed together."
		agg.CurrencyNote = &note
	}

	agg.TopCategories = rankBy(rows, func(r ExpenseRow) string { return r.Category })
	agg.TopMerchants = rankBy(rows, func(r ExpenseRow) string { return r.Merchant })
	return agg
}

// rankBy buckets rows by key plus currency so that same-named buckets in
// different currencies are never merged, then returns the top buckets by
// absolute total.
func rankBy(rows []ExpenseRow, key func(ExpenseRow) string) []RankedTotal {
	type bucketKey struct {
		key      string
		currency string
	}
	buckets := make(map[bucketKey]*RankedTotal)
	order := make([]bucketKey, 0)
	for _, row := range rows {
		k := key(row)
		if k == "" {
			continue
		}
		bk := bucketKey{key: k, currency: row.Currency}
		entry := buckets[bk]
		if entry == nil {
			entry = &RankedTotal{Key: k, Currency: row.Currency}
			buckets[bk] = entry
			order = append(order, bk)
		}
		entry.Total += row.Amount
		entry.Count++
	}
	if len(order) == 0 {
		return nil
	}
	ranked := make([]RankedTotal, 0, len(order))
	for _, bk := range order {
		ranked = append(ranked, *buckets[bk])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Total != ranked[j].Total {
			return ranked[i].Total > ranked[j].Total
		}
		return ranked[i].Key < ranked[j].Key
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}
