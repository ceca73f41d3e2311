package postgres

import (
	"database/sql"
	"time"

	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/domain"
)

const dateLayout = "2006-01-02"

// scanExpenseRows maps raw result rows into the canonical ExpenseRow shape
// with dates normalized to YYYY-MM-DD.
func scanExpenseRows(rows *sql.Rows) ([]domain.ExpenseRow, error) {
	out := make([]domain.ExpenseRow, 0, 32)
	for rows.Next() {
		var (
			date     time.Time
			amount   float64
			currency string
			category sql.NullString
			merchant sql.NullString
			notes    sql.NullString
		)
		if err := rows.Scan(&date, &amount, &currency, &category, &merchant, &notes); err != nil {
			return nil, err
		}
		out = append(out, domain.ExpenseRow{
			Date:     date.Format(dateLayout),
			Amount:   amount,
			Currency: currency,
			Category: category.String,
			Merchant: merchant.String,
			Notes:    notes.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
