// Package report renders the watchlist for humans: a spreadsheet that is
// overwritten every tick, a console table, and the snapshot history.
package report

import (
	"time"

	"solana-token-watch/internal/domain"
)

// Header is the first row of every rendered report.
var Header = []string{
	"Name",
	"Symbol",
	"Address",
	"Profile Link",
	"Price when added",
	"Price",
	"Price Change Percentage 24h",
	"Volume",
	"Market Cap",
	"Added At",
	"Removed At",
}

// Rows renders entries in order, one row per entry, aligned with Header.
// Missing optional values render as empty cells.
func Rows(entries []domain.TrackedEntry) [][]interface{} {
	rows := make([][]interface{}, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []interface{}{
			e.Name,
			e.Symbol,
			e.Address,
			e.ProfileURL,
			e.BaselinePrice.String(),
			e.CurrentPrice.String(),
			e.ChangePct24h,
			optional(e.Volume24h),
			optional(e.MarketCap),
			e.AddedAt.UTC().Format(time.RFC3339),
			removedAt(e.RemovedAt),
		})
	}
	return rows
}

func optional(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func removedAt(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func headerRow() []interface{} {
	row := make([]interface{}, len(Header))
	for i, h := range Header {
		row[i] = h
	}
	return row
}
