package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// WatchlistEntry is one tracked instrument in the current user's watchlist.
// Symbol is the natural key; price fields are null when the backend could not
// quote the instrument.
type WatchlistEntry struct {
	ID            int64               `json:"id,omitempty"`
	Symbol        string              `json:"symbol"`
	CompanyName   string              `json:"companyName"`
	CurrentPrice  decimal.NullDecimal `json:"currentPrice"`
	Change        decimal.NullDecimal `json:"change"`
	PercentChange decimal.NullDecimal `json:"percentChange"`
	AddedAt       Timestamp           `json:"addedAt"`
}

// AddEntryRequest is the body of POST /api/watchlist.
type AddEntryRequest struct {
	Symbol      string `json:"symbol"`
	CompanyName string `json:"companyName"`
}

// Operation marks a mutation in flight for a symbol.
type Operation string

const (
	// OperationAdding is set while an add request for the symbol is pending
	OperationAdding Operation = "adding"
	// OperationRemoving is set while a remove request for the symbol is pending
	OperationRemoving Operation = "removing"
)

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
