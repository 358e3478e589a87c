package models

import "github.com/shopspring/decimal"

// SearchResult is one instrument match for a search query.
type SearchResult struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

// Quote is the latest price snapshot for a single instrument.
type Quote struct {
	Symbol        string              `json:"symbol"`
	Name          string              `json:"name,omitempty"`
	CurrentPrice  decimal.NullDecimal `json:"currentPrice"`
	Change        decimal.NullDecimal `json:"change"`
	PercentChange decimal.NullDecimal `json:"percentChange"`
	HighPrice     decimal.NullDecimal `json:"highPrice"`
	LowPrice      decimal.NullDecimal `json:"lowPrice"`
	OpenPrice     decimal.NullDecimal `json:"openPrice"`
	PreviousClose decimal.NullDecimal `json:"previousClose"`
	Timestamp     int64               `json:"timestamp,omitempty"`
}
