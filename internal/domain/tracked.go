package domain

import "time"

// TrackedEntry is one element of the durable watchlist.
// BaselinePrice and AddedAt are fixed at promotion and never rewritten.
type TrackedEntry struct {
	Address    string `json:"address"`
	Name       string `json:"name"`
	Symbol     string `json:"symbol,omitempty"`
	ProfileURL string `json:"profileLink,omitempty"`
	BaseMint   string `json:"baseMint,omitempty"`
	QuoteMint  string `json:"quoteMint,omitempty"`

	BaselinePrice Price    `json:"initialPrice"`
	CurrentPrice  Price    `json:"price"`
	ChangePct24h  float64  `json:"priceChange24h"`
	Volume24h     *float64 `json:"volume24h,omitempty"`
	MarketCap     *float64 `json:"marketCap,omitempty"`

	AddedAt   time.Time  `json:"addedAt"`
	RemovedAt *time.Time `json:"removedAt,omitempty"` // set once an exit trade is confirmed
}

// IsRemoved reports whether the entry has been soft-removed.
func (e *TrackedEntry) IsRemoved() bool {
	return e.RemovedAt != nil
}

// Refresh copies live attributes onto the entry. Fields the provider did not
// report keep their last-known values. Baseline and timestamps are untouched.
func (e *TrackedEntry) Refresh(a *LiveAttributes) {
	if a == nil {
		return
	}
	if a.Name != "" {
		e.Name = a.Name
	}
	if a.Symbol != "" {
		e.Symbol = a.Symbol
	}
	if a.ProfileURL != "" {
		e.ProfileURL = a.ProfileURL
	}
	if e.BaseMint == "" {
		e.BaseMint = a.BaseMint
	}
	if e.QuoteMint == "" {
		e.QuoteMint = a.QuoteMint
	}
	if a.PriceUSD != nil {
		e.CurrentPrice = *a.PriceUSD
	}
	if a.PriceChange24h != nil {
		e.ChangePct24h = *a.PriceChange24h
	}
	if a.Volume24h != nil {
		v := *a.Volume24h
		e.Volume24h = &v
	}
	if a.MarketCap != nil {
		v := *a.MarketCap
		e.MarketCap = &v
	}
}

// NewTrackedEntry builds a watchlist entry from attributes at admission time.
// Returns false if the attributes carry no price.
func NewTrackedEntry(a *LiveAttributes, addedAt time.Time) (TrackedEntry, bool) {
	if a == nil || a.PriceUSD == nil {
		return TrackedEntry{}, false
	}
	e := TrackedEntry{
		Address:       a.Address,
		BaselinePrice: *a.PriceUSD,
		CurrentPrice:  *a.PriceUSD,
		AddedAt:       addedAt.UTC(),
	}
	e.Refresh(a)
	return e, true
}
