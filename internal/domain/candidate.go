package domain

import "time"

// Candidate is a token or pool surfaced by a discovery source, not yet vetted.
// Immutable once fetched.
type Candidate struct {
	Address      string     // unique key (token mint or pool address, per feed)
	Feed         Feed       // discovery domain
	Source       string     // sub-feed name, e.g. "token-boosts/top"
	DiscoveredAt time.Time  // staging clock value for the address
	CreatedAt    *time.Time // provider-reported creation time (nullable)
}

// LiveAttributes is the typed view of a provider record for one address.
// Every optional field is a pointer: nil means the provider did not report it.
type LiveAttributes struct {
	Address    string
	Name       string
	Symbol     string
	ProfileURL string
	BaseMint   string // token bought on entry / sold on exit
	QuoteMint  string // token paid on entry / received on exit

	PriceUSD       *Price
	PriceChange24h *float64 // percent
	Volume24h      *float64 // USD
	MarketCap      *float64 // USD (fdv for pools)
	Liquidity      *float64 // USD liquidity / reserve
	Buys           *int64   // buy count over the feed's activity window
	CreatedAt      *time.Time
}
