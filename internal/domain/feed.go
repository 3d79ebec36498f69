package domain

// Feed identifies a discovery domain. Each feed runs its own reconciliation
// loop with its own storage keys, staging TTL and admission thresholds.
type Feed string

const (
	FeedDexScreener   Feed = "dexscreener"
	FeedGeckoTerminal Feed = "geckoterminal"
)

// String returns the string representation of Feed.
func (f Feed) String() string {
	return string(f)
}

// IsValid checks if the feed is a known value.
func (f Feed) IsValid() bool {
	return f == FeedDexScreener || f == FeedGeckoTerminal
}

// ShortName returns the key prefix used for the feed's durable state.
func (f Feed) ShortName() string {
	switch f {
	case FeedDexScreener:
		return "ds"
	case FeedGeckoTerminal:
		return "gt"
	default:
		return string(f)
	}
}
