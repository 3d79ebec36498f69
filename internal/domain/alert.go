package domain

import "time"

// AlertKind classifies notification messages.
type AlertKind string

const (
	AlertCoin   AlertKind = "coin"
	AlertTrade  AlertKind = "trade"
	AlertError  AlertKind = "error"
	AlertSystem AlertKind = "system"
)

// Alert is a structured notification. Sinks decide how to render it.
type Alert struct {
	Kind AlertKind
	Feed Feed
	At   time.Time

	// Coin and trade alerts
	Name      string
	Price     *Price
	Change24h *float64
	Volume24h *float64
	MarketCap *float64
	Link      string

	// Trade alerts
	Side        TradeSide
	Amount      string
	VolumeRatio *float64

	// Error and system alerts
	Title  string
	Detail string
}

// CoinAlert builds the alert published for a newly promoted entry.
func CoinAlert(feed Feed, e *TrackedEntry, at time.Time) Alert {
	price := e.CurrentPrice
	change := e.ChangePct24h
	return Alert{
		Kind:      AlertCoin,
		Feed:      feed,
		At:        at,
		Name:      e.Name,
		Price:     &price,
		Change24h: &change,
		Volume24h: e.Volume24h,
		MarketCap: e.MarketCap,
		Link:      e.ProfileURL,
	}
}

// ErrorAlert builds an error alert.
func ErrorAlert(feed Feed, detail string, at time.Time) Alert {
	return Alert{Kind: AlertError, Feed: feed, At: at, Title: "Error Alert", Detail: detail}
}

// SystemAlert builds a lifecycle notice such as startup or shutdown.
func SystemAlert(feed Feed, title, detail string, at time.Time) Alert {
	return Alert{Kind: AlertSystem, Feed: feed, At: at, Title: title, Detail: detail}
}
