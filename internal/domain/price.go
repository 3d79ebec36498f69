package domain

import "github.com/shopspring/decimal"

// Price is a USD price. Kept as a decimal so baseline comparisons are exact.
type Price = decimal.Decimal

// ParsePrice parses a provider price string. Empty or malformed input yields nil.
func ParsePrice(s string) *Price {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}
