// Package eligibility decides whether a staged candidate may join the watchlist.
package eligibility

import (
	"fmt"
	"time"

	"solana-token-watch/internal/domain"
)

// Criterion names.
const (
	CriterionPrice     = "Price"
	CriterionAge       = "Age"
	CriterionLiquidity = "Liquidity"
	CriterionBuys      = "Buys"
)

// Config holds admission thresholds.
type Config struct {
	MaxAge       time.Duration // |now - createdAt| must not exceed this
	MinLiquidity float64       // liquidity must be strictly greater
	MinBuys      int64         // buy count must be strictly greater
}

// DefaultConfig returns the thresholds used by both feeds.
func DefaultConfig() Config {
	return Config{
		MaxAge:       time.Hour,
		MinLiquidity: 250000,
		MinBuys:      700,
	}
}

// CriterionResult is the outcome of one check.
type CriterionResult struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// Filter is a pure admission predicate.
type Filter struct {
	config Config
}

// NewFilter creates a filter with the given thresholds.
func NewFilter(config Config) *Filter {
	return &Filter{config: config}
}

// Config returns the filter thresholds.
func (f *Filter) Config() Config {
	return f.config
}

// IsEligible reports whether attrs pass every criterion at now.
// Any missing attribute fails.
func (f *Filter) IsEligible(attrs *domain.LiveAttributes, now time.Time) bool {
	return f.Reason(attrs, now) == ""
}

// Reason returns the name of the first failed criterion, or "" if eligible.
func (f *Filter) Reason(attrs *domain.LiveAttributes, now time.Time) string {
	for _, c := range f.Check(attrs, now) {
		if !c.Pass {
			return c.Name
		}
	}
	return ""
}

// Check evaluates every criterion in order.
func (f *Filter) Check(attrs *domain.LiveAttributes, now time.Time) []CriterionResult {
	if attrs == nil {
		attrs = &domain.LiveAttributes{}
	}

	criteria := make([]CriterionResult, 4)

	// 1. A price is needed to set the baseline
	criteria[0] = CriterionResult{
		Name:      CriterionPrice,
		Threshold: "> 0",
		Actual:    "missing",
	}
	if attrs.PriceUSD != nil {
		criteria[0].Actual = attrs.PriceUSD.String()
		criteria[0].Pass = attrs.PriceUSD.IsPositive()
	}

	// 2. |now - createdAt| <= MaxAge
	criteria[1] = CriterionResult{
		Name:      CriterionAge,
		Threshold: fmt.Sprintf("<= %s", f.config.MaxAge),
		Actual:    "missing",
	}
	if attrs.CreatedAt != nil {
		age := now.Sub(*attrs.CreatedAt)
		if age < 0 {
			age = -age
		}
		criteria[1].Actual = age.Round(time.Second).String()
		criteria[1].Pass = age <= f.config.MaxAge
	}

	// 3. Liquidity > MinLiquidity
	criteria[2] = CriterionResult{
		Name:      CriterionLiquidity,
		Threshold: fmt.Sprintf("> %.0f", f.config.MinLiquidity),
		Actual:    "missing",
	}
	if attrs.Liquidity != nil {
		criteria[2].Actual = fmt.Sprintf("%.2f", *attrs.Liquidity)
		criteria[2].Pass = *attrs.Liquidity > f.config.MinLiquidity
	}

	// 4. Buys > MinBuys
	criteria[3] = CriterionResult{
		Name:      CriterionBuys,
		Threshold: fmt.Sprintf("> %d", f.config.MinBuys),
		Actual:    "missing",
	}
	if attrs.Buys != nil {
		criteria[3].Actual = fmt.Sprintf("%d", *attrs.Buys)
		criteria[3].Pass = *attrs.Buys > f.config.MinBuys
	}

	return criteria
}
