// Package trigger decides when a tracked entry should be exited and runs the
// resulting trades outside the reconciliation tick.
package trigger

import (
	"github.com/shopspring/decimal"

	"solana-token-watch/internal/domain"
)

// Action is the outcome of evaluating an entry.
type Action string

const (
	ActionNone Action = "none"
	ActionExit Action = "exit"
)

// Config describes the tiered multiplier step function.
type Config struct {
	Boundary       decimal.Decimal // baselines strictly above use HighMultiplier
	HighMultiplier decimal.Decimal
	LowMultiplier  decimal.Decimal // applies at or below Boundary
}

// DefaultConfig returns the standard tiers: 1.2x above 0.0009, 1.3x at or below.
func DefaultConfig() Config {
	return Config{
		Boundary:       decimal.RequireFromString("0.0009"),
		HighMultiplier: decimal.RequireFromString("1.2"),
		LowMultiplier:  decimal.RequireFromString("1.3"),
	}
}

// Decision is the evaluation result for one entry.
type Decision struct {
	Action    Action
	Address   string
	Threshold decimal.Decimal // baseline * multiplier
	Current   decimal.Decimal
}

// Evaluator applies the exit rule. It is pure and safe for concurrent use.
type Evaluator struct {
	config Config
}

// NewEvaluator creates an evaluator.
func NewEvaluator(config Config) *Evaluator {
	return &Evaluator{config: config}
}

// Multiplier returns the step multiplier for a baseline price.
func (e *Evaluator) Multiplier(baseline decimal.Decimal) decimal.Decimal {
	if baseline.GreaterThan(e.config.Boundary) {
		return e.config.HighMultiplier
	}
	return e.config.LowMultiplier
}

// Target returns baseline * Multiplier(baseline).
func (e *Evaluator) Target(baseline decimal.Decimal) decimal.Decimal {
	return baseline.Mul(e.Multiplier(baseline))
}

// Evaluate returns ActionExit when current > baseline * multiplier.
// Removed entries and non-positive baselines never exit.
func (e *Evaluator) Evaluate(entry *domain.TrackedEntry) Decision {
	d := Decision{Action: ActionNone, Address: entry.Address, Current: entry.CurrentPrice}
	if entry.IsRemoved() || !entry.BaselinePrice.IsPositive() {
		return d
	}

	d.Threshold = e.Target(entry.BaselinePrice)
	if entry.CurrentPrice.GreaterThan(d.Threshold) {
		d.Action = ActionExit
	}
	return d
}
