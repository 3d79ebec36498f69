package domain

// TradeSide distinguishes entry and exit trades.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "Buy"
	TradeSideSell TradeSide = "Sell"
)

// TradeRequest asks the executor to swap Amount base units of InputMint into OutputMint.
type TradeRequest struct {
	InputMint  string
	OutputMint string
	Amount     string // base units, decimal string
}

// TradeReceipt is the outcome of an execution attempt.
// A failed receipt is a normal outcome (no position, quote failure, broadcast failure).
type TradeReceipt struct {
	Success bool
	Hash    string // transaction signature, empty on failure
	Reason  string // failure reason, empty on success
}

// Failed returns an unsuccessful receipt with the given reason.
func Failed(reason string) TradeReceipt {
	return TradeReceipt{Reason: reason}
}
