// Package executor implements trade execution against Solana swap routers.
// Each executor turns a domain.TradeRequest into a signed transaction,
// submits it and waits for it to land.
//
// Execute returns an error only for infrastructure failures (transport,
// signing, confirmation timeout). A trade the router declines, or one that
// lands with an error or expires, is a normal failed receipt.
package executor

import (
	"fmt"
	"math/big"

	"solana-token-watch/internal/domain"
)

// Reasons reported in failed receipts.
const (
	ReasonNoRoute      = "no route"
	ReasonExpired      = "transaction expired"
	ReasonTxFailed     = "transaction failed"
	ReasonInvalidInput = "invalid request"
)

func validate(req domain.TradeRequest) error {
	if req.InputMint == "" || req.OutputMint == "" {
		return fmt.Errorf("missing mint")
	}
	if req.InputMint == req.OutputMint {
		return fmt.Errorf("input and output mint are equal")
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		return fmt.Errorf("amount %q is not a positive integer", req.Amount)
	}
	return nil
}
