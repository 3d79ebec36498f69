package solana

import (
	"context"
	"fmt"
	"math/big"
	"time"
)

// Positions reports wallet token balances.
type Positions struct {
	rpc   RPCClient
	owner string
}

// NewPositions creates a balance source for the wallet owner.
func NewPositions(rpc RPCClient, owner string) *Positions {
	return &Positions{rpc: rpc, owner: owner}
}

// Owner returns the wallet address.
func (p *Positions) Owner() string {
	return p.owner
}

// TokenBalance returns the total base-unit balance of mint across the owner's
// token accounts, "0" if there are none.
func (p *Positions) TokenBalance(ctx context.Context, mint string) (string, error) {
	accounts, err := p.rpc.GetTokenAccountsByOwner(ctx, p.owner, mint)
	if err != nil {
		return "", fmt.Errorf("token accounts: %w", err)
	}

	total := new(big.Int)
	for _, a := range accounts {
		if a.Amount == "" {
			continue
		}
		v, ok := new(big.Int).SetString(a.Amount, 10)
		if !ok {
			return "", fmt.Errorf("account %s: invalid amount %q", a.Pubkey, a.Amount)
		}
		total.Add(total, v)
	}
	return total.String(), nil
}

// WaitForSignature polls getSignatureStatuses until the transaction lands,
// fails, or ctx ends.
func WaitForSignature(ctx context.Context, rpc RPCClient, signature string, interval time.Duration) (*SignatureStatus, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		statuses, err := rpc.GetSignatureStatuses(ctx, []string{signature})
		if err == nil && len(statuses) == 1 && statuses[0] != nil {
			st := statuses[0]
			if st.Err != nil {
				return st, fmt.Errorf("transaction %s failed: %v", signature, st.Err)
			}
			if st.Landed() {
				return st, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for %s: %w", signature, ctx.Err())
		case <-ticker.C:
		}
	}
}
