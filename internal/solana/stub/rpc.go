package stub

import (
	"context"
	"fmt"
	"sync"

	"solana-token-watch/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu sync.Mutex

	// TokenAccounts maps owner/mint to accounts.
	TokenAccounts map[string][]solana.TokenAccount
	// Statuses maps signature to status. Missing signatures are unknown.
	Statuses map[string]*solana.SignatureStatus
	// Sent records submitted transactions in order.
	Sent []string
	// SendErr, when set, fails SendTransaction.
	SendErr error
	// LandOnSend marks submitted transactions as confirmed.
	LandOnSend bool
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		TokenAccounts: make(map[string][]solana.TokenAccount),
		Statuses:      make(map[string]*solana.SignatureStatus),
	}
}

// SetBalance replaces the owner's accounts for mint with one holding amount.
func (c *RPCClient) SetBalance(owner, mint, amount string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TokenAccounts[owner+"/"+mint] = []solana.TokenAccount{{
		Pubkey: owner + "-" + mint,
		Mint:   mint,
		Owner:  owner,
		Amount: amount,
	}}
}

// GetTokenAccountsByOwner returns the stored accounts.
func (c *RPCClient) GetTokenAccountsByOwner(_ context.Context, owner, mint string) ([]solana.TokenAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.TokenAccounts[owner+"/"+mint], nil
}

// SendTransaction records the transaction and returns a deterministic signature.
func (c *RPCClient) SendTransaction(_ context.Context, txBase64 string, _ *solana.SendOpts) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return "", c.SendErr
	}
	c.Sent = append(c.Sent, txBase64)
	sig := fmt.Sprintf("stubsig%d", len(c.Sent))
	if c.LandOnSend {
		c.Statuses[sig] = &solana.SignatureStatus{Slot: int64(len(c.Sent)), ConfirmationStatus: solana.CommitmentConfirmed}
	}
	return sig, nil
}

// GetSignatureStatuses returns stored statuses, nil for unknown signatures.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		out[i] = c.Statuses[sig]
	}
	return out, nil
}

// SentCount returns the number of submitted transactions.
func (c *RPCClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}
