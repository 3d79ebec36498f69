package solana

import "context"

// RPCClient defines the Solana RPC HTTP methods used for trading.
type RPCClient interface {
	// GetTokenAccountsByOwner returns the owner's SPL token accounts for mint.
	GetTokenAccountsByOwner(ctx context.Context, owner, mint string) ([]TokenAccount, error)

	// SendTransaction submits a signed base64 transaction and returns its signature.
	SendTransaction(ctx context.Context, txBase64 string, opts *SendOpts) (string, error)

	// GetSignatureStatuses returns one status per signature; nil for unknown signatures.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)
}
