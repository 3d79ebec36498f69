package solana

import "context"

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SignatureSubscribe waits for a transaction to reach commitment. The
	// channel delivers at most one notification and is then closed.
	SignatureSubscribe(ctx context.Context, signature, commitment string) (<-chan SignatureNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureNotification is the result of a signature subscription.
type SignatureNotification struct {
	Signature string
	Slot      int64
	Err       interface{} // nil when the transaction succeeded
}
