package solana

// TokenAccount is a parsed SPL token account.
type TokenAccount struct {
	Pubkey   string
	Mint     string
	Owner    string
	Amount   string // base units, u64 as decimal string
	Decimals int
}

// SendOpts configures sendTransaction.
type SendOpts struct {
	SkipPreflight bool
	MaxRetries    *int
}

// SignatureStatus from getSignatureStatuses.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *int64 // nil once finalized
	Err                interface{}
	ConfirmationStatus string // processed, confirmed, finalized
}

// Landed reports whether the transaction reached at least confirmed commitment.
func (s *SignatureStatus) Landed() bool {
	return s != nil && (s.ConfirmationStatus == CommitmentConfirmed || s.ConfirmationStatus == CommitmentFinalized)
}

// Commitment levels.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// Well-known mints and programs.
const (
	WrappedSOLMint = "So11111111111111111111111111111111111111112"
	TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)
