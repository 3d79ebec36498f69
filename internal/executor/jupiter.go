package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"solana-token-watch/internal/domain"
	"solana-token-watch/internal/provider/httpx"
	"solana-token-watch/internal/solana"
)

// JupiterBaseURL is the Jupiter v6 swap API.
const JupiterBaseURL = "https://quote-api.jup.ag/v6"

// JupiterOptions configures a Jupiter executor.
type JupiterOptions struct {
	Client      *httpx.Client // default: client against JupiterBaseURL
	RPC         solana.RPCClient
	WS          solana.WSClient // optional, confirmations fall back to polling
	Keypair     *solana.Keypair
	SlippageBps int // default 50
	Commitment  string
	// PollInterval is used when no WebSocket client is configured or the
	// subscription could not be opened.
	PollInterval  time.Duration
	SkipPreflight bool
	Logger        *log.Logger
}

// Jupiter executes swaps with Jupiter quotes and transactions, broadcast
// through the configured Solana RPC node.
type Jupiter struct {
	client        *httpx.Client
	rpc           solana.RPCClient
	ws            solana.WSClient
	keypair       *solana.Keypair
	slippageBps   int
	commitment    string
	poll          time.Duration
	skipPreflight bool
	logger        *log.Logger
}

// NewJupiter creates a Jupiter executor.
func NewJupiter(opts JupiterOptions) (*Jupiter, error) {
	if opts.Keypair == nil {
		return nil, fmt.Errorf("jupiter: keypair is required")
	}
	if opts.RPC == nil {
		return nil, fmt.Errorf("jupiter: rpc client is required")
	}
	if opts.Client == nil {
		opts.Client = httpx.New("jupiter", JupiterBaseURL, httpx.WithRateLimit(1, 2))
	}
	if opts.SlippageBps <= 0 {
		opts.SlippageBps = 50
	}
	if opts.Commitment == "" {
		opts.Commitment = solana.CommitmentConfirmed
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Jupiter{
		client:        opts.Client,
		rpc:           opts.RPC,
		ws:            opts.WS,
		keypair:       opts.Keypair,
		slippageBps:   opts.SlippageBps,
		commitment:    opts.Commitment,
		poll:          opts.PollInterval,
		skipPreflight: opts.SkipPreflight,
		logger:        opts.Logger,
	}, nil
}

type jupiterSwapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports string          `json:"prioritizationFeeLamports,omitempty"`
}

type jupiterSwapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight int64  `json:"lastValidBlockHeight"`
}

// Execute quotes, builds, signs, sends and confirms one swap.
func (j *Jupiter) Execute(ctx context.Context, req domain.TradeRequest) (domain.TradeReceipt, error) {
	if err := validate(req); err != nil {
		return domain.Failed(ReasonInvalidInput), err
	}

	quote, err := j.Quote(ctx, req)
	if err != nil {
		if httpx.IsStatus(err, http.StatusBadRequest) {
			return domain.Failed(ReasonNoRoute), nil
		}
		return domain.TradeReceipt{}, err
	}

	var swap jupiterSwapResponse
	body := jupiterSwapRequest{
		QuoteResponse:             quote,
		UserPublicKey:             j.keypair.PublicKey(),
		WrapAndUnwrapSol:          true,
		DynamicComputeUnitLimit:   true,
		PrioritizationFeeLamports: "auto",
	}
	if err := j.client.Post(ctx, "swap", "/swap", body, &swap); err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("swap: %w", err)
	}
	if swap.SwapTransaction == "" {
		return domain.Failed(ReasonNoRoute), nil
	}

	signed, sig, err := solana.SignTransaction(swap.SwapTransaction, j.keypair)
	if err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("sign: %w", err)
	}

	// Subscribe before sending so a fast confirmation cannot be missed.
	var notifications <-chan solana.SignatureNotification
	if j.ws != nil {
		notifications, err = j.ws.SignatureSubscribe(ctx, sig, j.commitment)
		if err != nil {
			j.logger.Printf("Signature subscribe failed, polling instead: tx=%s err=%v", sig, err)
			notifications = nil
		}
	}

	hash, err := j.rpc.SendTransaction(ctx, signed, &solana.SendOpts{SkipPreflight: j.skipPreflight})
	if err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("send transaction: %w", err)
	}
	if hash == "" {
		hash = sig
	}
	j.logger.Printf("Jupiter swap sent: in=%s out=%s amount=%s tx=%s", req.InputMint, req.OutputMint, req.Amount, hash)

	if notifications != nil {
		select {
		case n, ok := <-notifications:
			if ok {
				if n.Err != nil {
					return domain.TradeReceipt{Hash: hash, Reason: ReasonTxFailed}, nil
				}
				return domain.TradeReceipt{Success: true, Hash: hash}, nil
			}
			// Subscription dropped, fall back to polling
		case <-ctx.Done():
			return domain.TradeReceipt{Hash: hash, Reason: "unconfirmed"}, fmt.Errorf("confirm %s: %w", hash, ctx.Err())
		}
	}

	st, err := solana.WaitForSignature(ctx, j.rpc, hash, j.poll)
	if st != nil && st.Err != nil {
		return domain.TradeReceipt{Hash: hash, Reason: ReasonTxFailed}, nil
	}
	if err != nil {
		return domain.TradeReceipt{Hash: hash, Reason: "unconfirmed"}, err
	}
	return domain.TradeReceipt{Success: true, Hash: hash}, nil
}

// Quote returns the raw Jupiter quote for req. The quote is passed back to
// the swap endpoint unchanged.
func (j *Jupiter) Quote(ctx context.Context, req domain.TradeRequest) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", req.Amount)
	q.Set("slippageBps", strconv.Itoa(j.slippageBps))
	q.Set("swapMode", "ExactIn")

	var quote json.RawMessage
	if err := j.client.Get(ctx, "quote", "/quote", q, &quote); err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}
	if len(quote) == 0 || string(quote) == "null" {
		return nil, fmt.Errorf("quote: empty response")
	}
	return quote, nil
}
