package executor

import (
	"context"
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

// GMGNBaseURL is the public GMGN router.
const GMGNBaseURL = "https://gmgn.ai"

const gmgnRouterPath = "/defi/router/v1/sol/tx/"

// GMGNOptions configures a GMGN executor.
type GMGNOptions struct {
	Client       *httpx.Client // default: client against GMGNBaseURL
	Keypair      *solana.Keypair
	AntiMEV      bool    // submit through the bundle endpoint
	SlippagePct  float64 // default 10
	PollInterval time.Duration
	Logger       *log.Logger
}

// GMGN executes swaps through the GMGN router: the router builds the
// transaction, the wallet signs it, the router broadcasts it.
type GMGN struct {
	client   *httpx.Client
	keypair  *solana.Keypair
	antiMEV  bool
	slippage float64
	poll     time.Duration
	logger   *log.Logger
}

// NewGMGN creates a GMGN executor.
func NewGMGN(opts GMGNOptions) (*GMGN, error) {
	if opts.Keypair == nil {
		return nil, fmt.Errorf("gmgn: keypair is required")
	}
	if opts.Client == nil {
		opts.Client = httpx.New("gmgn", GMGNBaseURL, httpx.WithRateLimit(2, 2))
	}
	if opts.SlippagePct <= 0 {
		opts.SlippagePct = 10
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &GMGN{
		client:   opts.Client,
		keypair:  opts.Keypair,
		antiMEV:  opts.AntiMEV,
		slippage: opts.SlippagePct,
		poll:     opts.PollInterval,
		logger:   opts.Logger,
	}, nil
}

type gmgnResponse[T any] struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

type gmgnRoute struct {
	Quote struct {
		InAmount       string `json:"inAmount"`
		OutAmount      string `json:"outAmount"`
		PriceImpactPct string `json:"priceImpactPct"`
	} `json:"quote"`
	RawTx struct {
		SwapTransaction      string `json:"swapTransaction"`
		LastValidBlockHeight int64  `json:"lastValidBlockHeight"`
	} `json:"raw_tx"`
}

type gmgnSubmit struct {
	Hash string `json:"hash"`
}

type gmgnStatus struct {
	Success bool `json:"success"`
	Expired bool `json:"expired"`
	Failed  bool `json:"failed"`
}

// Execute routes, signs, submits and confirms one swap.
func (g *GMGN) Execute(ctx context.Context, req domain.TradeRequest) (domain.TradeReceipt, error) {
	if err := validate(req); err != nil {
		return domain.Failed(ReasonInvalidInput), err
	}

	route, err := g.route(ctx, req)
	if err != nil {
		if httpx.IsStatus(err, http.StatusBadRequest) {
			return domain.Failed(ReasonNoRoute), nil
		}
		return domain.TradeReceipt{}, err
	}
	if route.Code != 0 || route.Data.RawTx.SwapTransaction == "" {
		g.logger.Printf("GMGN route declined: in=%s out=%s code=%d msg=%s", req.InputMint, req.OutputMint, route.Code, route.Msg)
		return domain.Failed(ReasonNoRoute), nil
	}

	signed, sig, err := solana.SignTransaction(route.Data.RawTx.SwapTransaction, g.keypair)
	if err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("sign: %w", err)
	}

	hash, err := g.submit(ctx, signed)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	if hash == "" {
		hash = sig
	}
	g.logger.Printf("GMGN swap submitted: in=%s out=%s amount=%s tx=%s", req.InputMint, req.OutputMint, req.Amount, hash)

	return g.confirm(ctx, hash, route.Data.RawTx.LastValidBlockHeight)
}

func (g *GMGN) route(ctx context.Context, req domain.TradeRequest) (*gmgnResponse[gmgnRoute], error) {
	q := url.Values{}
	q.Set("token_in_address", req.InputMint)
	q.Set("token_out_address", req.OutputMint)
	q.Set("in_amount", req.Amount)
	q.Set("from_address", g.keypair.PublicKey())
	q.Set("slippage", strconv.FormatFloat(g.slippage, 'f', -1, 64))
	q.Set("is_anti_mev", strconv.FormatBool(g.antiMEV))

	var resp gmgnResponse[gmgnRoute]
	if err := g.client.Get(ctx, "get_swap_route", gmgnRouterPath+"get_swap_route", q, &resp); err != nil {
		return nil, fmt.Errorf("swap route: %w", err)
	}
	return &resp, nil
}

func (g *GMGN) submit(ctx context.Context, signed string) (string, error) {
	endpoint := "submit_signed_transaction"
	body := map[string]string{"signed_tx": signed}
	if g.antiMEV {
		endpoint = "submit_signed_bundle_transaction"
		body["from_address"] = g.keypair.PublicKey()
	}

	var resp gmgnResponse[gmgnSubmit]
	if err := g.client.Post(ctx, endpoint, gmgnRouterPath+endpoint, body, &resp); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	if resp.Code != 0 {
		return "", fmt.Errorf("submit: code=%d msg=%s", resp.Code, resp.Msg)
	}
	return resp.Data.Hash, nil
}

// confirm polls the router until the transaction lands, fails or expires.
func (g *GMGN) confirm(ctx context.Context, hash string, lastValidHeight int64) (domain.TradeReceipt, error) {
	q := url.Values{}
	q.Set("hash", hash)
	q.Set("last_valid_height", strconv.FormatInt(lastValidHeight, 10))

	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()

	for {
		var resp gmgnResponse[gmgnStatus]
		err := g.client.Get(ctx, "get_transaction_status", gmgnRouterPath+"get_transaction_status", q, &resp)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return domain.TradeReceipt{Hash: hash, Reason: "unconfirmed"}, fmt.Errorf("confirm %s: %w", hash, ctx.Err())
			}
			g.logger.Printf("GMGN status check failed: tx=%s err=%v", hash, err)
		case resp.Data.Success:
			return domain.TradeReceipt{Success: true, Hash: hash}, nil
		case resp.Data.Failed:
			return domain.TradeReceipt{Hash: hash, Reason: ReasonTxFailed}, nil
		case resp.Data.Expired:
			return domain.TradeReceipt{Hash: hash, Reason: ReasonExpired}, nil
		}

		select {
		case <-ctx.Done():
			return domain.TradeReceipt{Hash: hash, Reason: "unconfirmed"}, fmt.Errorf("confirm %s: %w", hash, ctx.Err())
		case <-ticker.C:
		}
	}
}
