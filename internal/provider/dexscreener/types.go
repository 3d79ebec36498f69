package dexscreener

import (
	"time"

	"solana-token-watch/internal/domain"
)

// tokenListing is an entry of the token-profiles and token-boosts endpoints.
type tokenListing struct {
	URL          string `json:"url"`
	ChainID      string `json:"chainId"`
	TokenAddress string `json:"tokenAddress"`
}

type pairToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type txnCount struct {
	Buys  int64 `json:"buys"`
	Sells int64 `json:"sells"`
}

// pair is an element of the tokens/v1 response. Only consumed fields are declared.
type pair struct {
	ChainID     string              `json:"chainId"`
	DexID       string              `json:"dexId"`
	URL         string              `json:"url"`
	PairAddress string              `json:"pairAddress"`
	BaseToken   pairToken           `json:"baseToken"`
	QuoteToken  pairToken           `json:"quoteToken"`
	PriceUSD    string              `json:"priceUsd"`
	Txns        map[string]txnCount `json:"txns"`
	Volume      map[string]float64  `json:"volume"`
	PriceChange map[string]float64  `json:"priceChange"`
	Liquidity   *struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	FDV           *float64 `json:"fdv"`
	MarketCap     *float64 `json:"marketCap"`
	PairCreatedAt int64    `json:"pairCreatedAt"` // unix ms
}

func (p *pair) attributes() domain.LiveAttributes {
	a := domain.LiveAttributes{
		Address:    p.BaseToken.Address,
		Name:       p.BaseToken.Name,
		Symbol:     p.BaseToken.Symbol,
		ProfileURL: p.URL,
		BaseMint:   p.BaseToken.Address,
		QuoteMint:  p.QuoteToken.Address,
		PriceUSD:   domain.ParsePrice(p.PriceUSD),
		MarketCap:  p.MarketCap,
	}
	if v, ok := p.PriceChange["h24"]; ok {
		a.PriceChange24h = &v
	}
	if v, ok := p.Volume["h24"]; ok {
		a.Volume24h = &v
	}
	if p.Liquidity != nil {
		v := p.Liquidity.USD
		a.Liquidity = &v
	}
	if t, ok := p.Txns["h24"]; ok {
		v := t.Buys
		a.Buys = &v
	}
	if p.PairCreatedAt > 0 {
		t := time.UnixMilli(p.PairCreatedAt).UTC()
		a.CreatedAt = &t
	}
	return a
}
