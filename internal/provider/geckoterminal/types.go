package geckoterminal

import (
	"strconv"
	"strings"
	"time"

	"solana-token-watch/internal/domain"
)

// Numeric fields arrive as JSON strings or null.

type poolsResponse struct {
	Data []pool `json:"data"`
}

type relationship struct {
	Data struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"data"`
}

type txnCount struct {
	Buys    int64 `json:"buys"`
	Sells   int64 `json:"sells"`
	Buyers  int64 `json:"buyers"`
	Sellers int64 `json:"sellers"`
}

type pool struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Name                  string              `json:"name"`
		Address               string              `json:"address"`
		BaseTokenPriceUSD     *string             `json:"base_token_price_usd"`
		PoolCreatedAt         *string             `json:"pool_created_at"`
		ReserveInUSD          *string             `json:"reserve_in_usd"`
		FDVUSD                *string             `json:"fdv_usd"`
		MarketCapUSD          *string             `json:"market_cap_usd"`
		PriceChangePercentage map[string]string   `json:"price_change_percentage"`
		VolumeUSD             map[string]string   `json:"volume_usd"`
		Transactions          map[string]txnCount `json:"transactions"`
	} `json:"attributes"`
	Relationships struct {
		BaseToken  relationship `json:"base_token"`
		QuoteToken relationship `json:"quote_token"`
		Dex        relationship `json:"dex"`
	} `json:"relationships"`
}

func (p *pool) createdAt() *time.Time {
	if p.Attributes.PoolCreatedAt == nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *p.Attributes.PoolCreatedAt)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func (p *pool) attributes() domain.LiveAttributes {
	attrs := p.Attributes
	a := domain.LiveAttributes{
		Address:        attrs.Address,
		Name:           attrs.Name,
		Symbol:         baseSymbol(attrs.Name),
		ProfileURL:     "https://dexscreener.com/solana/" + attrs.Address,
		BaseMint:       tokenAddress(p.Relationships.BaseToken.Data.ID),
		QuoteMint:      tokenAddress(p.Relationships.QuoteToken.Data.ID),
		PriceChange24h: parseFloat(attrs.PriceChangePercentage["h24"]),
		Volume24h:      parseFloat(attrs.VolumeUSD["h24"]),
		CreatedAt:      p.createdAt(),
	}
	if attrs.BaseTokenPriceUSD != nil {
		a.PriceUSD = domain.ParsePrice(*attrs.BaseTokenPriceUSD)
	}
	if attrs.ReserveInUSD != nil {
		a.Liquidity = parseFloat(*attrs.ReserveInUSD)
	}
	if attrs.FDVUSD != nil {
		a.MarketCap = parseFloat(*attrs.FDVUSD)
	}
	if t, ok := attrs.Transactions["h1"]; ok {
		v := t.Buyers
		a.Buys = &v
	}
	return a
}

// tokenAddress strips the network prefix from a token id ("solana_<mint>").
func tokenAddress(id string) string {
	if _, addr, ok := strings.Cut(id, "_"); ok {
		return addr
	}
	return id
}

// baseSymbol returns "ABC" for a pool named "ABC / SOL".
func baseSymbol(name string) string {
	base, _, ok := strings.Cut(name, " / ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(base)
}

func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
