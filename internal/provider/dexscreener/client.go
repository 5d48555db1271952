// Package dexscreener is a client for the DexScreener pair listing API.
package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"migration-sentinel/internal/domain"
)

// DefaultBaseURL is the public DexScreener API.
const DefaultBaseURL = "https://api.dexscreener.com"

// DefaultTimeout bounds each request.
const DefaultTimeout = 15 * time.Second

// Pair is one liquidity pool as listed by DexScreener.
type Pair struct {
	DexID         string
	PairAddress   string
	BaseMint      string
	PairCreatedAt int64    // Unix ms
	PriceUSD      *float64 // nil when not quoted
	MarketCapUSD  *float64
	LiquidityUSD  *float64
}

// Client queries DexScreener.
type Client struct {
	baseURL string
	client  *http.Client
}

// Option configures Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// NewClient creates a DexScreener client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TokenPairs lists every pool that trades mint.
func (c *Client) TokenPairs(ctx context.Context, mint string) ([]Pair, error) {
	var raw []rawPair
	if err := c.get(ctx, "/token-pairs/v1/solana/"+mint, &raw); err != nil {
		return nil, err
	}
	pairs := make([]Pair, 0, len(raw))
	for _, r := range raw {
		pairs = append(pairs, r.toPair())
	}
	return pairs, nil
}

// Pair returns a single pool by address, or nil if DexScreener does not know it.
func (c *Client) Pair(ctx context.Context, pairAddress string) (*Pair, error) {
	var resp struct {
		Pairs []rawPair `json:"pairs"`
	}
	if err := c.get(ctx, "/latest/dex/pairs/solana/"+pairAddress, &resp); err != nil {
		return nil, err
	}
	if len(resp.Pairs) == 0 {
		return nil, nil
	}
	p := resp.Pairs[0].toPair()
	return &p, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("dexscreener %s: %w: %v", path, domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("dexscreener %s: read body: %w: %v", path, domain.ErrProviderUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dexscreener %s: status %d: %w", path, resp.StatusCode, domain.ErrProviderUnavailable)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("dexscreener %s: decode: %w: %v", path, domain.ErrProviderUnavailable, err)
	}
	return nil
}

type rawPair struct {
	DexID         string   `json:"dexId"`
	PairAddress   string   `json:"pairAddress"`
	PairCreatedAt int64    `json:"pairCreatedAt"`
	PriceUSD      string   `json:"priceUsd"`
	MarketCap     *float64 `json:"marketCap"`
	BaseToken     struct {
		Address string `json:"address"`
	} `json:"baseToken"`
	Liquidity *struct {
		USD *float64 `json:"usd"`
	} `json:"liquidity"`
}

func (r rawPair) toPair() Pair {
	p := Pair{
		DexID:         strings.ToLower(r.DexID),
		PairAddress:   r.PairAddress,
		BaseMint:      r.BaseToken.Address,
		PairCreatedAt: r.PairCreatedAt,
		MarketCapUSD:  r.MarketCap,
	}
	if v, err := strconv.ParseFloat(r.PriceUSD, 64); err == nil && v > 0 {
		p.PriceUSD = &v
	}
	if r.Liquidity != nil {
		p.LiquidityUSD = r.Liquidity.USD
	}
	return p
}
