// Package birdeye is a client for the Birdeye price and holder APIs.
package birdeye

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"migration-sentinel/internal/domain"
)

// DefaultBaseURL is the public Birdeye API.
const DefaultBaseURL = "https://public-api.birdeye.so"

// DefaultTimeout bounds each request.
const DefaultTimeout = 10 * time.Second

// MaxPageSize is the largest holder page Birdeye serves.
const MaxPageSize = 100

// Holder is one token holder with a decimal-adjusted balance.
type Holder struct {
	Owner   string
	Balance float64
}

// Client queries Birdeye.
type Client struct {
	baseURL string
	apiKey  string
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

// NewClient creates a Birdeye client.
// Returns domain.ErrConfigurationMissing when apiKey is empty.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("birdeye api key: %w", domain.ErrConfigurationMissing)
	}
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PriceUSD returns the spot price of mint, or nil if Birdeye reports none.
func (c *Client) PriceUSD(ctx context.Context, mint string) (*float64, error) {
	q := url.Values{"address": {mint}}

	var resp struct {
		Data *struct {
			Price *float64 `json:"price"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/defi/v3/token/market-data", q, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil || resp.Data.Price == nil || *resp.Data.Price <= 0 {
		return nil, nil
	}
	return resp.Data.Price, nil
}

// Holders returns one page of holders in descending balance order.
func (c *Client) Holders(ctx context.Context, mint string, offset, limit int) ([]Holder, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	q := url.Values{
		"address":        {mint},
		"offset":         {strconv.Itoa(offset)},
		"limit":          {strconv.Itoa(limit)},
		"ui_amount_mode": {"scaled"},
	}

	var resp struct {
		Data *struct {
			Items []rawHolder `json:"items"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/defi/v3/token/holder", q, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, nil
	}

	holders := make([]Holder, 0, len(resp.Data.Items))
	for _, it := range resp.Data.Items {
		owner := it.Owner
		if owner == "" {
			owner = it.Address
		}
		if owner == "" {
			continue
		}
		holders = append(holders, Holder{Owner: owner, Balance: it.balance()})
	}
	return holders, nil
}

type rawHolder struct {
	Owner    string   `json:"owner"`
	Address  string   `json:"address"`
	UIAmount *float64 `json:"ui_amount"`
	Amount   string   `json:"amount"`
	Decimals int      `json:"decimals"`
}

func (h rawHolder) balance() float64 {
	if h.UIAmount != nil {
		return *h.UIAmount
	}
	amt, err := strconv.ParseFloat(h.Amount, 64)
	if err != nil {
		return 0
	}
	return amt / math.Pow10(h.Decimals)
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("x-chain", "solana")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("birdeye %s: %w: %v", path, domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("birdeye %s: read body: %w: %v", path, domain.ErrProviderUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("birdeye %s: status %d: %w", path, resp.StatusCode, domain.ErrProviderUnavailable)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("birdeye %s: decode: %w: %v", path, domain.ErrProviderUnavailable, err)
	}
	return nil
}
