// Package bitquery is a client for the Bitquery Solana GraphQL API.
package bitquery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"migration-sentinel/internal/domain"
)

// DefaultEndpoint is the early-access (recent data) endpoint.
const DefaultEndpoint = "https://streaming.bitquery.io/eap"

// DefaultTimeout bounds each query.
const DefaultTimeout = 45 * time.Second

// Client runs GraphQL queries against Bitquery.
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// Option configures Client.
type Option func(*Client)

// WithEndpoint overrides the GraphQL endpoint.
func WithEndpoint(u string) Option {
	return func(c *Client) {
		c.endpoint = u
	}
}

// WithTimeout sets the per-query timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// NewClient creates a Bitquery client.
// Returns domain.ErrConfigurationMissing when apiKey is empty.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("bitquery api key: %w", domain.ErrConfigurationMissing)
	}
	c := &Client{
		endpoint: DefaultEndpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type gqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type gqlResponse struct {
	Data   json.RawMessage   `json:"data"`
	Errors []json.RawMessage `json:"errors"`
}

// query posts a GraphQL query and decodes data into out.
func (c *Client) query(ctx context.Context, q string, vars map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(gqlRequest{Query: q, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("bitquery: %w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bitquery: read body: %w: %v", domain.ErrProviderUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bitquery: status %d: %w: %s", resp.StatusCode, domain.ErrProviderUnavailable, truncate(respBody, 300))
	}

	var gql gqlResponse
	if err := json.Unmarshal(respBody, &gql); err != nil {
		return fmt.Errorf("bitquery: decode: %w: %v", domain.ErrProviderUnavailable, err)
	}
	if len(gql.Errors) > 0 {
		return fmt.Errorf("bitquery: %w: %s", domain.ErrProviderUnavailable, truncate(gql.Errors[0], 300))
	}
	if err := json.Unmarshal(gql.Data, out); err != nil {
		return fmt.Errorf("bitquery: decode data: %w: %v", domain.ErrProviderUnavailable, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
