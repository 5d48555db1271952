package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"migration-sentinel/internal/domain"
)

// DefaultServerChanURL is the ServerChan push endpoint base.
const DefaultServerChanURL = "https://sctapi.ftqq.com"

// ServerChan pushes markdown messages through ServerChan.
type ServerChan struct {
	key     string
	baseURL string
	client  *http.Client
}

// ServerChanOption configures ServerChan.
type ServerChanOption func(*ServerChan)

// WithServerChanURL overrides the endpoint base.
func WithServerChanURL(u string) ServerChanOption {
	return func(s *ServerChan) { s.baseURL = strings.TrimRight(u, "/") }
}

// NewServerChan creates a ServerChan notifier.
// Returns domain.ErrConfigurationMissing when key is empty.
func NewServerChan(key string, opts ...ServerChanOption) (*ServerChan, error) {
	if key == "" {
		return nil, fmt.Errorf("serverchan key: %w", domain.ErrConfigurationMissing)
	}
	s := &ServerChan{
		key:     key,
		baseURL: DefaultServerChanURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type serverChanResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Notify implements Notifier.
func (s *ServerChan) Notify(ctx context.Context, msg Message) error {
	form := url.Values{}
	form.Set("title", msg.Title)
	form.Set("desp", msg.Body)

	endpoint := fmt.Sprintf("%s/%s.send", s.baseURL, s.key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create serverchan request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send serverchan: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("serverchan returned status %d: %s", resp.StatusCode, body)
	}

	var r serverChanResponse
	if err := json.Unmarshal(body, &r); err == nil && r.Code != 0 {
		return fmt.Errorf("serverchan code %d: %s", r.Code, r.Message)
	}
	return nil
}

var _ Notifier = (*ServerChan)(nil)
