package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook posts messages as JSON to a generic HTTP endpoint.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a Webhook notifier.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookPayload struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Token  string `json:"token"`
	Pool   string `json:"pool,omitempty"`
	Status string `json:"status"`
	Time   string `json:"time"`
}

// Notify implements Notifier.
func (w *Webhook) Notify(ctx context.Context, msg Message) error {
	sentAt := msg.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	body, err := json.Marshal(webhookPayload{
		Title:  msg.Title,
		Body:   msg.Body,
		Token:  msg.TokenID,
		Pool:   msg.Pool,
		Status: msg.Status,
		Time:   sentAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

var _ Notifier = (*Webhook)(nil)
