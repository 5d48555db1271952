package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"migration-sentinel/internal/domain"
)

// DefaultPumpPortalURL is the PumpPortal data feed.
const DefaultPumpPortalURL = "wss://pumpportal.fun/api/data"

// PumpPortalConfig configures PumpPortalSource.
type PumpPortalConfig struct {
	URL    string
	APIKey string

	PingInterval      time.Duration
	ReadTimeout       time.Duration
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	Buffer            int
	Logger            *log.Logger
}

// DefaultPumpPortalConfig returns the production settings.
func DefaultPumpPortalConfig() PumpPortalConfig {
	return PumpPortalConfig{
		URL:               DefaultPumpPortalURL,
		PingInterval:      20 * time.Second,
		ReadTimeout:       100 * time.Second,
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		Buffer:            256,
	}
}

// PumpPortalSource subscribes to PumpPortal's migration feed and reconnects
// until its context ends.
type PumpPortalSource struct {
	cfg    PumpPortalConfig
	dialer *websocket.Dialer
	logger *log.Logger
	nowFn  func() time.Time
}

// NewPumpPortalSource creates a PumpPortalSource. Zero fields take defaults.
func NewPumpPortalSource(cfg PumpPortalConfig) *PumpPortalSource {
	def := DefaultPumpPortalConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &PumpPortalSource{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger,
		nowFn:  time.Now,
	}
}

// endpoint returns the feed URL with the api key attached.
func (s *PumpPortalSource) endpoint() (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse pumpportal url: %w", err)
	}
	if s.cfg.APIKey != "" {
		q := u.Query()
		q.Set("api-key", s.cfg.APIKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Subscribe implements Source. The first connection is made synchronously so
// a bad endpoint is reported to the caller.
func (s *PumpPortalSource) Subscribe(ctx context.Context) (<-chan domain.MigrationEvent, error) {
	endpoint, err := s.endpoint()
	if err != nil {
		return nil, err
	}
	conn, _, err := s.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	out := make(chan domain.MigrationEvent, s.cfg.Buffer)
	go s.run(ctx, endpoint, conn, out)
	return out, nil
}

func (s *PumpPortalSource) run(ctx context.Context, endpoint string, conn *websocket.Conn, out chan<- domain.MigrationEvent) {
	defer close(out)

	delay := s.cfg.ReconnectDelay
	for {
		if conn != nil {
			s.logger.Printf("[stream] pumpportal connected")
			err := s.session(ctx, conn, out)
			conn.Close()
			if ctx.Err() != nil {
				return
			}
			s.logger.Printf("[stream] WARN: pumpportal session ended: %v", err)
			delay = s.cfg.ReconnectDelay
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		var err error
		conn, _, err = s.dialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			s.logger.Printf("[stream] WARN: pumpportal reconnect failed, retry in %s: %v", delay, err)
			conn = nil
			delay *= 2
			if delay > s.cfg.MaxReconnectDelay {
				delay = s.cfg.MaxReconnectDelay
			}
		}
	}
}

func (s *PumpPortalSource) session(ctx context.Context, conn *websocket.Conn, out chan<- domain.MigrationEvent) error {
	if err := conn.WriteJSON(map[string]string{"method": "subscribeMigration"}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				// Unblock ReadMessage.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				_ = conn.Close()
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		ev, ok := s.parse(raw)
		if !ok {
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// parse extracts a migration event; non-event frames (acks, errors) are skipped.
func (s *PumpPortalSource) parse(raw []byte) (domain.MigrationEvent, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data map[string]interface{}
	if err := dec.Decode(&data); err != nil {
		return domain.MigrationEvent{}, false
	}

	mint := firstString(data, "mint", "token", "address")
	if mint == "" {
		return domain.MigrationEvent{}, false
	}

	now := s.nowFn()
	ts := firstValue(data, "timestamp", "ts", "time", "blockTime")
	return domain.MigrationEvent{
		TokenID:      mint,
		Source:       domain.SourcePumpPortal,
		Signature:    firstString(data, "signature"),
		ObservedAt:   now.UnixMilli(),
		MigratedAt:   NormalizeTimestampMs(ts, now),
		RawTimestamp: ts,
	}, true
}

var _ Source = (*PumpPortalSource)(nil)
