package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"migration-sentinel/internal/domain"
	"migration-sentinel/internal/retry"
	"migration-sentinel/internal/solana"
	"migration-sentinel/internal/solana/stub"
)

var (
	fixedNow     = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	quietLogger  = log.New(io.Discard, "", 0)
	testUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
)

func TestNormalizeTimestampMs(t *testing.T) {
	now := fixedNow.UnixMilli()
	tests := []struct {
		name string
		raw  interface{}
		want int64
	}{
		{"nil", nil, now},
		{"seconds int64", int64(1_700_000_000), 1_700_000_000_000},
		{"seconds int", 1_700_000_000, 1_700_000_000_000},
		{"millis", int64(1_700_000_000_123), 1_700_000_000_123},
		{"micros", int64(170_000_000_012_345), 170_000_000_012},
		{"nanos", int64(1_700_000_000_123_456_789), 1_700_000_000_123},
		{"float seconds", float64(1_700_000_000), 1_700_000_000_000},
		{"json number", json.Number("1700000000123"), 1_700_000_000_123},
		{"numeric string", "1700000000", 1_700_000_000_000},
		{"rfc3339", "2023-11-14T22:13:20Z", 1_700_000_000_000},
		{"garbage string", "yesterday", now},
		{"zero", int64(0), now},
		{"negative", int64(-5), now},
		{"unsupported type", []int{1}, now},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTimestampMs(tt.raw, fixedNow))
		})
	}
}

func TestPumpPortal_Parse(t *testing.T) {
	s := NewPumpPortalSource(PumpPortalConfig{Logger: quietLogger})
	s.nowFn = func() time.Time { return fixedNow }

	ev, ok := s.parse([]byte(`{"signature":"sig1","mint":"Mint111","timestamp":1700000000123}`))
	require.True(t, ok)
	assert.Equal(t, "Mint111", ev.TokenID)
	assert.Equal(t, domain.SourcePumpPortal, ev.Source)
	assert.Equal(t, "sig1", ev.Signature)
	assert.Equal(t, int64(1_700_000_000_123), ev.MigratedAt)
	assert.Equal(t, fixedNow.UnixMilli(), ev.ObservedAt)

	ev, ok = s.parse([]byte(`{"token":"Mint222","blockTime":1700000000}`))
	require.True(t, ok)
	assert.Equal(t, "Mint222", ev.TokenID)
	assert.Equal(t, int64(1_700_000_000_000), ev.MigratedAt)

	ev, ok = s.parse([]byte(`{"address":"Mint333"}`))
	require.True(t, ok)
	assert.Equal(t, fixedNow.UnixMilli(), ev.MigratedAt)

	_, ok = s.parse([]byte(`{"message":"Successfully subscribed to keys."}`))
	assert.False(t, ok)
	_, ok = s.parse([]byte(`not json`))
	assert.False(t, ok)
}

func TestPumpPortal_Endpoint(t *testing.T) {
	s := NewPumpPortalSource(PumpPortalConfig{APIKey: "k1", Logger: quietLogger})
	ep, err := s.endpoint()
	require.NoError(t, err)
	assert.Equal(t, DefaultPumpPortalURL+"?api-key=k1", ep)
}

func TestPumpPortal_SubscribeAndReconnect(t *testing.T) {
	var mu sync.Mutex
	var subscribes []string
	var conns int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		mu.Lock()
		subscribes = append(subscribes, string(msg))
		conns++
		n := conns
		mu.Unlock()

		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"message":"Successfully subscribed"}`))
		if n == 1 {
			_ = c.WriteMessage(websocket.TextMessage, []byte(`{"mint":"MintA","timestamp":1700000000}`))
			// Drop the connection to force a reconnect.
			return
		}
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"mint":"MintB","timestamp":1700000001}`))
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewPumpPortalSource(PumpPortalConfig{
		URL:            "ws" + strings.TrimPrefix(server.URL, "http"),
		ReconnectDelay: 10 * time.Millisecond,
		Logger:         quietLogger,
	})
	events, err := s.Subscribe(ctx)
	require.NoError(t, err)

	var got []string
	timeout := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev.TokenID)
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.Equal(t, []string{"MintA", "MintB"}, got)

	mu.Lock()
	require.Len(t, subscribes, 2)
	assert.JSONEq(t, `{"method":"subscribeMigration"}`, subscribes[0])
	mu.Unlock()

	cancel()
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-time.After(5 * time.Second):
			t.Fatal("channel not closed after cancel")
		}
	}
}

func TestPumpPortal_DialError(t *testing.T) {
	s := NewPumpPortalSource(PumpPortalConfig{URL: "ws://127.0.0.1:1", Logger: quietLogger})
	_, err := s.Subscribe(context.Background())
	assert.Error(t, err)
}

func TestIsMigration(t *testing.T) {
	assert.True(t, IsMigration(solana.ProgramLogs{Lines: []string{
		"Program dbcij3LWUppWqq96dh6gJWwBifmcGfLSB5D4DuSMaqN invoke [1]",
		"Program log: Instruction: MigrationDammV2",
		"Program log: Create Pool",
	}}))
	assert.False(t, IsMigration(solana.ProgramLogs{Lines: []string{"Program log: Instruction: MigrationDammV2"}}))
	assert.False(t, IsMigration(solana.ProgramLogs{Lines: []string{"Program log: create pool"}}))
	assert.False(t, IsMigration(solana.ProgramLogs{}))
}

func TestMintFromTransaction(t *testing.T) {
	tx := &solana.Transaction{Meta: &solana.TransactionMeta{PostTokenBalances: []solana.TokenBalance{
		{Mint: solana.WrappedSOLMint},
		{Mint: "MintX"},
		{Mint: "MintY"},
	}}}
	assert.Equal(t, "MintX", MintFromTransaction(tx))
	assert.Equal(t, "", MintFromTransaction(&solana.Transaction{}))
	assert.Equal(t, "", MintFromTransaction(nil))
}

type fakeWS struct {
	ch      chan solana.ProgramLogs
	program string
	err     error
}

func (f *fakeWS) SubscribeProgramLogs(_ context.Context, program string) (<-chan solana.ProgramLogs, error) {
	f.program = program
	if f.err != nil {
		return nil, f.err
	}
	return f.ch, nil
}

func (f *fakeWS) Close() error { return nil }

// lateFetcher returns nil until the n-th call.
type lateFetcher struct {
	mu    sync.Mutex
	calls int
	ready int
	tx    *solana.Transaction
}

func (f *lateFetcher) GetTransaction(context.Context, string) (*solana.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls < f.ready {
		return nil, nil
	}
	return f.tx, nil
}

func migrationLogs() []string {
	return []string{"Program log: Instruction: MigrationDammV2", "Program log: create pool"}
}

func TestLogsSource_EmitsMigration(t *testing.T) {
	ws := &fakeWS{ch: make(chan solana.ProgramLogs, 4)}
	fetcher := &lateFetcher{ready: 3, tx: &solana.Transaction{
		BlockTime: 1_700_000_000,
		Meta: &solana.TransactionMeta{PostTokenBalances: []solana.TokenBalance{
			{Mint: solana.WrappedSOLMint}, {Mint: "MintM"},
		}},
	}}
	s := NewLogsSource(ws, fetcher, LogsConfig{Fetch: retry.Linear(7, time.Millisecond, time.Millisecond), Logger: quietLogger})
	s.firstWait = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := s.Subscribe(ctx)
	require.NoError(t, err)
	assert.Equal(t, MeteoraDBCProgramID, ws.program)

	ws.ch <- solana.ProgramLogs{Signature: "noise", Lines: []string{"Program log: swap"}}
	ws.ch <- solana.ProgramLogs{Signature: "failed", Lines: migrationLogs(), Failed: true}
	ws.ch <- solana.ProgramLogs{Signature: "mig1", Lines: migrationLogs()}

	select {
	case ev := <-events:
		assert.Equal(t, "MintM", ev.TokenID)
		assert.Equal(t, domain.SourceProgramLogs, ev.Source)
		assert.Equal(t, "mig1", ev.Signature)
		assert.Equal(t, int64(1_700_000_000_000), ev.MigratedAt)
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
	}
	assert.Equal(t, 3, fetcher.calls)

	close(ws.ch)
	_, ok := <-events
	assert.False(t, ok)
}

func TestLogsSource_GivesUp(t *testing.T) {
	rpc := stub.NewRPCClient()
	ws := &fakeWS{ch: make(chan solana.ProgramLogs, 1)}
	s := NewLogsSource(ws, rpc, LogsConfig{Fetch: retry.Linear(2, time.Millisecond, time.Millisecond), Logger: quietLogger})
	s.firstWait = 0

	events, err := s.Subscribe(context.Background())
	require.NoError(t, err)
	ws.ch <- solana.ProgramLogs{Signature: "missing", Lines: migrationLogs()}
	close(ws.ch)

	_, ok := <-events
	assert.False(t, ok)
	assert.Equal(t, 3, rpc.CallCount("getTransaction"))
}

func TestLogsSource_NoMintIsPermanent(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.Transactions["sig"] = &solana.Transaction{Meta: &solana.TransactionMeta{}}
	ws := &fakeWS{ch: make(chan solana.ProgramLogs, 1)}
	s := NewLogsSource(ws, rpc, LogsConfig{Fetch: retry.Linear(5, time.Millisecond, time.Millisecond), Logger: quietLogger})
	s.firstWait = 0

	events, err := s.Subscribe(context.Background())
	require.NoError(t, err)
	ws.ch <- solana.ProgramLogs{Signature: "sig", Lines: migrationLogs()}
	close(ws.ch)

	_, ok := <-events
	assert.False(t, ok)
	assert.Equal(t, 1, rpc.CallCount("getTransaction"))
}

func TestLogsSource_SubscribeError(t *testing.T) {
	s := NewLogsSource(&fakeWS{err: errors.New("refused")}, stub.NewRPCClient(), LogsConfig{Logger: quietLogger})
	_, err := s.Subscribe(context.Background())
	assert.Error(t, err)
}

type chanSource struct {
	events []domain.MigrationEvent
	err    error
}

func (s chanSource) Subscribe(ctx context.Context) (<-chan domain.MigrationEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan domain.MigrationEvent, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func TestMerge(t *testing.T) {
	a := chanSource{events: []domain.MigrationEvent{{TokenID: "a1"}, {TokenID: "a2"}}}
	b := chanSource{events: []domain.MigrationEvent{{TokenID: "b1"}}}

	out, err := Merge(context.Background(), a, b)
	require.NoError(t, err)

	var got []string
	for ev := range out {
		got = append(got, ev.TokenID)
	}
	assert.ElementsMatch(t, []string{"a1", "a2", "b1"}, got)
}

func TestMerge_SubscribeError(t *testing.T) {
	_, err := Merge(context.Background(), chanSource{}, chanSource{err: errors.New("refused")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}
