package main

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"migration-sentinel/internal/config"
	"migration-sentinel/internal/dedup"
	"migration-sentinel/internal/domain"
	"migration-sentinel/internal/notify"
	"migration-sentinel/internal/solana"
	"migration-sentinel/internal/storage/csvfile"
	"migration-sentinel/internal/storage/memory"
	"migration-sentinel/internal/stream"
)

var quiet = log.New(io.Discard, "", 0)

func TestCleanups_RunReversed(t *testing.T) {
	var order []int
	var c cleanups
	c.add(func() { order = append(order, 1) })
	c.add(func() { order = append(order, 2) })
	c.run()
	assert.Equal(t, []int{2, 1}, order)
}

func TestOpenStores_Memory(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = config.StorageMemory
	cfg.Storage.Dedup = config.DedupMemory

	var closers cleanups
	defer closers.run()
	records, seen, err := openStores(context.Background(), cfg, &closers, quiet)
	require.NoError(t, err)

	assert.IsType(t, &memory.RecordStore{}, records)
	assert.IsType(t, &dedup.MemoryStore{}, seen)
	assert.Empty(t, closers)
}

func TestOpenStores_CSV(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = config.StorageCSV
	cfg.Storage.CSVPath = filepath.Join(t.TempDir(), "audit.csv")
	cfg.Storage.Dedup = config.DedupMemory

	var closers cleanups
	records, _, err := openStores(context.Background(), cfg, &closers, quiet)
	require.NoError(t, err)
	require.IsType(t, &csvfile.RecordStore{}, records)
	require.Len(t, closers, 1)

	require.NoError(t, records.Append(context.Background(), &domain.Record{
		RecordID: "r1", TokenID: "MintA", FinalState: domain.StateNotified,
	}))
	closers.run()

	reopened, err := csvfile.Open(cfg.Storage.CSVPath)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Error(t, reopened.Append(context.Background(), &domain.Record{RecordID: "r1", TokenID: "MintA"}))
}

func TestOpenStores_PostgresUnreachable(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = config.StoragePostgres
	cfg.Storage.PostgresDSN = "postgres://u:p@127.0.0.1:1/db?connect_timeout=1"

	var closers cleanups
	_, _, err := openStores(context.Background(), cfg, &closers, quiet)
	assert.Error(t, err)
}

func TestBuildNotifier(t *testing.T) {
	cfg := config.Default()
	var closers cleanups

	n, err := buildNotifier(cfg, &closers, quiet)
	require.NoError(t, err)
	assert.IsType(t, notify.Noop{}, n)

	cfg.Keys.ServerChan = "SCT-test"
	cfg.Notify.WebhookURL = "http://127.0.0.1:1/hook"
	n, err = buildNotifier(cfg, &closers, quiet)
	require.NoError(t, err)
	multi, ok := n.(*notify.Multi)
	require.True(t, ok)
	assert.Equal(t, 2, multi.Len())
}

func TestBuildSources(t *testing.T) {
	cfg := config.Default()
	rpc := solana.NewHTTPClient("http://127.0.0.1:1")
	var closers cleanups

	cfg.Server.Sources = []string{config.SourcePumpPortal}
	srcs, err := buildSources(context.Background(), cfg, rpc, &closers)
	require.NoError(t, err)
	require.Len(t, srcs, 1)
	assert.IsType(t, &stream.PumpPortalSource{}, srcs[0])

	cfg.Server.Sources = []string{"grpc"}
	_, err = buildSources(context.Background(), cfg, rpc, &closers)
	assert.ErrorContains(t, err, "grpc")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"pumpportal", "logs"}, splitList(" pumpportal, ,logs,"))
	assert.Nil(t, splitList(""))
}
