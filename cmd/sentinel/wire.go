package main

import (
	"context"
	"fmt"
	"log"

	"migration-sentinel/internal/app"
	"migration-sentinel/internal/config"
	"migration-sentinel/internal/dedup"
	"migration-sentinel/internal/notify"
	"migration-sentinel/internal/solana"
	"migration-sentinel/internal/storage"
	chstore "migration-sentinel/internal/storage/clickhouse"
	"migration-sentinel/internal/storage/csvfile"
	"migration-sentinel/internal/storage/memory"
	"migration-sentinel/internal/storage/migrations"
	pgstore "migration-sentinel/internal/storage/postgres"
	"migration-sentinel/internal/stream"
)

// cleanups collects close functions run in reverse order.
type cleanups []func()

func (c *cleanups) add(fn func()) { *c = append(*c, fn) }

func (c cleanups) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// openStores opens the audit record store and the seen set. A postgres pool
// is shared when both use postgres.
func openStores(ctx context.Context, cfg *config.Config, closers *cleanups, logger *log.Logger) (storage.RecordStore, dedup.Store, error) {
	var pg *pgstore.Pool
	postgresPool := func() (*pgstore.Pool, error) {
		if pg != nil {
			return pg, nil
		}
		p, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		applied, err := migrations.RunPostgresMigrations(ctx, p)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.Printf("Applied postgres migrations: %v", applied)
		}
		closers.add(p.Close)
		pg = p
		return p, nil
	}

	var records storage.RecordStore
	switch cfg.Storage.Backend {
	case config.StorageCSV:
		s, err := csvfile.Open(cfg.Storage.CSVPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open csv: %w", err)
		}
		closers.add(func() { _ = s.Close() })
		records = s
	case config.StoragePostgres:
		p, err := postgresPool()
		if err != nil {
			return nil, nil, err
		}
		records = pgstore.NewRecordStore(p)
	case config.StorageClickHouse:
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse: %w", err)
		}
		closers.add(func() { _ = conn.Close() })
		records = chstore.NewRecordStore(conn)
	default:
		records = memory.NewRecordStore()
	}

	var seen dedup.Store
	switch cfg.Storage.Dedup {
	case config.DedupRedis:
		s, err := dedup.NewRedisStore(ctx, cfg.Storage.RedisURL, cfg.Storage.DedupTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		closers.add(func() { _ = s.Close() })
		seen = s
	case config.DedupPostgres:
		p, err := postgresPool()
		if err != nil {
			return nil, nil, err
		}
		seen = pgstore.NewSeenMintStore(p, cfg.Storage.DedupTTL)
	default:
		seen = dedup.NewMemoryStore(cfg.Storage.DedupCapacity, cfg.Storage.DedupTTL)
	}

	return records, seen, nil
}

// buildNotifier fans out to every configured channel; with none, verdicts are
// only logged.
func buildNotifier(cfg *config.Config, closers *cleanups, logger *log.Logger) (notify.Notifier, error) {
	var targets []notify.Notifier

	if cfg.Keys.ServerChan != "" {
		sc, err := notify.NewServerChan(cfg.Keys.ServerChan)
		if err != nil {
			return nil, err
		}
		targets = append(targets, sc)
	}
	if cfg.Notify.WebhookURL != "" {
		targets = append(targets, notify.NewWebhook(cfg.Notify.WebhookURL))
	}
	if len(cfg.Notify.KafkaBrokers) > 0 {
		k, err := notify.NewKafka(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic, app.NewLogger("kafka"))
		if err != nil {
			return nil, err
		}
		closers.add(func() { _ = k.Close() })
		targets = append(targets, k)
	}

	if len(targets) == 0 {
		logger.Println("WARN: no notifier configured, verdicts are logged only")
		return notify.Noop{Logger: logger}, nil
	}
	return notify.NewMulti(app.NewLogger("notify"), targets...), nil
}

// buildSources creates the configured migration streams.
func buildSources(ctx context.Context, cfg *config.Config, rpc *solana.HTTPClient, closers *cleanups) ([]stream.Source, error) {
	var sources []stream.Source
	for _, name := range cfg.Server.Sources {
		switch name {
		case config.SourcePumpPortal:
			sources = append(sources, stream.NewPumpPortalSource(stream.PumpPortalConfig{
				URL:    cfg.Endpoints.PumpPortalURL,
				APIKey: cfg.Keys.PumpPortal,
				Logger: app.NewLogger("pumpportal"),
			}))
		case config.SourceLogs:
			wsCfg := solana.DefaultLogsClientConfig()
			wsCfg.Logger = app.NewLogger("ws")
			ws, err := solana.NewLogsClient(ctx, cfg.Endpoints.WSURL, &wsCfg)
			if err != nil {
				return nil, fmt.Errorf("connect websocket: %w", err)
			}
			closers.add(func() { _ = ws.Close() })
			sources = append(sources, stream.NewLogsSource(ws, rpc, stream.LogsConfig{
				Program: cfg.Endpoints.LogsProgram,
				Logger:  app.NewLogger("logs"),
			}))
		default:
			return nil, fmt.Errorf("unknown source %q", name)
		}
	}
	return sources, nil
}
