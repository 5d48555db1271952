// Package main runs the migration sentinel: it subscribes to migration
// streams, classifies each migrated token and dispatches the verdict.
//
// Endpoints:
//   - /health  liveness
//   - /metrics Prometheus
//   - /status  coordinator counters as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"migration-sentinel/internal/app"
	"migration-sentinel/internal/config"
	"migration-sentinel/internal/coordinator"
	"migration-sentinel/internal/domain"
	"migration-sentinel/internal/observability"
	"migration-sentinel/internal/stream"
)

// Server holds the running sentinel.
type Server struct {
	cfg         *config.Config
	coordinator *coordinator.Coordinator
	metrics     *observability.Metrics
	registry    *prometheus.Registry
	features    []string
	startedAt   time.Time
	logger      *log.Logger
}

func main() {
	logger := app.NewLogger("sentinel")

	if err := config.LoadDotEnv(); err != nil {
		logger.Fatalf("Failed to load .env: %v", err)
	}
	cfg := config.FromEnv()

	// Flags override env
	rpcEndpoint := flag.String("rpc-endpoint", cfg.Endpoints.RPCURL, "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", cfg.Endpoints.WSURL, "Solana WebSocket endpoint (logs source)")
	sources := flag.String("sources", strings.Join(cfg.Server.Sources, ","), "Comma-separated event sources (pumpportal, logs)")
	storageBackend := flag.String("storage", cfg.Storage.Backend, "Audit record storage (csv, postgres, clickhouse, memory)")
	csvPath := flag.String("csv-path", cfg.Storage.CSVPath, "CSV audit file")
	postgresDSN := flag.String("postgres-dsn", cfg.Storage.PostgresDSN, "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", cfg.Storage.ClickHouseDSN, "ClickHouse connection string")
	dedupBackend := flag.String("dedup", cfg.Storage.Dedup, "Seen set backend (memory, redis, postgres)")
	dispatch := flag.String("dispatch", cfg.Notify.Policy, "Dispatch policy (pass-only, all)")
	httpAddr := flag.String("http-addr", cfg.Server.HTTPAddr, "HTTP address for health/metrics/status")
	flag.Parse()

	cfg.Endpoints.RPCURL = *rpcEndpoint
	cfg.Endpoints.WSURL = *wsEndpoint
	if cfg.Endpoints.WSURL == "" {
		cfg.Endpoints.WSURL = config.WSFromRPC(cfg.Endpoints.RPCURL)
	}
	cfg.Server.Sources = splitList(*sources)
	cfg.Storage.Backend = *storageBackend
	cfg.Storage.CSVPath = *csvPath
	cfg.Storage.PostgresDSN = *postgresDSN
	cfg.Storage.ClickHouseDSN = *clickhouseDSN
	cfg.Storage.Dedup = *dedupBackend
	cfg.Notify.Policy = *dispatch
	cfg.Server.HTTPAddr = *httpAddr

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var closers cleanups
	defer closers.run()

	server, events, err := setup(ctx, cfg, &closers, logger)
	if err != nil {
		closers.run()
		logger.Fatalf("Startup failed: %v", err)
	}

	done := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Second signal forces exit
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	httpSrv := server.startHTTPServer()

	stopUptime := make(chan struct{})
	go server.metrics.TrackUptime(15*time.Second, stopUptime)

	logger.Printf("Sentinel running: sources=%v storage=%s dedup=%s dispatch=%s metrics=%v",
		cfg.Server.Sources, cfg.Storage.Backend, cfg.Storage.Dedup, cfg.Notify.Policy, server.features)

	server.coordinator.Run(ctx, events)
	close(done)
	close(stopUptime)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP shutdown: %v", err)
	}

	logger.Println("Shutdown complete")
}

// setup wires every component and subscribes to the event sources.
func setup(ctx context.Context, cfg *config.Config, closers *cleanups, logger *log.Logger) (*Server, <-chan domain.MigrationEvent, error) {
	comps, err := app.BuildComponents(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	records, seen, err := openStores(ctx, cfg, closers, logger)
	if err != nil {
		return nil, nil, err
	}
	closers.add(func() { _ = seen.Close() })

	notifier, err := buildNotifier(cfg, closers, logger)
	if err != nil {
		return nil, nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics("", registry)

	opts := comps.CoordinatorOptions(cfg)
	opts.Seen = seen
	opts.Notifier = notifier
	opts.Records = records
	opts.Metrics = metrics
	coord, err := coordinator.New(opts)
	if err != nil {
		return nil, nil, err
	}

	srcs, err := buildSources(ctx, cfg, comps.RPC, closers)
	if err != nil {
		return nil, nil, err
	}
	events, err := stream.Merge(ctx, srcs...)
	if err != nil {
		return nil, nil, err
	}

	return &Server{
		cfg:         cfg,
		coordinator: coord,
		metrics:     metrics,
		registry:    registry,
		features:    comps.Metrics,
		startedAt:   time.Now(),
		logger:      logger,
	}, events, nil
}

// startHTTPServer serves health, metrics and status in the background.
func (s *Server) startHTTPServer() *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.HandlerFor(s.registry))
	mux.HandleFunc("/status", s.handleStatus)

	srv := &http.Server{Addr: s.cfg.Server.HTTPAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		s.logger.Printf("Starting HTTP server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("HTTP server error: %v", err)
		}
	}()
	return srv
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status      string               `json:"status"`
	Uptime      string               `json:"uptime"`
	Sources     []string             `json:"sources"`
	Storage     string               `json:"storage"`
	Dedup       string               `json:"dedup"`
	Dispatch    string               `json:"dispatch"`
	Metrics     []string             `json:"metrics"`
	Coordinator coordinator.Snapshot `json:"coordinator"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:      "running",
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
		Sources:     s.cfg.Server.Sources,
		Storage:     s.cfg.Storage.Backend,
		Dedup:       s.cfg.Storage.Dedup,
		Dispatch:    s.cfg.Notify.Policy,
		Metrics:     s.features,
		Coordinator: s.coordinator.Stats().Snapshot(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
