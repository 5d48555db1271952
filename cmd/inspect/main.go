// Package main computes every metric and the verdict for one mint, without
// dedup, notification or audit.
//
// Usage:
//
//	inspect -mint <address> [-json] [-history migrations.csv]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"migration-sentinel/internal/app"
	"migration-sentinel/internal/classify"
	"migration-sentinel/internal/config"
	"migration-sentinel/internal/coordinator"
	"migration-sentinel/internal/dedup"
	"migration-sentinel/internal/domain"
	"migration-sentinel/internal/storage/csvfile"
	"migration-sentinel/internal/ttc"
)

// Report is the JSON output.
type Report struct {
	Mint       string                       `json:"mint"`
	Pool       *domain.PoolInfo             `json:"pool,omitempty"`
	SkipReason string                       `json:"skip_reason,omitempty"`
	Status     domain.Status                `json:"status,omitempty"`
	Metrics    *domain.MetricsBundle        `json:"metrics,omitempty"`
	TTC        string                       `json:"ttc,omitempty"`
	Checks     []domain.CheckResult         `json:"checks,omitempty"`
	History    []*domain.Record             `json:"history,omitempty"`
	Elapsed    string                       `json:"elapsed"`
	Result     *domain.ClassificationResult `json:"-"`
}

func main() {
	logger := log.New(os.Stderr, "[inspect] ", log.LstdFlags)

	if err := config.LoadDotEnv(); err != nil {
		logger.Fatalf("Failed to load .env: %v", err)
	}
	cfg := config.FromEnv()

	mint := flag.String("mint", "", "Token mint address (required)")
	migratedAt := flag.Int64("migrated-at", 0, "Migration time in Unix ms (default now)")
	rpcEndpoint := flag.String("rpc-endpoint", cfg.Endpoints.RPCURL, "Solana RPC HTTP endpoint")
	asJSON := flag.Bool("json", false, "Print JSON instead of text")
	history := flag.String("history", "", "CSV audit file to search for past records of the mint")
	timeout := flag.Duration("timeout", 3*time.Minute, "Overall timeout")
	verbose := flag.Bool("v", false, "Log component activity to stderr")
	flag.Parse()

	if *mint == "" {
		logger.Fatal("--mint is required")
	}
	cfg.Endpoints.RPCURL = *rpcEndpoint
	// inspect never stores or subscribes
	cfg.Storage.Backend = config.StorageMemory
	cfg.Storage.Dedup = config.DedupMemory
	cfg.Server.Sources = []string{config.SourcePumpPortal}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	var logOut io.Writer = io.Discard
	if *verbose {
		logOut = os.Stderr
	}
	log.SetOutput(logOut)
	app.SetLogOutput(logOut)
	compLogger := app.NewLogger("inspect")

	comps, err := app.BuildComponents(cfg, compLogger)
	if err != nil {
		logger.Fatalf("Build components: %v", err)
	}
	opts := comps.CoordinatorOptions(cfg)
	opts.Seen = dedup.NewMemoryStore(1, 0)
	opts.Logger = compLogger
	coord, err := coordinator.New(opts)
	if err != nil {
		logger.Fatalf("Create coordinator: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	in := coord.Inspect(ctx, domain.MigrationEvent{
		TokenID:    *mint,
		Source:     domain.SourceManual,
		ObservedAt: start.UnixMilli(),
		MigratedAt: *migratedAt,
	})

	rep := buildReport(*mint, in, time.Since(start))
	if *history != "" {
		recs, err := loadHistory(*history, *mint)
		if err != nil {
			logger.Fatalf("Read history: %v", err)
		}
		rep.History = recs
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			logger.Fatalf("Encode: %v", err)
		}
		return
	}
	printText(os.Stdout, rep, cfg)
}

func buildReport(mint string, in *coordinator.Inspection, elapsed time.Duration) *Report {
	rep := &Report{
		Mint:       mint,
		Pool:       in.Pool,
		SkipReason: in.SkipReason,
		Elapsed:    elapsed.Round(time.Millisecond).String(),
		Result:     in.Result,
	}
	if r := in.Result; r != nil {
		m := r.Metrics
		rep.Status = r.Status
		rep.Metrics = &m
		rep.TTC = ttc.Humanize(m.TTCMs)
		rep.Checks = r.Checks
	}
	return rep
}

func loadHistory(path, mint string) ([]*domain.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	all, err := csvfile.ReadRecords(f)
	if err != nil {
		return nil, err
	}
	var out []*domain.Record
	for _, r := range all {
		if r.TokenID == mint {
			out = append(out, r)
		}
	}
	return out, nil
}

func printText(w io.Writer, rep *Report, cfg *config.Config) {
	fmt.Fprintf(w, "# %s\n\n", rep.Mint)
	if rep.Result == nil {
		if rep.Pool != nil {
			fmt.Fprintf(w, "Pool: %s (%s)\n", rep.Pool.PoolAddress, rep.Pool.Venue)
		}
		fmt.Fprintf(w, "Skipped: %s\n", rep.SkipReason)
	} else {
		fmt.Fprintln(w, classify.RenderMarkdown(rep.Result, app.ClassifyConfig(cfg).Thresholds, rep.TTC, time.Now()))
		fmt.Fprintln(w)
		fmt.Fprint(w, classify.RenderChecks(rep.Result))
	}

	if len(rep.History) > 0 {
		fmt.Fprintf(w, "\n## History (%d)\n\n", len(rep.History))
		for _, r := range rep.History {
			fmt.Fprintf(w, "- %s %s %s %s\n",
				time.UnixMilli(r.RecordedAt).UTC().Format(time.RFC3339), r.FinalState, r.Status, r.SkipReason)
		}
	}
	fmt.Fprintf(w, "\nelapsed %s\n", rep.Elapsed)
}
