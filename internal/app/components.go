// Package app builds the sentinel's components from configuration.
package app

import (
	"errors"
	"io"
	"log"
	"os"

	"migration-sentinel/internal/bundle"
	"migration-sentinel/internal/classify"
	"migration-sentinel/internal/config"
	"migration-sentinel/internal/coordinator"
	"migration-sentinel/internal/domain"
	"migration-sentinel/internal/fees"
	"migration-sentinel/internal/holders"
	"migration-sentinel/internal/market"
	"migration-sentinel/internal/oneshot"
	"migration-sentinel/internal/pool"
	"migration-sentinel/internal/provider/birdeye"
	"migration-sentinel/internal/provider/bitquery"
	"migration-sentinel/internal/provider/dexscreener"
	"migration-sentinel/internal/retry"
	"migration-sentinel/internal/solana"
	"migration-sentinel/internal/ttc"
)

var logOutput io.Writer = os.Stdout

// SetLogOutput redirects loggers created afterwards by NewLogger.
func SetLogOutput(w io.Writer) { logOutput = w }

// NewLogger returns a logger tagged [name].
func NewLogger(name string) *log.Logger {
	return log.New(logOutput, "["+name+"] ", log.LstdFlags|log.Lshortfile)
}

// Components are the providers and metric calculators behind a coordinator.
// Absent optional providers leave the matching interface nil.
type Components struct {
	RPC       *solana.HTTPClient
	Pools     *pool.Resolver
	Market    *market.Estimator
	Fees      coordinator.FeeAggregator
	Bundle    coordinator.BundleCalculator
	OneShot   coordinator.OneShotDetector
	Holders   coordinator.HolderCalculator
	TTC       coordinator.TTCTracker
	Evaluator *classify.Evaluator
	// Metrics names the metric calculators that are wired.
	Metrics []string
}

// CoordinatorOptions returns coordinator options carrying the components
// and the configured limits. Callers add the seen set, notifier, records and metrics.
func (c *Components) CoordinatorOptions(cfg *config.Config) coordinator.Options {
	return coordinator.Options{
		Pools:         c.Pools,
		Market:        c.Market,
		Fees:          c.Fees,
		Bundle:        c.Bundle,
		OneShot:       c.OneShot,
		Holders:       c.Holders,
		TTC:           c.TTC,
		Evaluator:     c.Evaluator,
		Policy:        coordinator.ParseDispatchPolicy(cfg.Notify.Policy),
		MaxConcurrent: cfg.Limits.MaxConcurrent,
		HandleDelay:   cfg.Limits.HandleDelay,
		TopHolders:    cfg.Limits.TopHolders,
		Logger:        NewLogger("coordinator"),
	}
}

// ClassifyConfig maps thresholds and policies onto the evaluator config.
func ClassifyConfig(cfg *config.Config) classify.Config {
	t := cfg.Thresholds
	return classify.Config{
		Thresholds: classify.Thresholds{
			MinMarketCapUSD: t.MinMarketCapUSD,
			MaxMarketCapUSD: t.MaxMarketCapUSD,
			MaxGasSOL:       t.MaxGasSOL,
			MinBundleRatio:  t.MinBundleRatio,
		},
		Unknown: classify.UnknownPolicies{
			MarketCap: classify.ParseUnknownPolicy(t.UnknownMarketCap, classify.UnknownFail),
			Gas:       classify.ParseUnknownPolicy(t.UnknownGas, classify.UnknownFail),
			Bundle:    classify.ParseUnknownPolicy(t.UnknownBundle, classify.UnknownPass),
		},
		SuppressOneShot: t.SuppressOneShot,
	}
}

// BuildComponents creates the providers and calculators. Missing optional
// credentials are logged once here and the affected metrics stay absent.
func BuildComponents(cfg *config.Config, logger *log.Logger) (*Components, error) {
	lim := cfg.Limits
	c := &Components{Evaluator: classify.NewEvaluator(ClassifyConfig(cfg))}

	c.RPC = solana.NewHTTPClient(cfg.Endpoints.RPCURL,
		solana.WithTimeout(lim.HTTPTimeout),
		solana.WithRateLimit(lim.RPCRate),
	)

	dexOpts := []dexscreener.Option{dexscreener.WithTimeout(lim.HTTPTimeout)}
	if cfg.Endpoints.DexScreenerURL != "" {
		dexOpts = append(dexOpts, dexscreener.WithBaseURL(cfg.Endpoints.DexScreenerURL))
	}
	c.Pools = pool.NewResolver(pool.ResolverOptions{
		Source: dexscreener.NewClient(dexOpts...),
		Retry:  retry.Fixed(lim.PoolRetries, lim.PoolRetryDelay),
		Logger: NewLogger("pool"),
	})

	birdeyeOpts := []birdeye.Option{birdeye.WithTimeout(lim.PriceTimeout)}
	if cfg.Endpoints.BirdeyeURL != "" {
		birdeyeOpts = append(birdeyeOpts, birdeye.WithBaseURL(cfg.Endpoints.BirdeyeURL))
	}
	oracle, err := birdeye.NewClient(cfg.Keys.Birdeye, birdeyeOpts...)
	if err != nil && !errors.Is(err, domain.ErrConfigurationMissing) {
		return nil, err
	}
	if err != nil {
		logger.Printf("WARN: %v; price falls back to pool quotes, holder ratio disabled", err)
		oracle = nil
	}

	bitqueryOpts := []bitquery.Option{bitquery.WithTimeout(lim.AnalyticsTimeout)}
	if cfg.Endpoints.BitqueryURL != "" {
		bitqueryOpts = append(bitqueryOpts, bitquery.WithEndpoint(cfg.Endpoints.BitqueryURL))
	}
	analytics, err := bitquery.NewClient(cfg.Keys.Bitquery, bitqueryOpts...)
	if err != nil && !errors.Is(err, domain.ErrConfigurationMissing) {
		return nil, err
	}
	if err != nil {
		logger.Printf("WARN: %v; bundle ratio disabled, fees use transaction replay", err)
		analytics = nil
	}

	supply := market.NewSupply(c.RPC, 10_000, lim.SupplyCacheTTL)

	estOpts := market.EstimatorOptions{
		Supply:        supply,
		Quotes:        c.Pools,
		OracleTimeout: lim.PriceTimeout,
		QuoteTimeout:  lim.HTTPTimeout,
		Logger:        NewLogger("market"),
	}
	if oracle != nil {
		estOpts.Oracle = oracle
	}
	c.Market = market.NewEstimator(estOpts)

	feeOpts := fees.AggregatorOptions{
		Chain:        c.RPC,
		Pacing:       lim.Pacing,
		QueryTimeout: lim.AnalyticsTimeout,
		Logger:       NewLogger("fees"),
	}
	if analytics != nil {
		feeOpts.Querier = analytics
	}
	c.Fees = fees.NewAggregator(feeOpts)
	c.Metrics = append(c.Metrics, coordinator.MetricFees)

	c.OneShot = oneshot.NewDetector(oneshot.Options{
		Chain:       c.RPC,
		Supply:      supply,
		ScanLimit:   cfg.OneShot.ScanLimit,
		Window:      cfg.OneShot.Window,
		MinTipSOL:   cfg.OneShot.MinTipSOL,
		MinSpendSOL: cfg.OneShot.MinSpendSOL,
		MinHolding:  cfg.OneShot.MinHolding,
		Marker:      cfg.OneShot.Marker,
		Pacing:      lim.Pacing,
		Logger:      NewLogger("oneshot"),
	})
	c.Metrics = append(c.Metrics, coordinator.MetricOneShot)

	ttcOpts := ttc.Options{Chain: c.RPC, Logger: NewLogger("ttc")}
	if analytics != nil {
		ttcOpts.Earliest = analytics
	}
	c.TTC = ttc.NewTracker(ttcOpts)
	c.Metrics = append(c.Metrics, coordinator.MetricTTC)

	if analytics != nil {
		c.Bundle = bundle.NewCalculator(bundle.CalculatorOptions{
			Source:            analytics,
			MinSignersPerSlot: cfg.Bundle.MinSignersPerSlot,
			Window:            cfg.Bundle.Window,
			Timeout:           lim.AnalyticsTimeout,
			Logger:            NewLogger("bundle"),
		})
		c.Metrics = append(c.Metrics, coordinator.MetricBundle)
	}

	if oracle != nil {
		c.Holders = holders.NewCalculator(holders.CalculatorOptions{
			Holders:  oracle,
			Accounts: c.RPC,
			Supply:   supply,
			Timeout:  lim.HTTPTimeout,
			Logger:   NewLogger("holders"),
		})
		c.Metrics = append(c.Metrics, coordinator.MetricHolders)
	}

	return c, nil
}
