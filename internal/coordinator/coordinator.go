// Package coordinator drives each migration event from receipt to a
// dispatched or skipped verdict.
//
// Lifecycle:
//
//	RECEIVED -> DEDUP_CHECK -> RATE_LIMITED_WAIT -> RESOLVING_POOL
//	  -> SKIPPED
//	  -> METRICS_GATHERING -> FUSING -> NOTIFY_SKIPPED | NOTIFIED
//
// Duplicates end at DUPLICATE right after the dedup check.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"migration-sentinel/internal/bundle"
	"migration-sentinel/internal/classify"
	"migration-sentinel/internal/dedup"
	"migration-sentinel/internal/domain"
	"migration-sentinel/internal/notify"
	"migration-sentinel/internal/observability"
	"migration-sentinel/internal/storage"
	"migration-sentinel/internal/ttc"
)

// Defaults for Options.
const (
	DefaultMaxConcurrent = 2
	DefaultHandleDelay   = 1 * time.Second
	DefaultTopHolders    = 10
)

// Skip reasons written to the audit record.
const (
	ReasonNoPool        = "no pool"
	ReasonNoMarketValue = "no market value"
	ReasonOneShot       = "one-shot buy"
	ReasonNotPassing    = "status not PASS"
)

// PoolResolver finds a token's primary pool; nil means none within budget.
type PoolResolver interface {
	Resolve(ctx context.Context, tokenID string) (*domain.PoolInfo, error)
}

// MarketEstimator returns market cap and price, both nil when unavailable.
type MarketEstimator interface {
	Estimate(ctx context.Context, mint string) (mcap, price *float64)
}

// FeeAggregator totals fees paid on a token since sinceMs.
type FeeAggregator interface {
	TotalFees(ctx context.Context, tokenID, poolAddress string, sinceMs int64) *domain.FeeBreakdown
}

// BundleCalculator computes the bundle ratio over [start, end].
type BundleCalculator interface {
	Ratio(ctx context.Context, token string, start, end time.Time) (*bundle.Result, error)
}

// OneShotDetector reports a single dominant buy right after pool creation.
type OneShotDetector interface {
	Detect(ctx context.Context, poolAddress string, createdMs int64, mint string) bool
}

// HolderCalculator computes the top-N holder share of supply.
type HolderCalculator interface {
	TopRatio(ctx context.Context, mint string, n int) (*float64, error)
}

// TTCTracker computes time from token birth to migration.
type TTCTracker interface {
	Compute(ctx context.Context, mint string, migratedMs int64) (ttcMs, birthMs *int64, err error)
}

// DispatchPolicy selects which verdicts are delivered.
type DispatchPolicy string

const (
	DispatchPassOnly DispatchPolicy = "pass-only"
	DispatchAll      DispatchPolicy = "all"
)

// ParseDispatchPolicy maps a config string to a policy, defaulting to pass-only.
func ParseDispatchPolicy(s string) DispatchPolicy {
	if DispatchPolicy(s) == DispatchAll {
		return DispatchAll
	}
	return DispatchPassOnly
}

// Options configures a Coordinator. Seen, Pools, Market and Evaluator are
// required; a nil metric component leaves that metric absent.
type Options struct {
	Seen      dedup.Store
	Pools     PoolResolver
	Market    MarketEstimator
	Fees      FeeAggregator
	Bundle    BundleCalculator
	OneShot   OneShotDetector
	Holders   HolderCalculator
	TTC       TTCTracker
	Evaluator *classify.Evaluator

	Notifier notify.Notifier
	Records  storage.RecordStore
	Metrics  *observability.Metrics

	Policy        DispatchPolicy
	MaxConcurrent int64
	// HandleDelay is slept after admission. Zero uses the default; negative disables.
	HandleDelay time.Duration
	TopHolders  int
	Logger      *log.Logger
}

// Coordinator processes migration events.
type Coordinator struct {
	opts    Options
	gate    *semaphore.Weighted
	logger  *log.Logger
	metrics *observability.Metrics
	stats   *Stats
	nowFn   func() time.Time
}

// New validates opts and creates a Coordinator.
func New(opts Options) (*Coordinator, error) {
	switch {
	case opts.Seen == nil:
		return nil, fmt.Errorf("coordinator: seen set: %w", domain.ErrConfigurationMissing)
	case opts.Pools == nil:
		return nil, fmt.Errorf("coordinator: pool resolver: %w", domain.ErrConfigurationMissing)
	case opts.Market == nil:
		return nil, fmt.Errorf("coordinator: market estimator: %w", domain.ErrConfigurationMissing)
	case opts.Evaluator == nil:
		return nil, fmt.Errorf("coordinator: evaluator: %w", domain.ErrConfigurationMissing)
	}

	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.HandleDelay == 0 {
		opts.HandleDelay = DefaultHandleDelay
	}
	if opts.TopHolders <= 0 {
		opts.TopHolders = DefaultTopHolders
	}
	if opts.Policy == "" {
		opts.Policy = DispatchPassOnly
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Noop{Logger: opts.Logger}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Coordinator{
		opts:    opts,
		gate:    semaphore.NewWeighted(opts.MaxConcurrent),
		logger:  logger,
		metrics: opts.Metrics,
		stats:   newStats(),
		nowFn:   time.Now,
	}, nil
}

// Stats returns the live counters.
func (c *Coordinator) Stats() *Stats { return c.stats }

// Run handles every event from events, one goroutine each, until the channel
// closes or ctx ends. It returns after in-flight events finish.
func (c *Coordinator) Run(ctx context.Context, events <-chan domain.MigrationEvent) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			wg.Add(1)
			go func(ev domain.MigrationEvent) {
				defer wg.Done()
				c.Handle(ctx, ev)
			}(ev)
		}
	}
}

// Handle runs one event to a terminal state and returns it.
func (c *Coordinator) Handle(ctx context.Context, ev domain.MigrationEvent) domain.State {
	start := c.nowFn()
	c.metrics.EventReceived(string(ev.Source))
	c.stats.markReceived(start)
	c.trace(ev, domain.StateReceived)

	c.trace(ev, domain.StateDedupCheck)
	isNew, err := c.opts.Seen.MarkIfNew(ctx, ev.TokenID)
	if err != nil {
		// Dedup errors admit the event.
		c.logger.Printf("[coordinator] WARN: dedup %s: %v", ev.TokenID, err)
		isNew = true
	}
	if !isNew {
		return c.finish(ev, domain.StateDuplicate, false, start)
	}

	c.metrics.EventStarted()
	c.trace(ev, domain.StateRateLimitedWait)
	if err := c.gate.Acquire(ctx, 1); err != nil {
		c.logger.Printf("[coordinator] %s dropped while waiting: %v", classify.ShortMint(ev.TokenID), err)
		return c.finish(ev, domain.StateSkipped, true, start)
	}
	defer c.gate.Release(1)

	if !c.sleep(ctx, c.opts.HandleDelay) {
		return c.finish(ev, domain.StateSkipped, true, start)
	}

	state := c.process(ctx, ev)
	return c.finish(ev, state, true, start)
}

// Inspection is the pre-dispatch outcome for one token.
type Inspection struct {
	Pool *domain.PoolInfo
	// Result is nil when the token was skipped before fusion.
	Result     *domain.ClassificationResult
	SkipReason string
}

// Inspect resolves, measures and classifies one token without dedup,
// admission, dispatch or audit.
func (c *Coordinator) Inspect(ctx context.Context, ev domain.MigrationEvent) *Inspection {
	if ev.MigratedAt <= 0 {
		ev.MigratedAt = c.nowFn().UnixMilli()
	}
	return c.inspect(ctx, ev)
}

func (c *Coordinator) inspect(ctx context.Context, ev domain.MigrationEvent) *Inspection {
	c.trace(ev, domain.StateResolvingPool)
	pool, err := c.opts.Pools.Resolve(ctx, ev.TokenID)
	if err != nil {
		c.logger.Printf("[coordinator] WARN: resolve %s: %v", ev.TokenID, err)
	}
	if pool == nil {
		return &Inspection{SkipReason: ReasonNoPool}
	}

	c.trace(ev, domain.StateMetricsGathering)
	mcap, price := c.opts.Market.Estimate(ctx, ev.TokenID)
	if mcap == nil {
		return &Inspection{Pool: pool, SkipReason: ReasonNoMarketValue}
	}
	mb := domain.MetricsBundle{MarketCapUSD: mcap, PriceUSD: price}
	c.gather(ctx, ev, pool, &mb)

	c.trace(ev, domain.StateFusing)
	result := c.opts.Evaluator.Evaluate(ev.TokenID, pool.PoolAddress, mb)
	c.metrics.Verdict(result.Status.String())
	c.logger.Printf("[coordinator] %s verdict %s (mcap=%s gas=%s bundle=%s oneshot=%t)",
		classify.ShortMint(ev.TokenID), result.Status,
		fmtPtr(mb.MarketCapUSD, "%.0f"), fmtPtr(mb.GasPaidSOL, "%.3f"), fmtPtr(mb.BundleRatio, "%.3f"), mb.IsOneShot)

	return &Inspection{Pool: pool, Result: result}
}

func (c *Coordinator) process(ctx context.Context, ev domain.MigrationEvent) domain.State {
	in := c.inspect(ctx, ev)
	if in.Result == nil {
		c.record(ctx, newRecord(ev, in.Pool, nil, "", domain.StateSkipped, in.SkipReason, c.nowFn()))
		return domain.StateSkipped
	}

	now := c.nowFn()
	state, reason := c.dispatchDecision(in.Result)
	if state == domain.StateNotified {
		c.dispatch(ctx, in.Result, now)
	}
	c.record(ctx, newRecord(ev, in.Pool, &in.Result.Metrics, in.Result.Status, state, reason, now))
	return state
}

// dispatchDecision applies one-shot suppression before the dispatch policy.
func (c *Coordinator) dispatchDecision(r *domain.ClassificationResult) (domain.State, string) {
	if r.Metrics.IsOneShot && c.opts.Evaluator.Config().SuppressOneShot {
		return domain.StateNotifySkipped, ReasonOneShot
	}
	if c.opts.Policy == DispatchPassOnly && r.Status != domain.StatusPass {
		return domain.StateNotifySkipped, ReasonNotPassing
	}
	return domain.StateNotified, ""
}

func (c *Coordinator) dispatch(ctx context.Context, r *domain.ClassificationResult, now time.Time) {
	msg := notify.Message{
		Title:   classify.Title(r),
		Body:    classify.RenderMarkdown(r, c.opts.Evaluator.Config().Thresholds, ttc.Humanize(r.Metrics.TTCMs), now),
		TokenID: r.TokenID,
		Pool:    r.PoolAddress,
		Status:  r.Status.String(),
		SentAt:  now,
	}
	if err := c.opts.Notifier.Notify(ctx, msg); err != nil {
		c.metrics.NotifyFailed()
		c.logger.Printf("[coordinator] WARN: notify %s: %v", r.TokenID, err)
	}
}

func (c *Coordinator) record(ctx context.Context, rec *domain.Record) {
	if c.opts.Records == nil {
		return
	}
	if err := c.opts.Records.Append(ctx, rec); err != nil {
		c.metrics.RecordFailed()
		c.logger.Printf("[coordinator] WARN: audit record %s: %v", rec.TokenID, err)
	}
}

func (c *Coordinator) finish(ev domain.MigrationEvent, state domain.State, admitted bool, start time.Time) domain.State {
	c.trace(ev, state)
	c.stats.finished(state)
	c.metrics.EventFinished(string(state), admitted, c.nowFn().Sub(start))
	return state
}

func (c *Coordinator) trace(ev domain.MigrationEvent, state domain.State) {
	c.logger.Printf("[coordinator] %s %s", classify.ShortMint(ev.TokenID), state)
}

func (c *Coordinator) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func fmtPtr(v *float64, format string) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf(format, *v)
}
