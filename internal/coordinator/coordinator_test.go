package coordinator

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"migration-sentinel/internal/bundle"
	"migration-sentinel/internal/classify"
	"migration-sentinel/internal/dedup"
	"migration-sentinel/internal/domain"
	"migration-sentinel/internal/notify"
	"migration-sentinel/internal/observability"
	"migration-sentinel/internal/storage/memory"
)

const testMint = "MintAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAZZZZ"

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

type fakePools struct {
	pool    *domain.PoolInfo
	err     error
	delay   time.Duration
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (f *fakePools) Resolve(ctx context.Context, _ string) (*domain.PoolInfo, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.pool == nil {
		return nil, f.err
	}
	p := *f.pool
	return &p, f.err
}

type fakeMarket struct{ mcap, price *float64 }

func (f fakeMarket) Estimate(context.Context, string) (*float64, *float64) { return f.mcap, f.price }

type fakeFees struct{ fees *domain.FeeBreakdown }

func (f fakeFees) TotalFees(context.Context, string, string, int64) *domain.FeeBreakdown {
	return f.fees
}

type fakeBundle struct {
	res   *bundle.Result
	err   error
	panic bool

	mu    sync.Mutex
	start time.Time
}

func (f *fakeBundle) Ratio(_ context.Context, _ string, start, _ time.Time) (*bundle.Result, error) {
	f.mu.Lock()
	f.start = start
	f.mu.Unlock()
	if f.panic {
		panic("analytics exploded")
	}
	return f.res, f.err
}

type fakeOneShot struct{ detected bool }

func (f fakeOneShot) Detect(context.Context, string, int64, string) bool { return f.detected }

type fakeHolders struct {
	ratio *float64
	err   error
}

func (f fakeHolders) TopRatio(context.Context, string, int) (*float64, error) { return f.ratio, f.err }

type fakeTTC struct{ ttc, birth *int64 }

func (f fakeTTC) Compute(context.Context, string, int64) (*int64, *int64, error) {
	return f.ttc, f.birth, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

type harness struct {
	opts     Options
	pools    *fakePools
	bundle   *fakeBundle
	notifier *recordingNotifier
	records  *memory.RecordStore
	reg      *prometheus.Registry
}

// cleanPass returns a harness whose metrics all pass.
func cleanPass() *harness {
	h := &harness{
		pools: &fakePools{pool: &domain.PoolInfo{
			TokenID: testMint, PoolAddress: "Pool111", Venue: domain.VenuePumpSwap, CreatedAt: 1_700_000_000_000,
		}},
		bundle: &fakeBundle{res: &bundle.Result{
			Ratio: 0.3, HasPriorityTip: true, TotalWallets: 10, BundlerWallets: 3, BundledSlots: 1,
		}},
		notifier: &recordingNotifier{},
		records:  memory.NewRecordStore(),
		reg:      prometheus.NewRegistry(),
	}
	h.opts = Options{
		Seen:        dedup.NewMemoryStore(100, 0),
		Pools:       h.pools,
		Market:      fakeMarket{mcap: f64(150_000), price: f64(0.00015)},
		Fees:        fakeFees{fees: &domain.FeeBreakdown{TxnSOL: 2.0, TxnCount: 400}},
		Bundle:      h.bundle,
		OneShot:     fakeOneShot{},
		Holders:     fakeHolders{ratio: f64(0.35)},
		TTC:         fakeTTC{ttc: i64(3_600_000), birth: i64(1_699_996_400_000)},
		Evaluator:   classify.NewEvaluator(classify.DefaultConfig()),
		Notifier:    h.notifier,
		Records:     h.records,
		Metrics:     observability.NewMetrics("test", h.reg),
		HandleDelay: -1,
		Logger:      log.New(io.Discard, "", 0),
	}
	return h
}

func (h *harness) build(t *testing.T) *Coordinator {
	t.Helper()
	c, err := New(h.opts)
	require.NoError(t, err)
	return c
}

func event(mint string) domain.MigrationEvent {
	return domain.MigrationEvent{
		TokenID:    mint,
		Source:     domain.SourcePumpPortal,
		ObservedAt: 1_700_000_100_000,
		MigratedAt: 1_700_000_000_000,
	}
}

func onlyRecord(t *testing.T, h *harness) *domain.Record {
	t.Helper()
	recs, err := h.records.GetByToken(context.Background(), testMint)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	return recs[0]
}

func TestHandle_CleanPass(t *testing.T) {
	h := cleanPass()
	c := h.build(t)

	state := c.Handle(context.Background(), event(testMint))
	assert.Equal(t, domain.StateNotified, state)

	require.Equal(t, 1, h.notifier.count())
	msg := h.notifier.msgs[0]
	assert.Equal(t, "[PASS] Migrated token: MintAA...ZZZZ", msg.Title)
	assert.Equal(t, "PASS", msg.Status)
	assert.Equal(t, "Pool111", msg.Pool)
	assert.Contains(t, msg.Body, "**TTC:** 1h")
	assert.Contains(t, msg.Body, "**Bundle Ratio:** 30.0%")

	rec := onlyRecord(t, h)
	assert.NotEmpty(t, rec.RecordID)
	assert.Equal(t, domain.StatusPass, rec.Status)
	assert.Equal(t, domain.StateNotified, rec.FinalState)
	assert.Equal(t, "Pool111", rec.PoolAddress)
	assert.Equal(t, 2.0, rec.GasTxnSOL)
	assert.Equal(t, int64(400), rec.GasTxnCount)
	assert.Equal(t, 3, rec.BundlerWallets)
	assert.Equal(t, 0.35, *rec.TopHolderRatio)
	assert.Equal(t, "1h", rec.TTCHuman)
	assert.True(t, rec.HasPriorityTip)

	// bundle window is left to the calculator's lookback
	assert.True(t, h.bundle.start.IsZero())

	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.EventsFinished.WithLabelValues("NOTIFIED")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.metrics.EventsInFlight))
}

type windowActivity struct {
	mu          sync.Mutex
	since, till time.Time
}

func (w *windowActivity) TokenActivity(_ context.Context, _ string, since, till time.Time) (*domain.TokenActivity, error) {
	w.mu.Lock()
	w.since, w.till = since, till
	w.mu.Unlock()
	var events []domain.ActivityEvent
	for _, signer := range []string{"A", "B", "C", "D"} {
		events = append(events, domain.ActivityEvent{Slot: 100, Signer: signer, Signature: "sig" + signer})
	}
	return &domain.TokenActivity{Events: events}, nil
}

func TestHandle_BundleUsesLookbackWindow(t *testing.T) {
	h := cleanPass()
	src := &windowActivity{}
	h.opts.Bundle = bundle.NewCalculator(bundle.CalculatorOptions{
		Source: src,
		Window: 8 * time.Hour,
		Logger: log.New(io.Discard, "", 0),
	})
	c := h.build(t)

	state := c.Handle(context.Background(), event(testMint))
	assert.Equal(t, domain.StateNotified, state)

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, 8*time.Hour, src.till.Sub(src.since))
	assert.NotEqual(t, time.UnixMilli(1_700_000_000_000), src.since)

	rec := onlyRecord(t, h)
	assert.Equal(t, domain.StatusPass, rec.Status)
	assert.Equal(t, 4, rec.BundlerWallets)
}

func TestHandle_Duplicate(t *testing.T) {
	h := cleanPass()
	c := h.build(t)

	assert.Equal(t, domain.StateNotified, c.Handle(context.Background(), event(testMint)))
	assert.Equal(t, domain.StateDuplicate, c.Handle(context.Background(), event(testMint)))

	assert.Equal(t, 1, h.notifier.count())
	assert.Equal(t, 1, h.records.Len(), "duplicates are logged only")

	snap := c.Stats().Snapshot()
	assert.Equal(t, int64(2), snap.Received)
	assert.Equal(t, int64(1), snap.ByState[domain.StateDuplicate])
	assert.Equal(t, int64(0), snap.InFlight)
}

func TestHandle_ConcurrentDuplicates(t *testing.T) {
	h := cleanPass()
	c := h.build(t)

	var wg sync.WaitGroup
	var notified atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Handle(context.Background(), event(testMint)) == domain.StateNotified {
				notified.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), notified.Load())
	assert.Equal(t, 1, h.notifier.count())
}

func TestHandle_NoPool(t *testing.T) {
	h := cleanPass()
	h.pools.pool = nil
	c := h.build(t)

	assert.Equal(t, domain.StateSkipped, c.Handle(context.Background(), event(testMint)))
	assert.Equal(t, 0, h.notifier.count())

	rec := onlyRecord(t, h)
	assert.Equal(t, ReasonNoPool, rec.SkipReason)
	assert.Equal(t, "", rec.PoolAddress)
	assert.Equal(t, domain.Status(""), rec.Status)
}

func TestHandle_NoMarketValue(t *testing.T) {
	h := cleanPass()
	h.opts.Market = fakeMarket{}
	c := h.build(t)

	assert.Equal(t, domain.StateSkipped, c.Handle(context.Background(), event(testMint)))
	assert.Equal(t, 0, h.notifier.count())

	rec := onlyRecord(t, h)
	assert.Equal(t, ReasonNoMarketValue, rec.SkipReason)
	assert.Equal(t, "Pool111", rec.PoolAddress)
}

func TestHandle_McapOutOfRange(t *testing.T) {
	t.Run("pass-only skips", func(t *testing.T) {
		h := cleanPass()
		h.opts.Market = fakeMarket{mcap: f64(300_000), price: f64(0.0003)}
		c := h.build(t)

		assert.Equal(t, domain.StateNotifySkipped, c.Handle(context.Background(), event(testMint)))
		assert.Equal(t, 0, h.notifier.count())
		rec := onlyRecord(t, h)
		assert.Equal(t, domain.StatusCandidate, rec.Status)
		assert.Equal(t, ReasonNotPassing, rec.SkipReason)
	})

	t.Run("all dispatches candidates", func(t *testing.T) {
		h := cleanPass()
		h.opts.Market = fakeMarket{mcap: f64(300_000), price: f64(0.0003)}
		h.opts.Policy = DispatchAll
		c := h.build(t)

		assert.Equal(t, domain.StateNotified, c.Handle(context.Background(), event(testMint)))
		require.Equal(t, 1, h.notifier.count())
		assert.Equal(t, "CANDIDATE", h.notifier.msgs[0].Status)
	})
}

func TestHandle_OneShotSuppression(t *testing.T) {
	h := cleanPass()
	h.opts.OneShot = fakeOneShot{detected: true}
	h.opts.Policy = DispatchAll
	c := h.build(t)

	assert.Equal(t, domain.StateNotifySkipped, c.Handle(context.Background(), event(testMint)))
	assert.Equal(t, 0, h.notifier.count())

	rec := onlyRecord(t, h)
	assert.True(t, rec.IsOneShot)
	assert.Equal(t, ReasonOneShot, rec.SkipReason)
}

func TestHandle_OneShotWithoutSuppression(t *testing.T) {
	h := cleanPass()
	cfg := classify.DefaultConfig()
	cfg.SuppressOneShot = false
	h.opts.Evaluator = classify.NewEvaluator(cfg)
	h.opts.OneShot = fakeOneShot{detected: true}
	c := h.build(t)

	assert.Equal(t, domain.StateNotified, c.Handle(context.Background(), event(testMint)))
	assert.Equal(t, "PASS", h.notifier.msgs[0].Status)
}

func TestHandle_MetricPanicIsIsolated(t *testing.T) {
	h := cleanPass()
	h.bundle.panic = true
	h.opts.Holders = fakeHolders{err: errors.New("holders down")}
	c := h.build(t)

	// bundle unknown passes by default policy
	assert.Equal(t, domain.StateNotified, c.Handle(context.Background(), event(testMint)))

	rec := onlyRecord(t, h)
	assert.Nil(t, rec.BundleRatio)
	assert.Nil(t, rec.TopHolderRatio)
	assert.Equal(t, 2.0, rec.GasTxnSOL)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.MetricFailures.WithLabelValues(MetricBundle)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.MetricFailures.WithLabelValues(MetricHolders)))
}

func TestHandle_OptionalMetricsAbsent(t *testing.T) {
	h := cleanPass()
	h.opts.Fees = nil
	h.opts.Bundle = nil
	h.opts.OneShot = nil
	h.opts.Holders = nil
	h.opts.TTC = nil
	c := h.build(t)

	// gas unknown fails by default policy
	assert.Equal(t, domain.StateNotifySkipped, c.Handle(context.Background(), event(testMint)))
	rec := onlyRecord(t, h)
	assert.Equal(t, domain.StatusCandidate, rec.Status)
	assert.Equal(t, "-", rec.TTCHuman)
}

func TestHandle_NotifyFailureStillNotified(t *testing.T) {
	h := cleanPass()
	h.notifier.err = errors.New("serverchan 500")
	c := h.build(t)

	assert.Equal(t, domain.StateNotified, c.Handle(context.Background(), event(testMint)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.NotifyFailures))
}

type failingSeen struct{}

func (failingSeen) MarkIfNew(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}
func (failingSeen) Close() error { return nil }

func TestHandle_DedupErrorAdmits(t *testing.T) {
	h := cleanPass()
	h.opts.Seen = failingSeen{}
	c := h.build(t)

	assert.Equal(t, domain.StateNotified, c.Handle(context.Background(), event(testMint)))
}

func TestRun_AdmissionGate(t *testing.T) {
	h := cleanPass()
	h.pools.delay = 20 * time.Millisecond
	h.opts.MaxConcurrent = 2
	h.opts.Seen = dedup.NewMemoryStore(100, 0)
	c := h.build(t)

	events := make(chan domain.MigrationEvent, 8)
	for _, m := range []string{"m1", "m2", "m3", "m4", "m5", "m6"} {
		events <- event(m)
	}
	close(events)

	done := make(chan struct{})
	go func() {
		c.Run(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	assert.LessOrEqual(t, h.pools.maxSeen.Load(), int32(2))
	assert.Equal(t, 6, h.notifier.count())
	assert.Equal(t, int64(6), c.Stats().Snapshot().ByState[domain.StateNotified])
}

func TestHandle_CanceledWhileWaiting(t *testing.T) {
	h := cleanPass()
	h.opts.HandleDelay = time.Hour
	c := h.build(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	assert.Equal(t, domain.StateSkipped, c.Handle(ctx, event(testMint)))
	assert.Equal(t, 0, h.records.Len())
}

func TestNew_RequiresCoreComponents(t *testing.T) {
	h := cleanPass()
	h.opts.Pools = nil
	_, err := New(h.opts)
	assert.ErrorIs(t, err, domain.ErrConfigurationMissing)

	h = cleanPass()
	h.opts.Evaluator = nil
	_, err = New(h.opts)
	assert.ErrorIs(t, err, domain.ErrConfigurationMissing)
}

func TestParseDispatchPolicy(t *testing.T) {
	assert.Equal(t, DispatchAll, ParseDispatchPolicy("all"))
	assert.Equal(t, DispatchPassOnly, ParseDispatchPolicy("pass-only"))
	assert.Equal(t, DispatchPassOnly, ParseDispatchPolicy("bogus"))
}

func TestInspect_NoSideEffects(t *testing.T) {
	h := cleanPass()
	c := h.build(t)

	in := c.Inspect(context.Background(), domain.MigrationEvent{TokenID: testMint})
	require.NotNil(t, in.Result)
	assert.Equal(t, domain.StatusPass, in.Result.Status)
	assert.Equal(t, "Pool111", in.Pool.PoolAddress)
	assert.Empty(t, in.SkipReason)

	assert.Equal(t, 0, h.notifier.count())
	assert.Equal(t, 0, h.records.Len())

	// inspecting does not mark the token seen
	assert.Equal(t, domain.StateNotified, c.Handle(context.Background(), event(testMint)))
}

func TestInspect_Skipped(t *testing.T) {
	h := cleanPass()
	h.opts.Market = fakeMarket{}
	c := h.build(t)

	in := c.Inspect(context.Background(), domain.MigrationEvent{TokenID: testMint})
	assert.Nil(t, in.Result)
	assert.Equal(t, ReasonNoMarketValue, in.SkipReason)
	require.NotNil(t, in.Pool)
}
