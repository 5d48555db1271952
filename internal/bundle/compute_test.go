package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"migration-sentinel/internal/domain"
)

func ev(slot int64, signer, sig string) domain.ActivityEvent {
	return domain.ActivityEvent{Slot: slot, Signer: signer, Signature: sig}
}

func TestCompute_NoEvents(t *testing.T) {
	res := Compute(nil, 4)
	assert.Equal(t, 0.0, res.Ratio)
	assert.Equal(t, 0, res.TotalWallets)
	assert.Equal(t, 0, res.BundledSlots)
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name         string
		events       []domain.ActivityEvent
		wantRatio    float64
		wantBundlers int
		wantTotal    int
		wantSlots    int
	}{
		{
			name: "three signers is not a bundle",
			events: []domain.ActivityEvent{
				ev(100, "A", "a1"), ev(100, "B", "b1"), ev(100, "C", "c1"),
			},
			wantRatio: 0, wantBundlers: 0, wantTotal: 3, wantSlots: 0,
		},
		{
			name: "repeated signer counts once per slot",
			events: []domain.ActivityEvent{
				ev(100, "A", "a1"), ev(100, "A", "a2"), ev(100, "B", "b1"), ev(100, "C", "c1"),
			},
			wantRatio: 0, wantBundlers: 0, wantTotal: 3, wantSlots: 0,
		},
		{
			name: "four signers all kept",
			events: []domain.ActivityEvent{
				ev(100, "A", "a1"), ev(100, "B", "b1"), ev(100, "C", "c1"), ev(100, "D", "d1"),
				ev(105, "E", "e1"),
			},
			wantRatio: 0.8, wantBundlers: 4, wantTotal: 5, wantSlots: 1,
		},
		{
			name: "candidate followed by unbundled event is dropped",
			events: []domain.ActivityEvent{
				ev(100, "A", "a1"), ev(100, "B", "b1"), ev(100, "C", "c1"), ev(100, "D", "d1"),
				ev(102, "A", "a2"),
				ev(105, "E", "e1"),
			},
			wantRatio: 0.6, wantBundlers: 3, wantTotal: 5, wantSlots: 1,
		},
		{
			name: "unbundled event before bundled slot does not drop",
			events: []domain.ActivityEvent{
				ev(90, "A", "a0"),
				ev(100, "A", "a1"), ev(100, "B", "b1"), ev(100, "C", "c1"), ev(100, "D", "d1"),
			},
			wantRatio: 1, wantBundlers: 4, wantTotal: 4, wantSlots: 1,
		},
		{
			name: "bundled to bundled is kept",
			events: []domain.ActivityEvent{
				ev(100, "A", "a1"), ev(100, "B", "b1"), ev(100, "C", "c1"), ev(100, "D", "d1"),
				ev(101, "A", "a2"), ev(101, "B", "b2"), ev(101, "C", "c2"), ev(101, "F", "f1"),
				ev(110, "G", "g1"),
			},
			wantRatio: 5.0 / 6.0, wantBundlers: 5, wantTotal: 6, wantSlots: 2,
		},
		{
			name: "empty signer ignored",
			events: []domain.ActivityEvent{
				ev(100, "", "x"), ev(100, "A", "a1"), ev(100, "B", "b1"), ev(100, "C", "c1"),
			},
			wantRatio: 0, wantBundlers: 0, wantTotal: 3, wantSlots: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Compute(tt.events, 4)
			assert.InDelta(t, tt.wantRatio, res.Ratio, 1e-12)
			assert.Equal(t, tt.wantBundlers, res.BundlerWallets)
			assert.Equal(t, tt.wantTotal, res.TotalWallets)
			assert.Equal(t, tt.wantSlots, res.BundledSlots)
		})
	}
}

func TestCompute_SameSlotOrderedBySignature(t *testing.T) {
	// A's events in slot 100 sort a1 < a2; both bundled, then nothing.
	events := []domain.ActivityEvent{
		ev(100, "A", "a2"), ev(100, "B", "b1"), ev(100, "C", "c1"), ev(100, "D", "d1"), ev(100, "A", "a1"),
	}
	res := Compute(events, 4)
	assert.Equal(t, 4, res.BundlerWallets)
	assert.Equal(t, 1.0, res.Ratio)
}

func TestCompute_RatioBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		n := rng.Intn(60)
		events := make([]domain.ActivityEvent, 0, n)
		for i := 0; i < n; i++ {
			events = append(events, ev(int64(rng.Intn(8)), fmt.Sprintf("w%d", rng.Intn(12)), fmt.Sprintf("s%d", i)))
		}
		res := Compute(events, 4)
		require.GreaterOrEqual(t, res.Ratio, 0.0)
		require.LessOrEqual(t, res.Ratio, 1.0)
		require.LessOrEqual(t, res.BundlerWallets, res.TotalWallets)
	}
}

type fakeActivity struct {
	act         *domain.TokenActivity
	err         error
	since, till time.Time
}

func (f *fakeActivity) TokenActivity(_ context.Context, _ string, since, till time.Time) (*domain.TokenActivity, error) {
	f.since, f.till = since, till
	return f.act, f.err
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestCalculator_Ratio(t *testing.T) {
	src := &fakeActivity{act: &domain.TokenActivity{
		Events: []domain.ActivityEvent{
			ev(100, "A", "a1"), ev(100, "B", "b1"), ev(100, "C", "c1"), ev(100, "D", "d1"),
		},
		HasPriorityTip: true,
	}}
	c := NewCalculator(CalculatorOptions{Source: src, Logger: quietLogger()})
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.nowFn = func() time.Time { return now }

	res, err := c.Ratio(context.Background(), "mint1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Ratio)
	assert.True(t, res.HasPriorityTip)
	assert.Equal(t, now, src.till)
	assert.Equal(t, now.Add(-8*time.Hour), src.since)

	stats := res.Stats()
	assert.Equal(t, &domain.BundleStats{TotalWallets: 4, BundlerWallets: 4, BundledSlots: 1}, stats)
}

func TestCalculator_ExplicitWindow(t *testing.T) {
	src := &fakeActivity{act: &domain.TokenActivity{}}
	c := NewCalculator(CalculatorOptions{Source: src, Logger: quietLogger()})

	start := time.Unix(1_700_000_000, 0)
	end := start.Add(time.Hour)
	res, err := c.Ratio(context.Background(), "mint1", start, end)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Ratio)
	assert.Equal(t, start, src.since)
	assert.Equal(t, end, src.till)
}

func TestCalculator_Errors(t *testing.T) {
	t.Run("no source", func(t *testing.T) {
		c := NewCalculator(CalculatorOptions{Logger: quietLogger()})
		_, err := c.Ratio(context.Background(), "mint1", time.Time{}, time.Time{})
		assert.ErrorIs(t, err, domain.ErrConfigurationMissing)
	})

	t.Run("source failure", func(t *testing.T) {
		src := &fakeActivity{err: fmt.Errorf("http 502: %w", domain.ErrProviderUnavailable)}
		c := NewCalculator(CalculatorOptions{Source: src, Logger: quietLogger()})
		_, err := c.Ratio(context.Background(), "mint1", time.Time{}, time.Time{})
		assert.True(t, errors.Is(err, domain.ErrProviderUnavailable))
	})
}
