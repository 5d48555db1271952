package bundle

import (
	"context"
	"fmt"
	"log"
	"time"

	"migration-sentinel/internal/domain"
)

// DefaultWindow is how far back activity is considered when no start is given.
const DefaultWindow = 8 * time.Hour

// ActivitySource returns the trades and transfers on a token in a window.
type ActivitySource interface {
	TokenActivity(ctx context.Context, token string, since, till time.Time) (*domain.TokenActivity, error)
}

// CalculatorOptions configures Calculator.
type CalculatorOptions struct {
	Source            ActivitySource
	MinSignersPerSlot int
	Window            time.Duration
	Timeout           time.Duration
	Logger            *log.Logger
}

// Calculator fetches token activity and computes the bundle ratio.
type Calculator struct {
	source     ActivitySource
	minSigners int
	window     time.Duration
	timeout    time.Duration
	logger     *log.Logger
	nowFn      func() time.Time
}

// NewCalculator creates a Calculator. A nil Source yields a calculator whose
// Ratio always reports domain.ErrConfigurationMissing.
func NewCalculator(opts CalculatorOptions) *Calculator {
	c := &Calculator{
		source:     opts.Source,
		minSigners: opts.MinSignersPerSlot,
		window:     opts.Window,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
		nowFn:      time.Now,
	}
	if c.minSigners <= 0 {
		c.minSigners = DefaultMinSignersPerSlot
	}
	if c.window <= 0 {
		c.window = DefaultWindow
	}
	if c.timeout <= 0 {
		c.timeout = 45 * time.Second
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	return c
}

// Ratio computes the bundle ratio for token over [start, end]. A zero end
// means now; a zero start means end minus the configured window.
func (c *Calculator) Ratio(ctx context.Context, token string, start, end time.Time) (*Result, error) {
	if c.source == nil {
		return nil, fmt.Errorf("bundle: activity source: %w", domain.ErrConfigurationMissing)
	}
	if end.IsZero() {
		end = c.nowFn()
	}
	if start.IsZero() || !start.Before(end) {
		start = end.Add(-c.window)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	act, err := c.source.TokenActivity(ctx, token, start, end)
	if err != nil {
		return nil, fmt.Errorf("bundle: activity %s: %w", token, err)
	}
	if act == nil {
		act = &domain.TokenActivity{}
	}

	res := Compute(act.Events, c.minSigners)
	res.HasPriorityTip = act.HasPriorityTip
	c.logger.Printf("[bundle] %s wallets=%d bundlers=%d slots=%d ratio=%.4f",
		token, res.TotalWallets, res.BundlerWallets, res.BundledSlots, res.Ratio)
	return &res, nil
}
