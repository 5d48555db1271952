package coordinator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"migration-sentinel/internal/classify"
	"migration-sentinel/internal/domain"
)

// Metric names used in logs and the failure counter.
const (
	MetricFees    = "fees"
	MetricBundle  = "bundle"
	MetricOneShot = "oneshot"
	MetricHolders = "holders"
	MetricTTC     = "ttc"
)

// gather fills the remaining metrics concurrently. Each goroutine writes its
// own fields of mb; a failure or panic leaves those fields absent.
func (c *Coordinator) gather(ctx context.Context, ev domain.MigrationEvent, pool *domain.PoolInfo, mb *domain.MetricsBundle) {
	created := pool.CreatedAt
	if created <= 0 {
		created = ev.MigratedAt
	}

	var g errgroup.Group

	if c.opts.Fees != nil {
		c.spawn(&g, ev.TokenID, MetricFees, func() error {
			fees := c.opts.Fees.TotalFees(ctx, ev.TokenID, pool.PoolAddress, created)
			if fees == nil {
				return fmt.Errorf("no fee breakdown")
			}
			gas := fees.TotalSOL()
			mb.Fees = fees
			mb.GasPaidSOL = &gas
			return nil
		})
	}

	if c.opts.Bundle != nil {
		c.spawn(&g, ev.TokenID, MetricBundle, func() error {
			res, err := c.opts.Bundle.Ratio(ctx, ev.TokenID, time.Time{}, time.Time{})
			if err != nil {
				return err
			}
			if res == nil {
				return nil
			}
			ratio := res.Ratio
			mb.BundleRatio = &ratio
			mb.Bundle = res.Stats()
			mb.HasPriorityTip = res.HasPriorityTip
			return nil
		})
	}

	if c.opts.OneShot != nil {
		c.spawn(&g, ev.TokenID, MetricOneShot, func() error {
			mb.IsOneShot = c.opts.OneShot.Detect(ctx, pool.PoolAddress, created, ev.TokenID)
			return nil
		})
	}

	if c.opts.Holders != nil {
		c.spawn(&g, ev.TokenID, MetricHolders, func() error {
			ratio, err := c.opts.Holders.TopRatio(ctx, ev.TokenID, c.opts.TopHolders)
			if err != nil {
				return err
			}
			mb.TopHolderRatio = ratio
			return nil
		})
	}

	if c.opts.TTC != nil {
		c.spawn(&g, ev.TokenID, MetricTTC, func() error {
			ttcMs, birthMs, err := c.opts.TTC.Compute(ctx, ev.TokenID, ev.MigratedAt)
			if err != nil {
				return err
			}
			mb.TTCMs = ttcMs
			mb.CreationTime = birthMs
			return nil
		})
	}

	_ = g.Wait()
}

// spawn runs fn in g, isolating its error and any panic from the others.
func (c *Coordinator) spawn(g *errgroup.Group, token, name string, fn func() error) {
	g.Go(func() error {
		start := time.Now()
		err := guard(fn)
		c.metrics.MetricObserved(name, time.Since(start), err != nil)
		if err != nil {
			c.logger.Printf("[coordinator] WARN: %s %s: %v", classify.ShortMint(token), name, err)
		}
		return nil
	})
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
