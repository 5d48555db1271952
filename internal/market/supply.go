package market

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"migration-sentinel/internal/cache"
	"migration-sentinel/internal/solana"
)

// DefaultSupplyTimeout bounds one shared supply lookup.
const DefaultSupplyTimeout = 30 * time.Second

// SupplySource looks up a mint's raw supply.
type SupplySource interface {
	GetTokenSupply(ctx context.Context, mint string) (*solana.TokenSupply, error)
}

// Supply caches decimal-adjusted token supply.
// Concurrent lookups for the same mint share one RPC call.
type Supply struct {
	source  SupplySource
	cache   *cache.LRU[string, float64]
	group   singleflight.Group
	timeout time.Duration
}

// NewSupply creates a supply cache holding up to capacity mints for ttl.
func NewSupply(source SupplySource, capacity int, ttl time.Duration) *Supply {
	return &Supply{
		source:  source,
		cache:   cache.NewLRU[string, float64](capacity, ttl),
		timeout: DefaultSupplyTimeout,
	}
}

// SupplyUI returns supply / 10^decimals for mint.
func (s *Supply) SupplyUI(ctx context.Context, mint string) (float64, error) {
	if v, ok := s.cache.Get(mint); ok {
		return v, nil
	}

	// The shared lookup outlives any single caller; each caller still
	// gives up on its own ctx.
	ch := s.group.DoChan(mint, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		supply, err := s.source.GetTokenSupply(lookupCtx, mint)
		if err != nil {
			return 0.0, fmt.Errorf("token supply %s: %w", mint, err)
		}
		ui := supply.UI()
		if ui > 0 {
			s.cache.Put(mint, ui)
		}
		return ui, nil
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(float64), nil
	}
}
