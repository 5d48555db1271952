// Package pool resolves a token's primary trading pool.
package pool

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"migration-sentinel/internal/domain"
	"migration-sentinel/internal/provider/dexscreener"
	"migration-sentinel/internal/retry"
)

// PoolSource lists pools for a token and looks up single pools.
type PoolSource interface {
	TokenPairs(ctx context.Context, mint string) ([]dexscreener.Pair, error)
	Pair(ctx context.Context, pairAddress string) (*dexscreener.Pair, error)
}

// Default retry budget while the aggregator indexes a fresh pool.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 5 * time.Second
)

// PreferredVenues are tried first; FallbackVenues only when none match.
var (
	PreferredVenues = []string{domain.VenuePumpSwap, domain.VenuePump, domain.VenuePumpSwapAMM}
	FallbackVenues  = []string{domain.VenueRaydium}
)

// ResolverOptions configures Resolver.
type ResolverOptions struct {
	Source PoolSource
	Retry  retry.Policy
	Logger *log.Logger
}

// Resolver finds the newest pool on a preferred venue.
type Resolver struct {
	source PoolSource
	policy retry.Policy
	logger *log.Logger
}

// NewResolver creates a Resolver. A zero Retry uses 3 retries, 5s apart.
func NewResolver(opts ResolverOptions) *Resolver {
	policy := opts.Retry
	if policy == (retry.Policy{}) {
		policy = retry.Fixed(DefaultMaxRetries, DefaultRetryDelay)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{source: opts.Source, policy: policy, logger: logger}
}

// Resolve returns the token's pool, or nil if none appears within the retry budget.
// Absence is not an error.
func (r *Resolver) Resolve(ctx context.Context, tokenID string) (*domain.PoolInfo, error) {
	var found *domain.PoolInfo
	attempt := 0

	err := retry.Do(ctx, r.policy, func() error {
		attempt++
		pairs, err := r.source.TokenPairs(ctx, tokenID)
		if err != nil {
			r.logger.Printf("[pool] WARN: %s attempt %d: %v", tokenID, attempt, err)
			return err
		}
		pair := SelectPair(pairs)
		if pair == nil {
			return domain.ErrNotFound
		}
		found = toPoolInfo(tokenID, pair)
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		r.logger.Printf("[pool] %s: no pool after %d attempts", tokenID, attempt)
		return nil, nil
	}
	if found.CreatedAt <= 0 {
		r.fillFromDetail(ctx, found)
	}
	return found, nil
}

// fillFromDetail backfills creation time and quote from the single-pool
// endpoint, which often has them before the token listing does.
func (r *Resolver) fillFromDetail(ctx context.Context, info *domain.PoolInfo) {
	d, err := r.Detail(ctx, info.TokenID, info.PoolAddress)
	if err != nil {
		r.logger.Printf("[pool] WARN: detail %s: %v", info.PoolAddress, err)
		return
	}
	if d == nil {
		return
	}
	if d.CreatedAt > 0 {
		info.CreatedAt = d.CreatedAt
	}
	if info.PriceUSD == nil {
		info.PriceUSD = d.PriceUSD
	}
}

// Detail refreshes a single pool by address. Returns nil if unknown.
func (r *Resolver) Detail(ctx context.Context, tokenID, pairAddress string) (*domain.PoolInfo, error) {
	pair, err := r.source.Pair(ctx, pairAddress)
	if err != nil || pair == nil {
		return nil, err
	}
	return toPoolInfo(tokenID, pair), nil
}

// SelectPair keeps pools on the preferred venues (falling back to the
// fallback venues) and returns the most recently created one.
func SelectPair(pairs []dexscreener.Pair) *dexscreener.Pair {
	matches := filterVenues(pairs, PreferredVenues)
	if len(matches) == 0 {
		matches = filterVenues(pairs, FallbackVenues)
	}
	if len(matches) == 0 {
		return nil
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].PairCreatedAt > matches[j].PairCreatedAt
	})
	return &matches[0]
}

func filterVenues(pairs []dexscreener.Pair, venues []string) []dexscreener.Pair {
	var out []dexscreener.Pair
	for _, p := range pairs {
		for _, v := range venues {
			if p.DexID == v {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

func toPoolInfo(tokenID string, p *dexscreener.Pair) *domain.PoolInfo {
	return &domain.PoolInfo{
		TokenID:     tokenID,
		PoolAddress: p.PairAddress,
		Venue:       p.DexID,
		CreatedAt:   p.PairCreatedAt,
		PriceUSD:    p.PriceUSD,
	}
}

// QuotedPriceUSD returns the aggregator price of the token's selected pool,
// without retrying. Nil when no pool or no quote exists.
func (r *Resolver) QuotedPriceUSD(ctx context.Context, tokenID string) (*float64, error) {
	pairs, err := r.source.TokenPairs(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	pair := SelectPair(pairs)
	if pair == nil {
		return nil, nil
	}
	return pair.PriceUSD, nil
}
