// Package ttc measures time-to-complete: how long a token took from its first
// on-chain transaction to migration.
package ttc

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"migration-sentinel/internal/cache"
	"migration-sentinel/internal/solana"
)

// DefaultCacheTTL is how long a mint's birth time is remembered.
const DefaultCacheTTL = 24 * time.Hour

const pageLimit = 1000

// SignatureSource pages an address's signatures, newest first.
type SignatureSource interface {
	GetSignaturesForAddress(ctx context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error)
}

// EarliestSource returns the earliest transfer time (ms) of a token, nil when unknown.
type EarliestSource interface {
	EarliestTransfer(ctx context.Context, token string) (*int64, error)
}

// Options configures Tracker.
type Options struct {
	Chain SignatureSource
	// Earliest is consulted first when set.
	Earliest EarliestSource
	CacheTTL time.Duration
	CacheCap int
	// MaxPages bounds the walk back through history.
	MaxPages int
	Logger   *log.Logger
}

// Tracker resolves mint birth times and derives TTC.
type Tracker struct {
	chain    SignatureSource
	earliest EarliestSource
	births   *cache.LRU[string, int64]
	maxPages int
	logger   *log.Logger
}

// NewTracker creates a Tracker.
func NewTracker(opts Options) *Tracker {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	capacity := opts.CacheCap
	if capacity <= 0 {
		capacity = 10_000
	}
	t := &Tracker{
		chain:    opts.Chain,
		earliest: opts.Earliest,
		births:   cache.NewLRU[string, int64](capacity, ttl),
		maxPages: opts.MaxPages,
		logger:   opts.Logger,
	}
	if t.maxPages <= 0 {
		t.maxPages = 50
	}
	if t.logger == nil {
		t.logger = log.Default()
	}
	return t
}

// BirthMs returns the unix ms of the mint's first transaction, nil when unknown.
func (t *Tracker) BirthMs(ctx context.Context, mint string) (*int64, error) {
	if v, ok := t.births.Get(mint); ok {
		return &v, nil
	}

	var birth *int64
	if t.earliest != nil {
		b, err := t.earliest.EarliestTransfer(ctx, mint)
		if err != nil {
			t.logger.Printf("[ttc] WARN: earliest %s: %v", mint, err)
		}
		birth = b
	}
	if birth == nil && t.chain != nil {
		b, err := t.oldestSignature(ctx, mint)
		if err != nil {
			return nil, err
		}
		birth = b
	}
	if birth != nil && *birth > 0 {
		t.births.Put(mint, *birth)
	}
	return birth, nil
}

func (t *Tracker) oldestSignature(ctx context.Context, mint string) (*int64, error) {
	var oldest *int64
	before := ""
	for page := 0; page < t.maxPages; page++ {
		sigs, err := t.chain.GetSignaturesForAddress(ctx, mint, &solana.SignaturesOpts{Before: before, Limit: pageLimit})
		if err != nil {
			return nil, fmt.Errorf("ttc: signatures %s: %w", mint, err)
		}
		if len(sigs) == 0 {
			break
		}
		last := sigs[len(sigs)-1]
		if last.BlockTime != nil {
			ms := *last.BlockTime * 1000
			oldest = &ms
		}
		before = last.Signature
		if len(sigs) < pageLimit {
			break
		}
	}
	return oldest, nil
}

// Compute returns (ttcMs, birthMs). ttcMs is nil when the birth is unknown or
// migratedMs is not positive; it never goes negative.
func (t *Tracker) Compute(ctx context.Context, mint string, migratedMs int64) (ttcMs, birthMs *int64, err error) {
	birth, err := t.BirthMs(ctx, mint)
	if err != nil || birth == nil || migratedMs <= 0 {
		return nil, birth, err
	}
	d := migratedMs - *birth
	if d < 0 {
		d = 0
	}
	return &d, birth, nil
}

// Humanize renders a duration in ms as "1d 2h 3m", falling back to seconds
// below a minute. Non-positive or nil renders as "-".
func Humanize(ms *int64) string {
	if ms == nil || *ms <= 0 {
		return "-"
	}
	s := *ms / 1000
	d, s := s/86400, s%86400
	h, s := s/3600, s%3600
	m, s := s/60, s%60

	var parts []string
	if d > 0 {
		parts = append(parts, fmt.Sprintf("%dd", d))
	}
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if m > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", s))
	}
	return strings.Join(parts, " ")
}
