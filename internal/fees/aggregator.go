// Package fees totals on-chain transaction fees paid around a token.
package fees

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"migration-sentinel/internal/domain"
	"migration-sentinel/internal/pacing"
	"migration-sentinel/internal/solana"
)

// ChainSource provides signature history and transaction detail.
type ChainSource interface {
	GetSignaturesForAddress(ctx context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error)
	GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error)
}

// FeeQuerier runs a pre-aggregated three-category fee query.
type FeeQuerier interface {
	FeeSums(ctx context.Context, addr string, tips []string) (*domain.FeeBreakdown, error)
}

// Strategy selects how fees are collected.
type Strategy string

const (
	StrategyReplay Strategy = "replay"
	StrategyQuery  Strategy = "query"
)

// Defaults for the replay strategy.
const (
	DefaultPageLimit    = 1000
	DefaultPacing       = 40 * time.Millisecond
	DefaultQueryTimeout = 45 * time.Second
)

// AggregatorOptions configures Aggregator.
type AggregatorOptions struct {
	Chain   ChainSource
	// Querier is optional; when set the aggregate-query strategy is used.
	Querier FeeQuerier
	Tips    []string

	PageLimit    int
	// Pacing spaces transaction fetches. Negative disables pacing.
	Pacing       time.Duration
	QueryTimeout time.Duration
	// ReplayBudget bounds a single replay. Zero means no bound beyond ctx.
	ReplayBudget time.Duration
	Logger       *log.Logger
}

// Aggregator sums fees by replay or aggregate query.
type Aggregator struct {
	chain        ChainSource
	querier      FeeQuerier
	tips         []string
	pageLimit    int
	pacer        *pacing.Pacer
	queryTimeout time.Duration
	replayBudget time.Duration
	logger       *log.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(opts AggregatorOptions) *Aggregator {
	a := &Aggregator{
		chain:        opts.Chain,
		querier:      opts.Querier,
		tips:         opts.Tips,
		pageLimit:    opts.PageLimit,
		queryTimeout: opts.QueryTimeout,
		replayBudget: opts.ReplayBudget,
		logger:       opts.Logger,
	}
	if a.tips == nil {
		a.tips = solana.TipAccounts
	}
	if a.pageLimit <= 0 {
		a.pageLimit = DefaultPageLimit
	}
	interval := opts.Pacing
	if interval == 0 {
		interval = DefaultPacing
	}
	a.pacer = pacing.NewPacer(interval)
	if a.queryTimeout <= 0 {
		a.queryTimeout = DefaultQueryTimeout
	}
	if a.logger == nil {
		a.logger = log.Default()
	}
	return a
}

// Strategy reports which strategy TotalFees will use.
func (a *Aggregator) Strategy() Strategy {
	if a.querier != nil {
		return StrategyQuery
	}
	return StrategyReplay
}

// TotalFees returns the fee breakdown for a token. The query strategy keys on
// the token; replay walks the pool's history back to sinceMs. Never nil: any
// failure yields a zero breakdown.
func (a *Aggregator) TotalFees(ctx context.Context, tokenID, poolAddress string, sinceMs int64) *domain.FeeBreakdown {
	if a.querier != nil {
		return a.query(ctx, tokenID)
	}
	return a.replay(ctx, poolAddress, sinceMs)
}

func (a *Aggregator) query(ctx context.Context, tokenID string) *domain.FeeBreakdown {
	ctx, cancel := context.WithTimeout(ctx, a.queryTimeout)
	defer cancel()

	fb, err := a.querier.FeeSums(ctx, tokenID, a.tips)
	if err != nil || fb == nil {
		a.logger.Printf("[fees] WARN: query %s: %v", tokenID, err)
		return &domain.FeeBreakdown{}
	}
	return fb
}

// replay pages signatures newest first, summing meta.fee until a block
// older than sinceMs. Any failure mid-walk yields zero.
func (a *Aggregator) replay(ctx context.Context, address string, sinceMs int64) *domain.FeeBreakdown {
	if address == "" {
		return &domain.FeeBreakdown{}
	}
	if a.replayBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.replayBudget)
		defer cancel()
	}

	total := decimal.Zero
	var count int64
	before := ""

	for {
		sigs, err := a.chain.GetSignaturesForAddress(ctx, address, &solana.SignaturesOpts{
			Before: before,
			Limit:  a.pageLimit,
		})
		if err != nil {
			a.logger.Printf("[fees] WARN: replay %s: %v", address, err)
			return &domain.FeeBreakdown{}
		}
		if len(sigs) == 0 {
			break
		}

		for _, sig := range sigs {
			before = sig.Signature
			if sig.BlockTime != nil && *sig.BlockTime*1000 < sinceMs {
				return replayResult(total, count)
			}
			if err := a.pacer.Wait(ctx); err != nil {
				a.logger.Printf("[fees] WARN: replay %s: %v", address, err)
				return &domain.FeeBreakdown{}
			}
			tx, err := a.chain.GetTransaction(ctx, sig.Signature)
			if err != nil {
				a.logger.Printf("[fees] WARN: replay %s tx %s: %v", address, sig.Signature, err)
				return &domain.FeeBreakdown{}
			}
			if tx == nil || tx.Meta == nil {
				continue
			}
			total = total.Add(decimal.NewFromInt(int64(tx.Meta.Fee)))
			count++
		}

		if len(sigs) < a.pageLimit {
			break
		}
	}
	return replayResult(total, count)
}

var lamportsPerSOL = decimal.NewFromInt(solana.LamportsPerSOL)

func replayResult(lamports decimal.Decimal, count int64) *domain.FeeBreakdown {
	return &domain.FeeBreakdown{
		TxnSOL:   lamports.Div(lamportsPerSOL).InexactFloat64(),
		TxnCount: count,
	}
}
