// Package market estimates token price and market capitalization.
package market

import (
	"context"
	"log"
	"time"
)

// PriceOracle returns a spot USD price, nil when it has none.
type PriceOracle interface {
	PriceUSD(ctx context.Context, mint string) (*float64, error)
}

// QuoteSource returns the pool aggregator's quoted USD price.
type QuoteSource interface {
	QuotedPriceUSD(ctx context.Context, mint string) (*float64, error)
}

// SupplyLookup returns decimal-adjusted supply.
type SupplyLookup interface {
	SupplyUI(ctx context.Context, mint string) (float64, error)
}

// EstimatorOptions configures Estimator.
type EstimatorOptions struct {
	Supply SupplyLookup
	// Oracle is optional; nil when no oracle credentials are configured.
	Oracle PriceOracle
	Quotes QuoteSource

	OracleTimeout time.Duration
	QuoteTimeout  time.Duration
	Logger        *log.Logger
}

// Estimator prices a token from the oracle, falling back to the pool quote.
type Estimator struct {
	supply        SupplyLookup
	oracle        PriceOracle
	quotes        QuoteSource
	oracleTimeout time.Duration
	quoteTimeout  time.Duration
	logger        *log.Logger
}

// NewEstimator creates an Estimator.
func NewEstimator(opts EstimatorOptions) *Estimator {
	e := &Estimator{
		supply:        opts.Supply,
		oracle:        opts.Oracle,
		quotes:        opts.Quotes,
		oracleTimeout: opts.OracleTimeout,
		quoteTimeout:  opts.QuoteTimeout,
		logger:        opts.Logger,
	}
	if e.oracleTimeout <= 0 {
		e.oracleTimeout = 10 * time.Second
	}
	if e.quoteTimeout <= 0 {
		e.quoteTimeout = 15 * time.Second
	}
	if e.logger == nil {
		e.logger = log.Default()
	}
	return e
}

// Estimate returns (marketCapUSD, priceUSD); both nil when supply is
// non-positive or no source yields a positive price.
func (e *Estimator) Estimate(ctx context.Context, mint string) (mcap, price *float64) {
	supply, err := e.supply.SupplyUI(ctx, mint)
	if err != nil {
		e.logger.Printf("[market] WARN: %s: %v", mint, err)
		return nil, nil
	}
	if supply <= 0 {
		return nil, nil
	}

	p := e.oraclePrice(ctx, mint)
	if p == nil {
		p = e.quotedPrice(ctx, mint)
	}
	if p == nil {
		return nil, nil
	}

	mc := *p * supply
	return &mc, p
}

func (e *Estimator) oraclePrice(ctx context.Context, mint string) *float64 {
	if e.oracle == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.oracleTimeout)
	defer cancel()

	p, err := e.oracle.PriceUSD(ctx, mint)
	if err != nil {
		e.logger.Printf("[market] WARN: oracle %s: %v", mint, err)
		return nil
	}
	return positive(p)
}

func (e *Estimator) quotedPrice(ctx context.Context, mint string) *float64 {
	if e.quotes == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.quoteTimeout)
	defer cancel()

	p, err := e.quotes.QuotedPriceUSD(ctx, mint)
	if err != nil {
		e.logger.Printf("[market] WARN: quote %s: %v", mint, err)
		return nil
	}
	return positive(p)
}

func positive(p *float64) *float64 {
	if p == nil || *p <= 0 {
		return nil
	}
	v := *p
	return &v
}
