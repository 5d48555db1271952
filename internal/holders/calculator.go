// Package holders computes how much of a token's supply sits with its
// largest ordinary-wallet holders.
package holders

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"migration-sentinel/internal/domain"
	"migration-sentinel/internal/provider/birdeye"
	"migration-sentinel/internal/solana"
)

// DefaultTopN is the holder count used in reports.
const DefaultTopN = 10

// HolderSource pages holders, largest balance first.
type HolderSource interface {
	Holders(ctx context.Context, mint string, offset, limit int) ([]birdeye.Holder, error)
}

// AccountSource looks up owner accounts for wallet classification.
type AccountSource interface {
	GetMultipleAccounts(ctx context.Context, pubkeys []string) ([]*solana.AccountInfo, error)
}

// SupplyLookup returns decimal-adjusted supply.
type SupplyLookup interface {
	SupplyUI(ctx context.Context, mint string) (float64, error)
}

// CalculatorOptions configures Calculator.
type CalculatorOptions struct {
	Holders  HolderSource
	Accounts AccountSource
	Supply   SupplyLookup
	Timeout  time.Duration
	// MaxPages bounds paging when most holders are program accounts.
	MaxPages int
	Logger   *log.Logger
}

// Calculator computes top-N holder ratios.
type Calculator struct {
	holders  HolderSource
	accounts AccountSource
	supply   SupplyLookup
	timeout  time.Duration
	maxPages int
	logger   *log.Logger
}

// NewCalculator creates a Calculator.
func NewCalculator(opts CalculatorOptions) *Calculator {
	c := &Calculator{
		holders:  opts.Holders,
		accounts: opts.Accounts,
		supply:   opts.Supply,
		timeout:  opts.Timeout,
		maxPages: opts.MaxPages,
		logger:   opts.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = 20 * time.Second
	}
	if c.maxPages <= 0 {
		c.maxPages = 10
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	return c
}

// PageSize is the holder page size used for a top-n request.
func PageSize(n int) int {
	size := 3 * n
	if size < 50 {
		size = 50
	}
	if size > birdeye.MaxPageSize {
		size = birdeye.MaxPageSize
	}
	return size
}

// TopRatio returns the share of supply held by the n largest plain wallets.
// Returns nil when no wallet qualifies or supply is not positive.
func (c *Calculator) TopRatio(ctx context.Context, mint string, n int) (*float64, error) {
	if c.holders == nil {
		return nil, fmt.Errorf("holders: holder source: %w", domain.ErrConfigurationMissing)
	}
	if n <= 0 {
		n = DefaultTopN
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	limit := PageSize(n)
	var picked []birdeye.Holder
	for page, offset := 0, 0; len(picked) < n && page < c.maxPages; page, offset = page+1, offset+limit {
		chunk, err := c.holders.Holders(ctx, mint, offset, limit)
		if err != nil {
			return nil, fmt.Errorf("holders: page %d: %w", page, err)
		}
		if len(chunk) == 0 {
			break
		}

		wallets, err := c.plainWallets(ctx, chunk)
		if err != nil {
			return nil, err
		}
		for _, h := range chunk {
			if wallets[h.Owner] {
				picked = append(picked, h)
			}
		}
		if len(chunk) < limit {
			break
		}
	}

	if len(picked) == 0 {
		return nil, nil
	}

	supply, err := c.supply.SupplyUI(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("holders: supply %s: %w", mint, err)
	}
	if supply <= 0 {
		return nil, nil
	}

	sort.SliceStable(picked, func(i, j int) bool { return picked[i].Balance > picked[j].Balance })
	if len(picked) > n {
		picked = picked[:n]
	}
	var sum float64
	for _, h := range picked {
		sum += h.Balance
	}
	ratio := sum / supply
	return &ratio, nil
}

// plainWallets classifies the owners of a holder page.
func (c *Calculator) plainWallets(ctx context.Context, chunk []birdeye.Holder) (map[string]bool, error) {
	owners := make([]string, 0, len(chunk))
	for _, h := range chunk {
		owners = append(owners, h.Owner)
	}

	out := make(map[string]bool, len(owners))
	if c.accounts == nil {
		// Without account data only the curve test applies.
		for _, o := range owners {
			out[o] = solana.IsOnCurve(o) && o != solana.IncineratorAddress
		}
		return out, nil
	}

	infos, err := c.accounts.GetMultipleAccounts(ctx, owners)
	if err != nil {
		return nil, fmt.Errorf("holders: classify owners: %w", err)
	}
	for i, o := range owners {
		var info *solana.AccountInfo
		if i < len(infos) {
			info = infos[i]
		}
		out[o] = solana.IsPlainWallet(o, info)
	}
	return out, nil
}
