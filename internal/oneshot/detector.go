// Package oneshot detects a single tip-boosted buy that captures a large
// share of supply right after a pool opens.
package oneshot

import (
	"context"
	"log"
	"time"

	"migration-sentinel/internal/pacing"
	"migration-sentinel/internal/solana"
)

// Defaults mirror the production thresholds.
const (
	DefaultScanLimit   = 50
	DefaultWindow      = 5 * time.Second
	DefaultMinTipSOL   = 0.01
	DefaultMinSpendSOL = 1.0
	DefaultMinHolding  = 0.10
	DefaultPacing      = 40 * time.Millisecond

	MinWindow = 5 * time.Second
	MaxWindow = 60 * time.Second
)

// ChainSource provides pool signature history and transaction detail.
type ChainSource interface {
	GetSignaturesForAddress(ctx context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error)
	GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error)
}

// SupplyLookup returns decimal-adjusted supply.
type SupplyLookup interface {
	SupplyUI(ctx context.Context, mint string) (float64, error)
}

// Options configures Detector.
type Options struct {
	Chain  ChainSource
	Supply SupplyLookup

	ScanLimit   int
	Window      time.Duration // clamped to [MinWindow, MaxWindow]
	MinTipSOL   float64
	MinSpendSOL float64
	MinHolding  float64 // inclusive
	Marker      string
	Tips        []string
	// Pacing spaces transaction fetches. Negative disables pacing.
	Pacing time.Duration
	Logger *log.Logger
}

// Detector scans the earliest pool transactions for a one-shot buy.
type Detector struct {
	chain      ChainSource
	supply     SupplyLookup
	scanLimit  int
	window     time.Duration
	minTip     float64
	minSpend   float64
	minHolding float64
	marker     string
	tips       map[string]bool
	pacer      *pacing.Pacer
	logger     *log.Logger
}

// NewDetector creates a Detector.
func NewDetector(opts Options) *Detector {
	d := &Detector{
		chain:      opts.Chain,
		supply:     opts.Supply,
		scanLimit:  opts.ScanLimit,
		window:     opts.Window,
		minTip:     opts.MinTipSOL,
		minSpend:   opts.MinSpendSOL,
		minHolding: opts.MinHolding,
		marker:     opts.Marker,
		logger:     opts.Logger,
	}
	if d.scanLimit <= 0 {
		d.scanLimit = DefaultScanLimit
	}
	switch {
	case d.window <= 0:
		d.window = DefaultWindow
	case d.window < MinWindow:
		d.window = MinWindow
	case d.window > MaxWindow:
		d.window = MaxWindow
	}
	if d.minTip <= 0 {
		d.minTip = DefaultMinTipSOL
	}
	if d.minSpend <= 0 {
		d.minSpend = DefaultMinSpendSOL
	}
	if d.minHolding <= 0 {
		d.minHolding = DefaultMinHolding
	}
	if d.marker == "" {
		d.marker = solana.PriorityBundleMarker
	}
	tips := opts.Tips
	if tips == nil {
		tips = solana.TipAccounts
	}
	d.tips = make(map[string]bool, len(tips))
	for _, t := range tips {
		d.tips[t] = true
	}
	interval := opts.Pacing
	if interval == 0 {
		interval = DefaultPacing
	}
	d.pacer = pacing.NewPacer(interval)
	if d.logger == nil {
		d.logger = log.Default()
	}
	return d
}

// Detect reports whether any transaction on poolAddress within the window
// after createdMs is a one-shot buy of mint. Any failure reports false.
func (d *Detector) Detect(ctx context.Context, poolAddress string, createdMs int64, mint string) bool {
	if poolAddress == "" || mint == "" {
		return false
	}

	supply, err := d.supply.SupplyUI(ctx, mint)
	if err != nil || supply <= 0 {
		if err != nil {
			d.logger.Printf("[oneshot] WARN: supply %s: %v", mint, err)
		}
		return false
	}

	sigs, err := d.chain.GetSignaturesForAddress(ctx, poolAddress, &solana.SignaturesOpts{Limit: d.scanLimit})
	if err != nil {
		d.logger.Printf("[oneshot] WARN: signatures %s: %v", poolAddress, err)
		return false
	}

	// block times are whole seconds
	startMs := createdMs / 1000 * 1000
	endMs := createdMs + d.window.Milliseconds()
	for _, sig := range sigs {
		if sig.BlockTime == nil {
			continue
		}
		ms := *sig.BlockTime * 1000
		if ms < startMs || ms > endMs {
			continue
		}

		if err := d.pacer.Wait(ctx); err != nil {
			return false
		}
		tx, err := d.chain.GetTransaction(ctx, sig.Signature)
		if err != nil {
			d.logger.Printf("[oneshot] WARN: tx %s: %v", sig.Signature, err)
			continue
		}
		if ratio, ok := d.qualifies(tx, mint, supply); ok {
			d.logger.Printf("[oneshot] detected %s: signer %s holds %.2f%% via %s",
				mint, tx.Signer(), ratio*100, sig.Signature)
			return true
		}
	}
	return false
}

// qualifies checks a single transaction against the tip, spend and holding
// thresholds, returning the signer's holding ratio when all hold.
func (d *Detector) qualifies(tx *solana.Transaction, mint string, supply float64) (float64, bool) {
	if tx == nil || tx.Meta == nil || tx.Meta.Err != nil {
		return 0, false
	}
	if !tx.HasLog(d.marker) {
		return 0, false
	}
	if d.tipSOL(tx) < d.minTip {
		return 0, false
	}

	signer := tx.Signer()
	if signer == "" || len(tx.Meta.PreBalances) == 0 || len(tx.Meta.PostBalances) == 0 {
		return 0, false
	}
	spent := int64(tx.Meta.PreBalances[0]) - int64(tx.Meta.PostBalances[0]) - int64(tx.Meta.Fee)
	if float64(spent)/solana.LamportsPerSOL < d.minSpend {
		return 0, false
	}

	for _, bal := range tx.Meta.PostTokenBalances {
		if bal.Mint != mint || bal.Owner != signer || bal.UIAmount <= 0 {
			continue
		}
		ratio := bal.UIAmount / supply
		if ratio >= d.minHolding {
			return ratio, true
		}
	}
	return 0, false
}

// tipSOL is the larger of the lamports credited to tip accounts and the
// transaction fee.
func (d *Detector) tipSOL(tx *solana.Transaction) float64 {
	var tip uint64
	if tx.Message != nil {
		for i, key := range tx.Message.AccountKeys {
			if !d.tips[key] || i >= len(tx.Meta.PreBalances) || i >= len(tx.Meta.PostBalances) {
				continue
			}
			if post, pre := tx.Meta.PostBalances[i], tx.Meta.PreBalances[i]; post > pre {
				tip += post - pre
			}
		}
	}
	if tx.Meta.Fee > tip {
		tip = tx.Meta.Fee
	}
	return solana.LamportsToSOL(tip)
}
