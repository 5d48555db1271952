package domain

// MetricsBundle holds the independently computed metrics of one event.
// Nil pointers mean the metric is unavailable, never zero.
type MetricsBundle struct {
	MarketCapUSD   *float64
	PriceUSD       *float64
	GasPaidSOL     *float64
	Fees           *FeeBreakdown
	BundleRatio    *float64
	Bundle         *BundleStats
	HasPriorityTip bool
	IsOneShot      bool
	TopHolderRatio *float64
	CreationTime   *int64 // Unix ms of the token's first transaction
	TTCMs          *int64 // CreationTime -> migration, ms
}

// FeeBreakdown splits the gas total by category.
// Replay totals land entirely in TxnSOL/TxnCount.
type FeeBreakdown struct {
	TxnSOL      float64
	DexSOL      float64
	BundleSOL   float64
	TxnCount    int64
	TradeCount  int64
	BundleCount int64
}

// TotalSOL returns the sum of all categories.
func (f *FeeBreakdown) TotalSOL() float64 {
	if f == nil {
		return 0
	}
	return f.TxnSOL + f.DexSOL + f.BundleSOL
}

// BundleStats are the counts behind a bundle ratio.
type BundleStats struct {
	TotalWallets   int
	BundlerWallets int
	BundledSlots   int
}

// ActivityEvent is one buy or transfer touching a token, as seen by analytics.
type ActivityEvent struct {
	Slot      int64
	Signer    string
	Signature string
}

// TokenActivity is the analytics view of a token over a time window.
type TokenActivity struct {
	Events         []ActivityEvent
	HasPriorityTip bool // any transaction on the token paid a tip address
}
