package domain

// Record is one audit row per completed event.
// Corresponds to migration_records tables in PostgreSQL and ClickHouse.
type Record struct {
	RecordID       string   // uuid
	TokenID        string   // token mint address
	PoolAddress    string   // empty when the pool was never resolved
	Source         Source   // originating stream
	MigratedAt     int64    // Unix ms
	CreationTime   *int64   // Unix ms (nullable)
	TTCHuman       string   // e.g. "1d 2h 3m"
	BundleRatio    *float64 // nullable
	BundlerWallets int
	TotalWallets   int
	BundledSlots   int
	GasTxnSOL      float64
	GasDexSOL      float64
	GasBundleSOL   float64
	GasTxnCount    int64
	GasTradeCount  int64
	GasBundleCount int64
	MarketCapUSD   *float64 // nullable
	PriceUSD       *float64 // nullable
	TopHolderRatio *float64 // nullable
	IsOneShot      bool
	HasPriorityTip bool
	Status         Status // empty when skipped before fusion
	FinalState     State
	SkipReason     string
	RecordedAt     int64 // Unix ms
}
