package domain

// Source names the stream a migration event came from.
type Source string

const (
	SourcePumpPortal  Source = "PUMPPORTAL"
	SourceProgramLogs Source = "PROGRAM_LOGS"
	// SourceManual marks events built by hand, e.g. by cmd/inspect.
	SourceManual Source = "MANUAL"
)

// MigrationEvent is one token graduating from its bonding curve.
// Produced by a stream source and consumed once by the coordinator.
type MigrationEvent struct {
	TokenID      string      // token mint address
	Source       Source      // originating stream
	Signature    string      // migration transaction signature, if known
	ObservedAt   int64       // Unix ms when the event was received
	MigratedAt   int64       // Unix ms, normalized from RawTimestamp (ObservedAt if absent)
	RawTimestamp interface{} // timestamp hint as received, for audit
}

// PoolInfo is the primary trading pool resolved for a token.
type PoolInfo struct {
	TokenID     string   // token mint address
	PoolAddress string   // pool (pair) address
	Venue       string   // dex id reported by the aggregator
	CreatedAt   int64    // Unix ms, reference instant for windowed metrics
	PriceUSD    *float64 // quoted price at resolution time (nullable)
}

// Venue ids recognized by the pool resolver.
const (
	VenuePumpSwap    = "pumpswap"
	VenuePump        = "pump"
	VenuePumpSwapAMM = "pumpswapamm"
	VenueRaydium     = "raydium"
)
