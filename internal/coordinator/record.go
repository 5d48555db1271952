package coordinator

import (
	"time"

	"github.com/google/uuid"

	"migration-sentinel/internal/domain"
	"migration-sentinel/internal/ttc"
)

// newRecord builds the audit row for a finished event. pool and mb may be
// nil when the event ended before they existed.
func newRecord(ev domain.MigrationEvent, pool *domain.PoolInfo, mb *domain.MetricsBundle,
	status domain.Status, state domain.State, reason string, now time.Time) *domain.Record {
	r := &domain.Record{
		RecordID:   uuid.NewString(),
		TokenID:    ev.TokenID,
		Source:     ev.Source,
		MigratedAt: ev.MigratedAt,
		TTCHuman:   ttc.Humanize(nil),
		Status:     status,
		FinalState: state,
		SkipReason: reason,
		RecordedAt: now.UnixMilli(),
	}
	if pool != nil {
		r.PoolAddress = pool.PoolAddress
	}
	if mb == nil {
		return r
	}

	r.CreationTime = mb.CreationTime
	r.TTCHuman = ttc.Humanize(mb.TTCMs)
	r.BundleRatio = mb.BundleRatio
	if b := mb.Bundle; b != nil {
		r.BundlerWallets = b.BundlerWallets
		r.TotalWallets = b.TotalWallets
		r.BundledSlots = b.BundledSlots
	}
	if f := mb.Fees; f != nil {
		r.GasTxnSOL = f.TxnSOL
		r.GasDexSOL = f.DexSOL
		r.GasBundleSOL = f.BundleSOL
		r.GasTxnCount = f.TxnCount
		r.GasTradeCount = f.TradeCount
		r.GasBundleCount = f.BundleCount
	}
	r.MarketCapUSD = mb.MarketCapUSD
	r.PriceUSD = mb.PriceUSD
	r.TopHolderRatio = mb.TopHolderRatio
	r.IsOneShot = mb.IsOneShot
	r.HasPriorityTip = mb.HasPriorityTip
	return r
}
