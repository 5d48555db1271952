package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"migration-sentinel/internal/domain"
	"migration-sentinel/internal/storage"
)

// RecordStore implements storage.RecordStore and storage.RecordReader using ClickHouse.
type RecordStore struct {
	conn *Conn
}

// NewRecordStore creates a new RecordStore.
func NewRecordStore(conn *Conn) *RecordStore {
	return &RecordStore{conn: conn}
}

// Compile-time interface checks.
var (
	_ storage.RecordStore  = (*RecordStore)(nil)
	_ storage.RecordReader = (*RecordStore)(nil)
)

const recordColumns = `
	record_id, token_id, pool_address, source, migrated_at,
	creation_time, ttc_human,
	bundle_ratio, bundler_wallets, total_wallets, bundled_slots,
	gas_txn_sol, gas_dex_sol, gas_bundle_sol,
	gas_txn_count, gas_trade_count, gas_bundle_count,
	market_cap_usd, price_usd, top_holder_ratio,
	is_one_shot, has_priority_tip,
	status, final_state, skip_reason, recorded_at`

// Append adds a new record. Returns ErrDuplicateKey if record_id exists.
func (s *RecordStore) Append(ctx context.Context, r *domain.Record) error {
	if err := storage.ValidateRecord(r); err != nil {
		return err
	}

	// ReplacingMergeTree would overwrite; keep append-only semantics.
	exists, err := s.exists(ctx, r.TokenID, r.RecordID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO migration_records (`+recordColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		r.RecordID, r.TokenID, r.PoolAddress, string(r.Source), r.MigratedAt,
		r.CreationTime, r.TTCHuman,
		r.BundleRatio, int64(r.BundlerWallets), int64(r.TotalWallets), int64(r.BundledSlots),
		r.GasTxnSOL, r.GasDexSOL, r.GasBundleSOL,
		r.GasTxnCount, r.GasTradeCount, r.GasBundleCount,
		r.MarketCapUSD, r.PriceUSD, r.TopHolderRatio,
		r.IsOneShot, r.HasPriorityTip,
		string(r.Status), string(r.FinalState), r.SkipReason, r.RecordedAt,
	)
	if err != nil {
		_ = batch.Abort()
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByID retrieves a record by its ID. Returns ErrNotFound if not exists.
func (s *RecordStore) GetByID(ctx context.Context, recordID string) (*domain.Record, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+recordColumns+`
		FROM migration_records FINAL
		WHERE record_id = ?
		LIMIT 1
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("query by id: %w", err)
	}
	defer rows.Close()

	out, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, storage.ErrNotFound
	}
	return out[0], nil
}

// GetByToken retrieves all records for a token, ordered by recorded_at ASC.
func (s *RecordStore) GetByToken(ctx context.Context, tokenID string) ([]*domain.Record, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+recordColumns+`
		FROM migration_records FINAL
		WHERE token_id = ?
		ORDER BY recorded_at ASC, record_id ASC
	`, tokenID)
	if err != nil {
		return nil, fmt.Errorf("query by token: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *RecordStore) exists(ctx context.Context, tokenID, recordID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count(*) FROM migration_records FINAL
		WHERE token_id = ? AND record_id = ?
	`, tokenID, recordID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanRecords(rows driver.Rows) ([]*domain.Record, error) {
	var out []*domain.Record
	for rows.Next() {
		var (
			r                         domain.Record
			source, status, state     string
			bundlers, wallets, bslots int64
		)
		err := rows.Scan(
			&r.RecordID, &r.TokenID, &r.PoolAddress, &source, &r.MigratedAt,
			&r.CreationTime, &r.TTCHuman,
			&r.BundleRatio, &bundlers, &wallets, &bslots,
			&r.GasTxnSOL, &r.GasDexSOL, &r.GasBundleSOL,
			&r.GasTxnCount, &r.GasTradeCount, &r.GasBundleCount,
			&r.MarketCapUSD, &r.PriceUSD, &r.TopHolderRatio,
			&r.IsOneShot, &r.HasPriorityTip,
			&status, &state, &r.SkipReason, &r.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan migration record: %w", err)
		}
		r.Source = domain.Source(source)
		r.Status = domain.Status(status)
		r.FinalState = domain.State(state)
		r.BundlerWallets = int(bundlers)
		r.TotalWallets = int(wallets)
		r.BundledSlots = int(bslots)
		out = append(out, &r)
	}
	return out, rows.Err()
}
