package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"migration-sentinel/internal/domain"
	"migration-sentinel/internal/storage"
)

// RecordStore implements storage.RecordStore and storage.RecordReader using PostgreSQL.
type RecordStore struct {
	pool *Pool
}

// NewRecordStore creates a new RecordStore.
func NewRecordStore(pool *Pool) *RecordStore {
	return &RecordStore{pool: pool}
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

	query := `
		INSERT INTO migration_records (` + recordColumns + `
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9, $10, $11,
			$12, $13, $14,
			$15, $16, $17,
			$18, $19, $20,
			$21, $22,
			$23, $24, $25, $26
		)
	`

	_, err := s.pool.Exec(ctx, query,
		r.RecordID, r.TokenID, r.PoolAddress, string(r.Source), r.MigratedAt,
		r.CreationTime, r.TTCHuman,
		r.BundleRatio, r.BundlerWallets, r.TotalWallets, r.BundledSlots,
		r.GasTxnSOL, r.GasDexSOL, r.GasBundleSOL,
		r.GasTxnCount, r.GasTradeCount, r.GasBundleCount,
		r.MarketCapUSD, r.PriceUSD, r.TopHolderRatio,
		r.IsOneShot, r.HasPriorityTip,
		string(r.Status), string(r.FinalState), r.SkipReason, r.RecordedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert migration record: %w", err)
	}
	return nil
}

// GetByID retrieves a record by its ID. Returns ErrNotFound if not exists.
func (s *RecordStore) GetByID(ctx context.Context, recordID string) (*domain.Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM migration_records WHERE record_id = $1`, recordID)
	r, err := scanRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get migration record: %w", err)
	}
	return r, nil
}

// GetByToken retrieves all records for a token, ordered by recorded_at ASC.
func (s *RecordStore) GetByToken(ctx context.Context, tokenID string) ([]*domain.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM migration_records
		WHERE token_id = $1
		ORDER BY recorded_at ASC, record_id ASC
	`, tokenID)
	if err != nil {
		return nil, fmt.Errorf("query migration records: %w", err)
	}
	defer rows.Close()

	var out []*domain.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan migration record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (*domain.Record, error) {
	var r domain.Record
	var source, status, state string
	err := row.Scan(
		&r.RecordID, &r.TokenID, &r.PoolAddress, &source, &r.MigratedAt,
		&r.CreationTime, &r.TTCHuman,
		&r.BundleRatio, &r.BundlerWallets, &r.TotalWallets, &r.BundledSlots,
		&r.GasTxnSOL, &r.GasDexSOL, &r.GasBundleSOL,
		&r.GasTxnCount, &r.GasTradeCount, &r.GasBundleCount,
		&r.MarketCapUSD, &r.PriceUSD, &r.TopHolderRatio,
		&r.IsOneShot, &r.HasPriorityTip,
		&status, &state, &r.SkipReason, &r.RecordedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Source = domain.Source(source)
	r.Status = domain.Status(status)
	r.FinalState = domain.State(state)
	return &r, nil
}
