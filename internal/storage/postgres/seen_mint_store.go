package postgres

import (
	"context"
	"fmt"
	"time"

	"migration-sentinel/internal/storage"
)

// SeenMintStore is a PostgreSQL-backed dedup set over the seen_mints table.
// It lets several sentinel replicas share one view of processed mints.
type SeenMintStore struct {
	pool *Pool
	ttl  time.Duration
}

// NewSeenMintStore creates a SeenMintStore. ttl <= 0 keeps entries forever.
func NewSeenMintStore(pool *Pool, ttl time.Duration) *SeenMintStore {
	return &SeenMintStore{pool: pool, ttl: ttl}
}

// MarkIfNew inserts mint and reports whether it was absent (or expired).
// The check and insert are one statement.
func (s *SeenMintStore) MarkIfNew(ctx context.Context, mint string) (bool, error) {
	if mint == "" {
		return false, storage.ErrInvalidInput
	}

	var expires *time.Time
	if s.ttl > 0 {
		t := time.Now().Add(s.ttl)
		expires = &t
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO seen_mints (mint, seen_at, expires_at)
		VALUES ($1, NOW(), $2)
		ON CONFLICT (mint) DO UPDATE
		SET seen_at = NOW(),
		    expires_at = EXCLUDED.expires_at
		WHERE seen_mints.expires_at IS NOT NULL
		  AND seen_mints.expires_at < NOW()
	`, mint, expires)
	if err != nil {
		return false, fmt.Errorf("mark mint seen: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// IsSeen reports whether mint is currently held.
func (s *SeenMintStore) IsSeen(ctx context.Context, mint string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM seen_mints
			WHERE mint = $1 AND (expires_at IS NULL OR expires_at >= NOW())
		)
	`, mint).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *SeenMintStore) Close() error { return nil }
