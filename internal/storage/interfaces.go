package storage

import (
	"context"
	"errors"

	"migration-sentinel/internal/domain"
)

var (
	ErrNotFound = errors.New("record not found")
	// Records are written once; a second Append with the same id fails.
	ErrDuplicateKey = errors.New("record id already stored")
	ErrInvalidInput = errors.New("invalid input")
)

// RecordStore persists audit records, one per completed event.
type RecordStore interface {
	// Append adds a record. Returns ErrDuplicateKey if record_id exists.
	Append(ctx context.Context, r *domain.Record) error
}

// RecordReader reads audit records back.
type RecordReader interface {
	// GetByID retrieves a record by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, recordID string) (*domain.Record, error)

	// GetByToken retrieves all records for a token, ordered by recorded_at ASC.
	GetByToken(ctx context.Context, tokenID string) ([]*domain.Record, error)
}

// ValidateRecord rejects records that cannot be keyed.
func ValidateRecord(r *domain.Record) error {
	if r == nil || r.RecordID == "" || r.TokenID == "" {
		return ErrInvalidInput
	}
	return nil
}
