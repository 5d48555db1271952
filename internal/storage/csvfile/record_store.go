// Package csvfile appends audit records to a local CSV file.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"migration-sentinel/internal/domain"
	"migration-sentinel/internal/storage"
)

// Header is the column order of the audit file.
var Header = []string{
	"record_id", "token_id", "pool_address", "source", "migrated_at",
	"creation_time", "ttc_human",
	"bundle_ratio", "bundler_wallets", "total_wallets", "bundled_slots",
	"gas_txn_sol", "gas_dex_sol", "gas_bundle_sol",
	"gas_txn_count", "gas_trade_count", "gas_bundle_count",
	"market_cap_usd", "price_usd", "top_holder_ratio",
	"is_one_shot", "has_priority_tip",
	"status", "final_state", "skip_reason", "recorded_at",
}

// RecordStore implements storage.RecordStore over an append-only CSV file.
// The header is written once, when the file is empty.
type RecordStore struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
	ids  map[string]struct{}
}

var _ storage.RecordStore = (*RecordStore)(nil)

// Open opens or creates path. Record ids already in the file are loaded so
// duplicates are rejected across restarts.
func Open(path string) (*RecordStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit csv: %w", err)
	}

	existing, err := ReadRecords(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read audit csv %s: %w", path, err)
	}

	s := &RecordStore{file: f, w: csv.NewWriter(f), ids: make(map[string]struct{}, len(existing))}
	for _, r := range existing {
		s.ids[r.RecordID] = struct{}{}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat audit csv: %w", err)
	}
	if info.Size() == 0 {
		if err := s.write(Header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return s, nil
}

// Append writes one row and flushes it.
func (s *RecordStore) Append(_ context.Context, r *domain.Record) error {
	if err := storage.ValidateRecord(r); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.ids[r.RecordID]; dup {
		return storage.ErrDuplicateKey
	}
	if err := s.write(toRow(r)); err != nil {
		return err
	}
	s.ids[r.RecordID] = struct{}{}
	return nil
}

func (s *RecordStore) write(row []string) error {
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("write audit row: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush audit row: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *RecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	return errors.Join(s.w.Error(), s.file.Close())
}

// ReadRecords parses an audit file, skipping the header row.
func ReadRecords(r io.Reader) ([]*domain.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	var out []*domain.Record
	first := true
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			if row[0] == Header[0] {
				continue
			}
		}
		rec, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

func toRow(r *domain.Record) []string {
	return []string{
		r.RecordID, r.TokenID, r.PoolAddress, string(r.Source), itoa(r.MigratedAt),
		optInt(r.CreationTime), r.TTCHuman,
		optFloat(r.BundleRatio), strconv.Itoa(r.BundlerWallets), strconv.Itoa(r.TotalWallets), strconv.Itoa(r.BundledSlots),
		ftoa(r.GasTxnSOL), ftoa(r.GasDexSOL), ftoa(r.GasBundleSOL),
		itoa(r.GasTxnCount), itoa(r.GasTradeCount), itoa(r.GasBundleCount),
		optFloat(r.MarketCapUSD), optFloat(r.PriceUSD), optFloat(r.TopHolderRatio),
		strconv.FormatBool(r.IsOneShot), strconv.FormatBool(r.HasPriorityTip),
		string(r.Status), string(r.FinalState), r.SkipReason, itoa(r.RecordedAt),
	}
}

func fromRow(row []string) (*domain.Record, error) {
	p := rowParser{row: row}
	r := &domain.Record{
		RecordID:       row[0],
		TokenID:        row[1],
		PoolAddress:    row[2],
		Source:         domain.Source(row[3]),
		MigratedAt:     p.int64(4),
		CreationTime:   p.optInt(5),
		TTCHuman:       row[6],
		BundleRatio:    p.optFloat(7),
		BundlerWallets: int(p.int64(8)),
		TotalWallets:   int(p.int64(9)),
		BundledSlots:   int(p.int64(10)),
		GasTxnSOL:      p.float(11),
		GasDexSOL:      p.float(12),
		GasBundleSOL:   p.float(13),
		GasTxnCount:    p.int64(14),
		GasTradeCount:  p.int64(15),
		GasBundleCount: p.int64(16),
		MarketCapUSD:   p.optFloat(17),
		PriceUSD:       p.optFloat(18),
		TopHolderRatio: p.optFloat(19),
		IsOneShot:      p.bool(20),
		HasPriorityTip: p.bool(21),
		Status:         domain.Status(row[22]),
		FinalState:     domain.State(row[23]),
		SkipReason:     row[24],
		RecordedAt:     p.int64(25),
	}
	if p.err != nil {
		return nil, fmt.Errorf("record %s: %w", row[0], p.err)
	}
	return r, nil
}

// rowParser keeps the first conversion error.
type rowParser struct {
	row []string
	err error
}

func (p *rowParser) fail(col int, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("column %s: %w", Header[col], err)
	}
}

func (p *rowParser) int64(col int) int64 {
	v, err := strconv.ParseInt(p.row[col], 10, 64)
	if err != nil {
		p.fail(col, err)
	}
	return v
}

func (p *rowParser) float(col int) float64 {
	v, err := strconv.ParseFloat(p.row[col], 64)
	if err != nil {
		p.fail(col, err)
	}
	return v
}

func (p *rowParser) bool(col int) bool {
	v, err := strconv.ParseBool(p.row[col])
	if err != nil {
		p.fail(col, err)
	}
	return v
}

func (p *rowParser) optInt(col int) *int64 {
	if p.row[col] == "" {
		return nil
	}
	v := p.int64(col)
	return &v
}

func (p *rowParser) optFloat(col int) *float64 {
	if p.row[col] == "" {
		return nil
	}
	v := p.float(col)
	return &v
}

func itoa(v int64) string   { return strconv.FormatInt(v, 10) }
func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func optInt(v *int64) string {
	if v == nil {
		return ""
	}
	return itoa(*v)
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return ftoa(*v)
}
