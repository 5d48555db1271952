package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"migration-sentinel/internal/domain"
	"migration-sentinel/internal/retry"
	"migration-sentinel/internal/solana"
)

// MeteoraDBCProgramID is the Meteora dynamic bonding curve program.
const MeteoraDBCProgramID = "dbcij3LWUppWqq96dh6gJWwBifmcGfLSB5D4DuSMaqN"

// Log markers of a graduation transaction.
const (
	MigrationMarker  = "Instruction: MigrationDammV2"
	PoolCreateMarker = "create pool"
)

var errTxNotYet = errors.New("transaction not yet available")

// TxFetcher loads a transaction by signature.
type TxFetcher interface {
	GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error)
}

// LogsConfig configures LogsSource.
type LogsConfig struct {
	Program string
	// Fetch bounds the wait for a migration transaction to become queryable.
	Fetch  retry.Policy
	Buffer int
	Logger *log.Logger
}

// DefaultFetchPolicy waits 1s, 2s, ... 8s across eight attempts.
func DefaultFetchPolicy() retry.Policy {
	return retry.Linear(7, 2*time.Second, time.Second)
}

// LogsSource watches a bonding-curve program's logs for graduations and
// recovers each migrated mint from the transaction's token balances.
type LogsSource struct {
	ws     solana.LogsSubscriber
	rpc    TxFetcher
	cfg    LogsConfig
	logger *log.Logger
	nowFn  func() time.Time
	// firstWait precedes the first fetch attempt.
	firstWait time.Duration
}

// NewLogsSource creates a LogsSource.
func NewLogsSource(ws solana.LogsSubscriber, rpc TxFetcher, cfg LogsConfig) *LogsSource {
	if cfg.Program == "" {
		cfg.Program = MeteoraDBCProgramID
	}
	if cfg.Fetch.MaxRetries == 0 && cfg.Fetch.Delay == 0 {
		cfg.Fetch = DefaultFetchPolicy()
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &LogsSource{
		ws:        ws,
		rpc:       rpc,
		cfg:       cfg,
		logger:    logger,
		nowFn:     time.Now,
		firstWait: time.Second,
	}
}

// Subscribe implements Source.
func (s *LogsSource) Subscribe(ctx context.Context) (<-chan domain.MigrationEvent, error) {
	notifs, err := s.ws.SubscribeProgramLogs(ctx, s.cfg.Program)
	if err != nil {
		return nil, fmt.Errorf("subscribe logs %s: %w", s.cfg.Program, err)
	}

	out := make(chan domain.MigrationEvent, s.cfg.Buffer)
	go s.run(ctx, notifs, out)
	return out, nil
}

func (s *LogsSource) run(ctx context.Context, notifs <-chan solana.ProgramLogs, out chan<- domain.MigrationEvent) {
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		close(out)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifs:
			if !ok {
				return
			}
			if n.Failed || !IsMigration(n) {
				continue
			}
			wg.Add(1)
			go func(sig string) {
				defer wg.Done()
				ev, err := s.resolve(ctx, sig)
				if err != nil {
					s.logger.Printf("[stream] WARN: migration tx %s: %v", sig, err)
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
				}
			}(n.Signature)
		}
	}
}

func (s *LogsSource) resolve(ctx context.Context, sig string) (domain.MigrationEvent, error) {
	observed := s.nowFn()

	if s.firstWait > 0 {
		select {
		case <-ctx.Done():
			return domain.MigrationEvent{}, ctx.Err()
		case <-time.After(s.firstWait):
		}
	}

	var tx *solana.Transaction
	var mint string
	err := retry.Do(ctx, s.cfg.Fetch, func() error {
		t, err := s.rpc.GetTransaction(ctx, sig)
		if err != nil {
			return err
		}
		if t == nil {
			return errTxNotYet
		}
		m := MintFromTransaction(t)
		if m == "" {
			return retry.Permanent(fmt.Errorf("no mint in post token balances"))
		}
		tx, mint = t, m
		return nil
	})
	if err != nil {
		return domain.MigrationEvent{}, err
	}

	var raw interface{}
	if tx.BlockTime > 0 {
		raw = tx.BlockTime
	}
	return domain.MigrationEvent{
		TokenID:      mint,
		Source:       domain.SourceProgramLogs,
		Signature:    sig,
		ObservedAt:   observed.UnixMilli(),
		MigratedAt:   NormalizeTimestampMs(raw, observed),
		RawTimestamp: raw,
	}, nil
}

// IsMigration reports whether logs show a graduation that created a pool.
func IsMigration(n solana.ProgramLogs) bool {
	return n.Contains(MigrationMarker) && n.Contains(PoolCreateMarker)
}

// MintFromTransaction returns the first non-wrapped-SOL mint among the
// transaction's post token balances.
func MintFromTransaction(tx *solana.Transaction) string {
	if tx == nil || tx.Meta == nil {
		return ""
	}
	for _, b := range tx.Meta.PostTokenBalances {
		if b.Mint != "" && b.Mint != solana.WrappedSOLMint {
			return b.Mint
		}
	}
	return ""
}

var _ Source = (*LogsSource)(nil)
