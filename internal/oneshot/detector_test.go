package oneshot

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"migration-sentinel/internal/solana"
	"migration-sentinel/internal/solana/stub"
)

const (
	pool   = "Pool1111111111111111111111111111111111111111"
	mint   = "Mint1111111111111111111111111111111111111111"
	whale  = "Whale111111111111111111111111111111111111111"
	sol    = solana.LamportsPerSOL
	create = int64(1_700_000_000_000) // ms
)

type fixedSupply float64

func (s fixedSupply) SupplyUI(context.Context, string) (float64, error) { return float64(s), nil }

func unixSec(ms int64) *int64 {
	s := ms / 1000
	return &s
}

// buyTx builds a bundle-marked buy by whale spending spendSOL (plus fee)
// and ending with tokens of mint.
func buyTx(sig string, feeLamports uint64, spendSOL float64, tokens float64) *solana.Transaction {
	pre := uint64(100 * sol)
	post := pre - uint64(spendSOL*sol) - feeLamports
	return &solana.Transaction{
		Signature: sig,
		Meta: &solana.TransactionMeta{
			Fee:          feeLamports,
			PreBalances:  []uint64{pre, 0},
			PostBalances: []uint64{post, 0},
			PostTokenBalances: []solana.TokenBalance{
				{AccountIndex: 1, Mint: mint, Owner: whale, UIAmount: tokens},
			},
			LogMessages: []string{"Program log: Jito tip", "Program log: Instruction: Buy"},
		},
		Message: &solana.TransactionMessage{AccountKeys: []string{whale, "TokenAcct"}},
	}
}

func newDetector(rpc *stub.RPCClient) *Detector {
	return NewDetector(Options{
		Chain:  rpc,
		Supply: fixedSupply(1_000_000),
		Pacing: -1,
		Logger: log.New(io.Discard, "", 0),
	})
}

func seed(rpc *stub.RPCClient, atMs int64, tx *solana.Transaction) {
	rpc.AddTransaction(tx)
	rpc.AddSignatures(pool, []solana.SignatureInfo{{Signature: tx.Signature, BlockTime: unixSec(atMs)}})
}

func TestDetect_QualifyingBuy(t *testing.T) {
	rpc := stub.NewRPCClient()
	seed(rpc, create+2000, buyTx("s1", 20_000_000, 2, 150_000))

	assert.True(t, newDetector(rpc).Detect(context.Background(), pool, create, mint))
}

func TestDetect_SameSecondAsCreation(t *testing.T) {
	rpc := stub.NewRPCClient()
	created := create + 600
	// block time truncates to the creation second
	seed(rpc, create, buyTx("s1", 20_000_000, 2, 150_000))

	assert.True(t, newDetector(rpc).Detect(context.Background(), pool, created, mint))
}

func TestDetect_HoldingThresholdEdge(t *testing.T) {
	tests := []struct {
		name   string
		tokens float64
		want   bool
	}{
		{"exactly at threshold", 100_000, true},
		{"just below threshold", 99_999, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpc := stub.NewRPCClient()
			seed(rpc, create, buyTx("s1", 20_000_000, 1.5, tt.tokens))
			assert.Equal(t, tt.want, newDetector(rpc).Detect(context.Background(), pool, create, mint))
		})
	}
}

func TestDetect_Rejections(t *testing.T) {
	tests := []struct {
		name string
		atMs int64
		tx   func() *solana.Transaction
	}{
		{"before creation", create - 1000, func() *solana.Transaction { return buyTx("s1", 20_000_000, 2, 200_000) }},
		{"after window", create + 6000, func() *solana.Transaction { return buyTx("s1", 20_000_000, 2, 200_000) }},
		{"no bundle marker", create, func() *solana.Transaction {
			tx := buyTx("s1", 20_000_000, 2, 200_000)
			tx.Meta.LogMessages = []string{"Program log: Instruction: Buy"}
			return tx
		}},
		{"tip too small", create, func() *solana.Transaction { return buyTx("s1", 5000, 2, 200_000) }},
		{"spend too small", create, func() *solana.Transaction { return buyTx("s1", 20_000_000, 0.5, 200_000) }},
		{"tokens held by someone else", create, func() *solana.Transaction {
			tx := buyTx("s1", 20_000_000, 2, 200_000)
			tx.Meta.PostTokenBalances[0].Owner = "PoolVault"
			return tx
		}},
		{"other mint", create, func() *solana.Transaction {
			tx := buyTx("s1", 20_000_000, 2, 200_000)
			tx.Meta.PostTokenBalances[0].Mint = "OtherMint"
			return tx
		}},
		{"failed transaction", create, func() *solana.Transaction {
			tx := buyTx("s1", 20_000_000, 2, 200_000)
			tx.Meta.Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}
			return tx
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpc := stub.NewRPCClient()
			seed(rpc, tt.atMs, tt.tx())
			assert.False(t, newDetector(rpc).Detect(context.Background(), pool, create, mint))
		})
	}
}

func TestDetect_TipTransferCounts(t *testing.T) {
	rpc := stub.NewRPCClient()
	tx := buyTx("s1", 5000, 2, 200_000)
	tip := solana.TipAccounts[0]
	tx.Message.AccountKeys = append(tx.Message.AccountKeys, tip)
	tx.Meta.PreBalances = append(tx.Meta.PreBalances, 1*sol)
	tx.Meta.PostBalances = append(tx.Meta.PostBalances, 1*sol+50_000_000)
	seed(rpc, create+1000, tx)

	assert.True(t, newDetector(rpc).Detect(context.Background(), pool, create, mint))
}

func TestDetect_FailuresReportFalse(t *testing.T) {
	t.Run("rpc error", func(t *testing.T) {
		rpc := stub.NewRPCClient()
		rpc.Err = errors.New("boom")
		assert.False(t, newDetector(rpc).Detect(context.Background(), pool, create, mint))
	})

	t.Run("zero supply", func(t *testing.T) {
		rpc := stub.NewRPCClient()
		seed(rpc, create, buyTx("s1", 20_000_000, 2, 200_000))
		d := NewDetector(Options{Chain: rpc, Supply: fixedSupply(0), Pacing: -1, Logger: log.New(io.Discard, "", 0)})
		assert.False(t, d.Detect(context.Background(), pool, create, mint))
		assert.Equal(t, 0, rpc.CallCount("getSignaturesForAddress"))
	})

	t.Run("empty pool", func(t *testing.T) {
		assert.False(t, newDetector(stub.NewRPCClient()).Detect(context.Background(), "", create, mint))
	})
}

func TestNewDetector_WindowClamped(t *testing.T) {
	assert.Equal(t, DefaultWindow, NewDetector(Options{}).window)
	assert.Equal(t, MinWindow, NewDetector(Options{Window: time.Second}).window)
	assert.Equal(t, MaxWindow, NewDetector(Options{Window: 5 * time.Minute}).window)
	assert.Equal(t, 30*time.Second, NewDetector(Options{Window: 30 * time.Second}).window)
}
