package bitquery

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"migration-sentinel/internal/domain"
	"migration-sentinel/internal/solana"
)

const activityQuery = `
query ($token: String!, $since: DateTime!, $till: DateTime!, $tips: [String!]!) {
  Solana {
    trades: DEXTradeByTokens(
      where: {
        Block: { Time: { since: $since, till: $till } }
        Transaction: { Result: { Success: true } }
        Trade: { Currency: { MintAddress: { is: $token } }, Side: { Type: { is: buy } } }
      }
      orderBy: { ascending: Block_Slot }
      limit: { count: 100000 }
    ) {
      Block { Slot Time }
      Transaction { Signer Signature }
    }
    transfers: Transfers(
      where: {
        Block: { Time: { since: $since, till: $till } }
        Transaction: { Result: { Success: true } }
        Transfer: { Currency: { MintAddress: { is: $token } } }
      }
      orderBy: { ascending: Block_Slot }
      limit: { count: 100000 }
    ) {
      Block { Slot Time }
      Transaction { Signer Signature }
    }
    tipped: Transactions(
      where: {
        Block: { Time: { since: $since, till: $till } }
        Transaction: { Accounts: { includes: [{ Address: { is: $token } }, { Address: { in: $tips } }] } }
      }
      limit: { count: 1 }
    ) {
      Transaction { Signature }
    }
  }
}`

const feeQuery = `
query ($addr: String!, $tips: [String!]!) {
  Solana {
    AllTransactionFees: Transactions(
      where: { Transaction: { Accounts: { includes: { Address: { is: $addr } } } } }
    ) {
      fees: sum(of: Transaction_Fee)
      count
    }
    DEXTradingFees: DEXTradeByTokens(
      where: { Trade: { Currency: { MintAddress: { is: $addr } } } }
    ) {
      fees: sum(of: Transaction_Fee)
      count
    }
    BundleTippingFees: Transactions(
      where: { Transaction: { Accounts: { includes: [{ Address: { is: $addr } }, { Address: { in: $tips } }] } } }
    ) {
      fees: sum(of: Transaction_Fee)
      count
    }
  }
}`

const earliestQuery = `
query ($token: String!) {
  Solana {
    Transfers(
      where: { Transfer: { Currency: { MintAddress: { is: $token } } } }
      orderBy: { ascending: Block_Time }
      limit: { count: 1 }
    ) {
      Block { Time }
    }
  }
}`

type txRow struct {
	Block struct {
		Slot decimal.Decimal `json:"Slot"`
		Time time.Time       `json:"Time"`
	} `json:"Block"`
	Transaction struct {
		Signer    string `json:"Signer"`
		Signature string `json:"Signature"`
	} `json:"Transaction"`
}

type feeRow struct {
	Fees  decimal.Decimal `json:"fees"`
	Count decimal.Decimal `json:"count"`
}

// TokenActivity lists buy trades and transfers of token within [since, till].
func (c *Client) TokenActivity(ctx context.Context, token string, since, till time.Time) (*domain.TokenActivity, error) {
	var data struct {
		Solana struct {
			Trades    []txRow `json:"trades"`
			Transfers []txRow `json:"transfers"`
			Tipped    []txRow `json:"tipped"`
		} `json:"Solana"`
	}
	vars := map[string]interface{}{
		"token": token,
		"since": since.UTC().Format(time.RFC3339),
		"till":  till.UTC().Format(time.RFC3339),
		"tips":  solana.TipAccounts,
	}
	if err := c.query(ctx, activityQuery, vars, &data); err != nil {
		return nil, fmt.Errorf("token activity %s: %w", token, err)
	}

	act := &domain.TokenActivity{
		Events:         make([]domain.ActivityEvent, 0, len(data.Solana.Trades)+len(data.Solana.Transfers)),
		HasPriorityTip: len(data.Solana.Tipped) > 0,
	}
	for _, rows := range [][]txRow{data.Solana.Trades, data.Solana.Transfers} {
		for _, r := range rows {
			if r.Transaction.Signer == "" {
				continue
			}
			act.Events = append(act.Events, domain.ActivityEvent{
				Slot:      r.Block.Slot.IntPart(),
				Signer:    r.Transaction.Signer,
				Signature: r.Transaction.Signature,
			})
		}
	}
	return act, nil
}

// FeeSums runs the three-category fee query for addr. Amounts are in SOL.
func (c *Client) FeeSums(ctx context.Context, addr string, tips []string) (*domain.FeeBreakdown, error) {
	var data struct {
		Solana struct {
			All    []feeRow `json:"AllTransactionFees"`
			Dex    []feeRow `json:"DEXTradingFees"`
			Bundle []feeRow `json:"BundleTippingFees"`
		} `json:"Solana"`
	}
	vars := map[string]interface{}{"addr": addr, "tips": tips}
	if err := c.query(ctx, feeQuery, vars, &data); err != nil {
		return nil, fmt.Errorf("fee sums %s: %w", addr, err)
	}

	first := func(rows []feeRow) feeRow {
		if len(rows) == 0 {
			return feeRow{}
		}
		return rows[0]
	}
	all, dex, bundle := first(data.Solana.All), first(data.Solana.Dex), first(data.Solana.Bundle)

	return &domain.FeeBreakdown{
		TxnSOL:      all.Fees.InexactFloat64(),
		DexSOL:      dex.Fees.InexactFloat64(),
		BundleSOL:   bundle.Fees.InexactFloat64(),
		TxnCount:    all.Count.IntPart(),
		TradeCount:  dex.Count.IntPart(),
		BundleCount: bundle.Count.IntPart(),
	}, nil
}

// EarliestTransfer returns the Unix ms of the first transfer of token, or nil
// if the analytics window holds none.
func (c *Client) EarliestTransfer(ctx context.Context, token string) (*int64, error) {
	var data struct {
		Solana struct {
			Transfers []txRow `json:"Transfers"`
		} `json:"Solana"`
	}
	if err := c.query(ctx, earliestQuery, map[string]interface{}{"token": token}, &data); err != nil {
		return nil, fmt.Errorf("earliest transfer %s: %w", token, err)
	}
	if len(data.Solana.Transfers) == 0 || data.Solana.Transfers[0].Block.Time.IsZero() {
		return nil, nil
	}
	ms := data.Solana.Transfers[0].Block.Time.UnixMilli()
	return &ms, nil
}
