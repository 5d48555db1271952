package bitquery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"migration-sentinel/internal/domain"
)

func newTestServer(t *testing.T, respond func(req gqlRequest) interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req gqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(respond(req))
	}))
}

func TestNewClient_MissingKey(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, domain.ErrConfigurationMissing)
}

func TestClient_TokenActivity(t *testing.T) {
	server := newTestServer(t, func(req gqlRequest) interface{} {
		assert.Contains(t, req.Query, "DEXTradeByTokens")
		assert.Equal(t, "mint1", req.Variables["token"])
		assert.Equal(t, "2024-01-01T00:00:00Z", req.Variables["since"])

		return map[string]interface{}{
			"data": map[string]interface{}{
				"Solana": map[string]interface{}{
					"trades": []map[string]interface{}{
						{"Block": map[string]interface{}{"Slot": "100", "Time": "2024-01-01T01:00:00Z"}, "Transaction": map[string]string{"Signer": "w1", "Signature": "s1"}},
						{"Block": map[string]interface{}{"Slot": 101}, "Transaction": map[string]string{"Signer": "", "Signature": "s2"}},
					},
					"transfers": []map[string]interface{}{
						{"Block": map[string]interface{}{"Slot": "100"}, "Transaction": map[string]string{"Signer": "w2", "Signature": "s3"}},
					},
					"tipped": []map[string]interface{}{
						{"Transaction": map[string]string{"Signature": "s1"}},
					},
				},
			},
		}
	})
	defer server.Close()

	client, err := NewClient("key", WithEndpoint(server.URL))
	require.NoError(t, err)

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	act, err := client.TokenActivity(context.Background(), "mint1", since, since.Add(8*time.Hour))
	require.NoError(t, err)

	assert.True(t, act.HasPriorityTip)
	assert.Equal(t, []domain.ActivityEvent{
		{Slot: 100, Signer: "w1", Signature: "s1"},
		{Slot: 100, Signer: "w2", Signature: "s3"},
	}, act.Events)
}

func TestClient_FeeSums(t *testing.T) {
	server := newTestServer(t, func(req gqlRequest) interface{} {
		assert.Contains(t, req.Query, "BundleTippingFees")
		tips, _ := req.Variables["tips"].([]interface{})
		assert.Len(t, tips, 2)

		return map[string]interface{}{
			"data": map[string]interface{}{
				"Solana": map[string]interface{}{
					"AllTransactionFees": []map[string]interface{}{{"fees": "1.25", "count": "300"}},
					"DEXTradingFees":     []map[string]interface{}{{"fees": 0.5, "count": 120}},
					"BundleTippingFees":  []map[string]interface{}{},
				},
			},
		}
	})
	defer server.Close()

	client, err := NewClient("key", WithEndpoint(server.URL))
	require.NoError(t, err)

	fees, err := client.FeeSums(context.Background(), "mint1", []string{"tip1", "tip2"})
	require.NoError(t, err)

	assert.Equal(t, 1.25, fees.TxnSOL)
	assert.Equal(t, 0.5, fees.DexSOL)
	assert.Equal(t, 0.0, fees.BundleSOL)
	assert.Equal(t, int64(300), fees.TxnCount)
	assert.Equal(t, int64(120), fees.TradeCount)
	assert.Equal(t, 1.75, fees.TotalSOL())
}

func TestClient_EarliestTransfer(t *testing.T) {
	server := newTestServer(t, func(req gqlRequest) interface{} {
		return map[string]interface{}{
			"data": map[string]interface{}{
				"Solana": map[string]interface{}{
					"Transfers": []map[string]interface{}{
						{"Block": map[string]interface{}{"Time": "2024-01-01T00:00:10Z"}},
					},
				},
			},
		}
	})
	defer server.Close()

	client, err := NewClient("key", WithEndpoint(server.URL))
	require.NoError(t, err)

	ms, err := client.EarliestTransfer(context.Background(), "mint1")
	require.NoError(t, err)
	require.NotNil(t, ms)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC).UnixMilli(), *ms)
}

func TestClient_GraphQLErrors(t *testing.T) {
	server := newTestServer(t, func(req gqlRequest) interface{} {
		return map[string]interface{}{
			"errors": []map[string]string{{"message": "quota exceeded"}},
		}
	})
	defer server.Close()

	client, err := NewClient("key", WithEndpoint(server.URL))
	require.NoError(t, err)

	_, err = client.FeeSums(context.Background(), "mint1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.True(t, strings.Contains(err.Error(), "quota exceeded"))
}
