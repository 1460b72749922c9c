package receipt_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitnotes/entitlements/pkg/receipt"
	"github.com/orbitnotes/entitlements/pkg/subscription"
)

type verifyReply struct {
	Status            int              `json:"status"`
	Environment       string           `json:"environment,omitempty"`
	LatestReceiptInfo []map[string]any `json:"latest_receipt_info,omitempty"`
}

func transactionInfo(purchaseMs, expiresMs int64) map[string]any {
	return map[string]any{
		"product_id":               "pro_monthly",
		"transaction_id":           "txn-200",
		"original_transaction_id":  "txn-100",
		"purchase_date_ms":         strconv.FormatInt(purchaseMs, 10),
		"expires_date_ms":          strconv.FormatInt(expiresMs, 10),
		"is_trial_period":          "false",
		"is_in_intro_offer_period": "false",
	}
}

func newAuthority(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(prodURL, sandboxURL string) receipt.Config {
	return receipt.Config{
		ProductionURL:  prodURL,
		SandboxURL:     sandboxURL,
		SharedSecret:   "secret",
		RequestTimeout: 5 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}
}

func TestValidateHappyPath(t *testing.T) {
	t.Parallel()

	purchase := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	expires := purchase.AddDate(0, 1, 0)

	prod := newAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "blob", req["receipt-data"])
		assert.Equal(t, "secret", req["password"])

		_ = json.NewEncoder(w).Encode(verifyReply{
			Status:      0,
			Environment: "Production",
			LatestReceiptInfo: []map[string]any{
				transactionInfo(purchase.UnixMilli(), expires.UnixMilli()),
			},
		})
	})

	v := receipt.NewValidator(testConfig(prod.URL, "http://sandbox.invalid"))
	accountID := uuid.New()

	ev, err := v.Validate(context.Background(), "blob", accountID)
	require.NoError(t, err)

	assert.Equal(t, subscription.ProviderApple, ev.Provider)
	assert.Equal(t, subscription.OutcomeValidated, ev.Outcome)
	assert.Equal(t, accountID, ev.AccountID)
	assert.Equal(t, "pro_monthly", ev.ProductID)
	assert.Equal(t, "txn-200", ev.TransactionID)
	assert.Equal(t, "txn-100", ev.LineageID)
	assert.Equal(t, purchase, ev.PurchasedAt)
	require.NotNil(t, ev.ExpiresAt)
	assert.Equal(t, expires, *ev.ExpiresAt)
	assert.Equal(t, "Production", ev.Environment)
	assert.Equal(t, "blob", ev.ReceiptBlob)
}

func TestValidateSandboxReceiptResubmits(t *testing.T) {
	t.Parallel()

	purchase := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	var sandboxHits atomic.Int32
	sandbox := newAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		sandboxHits.Add(1)
		_ = json.NewEncoder(w).Encode(verifyReply{
			Status:      0,
			Environment: "Sandbox",
			LatestReceiptInfo: []map[string]any{
				transactionInfo(purchase.UnixMilli(), purchase.AddDate(0, 1, 0).UnixMilli()),
			},
		})
	})
	prod := newAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(verifyReply{Status: 21007})
	})

	v := receipt.NewValidator(testConfig(prod.URL, sandbox.URL))

	ev, err := v.Validate(context.Background(), "sandbox-blob", uuid.New())
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeValidated, ev.Outcome)
	assert.Equal(t, "Sandbox", ev.Environment)
	assert.Equal(t, int32(1), sandboxHits.Load())
}

func TestValidateTransientStatusIsRetryable(t *testing.T) {
	t.Parallel()

	prod := newAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(verifyReply{Status: 21005})
	})

	v := receipt.NewValidator(testConfig(prod.URL, "http://sandbox.invalid"))

	_, err := v.Validate(context.Background(), "blob", uuid.New())
	require.Error(t, err)
	assert.True(t, receipt.IsRetryable(err))
}

func TestValidateServerErrorIsRetryable(t *testing.T) {
	t.Parallel()

	prod := newAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	v := receipt.NewValidator(testConfig(prod.URL, "http://sandbox.invalid"))

	_, err := v.Validate(context.Background(), "blob", uuid.New())
	require.Error(t, err)
	assert.True(t, receipt.IsRetryable(err))
}

func TestValidateMalformedReceiptIsTerminalFailure(t *testing.T) {
	t.Parallel()

	prod := newAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(verifyReply{Status: 21002})
	})

	v := receipt.NewValidator(testConfig(prod.URL, "http://sandbox.invalid"))
	accountID := uuid.New()

	ev, err := v.Validate(context.Background(), "garbage", accountID)
	require.NoError(t, err, "terminal rejection is an outcome, not an error")
	assert.Equal(t, subscription.OutcomeFailed, ev.Outcome)
	assert.Equal(t, accountID, ev.AccountID)
	assert.NotEmpty(t, ev.LineageID)

	// The same bad blob always maps to the same failed lineage.
	ev2, err := v.Validate(context.Background(), "garbage", accountID)
	require.NoError(t, err)
	assert.Equal(t, ev.LineageID, ev2.LineageID)
}

func TestValidateLapsedSubscriptionReportsExpired(t *testing.T) {
	t.Parallel()

	purchase := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

	prod := newAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(verifyReply{
			Status:      21006,
			Environment: "Production",
			LatestReceiptInfo: []map[string]any{
				transactionInfo(purchase.UnixMilli(), purchase.AddDate(0, 1, 0).UnixMilli()),
			},
		})
	})

	v := receipt.NewValidator(testConfig(prod.URL, "http://sandbox.invalid"))

	ev, err := v.Validate(context.Background(), "old-blob", uuid.New())
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeExpired, ev.Outcome)
	assert.Equal(t, "txn-100", ev.LineageID)
}

func TestValidateEmptyReceipt(t *testing.T) {
	t.Parallel()

	v := receipt.NewValidator(testConfig("http://prod.invalid", "http://sandbox.invalid"))

	_, err := v.Validate(context.Background(), "", uuid.New())
	require.ErrorIs(t, err, receipt.ErrEmptyReceipt)
	assert.False(t, receipt.IsRetryable(err))
}

func TestRetryingValidatorRecoversFromTransientFailures(t *testing.T) {
	t.Parallel()

	purchase := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	var hits atomic.Int32
	prod := newAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			_ = json.NewEncoder(w).Encode(verifyReply{Status: 21009})
			return
		}
		_ = json.NewEncoder(w).Encode(verifyReply{
			Status:      0,
			Environment: "Production",
			LatestReceiptInfo: []map[string]any{
				transactionInfo(purchase.UnixMilli(), purchase.AddDate(0, 1, 0).UnixMilli()),
			},
		})
	})

	cfg := testConfig(prod.URL, "http://sandbox.invalid")
	v := receipt.NewRetryingValidator(receipt.NewValidator(cfg), cfg)

	ev, err := v.Validate(context.Background(), "blob", uuid.New())
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeValidated, ev.Outcome)
	assert.Equal(t, int32(3), hits.Load())
}

func TestRetryingValidatorExhaustsAttempts(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	prod := newAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(verifyReply{Status: 21005})
	})

	cfg := testConfig(prod.URL, "http://sandbox.invalid")
	v := receipt.NewRetryingValidator(receipt.NewValidator(cfg), cfg)

	_, err := v.Validate(context.Background(), "blob", uuid.New())
	require.Error(t, err)
	assert.True(t, receipt.IsRetryable(err), "exhaustion keeps the retryable class")
	assert.Equal(t, int32(3), hits.Load())
}
