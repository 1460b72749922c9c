package entitlement_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitnotes/entitlements/modules/entitlement"
	"github.com/orbitnotes/entitlements/pkg/billing"
	"github.com/orbitnotes/entitlements/pkg/catalog"
	"github.com/orbitnotes/entitlements/pkg/ledger"
	"github.com/orbitnotes/entitlements/pkg/receipt"
	"github.com/orbitnotes/entitlements/pkg/reconciler"
	"github.com/orbitnotes/entitlements/pkg/subscription"
)

type stubValidator struct {
	ev  subscription.ProviderEvent
	err error
}

func (s stubValidator) Validate(_ context.Context, _ string, accountID uuid.UUID) (subscription.ProviderEvent, error) {
	if s.err != nil {
		return subscription.ProviderEvent{}, s.err
	}
	ev := s.ev
	ev.AccountID = accountID
	return ev, nil
}

type stubWebhookSource struct {
	n   billing.Notification
	err error
}

func (s stubWebhookSource) Parse(*http.Request) (billing.Notification, error) {
	return s.n, s.err
}

type testEnv struct {
	router     http.Handler
	store      *subscription.MemoryStore
	reconciler *reconciler.Reconciler
}

func newTestEnv(t *testing.T, validator entitlement.ReceiptValidator, webhooks entitlement.WebhookSource) *testEnv {
	t.Helper()

	cat, err := catalog.New(context.Background(), catalog.DefaultPlans(), "free")
	require.NoError(t, err)

	store := subscription.NewMemoryStore()
	led := ledger.New(cat, ledger.NewMemoryStore(), ledger.SubscriptionPlanResolver(store, "free"))
	rec := reconciler.New(store, cat, led)
	intake := billing.NewIntake(billing.NewMemoryDedupSet(time.Hour), nil)

	h := entitlement.NewHandler(cat, led, rec, validator, intake, webhooks, nil)
	return &testEnv{router: entitlement.Router(h), store: store, reconciler: rec}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return rr.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

type subscriptionBody struct {
	ID               string `json:"id"`
	AccountID        string `json:"account_id"`
	PlanID           string `json:"plan_id"`
	Status           string `json:"status"`
	Provider         string `json:"provider"`
	LineageID        string `json:"lineage_id"`
	ValidationStatus string `json:"validation_status"`
	Note             string `json:"note"`
}

type quotaBody struct {
	Allowed   bool  `json:"allowed"`
	Current   int64 `json:"current"`
	Ceiling   int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
}

func appleEvent(lineage string) subscription.ProviderEvent {
	now := time.Now().UTC()
	expires := now.AddDate(0, 1, 0)
	return subscription.ProviderEvent{
		Provider:      subscription.ProviderApple,
		Outcome:       subscription.OutcomeValidated,
		ProductID:     "pro_monthly",
		TransactionID: lineage,
		LineageID:     lineage,
		PurchasedAt:   now,
		ExpiresAt:     &expires,
		Environment:   "Production",
		OccurredAt:    now,
		ReceiptBlob:   "blob-" + lineage,
	}
}

func TestPlansEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubValidator{}, nil)

	code, resp := env.do(t, http.MethodGet, "/plans", nil)
	require.Equal(t, http.StatusOK, code)

	plans := decodeData[[]map[string]any](t, resp)
	require.Len(t, plans, 3)
	assert.Equal(t, "free", plans[0]["id"])
	assert.Equal(t, "pro_monthly", plans[1]["id"])
	assert.Equal(t, "pro_yearly", plans[2]["id"])
}

func TestValidateReceipt(t *testing.T) {
	t.Parallel()

	accountID := uuid.New()

	t.Run("happy path activates subscription", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, stubValidator{ev: appleEvent("txn-1")}, nil)
		code, resp := env.do(t, http.MethodPost, "/receipts/validate", map[string]string{
			"account_id":         accountID.String(),
			"receipt_blob":       "blob",
			"claimed_product_id": "pro_monthly",
		})
		require.Equal(t, http.StatusOK, code)

		sub := decodeData[subscriptionBody](t, resp)
		assert.Equal(t, "active", sub.Status)
		assert.Equal(t, "pro_monthly", sub.PlanID)
		assert.Equal(t, accountID.String(), sub.AccountID)
	})

	t.Run("invalid account id", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, stubValidator{}, nil)
		code, resp := env.do(t, http.MethodPost, "/receipts/validate", map[string]string{
			"account_id":   "not-a-uuid",
			"receipt_blob": "blob",
		})
		require.Equal(t, http.StatusBadRequest, code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "invalid_account_id", resp.Error.Code)
	})

	t.Run("empty receipt", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, stubValidator{}, nil)
		code, resp := env.do(t, http.MethodPost, "/receipts/validate", map[string]string{
			"account_id": accountID.String(),
		})
		require.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "empty_receipt", resp.Error.Code)
	})

	t.Run("transient authority failure answers 202", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, stubValidator{err: &receipt.ValidationError{
			Retryable: true,
			Err:       errors.New("authority unavailable"),
		}}, nil)
		code, resp := env.do(t, http.MethodPost, "/receipts/validate", map[string]string{
			"account_id":   accountID.String(),
			"receipt_blob": "blob",
		})
		require.Equal(t, http.StatusAccepted, code)
		body := decodeData[struct {
			Status       string           `json:"status"`
			Subscription subscriptionBody `json:"subscription"`
		}](t, resp)
		assert.Equal(t, "pending", body.Status)
		assert.Equal(t, "pending", body.Subscription.Status)

		// The blob is retained server-side for the pending sweep.
		row, err := env.store.LatestByAccount(context.Background(), accountID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusPending, row.Status)
		assert.Equal(t, "blob", row.ReceiptBlob)
	})

	t.Run("terminal validator error answers 422", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, stubValidator{err: receipt.ErrEmptyReceipt}, nil)
		code, resp := env.do(t, http.MethodPost, "/receipts/validate", map[string]string{
			"account_id":   accountID.String(),
			"receipt_blob": "blob",
		})
		require.Equal(t, http.StatusUnprocessableEntity, code)
		assert.Equal(t, "validation_failed", resp.Error.Code)
	})
}

func TestConsumeQuota(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubValidator{}, nil)
	accountID := uuid.New()
	base := "/accounts/" + accountID.String()

	// The free plan allows a single galaxy.
	code, resp := env.do(t, http.MethodPost, base+"/usage/galaxy/consume", nil)
	require.Equal(t, http.StatusOK, code)
	quota := decodeData[quotaBody](t, resp)
	assert.Equal(t, int64(1), quota.Current)
	assert.Zero(t, quota.Remaining)
	assert.False(t, quota.Allowed)

	code, resp = env.do(t, http.MethodPost, base+"/usage/galaxy/consume", nil)
	require.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "limit_reached", resp.Error.Code)

	code, resp = env.do(t, http.MethodPost, base+"/usage/starship/consume", nil)
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "unknown_resource", resp.Error.Code)
}

func TestUsageSnapshot(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubValidator{}, nil)
	accountID := uuid.New()
	base := "/accounts/" + accountID.String()

	code, _ := env.do(t, http.MethodPost, base+"/usage/note/consume", nil)
	require.Equal(t, http.StatusOK, code)

	code, resp := env.do(t, http.MethodGet, base+"/usage", nil)
	require.Equal(t, http.StatusOK, code)

	usage := decodeData[struct {
		PlanID    string               `json:"plan_id"`
		Resources map[string]quotaBody `json:"resources"`
	}](t, resp)
	assert.Equal(t, "free", usage.PlanID)
	assert.Len(t, usage.Resources, 4)
	assert.Equal(t, int64(1), usage.Resources["note"].Current)

	code, resp = env.do(t, http.MethodGet, "/accounts/nope/usage", nil)
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_account_id", resp.Error.Code)
}

func TestPlanLifecycleActions(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubValidator{}, nil)
	accountID := uuid.New()
	base := "/accounts/" + accountID.String()

	code, resp := env.do(t, http.MethodPost, base+"/cancel", nil)
	require.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "no_active_subscription", resp.Error.Code)

	code, resp = env.do(t, http.MethodPost, base+"/plan", map[string]string{"target_plan_id": "pro_monthly"})
	require.Equal(t, http.StatusOK, code)
	sub := decodeData[subscriptionBody](t, resp)
	assert.Equal(t, "active", sub.Status)
	assert.Equal(t, "pro_monthly", sub.PlanID)
	assert.Equal(t, "manual", sub.Provider)

	code, resp = env.do(t, http.MethodPost, base+"/plan", map[string]string{"target_plan_id": "platinum"})
	require.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "plan_not_found", resp.Error.Code)

	code, resp = env.do(t, http.MethodPost, base+"/cancel", nil)
	require.Equal(t, http.StatusOK, code)
	sub = decodeData[subscriptionBody](t, resp)
	assert.Equal(t, "canceled", sub.Status)

	code, resp = env.do(t, http.MethodPost, base+"/resubscribe", nil)
	require.Equal(t, http.StatusOK, code)
	sub = decodeData[subscriptionBody](t, resp)
	assert.Equal(t, "active", sub.Status)

	// An active subscription cannot be resubscribed again.
	code, resp = env.do(t, http.MethodPost, base+"/resubscribe", nil)
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "not_resubscribable", resp.Error.Code)
}

func TestOverride(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubValidator{}, nil)
	accountID := uuid.New()
	path := "/accounts/" + accountID.String() + "/override"

	code, resp := env.do(t, http.MethodPost, path, map[string]string{"plan_id": "pro_yearly"})
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "missing_note", resp.Error.Code)

	code, resp = env.do(t, http.MethodPost, path, map[string]string{
		"plan_id": "pro_yearly",
		"note":    "comp for outage",
	})
	require.Equal(t, http.StatusOK, code)
	sub := decodeData[subscriptionBody](t, resp)
	assert.Equal(t, "active", sub.Status)
	assert.Equal(t, "pro_yearly", sub.PlanID)
	assert.Equal(t, "comp for outage", sub.Note)
}

func TestBillingWebhook(t *testing.T) {
	t.Parallel()

	accountID := uuid.New()
	expires := time.Now().UTC().AddDate(0, 1, 0)
	notification := billing.Notification{
		ID:             "evt-1",
		Type:           billing.NotificationSubscriptionCreated,
		AccountID:      accountID,
		PlanID:         "pro_monthly",
		SubscriptionID: "sub-1",
		TransactionID:  "txn-1",
		OccurredAt:     time.Now().UTC(),
		ExpiresAt:      &expires,
	}

	t.Run("delivery activates and redelivery is absorbed", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, stubValidator{}, stubWebhookSource{n: notification})

		code, resp := env.do(t, http.MethodPost, "/billing/webhook", nil)
		require.Equal(t, http.StatusOK, code)
		sub := decodeData[subscriptionBody](t, resp)
		assert.Equal(t, "active", sub.Status)
		assert.Equal(t, "card", sub.Provider)
		assert.Equal(t, "sub-1", sub.LineageID)

		code, resp = env.do(t, http.MethodPost, "/billing/webhook", nil)
		require.Equal(t, http.StatusOK, code)
		status := decodeData[map[string]string](t, resp)
		assert.Equal(t, "duplicate", status["status"])
	})

	t.Run("disabled without a source", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, stubValidator{}, nil)
		code, resp := env.do(t, http.MethodPost, "/billing/webhook", nil)
		require.Equal(t, http.StatusNotImplemented, code)
		assert.Equal(t, "webhooks_disabled", resp.Error.Code)
	})

	t.Run("bad signature", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, stubValidator{}, stubWebhookSource{err: billing.ErrSignatureVerification})
		code, resp := env.do(t, http.MethodPost, "/billing/webhook", nil)
		require.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, "invalid_signature", resp.Error.Code)
	})

	t.Run("unsupported event type is acknowledged", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, stubValidator{}, stubWebhookSource{err: billing.ErrUnsupportedEvent})
		code, resp := env.do(t, http.MethodPost, "/billing/webhook", nil)
		require.Equal(t, http.StatusOK, code)
		status := decodeData[map[string]string](t, resp)
		assert.Equal(t, "ignored", status["status"])
	})
}

func TestRetryValidation(t *testing.T) {
	t.Parallel()

	accountID := uuid.New()
	ev := appleEvent("txn-1")
	env := newTestEnv(t, stubValidator{ev: ev}, nil)

	code, resp := env.do(t, http.MethodPost, "/subscriptions/apple/txn-1/retry", nil)
	require.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "lineage_not_found", resp.Error.Code)

	failed := subscription.ProviderEvent{
		Provider:    subscription.ProviderApple,
		Outcome:     subscription.OutcomeFailed,
		AccountID:   accountID,
		LineageID:   "txn-1",
		OccurredAt:  time.Now().UTC().Add(-time.Hour),
		ReceiptBlob: "stored-blob",
		Note:        "receipt rejected with apple status 21003",
	}
	_, err := env.reconciler.Apply(context.Background(), failed)
	require.NoError(t, err)

	code, resp = env.do(t, http.MethodPost, "/subscriptions/apple/txn-1/retry", nil)
	require.Equal(t, http.StatusOK, code)
	sub := decodeData[subscriptionBody](t, resp)
	assert.Equal(t, "active", sub.Status)
	assert.Equal(t, "validated", sub.ValidationStatus)

	// Active rows are not retryable.
	code, resp = env.do(t, http.MethodPost, "/subscriptions/apple/txn-1/retry", nil)
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "not_retryable", resp.Error.Code)
}
