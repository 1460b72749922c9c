package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/orbitnotes/entitlements/pkg/billing"
	"github.com/orbitnotes/entitlements/pkg/catalog"
	"github.com/orbitnotes/entitlements/pkg/ledger"
	"github.com/orbitnotes/entitlements/pkg/logger"
	"github.com/orbitnotes/entitlements/pkg/receipt"
	"github.com/orbitnotes/entitlements/pkg/reconciler"
	"github.com/orbitnotes/entitlements/pkg/subscription"
)

// ReceiptValidator abstracts the Apple receipt authority for the handler.
type ReceiptValidator interface {
	Validate(ctx context.Context, receiptBlob string, accountID uuid.UUID) (subscription.ProviderEvent, error)
}

// WebhookSource verifies and parses billing webhook deliveries.
type WebhookSource interface {
	Parse(r *http.Request) (billing.Notification, error)
}

// Handler serves the entitlement API.
type Handler struct {
	catalog    *catalog.Catalog
	ledger     *ledger.Service
	reconciler *reconciler.Reconciler
	validator  ReceiptValidator
	intake     *billing.Intake
	webhooks   WebhookSource
	log        *slog.Logger
}

// NewHandler creates the API handler. Panics on nil core dependencies; the
// webhook source is optional so deployments without a card processor still
// start.
func NewHandler(
	cat *catalog.Catalog,
	led *ledger.Service,
	rec *reconciler.Reconciler,
	validator ReceiptValidator,
	intake *billing.Intake,
	webhooks WebhookSource,
	log *slog.Logger,
) *Handler {
	if cat == nil {
		panic("entitlement: catalog is required")
	}
	if led == nil {
		panic("entitlement: ledger is required")
	}
	if rec == nil {
		panic("entitlement: reconciler is required")
	}
	if validator == nil {
		panic("entitlement: receipt validator is required")
	}
	if intake == nil {
		panic("entitlement: billing intake is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		catalog:    cat,
		ledger:     led,
		reconciler: rec,
		validator:  validator,
		intake:     intake,
		webhooks:   webhooks,
		log:        log,
	}
}

type validateReceiptRequest struct {
	AccountID string `json:"account_id"`
	Receipt   string `json:"receipt_blob"`
	// ClaimedProductID is the client's claim; the authority's answer wins.
	ClaimedProductID string `json:"claimed_product_id"`
}

// validateReceipt submits a client receipt for validation. A transient
// authority failure answers 202 so the client resubmits later; the
// subscription stays pending in the meantime.
func (h *Handler) validateReceipt(w http.ResponseWriter, r *http.Request) {
	var req validateReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed_request", "request body is not valid JSON")
		return
	}
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_account_id", "account_id must be a UUID")
		return
	}
	if req.Receipt == "" {
		respondError(w, http.StatusBadRequest, "empty_receipt", "receipt_blob is required")
		return
	}

	ev, err := h.validator.Validate(r.Context(), req.Receipt, accountID)
	if err != nil {
		if receipt.IsRetryable(err) {
			h.log.WarnContext(r.Context(), "receipt authority unavailable",
				logger.AccountID(accountID), logger.Error(err))
			// Keep the blob on a pending row so the sweep re-validates it
			// even if the client never resubmits.
			sub, perr := h.reconciler.RecordPendingValidation(r.Context(), accountID, req.Receipt)
			if perr != nil {
				h.log.ErrorContext(r.Context(), "deferring receipt validation failed",
					logger.AccountID(accountID), logger.Error(perr))
				respondError(w, http.StatusInternalServerError, "internal_error", "receipt could not be queued for validation")
				return
			}
			respondData(w, http.StatusAccepted, map[string]any{
				"status":       "pending",
				"subscription": toSubscriptionPayload(sub),
			})
			return
		}
		respondError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
		return
	}
	if req.ClaimedProductID != "" && ev.ProductID != "" && req.ClaimedProductID != ev.ProductID {
		h.log.WarnContext(r.Context(), "claimed product differs from validated receipt",
			logger.AccountID(accountID),
			slog.String("claimed", req.ClaimedProductID),
			slog.String("validated", ev.ProductID))
	}

	sub, err := h.reconciler.Apply(r.Context(), ev)
	if err != nil {
		h.respondReconcileError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, toSubscriptionPayload(sub))
}

// billingWebhook ingests card processor notifications. Duplicates, stale
// retransmissions and event types outside the subscription lifecycle are all
// acknowledged with 200 so the processor stops redelivering.
func (h *Handler) billingWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhooks == nil {
		respondError(w, http.StatusNotImplemented, "webhooks_disabled", "no billing webhook source configured")
		return
	}

	notification, err := h.webhooks.Parse(r)
	switch {
	case errors.Is(err, billing.ErrSignatureVerification):
		respondError(w, http.StatusUnauthorized, "invalid_signature", "webhook signature verification failed")
		return
	case errors.Is(err, billing.ErrUnsupportedEvent):
		respondData(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, "malformed_payload", err.Error())
		return
	}

	ev, err := h.intake.Ingest(r.Context(), notification)
	switch {
	case errors.Is(err, billing.ErrDuplicateEvent):
		respondData(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, "invalid_notification", err.Error())
		return
	}

	sub, err := h.reconciler.Apply(r.Context(), ev)
	switch {
	case errors.Is(err, reconciler.ErrStaleEvent):
		respondData(w, http.StatusOK, map[string]string{"status": "stale"})
		return
	case err != nil:
		h.respondReconcileError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, toSubscriptionPayload(sub))
}

func (h *Handler) usage(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	usage, err := h.ledger.Snapshot(r.Context(), accountID)
	if err != nil {
		h.respondLedgerError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, toUsagePayload(usage))
}

func (h *Handler) checkQuota(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	kind, ok := resourceParam(w, r)
	if !ok {
		return
	}
	quota, err := h.ledger.CheckQuota(r.Context(), accountID, kind)
	if err != nil {
		h.respondLedgerError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, toQuotaPayload(quota))
}

// consume records one unit of usage. At the ceiling it answers 403 with the
// limit_reached code; resource services treat that as a paywall trigger, not
// an error.
func (h *Handler) consume(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	kind, ok := resourceParam(w, r)
	if !ok {
		return
	}

	err := h.ledger.Consume(r.Context(), accountID, kind)
	if errors.Is(err, ledger.ErrQuotaExceeded) {
		respondError(w, http.StatusForbidden, "limit_reached", "resource quota exceeded for the current plan")
		return
	}
	if err != nil {
		h.respondLedgerError(w, r, err)
		return
	}

	quota, err := h.ledger.CheckQuota(r.Context(), accountID, kind)
	if err != nil {
		h.respondLedgerError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, toQuotaPayload(quota))
}

type switchPlanRequest struct {
	PlanID string `json:"target_plan_id"`
}

func (h *Handler) switchPlan(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	var req switchPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlanID == "" {
		respondError(w, http.StatusBadRequest, "malformed_request", "target_plan_id is required")
		return
	}

	sub, err := h.reconciler.SwitchPlan(r.Context(), accountID, req.PlanID)
	if err != nil {
		h.respondReconcileError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, toSubscriptionPayload(sub))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	sub, err := h.reconciler.Cancel(r.Context(), accountID)
	if errors.Is(err, reconciler.ErrNoActiveSubscription) {
		respondError(w, http.StatusNotFound, "no_active_subscription", "account has no active subscription to cancel")
		return
	}
	if err != nil {
		h.respondReconcileError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, toSubscriptionPayload(sub))
}

func (h *Handler) resubscribe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	sub, err := h.reconciler.Resubscribe(r.Context(), accountID)
	if errors.Is(err, reconciler.ErrNotResubscribable) {
		respondError(w, http.StatusConflict, "not_resubscribable", err.Error())
		return
	}
	if err != nil {
		h.respondReconcileError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, toSubscriptionPayload(sub))
}

type overrideRequest struct {
	PlanID  string `json:"plan_id"`
	Outcome string `json:"outcome"`
	Note    string `json:"note"`
}

// override applies a manual support action. The note is the audit trail and
// is mandatory.
func (h *Handler) override(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed_request", "request body is not valid JSON")
		return
	}
	if req.Note == "" {
		respondError(w, http.StatusBadRequest, "missing_note", "manual overrides require an audit note")
		return
	}
	outcome := subscription.Outcome(req.Outcome)
	if outcome == "" {
		outcome = subscription.OutcomeValidated
	}

	sub, err := h.reconciler.Override(r.Context(), accountID, req.PlanID, outcome, req.Note)
	if err != nil {
		h.respondReconcileError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, toSubscriptionPayload(sub))
}

// retryValidation re-validates a failed lineage from its stored receipt.
func (h *Handler) retryValidation(w http.ResponseWriter, r *http.Request) {
	provider := subscription.Provider(chi.URLParam(r, "provider"))
	lineageID := chi.URLParam(r, "lineageID")

	sub, err := h.reconciler.Retry(r.Context(), h.validator, provider, lineageID)
	switch {
	case errors.Is(err, subscription.ErrNotFound):
		respondError(w, http.StatusNotFound, "lineage_not_found", "no subscription for that lineage")
		return
	case errors.Is(err, reconciler.ErrNotRetryable):
		respondError(w, http.StatusConflict, "not_retryable", err.Error())
		return
	case receipt.IsRetryable(err):
		respondData(w, http.StatusAccepted, map[string]string{"status": "pending"})
		return
	case err != nil:
		h.respondReconcileError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, toSubscriptionPayload(sub))
}

func (h *Handler) plans(w http.ResponseWriter, r *http.Request) {
	plans := h.catalog.Plans()
	out := make([]planPayload, 0, len(plans))
	for _, plan := range plans {
		out = append(out, toPlanPayload(plan))
	}
	respondData(w, http.StatusOK, out)
}

func (h *Handler) respondReconcileError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, reconciler.ErrStaleEvent):
		respondError(w, http.StatusConflict, "stale_event", err.Error())
	case errors.Is(err, reconciler.ErrInvalidTransition):
		respondError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, reconciler.ErrUnknownPlan), errors.Is(err, catalog.ErrPlanNotFound):
		respondError(w, http.StatusNotFound, "plan_not_found", "no such plan in the catalog")
	case errors.Is(err, subscription.ErrMissingNote):
		respondError(w, http.StatusBadRequest, "missing_note", "manual events require an audit note")
	case errors.Is(err, subscription.ErrNotFound):
		respondError(w, http.StatusNotFound, "subscription_not_found", "no such subscription")
	default:
		h.log.ErrorContext(r.Context(), "reconciliation failed", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "subscription state could not be updated")
	}
}

func (h *Handler) respondLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrUnknownResource):
		respondError(w, http.StatusBadRequest, "unknown_resource", "resource kind is not metered")
	case errors.Is(err, catalog.ErrPlanNotFound):
		respondError(w, http.StatusNotFound, "plan_not_found", "account resolves to a plan missing from the catalog")
	default:
		h.log.ErrorContext(r.Context(), "usage lookup failed", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "usage state could not be read")
	}
}

func accountIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_account_id", "accountID must be a UUID")
		return uuid.Nil, false
	}
	return accountID, true
}

func resourceParam(w http.ResponseWriter, r *http.Request) (catalog.ResourceKind, bool) {
	kind := catalog.ResourceKind(chi.URLParam(r, "resource"))
	for _, known := range catalog.Kinds() {
		if kind == known {
			return kind, true
		}
	}
	respondError(w, http.StatusBadRequest, "unknown_resource", "resource kind is not metered")
	return "", false
}
