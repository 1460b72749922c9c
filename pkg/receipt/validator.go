package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/orbitnotes/entitlements/pkg/subscription"
)

// Validator talks to the Apple receipt authority.
type Validator struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger
	now    func() time.Time
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithHTTPClient overrides the HTTP client, used by tests.
func WithHTTPClient(client *http.Client) ValidatorOption {
	return func(v *Validator) {
		if client != nil {
			v.client = client
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(log *slog.Logger) ValidatorOption {
	return func(v *Validator) {
		if log != nil {
			v.log = log
		}
	}
}

// WithNow overrides the clock, used by tests.
func WithNow(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

// NewValidator creates a Validator for the configured endpoints.
func NewValidator(cfg Config, opts ...ValidatorOption) *Validator {
	v := &Validator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		log:    slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate submits the receipt blob to the production endpoint, resubmitting
// once to the sandbox (or back) on an environment mismatch — a documented
// provider quirk, not a failure. Transient trouble returns a retryable
// *ValidationError; a structurally invalid receipt returns a ProviderEvent
// with a failed outcome so the reconciler can record it.
func (v *Validator) Validate(ctx context.Context, receiptBlob string, accountID uuid.UUID) (subscription.ProviderEvent, error) {
	if receiptBlob == "" {
		return subscription.ProviderEvent{}, &ValidationError{Err: ErrEmptyReceipt}
	}

	resp, err := v.submit(ctx, v.cfg.ProductionURL, receiptBlob)
	if err != nil {
		return subscription.ProviderEvent{}, err
	}

	if isEnvironmentMismatch(resp.Status) {
		other := v.cfg.SandboxURL
		if resp.Status == statusProdToSandbox {
			other = v.cfg.ProductionURL
		}
		v.log.InfoContext(ctx, "receipt issued by the other environment, resubmitting",
			slog.Int("apple_status", resp.Status), slog.String("account_id", accountID.String()))
		resp, err = v.submit(ctx, other, receiptBlob)
		if err != nil {
			return subscription.ProviderEvent{}, err
		}
	}

	return v.classify(ctx, resp, receiptBlob, accountID)
}

func (v *Validator) submit(ctx context.Context, url, receiptBlob string) (*verifyResponse, error) {
	payload, err := json.Marshal(verifyRequest{
		ReceiptData:            receiptBlob,
		Password:               v.cfg.SharedSecret,
		ExcludeOldTransactions: false,
	})
	if err != nil {
		return nil, &ValidationError{Err: fmt.Errorf("marshal verify request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &ValidationError{Err: fmt.Errorf("build verify request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := v.client.Do(req)
	if err != nil {
		return nil, &ValidationError{Retryable: true, Err: fmt.Errorf("receipt authority unreachable: %w", err)}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= http.StatusInternalServerError {
		return nil, &ValidationError{Retryable: true, Err: fmt.Errorf("receipt authority returned HTTP %d", httpResp.StatusCode)}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &ValidationError{Err: fmt.Errorf("receipt authority returned HTTP %d", httpResp.StatusCode)}
	}

	var resp verifyResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, &ValidationError{Retryable: true, Err: fmt.Errorf("decode verify response: %w", err)}
	}
	return &resp, nil
}

func (v *Validator) classify(ctx context.Context, resp *verifyResponse, receiptBlob string, accountID uuid.UUID) (subscription.ProviderEvent, error) {
	if isTransientStatus(resp.Status) {
		return subscription.ProviderEvent{}, &ValidationError{
			Retryable:   true,
			AppleStatus: resp.Status,
			Err:         fmt.Errorf("receipt authority temporarily unavailable"),
		}
	}

	switch resp.Status {
	case statusOK, statusSubscriptionLapsed:
		info, ok := latestTransaction(resp.LatestReceiptInfo)
		if !ok {
			return subscription.ProviderEvent{}, &ValidationError{AppleStatus: resp.Status, Err: ErrNoTransaction}
		}
		ev := v.normalize(info, resp.Environment, receiptBlob, accountID)
		if resp.Status == statusSubscriptionLapsed {
			ev.Outcome = subscription.OutcomeExpired
		}
		return ev, nil
	default:
		// Malformed blob, failed signature, wrong shared secret: terminal.
		// The reconciler records the failure; it never downgrades an
		// unrelated active subscription.
		v.log.WarnContext(ctx, "receipt rejected by authority",
			slog.Int("apple_status", resp.Status), slog.String("account_id", accountID.String()))
		return subscription.ProviderEvent{
			Provider:   subscription.ProviderApple,
			Outcome:    subscription.OutcomeFailed,
			AccountID:  accountID,
			LineageID:  failedLineageID(receiptBlob),
			OccurredAt: v.now(),
			Note:       fmt.Sprintf("receipt rejected with apple status %d", resp.Status),
		}, nil
	}
}

func (v *Validator) normalize(info receiptInfo, environment, receiptBlob string, accountID uuid.UUID) subscription.ProviderEvent {
	ev := subscription.ProviderEvent{
		Provider:      subscription.ProviderApple,
		Outcome:       subscription.OutcomeValidated,
		AccountID:     accountID,
		ProductID:     info.ProductID,
		TransactionID: info.TransactionID,
		LineageID:     info.OriginalTransactionID,
		PurchasedAt:   msToTime(info.PurchaseDateMs),
		IsTrial:       appleBool(info.IsTrialPeriod),
		IsIntroOffer:  appleBool(info.IsInIntroOfferPeriod),
		Environment:   environment,
		OccurredAt:    v.now(),
		ReceiptBlob:   receiptBlob,
	}
	if expires := msToTime(info.ExpiresDateMs); !expires.IsZero() {
		ev.ExpiresAt = &expires
	}
	return ev
}

// failedLineageID derives a stable lineage for receipts Apple rejected before
// any transaction facts were available, so repeated submissions of the same
// bad blob land on the same failed row.
func failedLineageID(receiptBlob string) string {
	return "invalid-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(receiptBlob)).String()
}
