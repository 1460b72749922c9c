package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/orbitnotes/entitlements/pkg/receipt"
	"github.com/orbitnotes/entitlements/pkg/subscription"
)

// Revalidator re-checks a stored receipt blob against its payment authority.
// Satisfied by receipt.Validator and receipt.RetryingValidator.
type Revalidator interface {
	Validate(ctx context.Context, receiptBlob string, accountID uuid.UUID) (subscription.ProviderEvent, error)
}

// RecordPendingValidation persists a pending row for a receipt whose
// authority could not be reached, so the sweep re-validates it server-side
// instead of depending on the client to resubmit. The lineage id is derived
// from the blob, which makes resubmissions of the same receipt idempotent.
// Once the sweep obtains a terminal answer the row transitions like any other.
func (r *Reconciler) RecordPendingValidation(ctx context.Context, accountID uuid.UUID, receiptBlob string) (*subscription.Subscription, error) {
	if receiptBlob == "" {
		return nil, receipt.ErrEmptyReceipt
	}
	lineageID := "deferred-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(receiptBlob)).String()

	release := r.locks.acquire(accountID)
	defer release()

	row, err := r.store.GetByLineage(ctx, subscription.ProviderApple, lineageID)
	switch {
	case err == nil:
		return row, nil
	case !errors.Is(err, subscription.ErrNotFound):
		return nil, err
	}

	now := r.now()
	row = &subscription.Subscription{
		ID:                            uuid.New(),
		AccountID:                     accountID,
		Status:                        subscription.StatusPending,
		Provider:                      subscription.ProviderApple,
		ProviderOriginalTransactionID: lineageID,
		StartAt:                       now,
		ValidationStatus:              subscription.ValidationPending,
		ReceiptBlob:                   receiptBlob,
		Note:                          "validation deferred, receipt authority unreachable",
		CreatedAt:                     now,
		UpdatedAt:                     now,
	}
	if err := r.store.Create(ctx, row); err != nil {
		return nil, err
	}

	r.log.InfoContext(ctx, "receipt validation deferred",
		slog.String("account_id", accountID.String()),
		slog.String("lineage_id", lineageID))
	return row, nil
}

// Retry moves a failed lineage back to pending and, when a receipt blob was
// retained, re-validates it immediately. The resulting event flows through
// Apply like any other. Rows without a stored blob stay pending until the
// provider reports again or the sweep gives up on them.
func (r *Reconciler) Retry(ctx context.Context, revalidator Revalidator, provider subscription.Provider, lineageID string) (*subscription.Subscription, error) {
	row, err := r.store.GetByLineage(ctx, provider, lineageID)
	if err != nil {
		return nil, err
	}
	if row.Status != subscription.StatusFailed {
		return nil, fmt.Errorf("%w: lineage is %s", ErrNotRetryable, row.Status)
	}

	release := r.locks.acquire(row.AccountID)
	row.Status = subscription.StatusPending
	row.ValidationStatus = subscription.ValidationPending
	row.UpdatedAt = r.now()
	err = r.store.Update(ctx, row)
	release()
	if err != nil {
		return nil, err
	}

	if row.ReceiptBlob == "" || revalidator == nil {
		return row, nil
	}
	return r.revalidate(ctx, revalidator, row)
}

// SweepPending re-validates rows stuck in pending longer than olderThan.
// Rows the authority is still flaky about are left for the next sweep; rows
// with no stored receipt to re-check are marked failed so they stop cycling.
func (r *Reconciler) SweepPending(ctx context.Context, revalidator Revalidator, olderThan time.Duration) error {
	cutoff := r.now().Add(-olderThan)
	rows, err := r.store.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	var errs []error
	for _, row := range rows {
		if row.ReceiptBlob == "" || revalidator == nil {
			_, err := r.Apply(ctx, subscription.ProviderEvent{
				Provider:   row.Provider,
				Outcome:    subscription.OutcomeFailed,
				AccountID:  row.AccountID,
				LineageID:  row.ProviderOriginalTransactionID,
				OccurredAt: r.now(),
				Note:       "validation never completed",
			})
			if err != nil && !errors.Is(err, ErrStaleEvent) {
				errs = append(errs, err)
			}
			continue
		}

		if _, err := r.revalidate(ctx, revalidator, row); err != nil {
			if receipt.IsRetryable(err) {
				r.log.WarnContext(ctx, "revalidation still unavailable, leaving row pending",
					slog.String("lineage_id", row.ProviderOriginalTransactionID))
				continue
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Reconciler) revalidate(ctx context.Context, revalidator Revalidator, row *subscription.Subscription) (*subscription.Subscription, error) {
	ev, err := revalidator.Validate(ctx, row.ReceiptBlob, row.AccountID)
	if err != nil {
		return nil, err
	}
	// The authority derives the lineage from the blob; pin it to the row we
	// are retrying in case the stored blob now reports a later transaction.
	ev.LineageID = row.ProviderOriginalTransactionID
	return r.Apply(ctx, ev)
}
