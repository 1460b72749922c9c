package billing

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/orbitnotes/entitlements/pkg/subscription"
)

// Intake turns verified card-processor notifications into provider events.
type Intake struct {
	dedup DedupSet
	log   *slog.Logger
}

// NewIntake creates an Intake. Panics on a nil dedup set: idempotence is a
// hard requirement of the webhook contract, not an optional feature.
func NewIntake(dedup DedupSet, log *slog.Logger) *Intake {
	if dedup == nil {
		panic("billing: DedupSet is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Intake{dedup: dedup, log: log}
}

// Ingest validates and normalizes a notification. Replays of an already
// processed notification id return ErrDuplicateEvent so the caller can
// acknowledge the delivery without a second reconciler application.
func (i *Intake) Ingest(ctx context.Context, n Notification) (subscription.ProviderEvent, error) {
	if n.ID == "" {
		return subscription.ProviderEvent{}, ErrMissingNotificationID
	}
	if n.AccountID == uuid.Nil {
		return subscription.ProviderEvent{}, ErrMissingAccountID
	}
	if n.SubscriptionID == "" {
		return subscription.ProviderEvent{}, ErrMissingSubscriptionID
	}

	outcome, err := outcomeFor(n.Type)
	if err != nil {
		return subscription.ProviderEvent{}, err
	}

	first, err := i.dedup.MarkSeen(ctx, n.ID)
	if err != nil {
		return subscription.ProviderEvent{}, err
	}
	if !first {
		i.log.InfoContext(ctx, "duplicate billing notification absorbed",
			slog.String("notification_id", n.ID), slog.String("type", string(n.Type)))
		return subscription.ProviderEvent{}, ErrDuplicateEvent
	}

	return subscription.ProviderEvent{
		Provider:      subscription.ProviderCard,
		Outcome:       outcome,
		AccountID:     n.AccountID,
		ProductID:     n.PlanID,
		TransactionID: n.TransactionID,
		LineageID:     n.SubscriptionID,
		PurchasedAt:   n.OccurredAt,
		ExpiresAt:     n.ExpiresAt,
		OccurredAt:    n.OccurredAt,
	}, nil
}

func outcomeFor(t NotificationType) (subscription.Outcome, error) {
	switch t {
	case NotificationSubscriptionCreated, NotificationSubscriptionRenewed:
		return subscription.OutcomeValidated, nil
	case NotificationSubscriptionCanceled:
		return subscription.OutcomeCanceled, nil
	case NotificationPaymentFailed:
		return subscription.OutcomeFailed, nil
	default:
		return "", ErrUnsupportedEvent
	}
}
