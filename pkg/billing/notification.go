package billing

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType is the normalized card-processor event class.
type NotificationType string

const (
	NotificationSubscriptionCreated  NotificationType = "subscription_created"
	NotificationSubscriptionRenewed  NotificationType = "subscription_renewed"
	NotificationSubscriptionCanceled NotificationType = "subscription_canceled"
	NotificationPaymentFailed        NotificationType = "payment_failed"
)

// Notification is a verified, normalized card-processor callback. The webhook
// signature has already been checked by the source adapter; intake treats the
// payload as trusted input.
type Notification struct {
	// ID is the provider's notification id, the idempotency key for replays.
	ID   string
	Type NotificationType

	AccountID uuid.UUID
	PlanID    string

	// SubscriptionID is the provider's subscription id and serves as the
	// purchase lineage; TransactionID identifies the individual billing event.
	SubscriptionID string
	TransactionID  string

	OccurredAt time.Time
	// ExpiresAt is the end of the paid period when the provider reports one.
	ExpiresAt *time.Time
}
