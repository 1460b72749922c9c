package billing

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"
)

// PaddleConfig holds the card payment authority settings.
type PaddleConfig struct {
	// WebhookSecret enables the webhook source when set; deployments without
	// a card processor leave it empty.
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
}

// PaddleSource verifies and parses Paddle webhook deliveries into the
// normalized Notification shape. Signature verification happens here so
// everything downstream of the intake treats the payload as verified input.
type PaddleSource struct {
	verifier *paddle.WebhookVerifier
}

// NewPaddleSource creates a webhook source for the given secret.
func NewPaddleSource(cfg PaddleConfig) (*PaddleSource, error) {
	if cfg.WebhookSecret == "" {
		return nil, errors.New("paddle webhook secret is required")
	}
	return &PaddleSource{verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret)}, nil
}

type paddleEnvelope struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       struct {
		ID             string `json:"id"`
		SubscriptionID string `json:"subscription_id"`
		Status         string `json:"status"`
		CustomData     struct {
			AccountID string `json:"account_id"`
		} `json:"custom_data"`
		Items []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"items"`
		CurrentBillingPeriod struct {
			EndsAt *time.Time `json:"ends_at"`
		} `json:"current_billing_period"`
	} `json:"data"`
}

// Parse verifies the request signature and maps the payload to a
// Notification. Event types outside the subscription lifecycle return
// ErrUnsupportedEvent; the webhook handler acknowledges those without
// feeding the reconciler.
func (s *PaddleSource) Parse(r *http.Request) (Notification, error) {
	valid, err := s.verifier.Verify(r)
	if err != nil {
		return Notification{}, errors.Join(ErrSignatureVerification, err)
	}
	if !valid {
		return Notification{}, ErrSignatureVerification
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return Notification{}, errors.Join(ErrMalformedPayload, err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var env paddleEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Notification{}, errors.Join(ErrMalformedPayload, err)
	}

	kind, err := mapPaddleEventType(env.EventType)
	if err != nil {
		return Notification{}, err
	}

	accountID, err := uuid.Parse(env.Data.CustomData.AccountID)
	if err != nil {
		return Notification{}, errors.Join(ErrMissingAccountID, err)
	}

	n := Notification{
		ID:         env.EventID,
		Type:       kind,
		AccountID:  accountID,
		OccurredAt: env.OccurredAt.UTC(),
		ExpiresAt:  env.Data.CurrentBillingPeriod.EndsAt,
	}

	// Subscription events carry their own id; transaction events reference
	// the subscription they bill.
	n.SubscriptionID = env.Data.SubscriptionID
	if n.SubscriptionID == "" {
		n.SubscriptionID = env.Data.ID
	}
	n.TransactionID = env.Data.ID

	if len(env.Data.Items) > 0 {
		n.PlanID = env.Data.Items[0].Price.ID
	}
	return n, nil
}

func mapPaddleEventType(eventType string) (NotificationType, error) {
	switch eventType {
	case "subscription.created", "subscription.activated":
		return NotificationSubscriptionCreated, nil
	case "subscription.updated", "subscription.resumed":
		return NotificationSubscriptionRenewed, nil
	case "subscription.canceled":
		return NotificationSubscriptionCanceled, nil
	case "subscription.past_due", "transaction.payment_failed":
		return NotificationPaymentFailed, nil
	default:
		return "", ErrUnsupportedEvent
	}
}
