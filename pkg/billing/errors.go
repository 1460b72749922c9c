package billing

import "errors"

var (
	// ErrDuplicateEvent marks a replayed notification id. Callers absorb it:
	// the first delivery already reached the reconciler.
	ErrDuplicateEvent = errors.New("billing notification already processed")

	ErrMissingNotificationID = errors.New("billing notification has no id")
	ErrMissingAccountID      = errors.New("billing notification has no account id")
	ErrMissingSubscriptionID = errors.New("billing notification has no subscription id")
	ErrUnsupportedEvent      = errors.New("unsupported billing notification type")

	ErrSignatureVerification = errors.New("webhook signature verification failed")
	ErrMalformedPayload      = errors.New("malformed webhook payload")
)
