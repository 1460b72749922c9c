// Package billing receives asynchronous notifications from the card payment
// authority and normalizes them into the same subscription.ProviderEvent
// vocabulary the receipt validator produces, so the reconciler has one code
// path for both providers.
//
// Ingest is idempotent: notification ids are tracked in a bounded-retention
// DedupSet (Redis with TTL in production, in-memory for tests) and replays
// are absorbed with ErrDuplicateEvent.
package billing
