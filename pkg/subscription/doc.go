// Package subscription defines the core entitlement domain model: subscription
// records, their lifecycle statuses, and the provider-agnostic ProviderEvent
// that both payment authorities (Apple receipts and the card processor) are
// normalized into before reconciliation.
//
// The package also defines the Store contract for subscription persistence
// with in-memory and PostgreSQL implementations. All state transitions are
// performed by the reconciler package; this package holds data and contracts
// only.
package subscription
