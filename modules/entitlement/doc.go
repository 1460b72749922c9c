// Package entitlement exposes the engine over HTTP: receipt validation,
// billing webhooks, usage and quota queries, and the account lifecycle
// actions (switch plan, cancel, resubscribe, manual override). Handlers are
// thin adapters over the ledger and reconciler; all state decisions live in
// those packages.
package entitlement
