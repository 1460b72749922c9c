// Package reconciler applies normalized provider events to subscription
// state. It is the single writer of subscription rows: receipt validation,
// billing webhooks, account actions and manual overrides all funnel through
// Apply, which serializes work per account, enforces the lifecycle state
// machine, keeps at most one subscription active per account, and resets the
// usage ledger exactly when an account's effective plan lineage changes.
//
// Events that arrive out of order are discarded by comparing their occurrence
// time against the row's last validation time, so replaying a webhook backlog
// is always safe.
package reconciler
