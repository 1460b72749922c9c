// Package ledger meters per-account resource usage against plan ceilings.
//
// Resource services call CheckQuota before a mutation and Consume after a
// successful creation. Consume is a single atomic conditional increment at
// the store level, so two concurrent creations cannot both slip through at
// the ceiling boundary.
//
// Counters are keyed by (account, resource kind, window start). Resources
// without a reset window use a fixed epoch window and are cumulative for the
// lifetime of the active subscription generation; AI insights roll over at
// the window anchor (UTC midnight by default). Stale windows become dead rows
// that GC removes asynchronously.
package ledger
