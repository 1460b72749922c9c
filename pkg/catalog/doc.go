// Package catalog holds the plan definitions and their resource ceilings.
//
// Plans are immutable per version: changing a limit creates a new plan id so
// existing subscriptions keep deterministic semantics. The catalog is loaded
// once at startup from a Source (static map or YAML file) and is read-only
// afterwards, so lookups need no synchronization.
package catalog
