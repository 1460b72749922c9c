// Package redis connects to the Redis instance backing the billing dedup set.
// It mirrors the pg package: env-driven Config, a retrying Connect, and a
// health check closure.
package redis
