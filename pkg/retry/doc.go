// Package retry provides backoff strategies and a context-aware retry loop
// for outbound calls to the payment authorities.
package retry
