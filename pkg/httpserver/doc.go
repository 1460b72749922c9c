// Package httpserver wraps net/http with graceful shutdown, env-driven
// timeouts and a health check handler. Run blocks until the context is
// canceled or an interrupt/TERM signal arrives, then drains in-flight
// requests within the shutdown deadline.
package httpserver
