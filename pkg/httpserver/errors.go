package httpserver

import "errors"

var (
	// ErrStart wraps failures to bind or serve on the configured address.
	ErrStart = errors.New("http server failed to start")
	// ErrShutdown wraps failures to drain in-flight requests before the
	// shutdown deadline.
	ErrShutdown = errors.New("http server failed to shut down cleanly")
)
