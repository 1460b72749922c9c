// Package logger builds the service's slog.Logger: functional options for
// format, level and static attributes, plus context extractors that attach
// request-scoped values (like the request id) to every record at log time.
// Attribute constructors in attr.go keep key naming consistent across the
// codebase.
package logger
