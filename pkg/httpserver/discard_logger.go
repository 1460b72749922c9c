package httpserver

import (
	"context"
	"log/slog"
)

// discardHandler drops every record. Used when no logger option is given so
// the server never has to nil-check before logging.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }

func newDiscardLogger() *slog.Logger {
	return slog.New(discardHandler{})
}
