package logctx

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
)

// SinkConfig selects what the drain goroutine ultimately writes to.
type SinkConfig struct {
	// ServiceName tags every record exported through OTel.
	ServiceName string
	// Telemetry turns on the otelslog bridge alongside the JSON sink. The
	// actual exporter endpoint is configured the same way the OTel SDK's
	// autoexport always is — OTEL_EXPORTER_OTLP_* environment variables —
	// rather than through Go-level wiring here.
	Telemetry bool
}

// NewSink builds the handler chain the background drain goroutine hands
// records to: always a JSON handler on stderr, and — when telemetry export
// is enabled — also an OTel logger bridged in via otelslog, with both
// handlers invoked for every record via slog's fan-out idiom (a small
// multiHandler, since the standard library doesn't ship one).
func NewSink(cfg SinkConfig) slog.Handler {
	json := slog.NewJSONHandler(os.Stderr, nil)

	if !cfg.Telemetry {
		return json
	}

	bridge := otelslog.NewLogger(cfg.ServiceName).Handler()
	return multiHandler{json, bridge}
}

// multiHandler fans a record out to every handler in order, matching
// slog.Handler's interface. Errors from later handlers don't stop earlier
// ones from having already run.
type multiHandler []slog.Handler

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithGroup(name)
	}
	return out
}
