package logctx

import (
	"context"
	"log/slog"
	"sync"
	"testing"
)

type collectingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *collectingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *collectingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *collectingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *collectingHandler) WithGroup(string) slog.Handler      { return h }

func (h *collectingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

func TestLoggerDrainsQueuedRecordsBeforeClose(t *testing.T) {
	sink := &collectingHandler{}
	l := New(Config{Enabled: true, Level: slog.LevelInfo, QueueSize: 16}, sink)

	l.Info("first")
	l.Info("second")
	l.Warn("third")
	l.Close()

	if got := sink.count(); got != 3 {
		t.Fatalf("sink received %d records, want 3", got)
	}
}

func TestLoggerFiltersBelowConfiguredLevel(t *testing.T) {
	sink := &collectingHandler{}
	l := New(Config{Enabled: true, Level: slog.LevelWarn, QueueSize: 16}, sink)

	l.Debug("dropped")
	l.Info("dropped too")
	l.Error("kept")
	l.Close()

	if got := sink.count(); got != 1 {
		t.Fatalf("sink received %d records, want 1", got)
	}
}

func TestDisabledLoggerNeverTouchesSink(t *testing.T) {
	sink := &collectingHandler{}
	l := New(Config{Enabled: false}, sink)

	l.Error("should be discarded")
	l.Close()

	if got := sink.count(); got != 0 {
		t.Fatalf("sink received %d records, want 0", got)
	}
}
