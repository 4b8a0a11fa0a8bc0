// asynchronous structured logging: a slog.Handler that pushes records onto
// a bounded deque and a background goroutine that drains them into the
// real handler chain, so a slow sink only stalls the reactor or a worker
// once the queue is full
package logctx

import (
	"context"
	"log/slog"

	"github.com/kfcemployee/tinyreactor/internal/deque"
)

// Config mirrors the original's open_log/log_level/log_queue_size trio.
type Config struct {
	Enabled   bool
	Level     slog.Level
	QueueSize int // <=0 falls back to a sane default
}

// Logger owns the async drain goroutine; Close must run before process
// exit so queued records aren't lost.
type Logger struct {
	*slog.Logger

	queue *deque.Deque[slog.Record]
	done  chan struct{}
}

// New builds a Logger that fans every record through queue before it
// reaches sink. When cfg.Enabled is false, New returns a Logger that
// discards every record: no queue, no drain goroutine, and sink is never
// called.
func New(cfg Config, sink slog.Handler) *Logger {
	if !cfg.Enabled {
		return &Logger{Logger: slog.New(discardHandler{})}
	}

	size := cfg.QueueSize
	if size <= 0 {
		size = 1024
	}

	l := &Logger{
		queue: deque.New[slog.Record](size),
		done:  make(chan struct{}),
	}
	leveled := &levelFilter{level: cfg.Level, next: l.queue}
	l.Logger = slog.New(leveled)

	go l.drain(sink)
	return l
}

// drain runs on its own goroutine for the Logger's lifetime, popping
// records off the queue and handing them to sink until Close's Deque.Close
// has flushed and drained whatever was still queued.
func (l *Logger) drain(sink slog.Handler) {
	defer close(l.done)
	for {
		rec, ok := l.queue.PopFront()
		if !ok {
			return
		}
		_ = sink.Handle(context.Background(), rec)
	}
}

// Flush wakes the drain goroutine without closing the queue. It returns at
// once and does not wait for queued records to reach the sink.
func (l *Logger) Flush() {
	if l.queue != nil {
		l.queue.Flush()
	}
}

// Close closes the queue (delivering whatever was already pushed before
// returning — see deque.Deque's close-drains-first semantics) and blocks
// until the drain goroutine has processed it all.
func (l *Logger) Close() {
	if l.queue == nil {
		return
	}
	l.queue.Close()
	<-l.done
}

// levelFilter is the slog.Handler installed on the public *slog.Logger; it
// enforces the configured minimum level and otherwise just pushes the
// record onto the deque for the drain goroutine to format and ship.
type levelFilter struct {
	level slog.Level
	next  *deque.Deque[slog.Record]
	attrs []slog.Attr
	group string
}

func (h *levelFilter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *levelFilter) Handle(_ context.Context, r slog.Record) error {
	if len(h.attrs) > 0 {
		r.AddAttrs(h.attrs...)
	}
	h.next.PushBack(r)
	return nil
}

func (h *levelFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &levelFilter{level: h.level, next: h.next, attrs: merged, group: h.group}
}

func (h *levelFilter) WithGroup(name string) slog.Handler {
	return &levelFilter{level: h.level, next: h.next, attrs: h.attrs, group: name}
}

// discardHandler backs a disabled Logger: every record is dropped, no
// queue, no background goroutine.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler              { return discardHandler{} }
