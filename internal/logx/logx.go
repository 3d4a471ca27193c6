package logx

import (
	"context"
	"strings"
	"unicode/utf8"

	"pkt.systems/ascart/schema"
	"pkt.systems/pslog"
)

// DefaultPreview is the number of bytes kept when logging worker chatter.
const DefaultPreview = 200

type contextKey int

const widgetKey contextKey = iota

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// Or returns log, or the context-free default logger when log is nil.
func Or(log pslog.Logger) pslog.Logger {
	if log != nil {
		return log
	}
	return pslog.Ctx(context.Background())
}

// WithWidget annotates the logger with the widget id if present.
func WithWidget(log pslog.Logger, id schema.WidgetID) pslog.Logger {
	log = Or(log)
	if id != "" {
		log = log.With("widget", id)
	}
	return log
}

// WidgetCtx annotates the context logger with a widget id, skipping the
// field when the context already carries it.
func WidgetCtx(ctx context.Context, id schema.WidgetID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if current, ok := ctx.Value(widgetKey).(schema.WidgetID); ok && current == id {
		return log
	}
	return WithWidget(log, id)
}

// ContextWithWidget stores the widget marker on the context for log de-duplication.
func ContextWithWidget(ctx context.Context, log pslog.Logger, id schema.WidgetID) context.Context {
	if ctx == nil || id == "" {
		return ctx
	}
	ctx = pslog.ContextWithLogger(ctx, WithWidget(log, id))
	return context.WithValue(ctx, widgetKey, id)
}

// WithWorker annotates the logger with the worker binary and pid.
func WithWorker(log pslog.Logger, binary string, pid int) pslog.Logger {
	log = Or(log)
	if binary != "" {
		log = log.With("worker", binary)
	}
	if pid > 0 {
		log = log.With("pid", pid)
	}
	return log
}

// Preview truncates value to at most max bytes for diagnostics. Invalid
// UTF-8 is replaced and the cut never splits a rune.
func Preview(value string, max int) (string, bool) {
	value = strings.ToValidUTF8(strings.TrimSpace(value), "?")
	if max <= 0 || len(value) <= max {
		return value, false
	}
	return Truncate(value, max), true
}

// Truncate cuts value to at most max bytes on a rune boundary.
func Truncate(value string, max int) string {
	if max <= 0 || len(value) <= max {
		return value
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
