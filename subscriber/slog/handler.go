package slogsubscriber

import (
	"context"
	"log/slog"
	"sync"

	"github.com/trickstertwo/alog"
)

// Handler is a slog.Handler that turns slog records into alog records and
// delivers them through a Caller. slog loggers may be shared across
// goroutines, so the Caller is guarded by a mutex shared with every handler
// derived through WithAttrs or WithGroup.
type Handler struct {
	mu     *sync.Mutex
	c      *alog.Caller
	prefix string
	bound  []alog.Field
}

var _ slog.Handler = (*Handler)(nil)

func NewHandler(c *alog.Caller) *Handler {
	return &Handler{mu: &sync.Mutex{}, c: c}
}

func (h *Handler) Enabled(_ context.Context, l slog.Level) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.c.Enabled(fromSlog(l))
}

// Handle renders r into an owned record. Delivery errors are returned to the
// slog.Logger, which discards them.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	fields := make([]alog.Field, 0, len(h.bound)+r.NumAttrs())
	fields = append(fields, h.bound...)
	r.Attrs(func(a slog.Attr) bool {
		fields = appendAttr(fields, h.prefix, a)
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	rec := alog.Record{
		Level:   fromSlog(r.Level),
		Time:    r.Time,
		Target:  h.c.Target(),
		Message: r.Message,
		Fields:  fields,
		Unit:    h.c.Unit(),
	}
	if rec.Time.IsZero() {
		rec.Time = h.c.Now()
	}
	return h.c.Deliver(rec)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	child := *h
	child.bound = make([]alog.Field, 0, len(h.bound)+len(attrs))
	child.bound = append(child.bound, h.bound...)
	for _, a := range attrs {
		child.bound = appendAttr(child.bound, h.prefix, a)
	}
	return &child
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	child := *h
	child.prefix = h.prefix + name + "."
	return &child
}

// fromSlog rounds custom slog levels down to the nearest alog level.
func fromSlog(l slog.Level) alog.Level {
	switch lv := alog.Level(l); {
	case lv < alog.LevelDebug:
		return alog.LevelTrace
	case lv < alog.LevelInfo:
		return alog.LevelDebug
	case lv < alog.LevelWarn:
		return alog.LevelInfo
	case lv < alog.LevelError:
		return alog.LevelWarn
	default:
		return alog.LevelError
	}
}

// appendAttr flattens groups into dotted keys.
func appendAttr(dst []alog.Field, prefix string, a slog.Attr) []alog.Field {
	v := a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return dst
	}
	key := prefix + a.Key
	switch v.Kind() {
	case slog.KindGroup:
		p := prefix
		if a.Key != "" {
			p = key + "."
		}
		for _, ga := range v.Group() {
			dst = appendAttr(dst, p, ga)
		}
		return dst
	case slog.KindString:
		return append(dst, alog.Str(key, v.String()))
	case slog.KindInt64:
		return append(dst, alog.Int64(key, v.Int64()))
	case slog.KindUint64:
		return append(dst, alog.Uint64(key, v.Uint64()))
	case slog.KindFloat64:
		return append(dst, alog.Float64(key, v.Float64()))
	case slog.KindBool:
		return append(dst, alog.Bool(key, v.Bool()))
	case slog.KindDuration:
		return append(dst, alog.Dur(key, v.Duration()))
	case slog.KindTime:
		return append(dst, alog.Time(key, v.Time()))
	default:
		if err, ok := v.Any().(error); ok {
			return append(dst, alog.Err(key, err))
		}
		return append(dst, alog.Any(key, v.Any()))
	}
}
