package alog

import (
	"fmt"
	"sync"
	"time"
)

// Event is a fluent builder (Builder pattern) for a single record.
// API: caller.Info().Str("addr", addr).Dur("took", d).Msg("listening")
//
// A nil *Event is valid and discards everything; the level entry points
// return nil when the bound logger would filter the record.
type Event struct {
	c      *Caller
	level  Level
	fields []Field
}

var eventPool = sync.Pool{
	New: func() any { return &Event{fields: make([]Field, 0, 8)} },
}

func getEvent(c *Caller, level Level) *Event {
	if !c.Enabled(level) {
		return nil
	}
	ev := eventPool.Get().(*Event)
	ev.c = c
	ev.level = level
	ev.fields = ev.fields[:0]
	return ev
}

func (e *Event) putBack() {
	// allow GC of large backing arrays by capping
	if cap(e.fields) > 128 {
		e.fields = make([]Field, 0, 8)
	}
	e.c = nil
	e.level = 0
	eventPool.Put(e)
}

// Level entry points returning fluent builders.

func (c *Caller) Trace() *Event { return getEvent(c, LevelTrace) }
func (c *Caller) Debug() *Event { return getEvent(c, LevelDebug) }
func (c *Caller) Info() *Event  { return getEvent(c, LevelInfo) }
func (c *Caller) Warn() *Event  { return getEvent(c, LevelWarn) }
func (c *Caller) Error() *Event { return getEvent(c, LevelError) }

// Field builders (zerolog-style)

func (e *Event) Str(k, v string) *Event {
	if e == nil {
		return e
	}
	e.fields = append(e.fields, Str(k, v))
	return e
}

func (e *Event) Int(k string, v int) *Event { return e.Int64(k, int64(v)) }

func (e *Event) Int64(k string, v int64) *Event {
	if e == nil {
		return e
	}
	e.fields = append(e.fields, Int64(k, v))
	return e
}

func (e *Event) Uint64(k string, v uint64) *Event {
	if e == nil {
		return e
	}
	e.fields = append(e.fields, Uint64(k, v))
	return e
}

func (e *Event) Float64(k string, v float64) *Event {
	if e == nil {
		return e
	}
	e.fields = append(e.fields, Float64(k, v))
	return e
}

func (e *Event) Bool(k string, v bool) *Event {
	if e == nil {
		return e
	}
	e.fields = append(e.fields, Bool(k, v))
	return e
}

func (e *Event) Dur(k string, v time.Duration) *Event {
	if e == nil {
		return e
	}
	e.fields = append(e.fields, Dur(k, v))
	return e
}

func (e *Event) Time(k string, v time.Time) *Event {
	if e == nil {
		return e
	}
	e.fields = append(e.fields, Time(k, v))
	return e
}

// Bytes copies v; the record outlives the caller's buffer.
func (e *Event) Bytes(k string, v []byte) *Event {
	if e == nil {
		return e
	}
	e.fields = append(e.fields, Bytes(k, v))
	return e
}

func (e *Event) Err(err error) *Event {
	if e == nil || err == nil {
		return e
	}
	e.fields = append(e.fields, Err("error", err))
	return e
}

func (e *Event) Any(k string, v any) *Event {
	if e == nil {
		return e
	}
	e.fields = append(e.fields, Any(k, v))
	return e
}

// Msg terminates the builder and sends the record. The pooled field slice
// is copied into the record before the event is recycled.
func (e *Event) Msg(msg string) {
	if e == nil {
		return
	}
	_ = e.c.Deliver(e.c.record(e.level, msg, e.fields, 2))
	e.putBack()
}

// Msgf is Msg with a message rendered by fmt.Sprintf.
func (e *Event) Msgf(format string, args ...any) {
	if e == nil {
		return
	}
	_ = e.c.Deliver(e.c.record(e.level, fmt.Sprintf(format, args...), e.fields, 2))
	e.putBack()
}
