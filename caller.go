package alog

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/trickstertwo/xclock"
)

// Caller is the per-unit binding to a well-known logger. It resolves the name
// once, caches the resulting Ref and re-resolves only after a send against
// the cached Ref fails.
//
// A Caller is owned by one goroutine and is NOT safe for concurrent use;
// create one per goroutine (they are cheap) or derive children with With.
type Caller struct {
	reg        *Registry
	name       string
	target     string
	unit       uuid.UUID
	clock      xclock.Clock
	fields     []Field
	withSource bool

	ref *Ref
}

// Caller returns a binding to DefaultName. An empty target defaults to the
// package path of the code calling this method.
func (s *System) Caller(target string) *Caller {
	if target == "" {
		target = callerPackage(2)
	}
	return s.CallerFor(DefaultName, target)
}

// CallerFor returns a binding to name.
func (s *System) CallerFor(name, target string) *Caller {
	if target == "" {
		target = callerPackage(2)
	}
	return &Caller{
		reg:    s.reg,
		name:   name,
		target: target,
		unit:   uuid.New(),
		clock:  s.clock,
	}
}

func (c *Caller) Name() string    { return c.name }
func (c *Caller) Target() string  { return c.target }
func (c *Caller) Unit() uuid.UUID { return c.unit }

// Now reads the clock records from this Caller are stamped with.
func (c *Caller) Now() time.Time { return now(c.clock) }

// With returns a child binding whose records carry fs ahead of per-call
// fields. The child starts with the parent's cached Ref but owns its cache.
func (c *Caller) With(fs ...Field) *Caller {
	child := *c
	child.fields = copyFields(make([]Field, 0, len(c.fields)+len(fs)), c.fields)
	child.fields = append(child.fields, fs...)
	return &child
}

// WithTarget returns a child binding with a different target.
func (c *Caller) WithTarget(target string) *Caller {
	child := *c
	child.target = target
	return &child
}

// WithSource returns a child binding that records the file and line of each
// log call.
func (c *Caller) WithSource() *Caller {
	child := *c
	child.withSource = true
	return &child
}

// Enabled reports whether the bound logger would keep a record at level.
// It is false when no logger is bound.
func (c *Caller) Enabled(level Level) bool {
	ref, err := c.bind()
	if err != nil {
		return false
	}
	return ref.LevelFilter().Enabled(level)
}

// Log renders and sends one record. Delivery failures are swallowed; use
// Deliver to observe them.
func (c *Caller) Log(level Level, msg string, fields ...Field) {
	if !c.Enabled(level) {
		return
	}
	_ = c.Deliver(c.record(level, msg, fields, 2))
}

// Logf is Log with a message rendered by fmt.Sprintf at the call site.
func (c *Caller) Logf(level Level, format string, args ...any) {
	if !c.Enabled(level) {
		return
	}
	_ = c.Deliver(c.record(level, fmt.Sprintf(format, args...), nil, 2))
}

// Deliver sends rec through the cached binding. A send that fails because
// the logger terminated invalidates the cache and is retried once against a
// freshly resolved Ref; if that resolution fails the *NotFoundError is
// returned.
func (c *Caller) Deliver(rec Record) error {
	var last error
	for attempt := 0; attempt < 2; attempt++ {
		ref, err := c.bind()
		if err != nil {
			return err
		}
		last = ref.Send(rec)
		if last == nil || !errors.Is(last, ErrSendFailed) {
			return last
		}
		c.ref = nil
	}
	return last
}

// Invalidate drops the cached Ref.
func (c *Caller) Invalidate() { c.ref = nil }

func (c *Caller) bind() (*Ref, error) {
	if c.ref != nil {
		return c.ref, nil
	}
	ref, err := c.reg.Resolve(c.name)
	if err != nil {
		return nil, err
	}
	c.ref = ref
	return ref, nil
}

// record builds an owned Record; skip is passed to runtime.Caller.
func (c *Caller) record(level Level, msg string, fields []Field, skip int) Record {
	rec := Record{
		Level:   level,
		Time:    now(c.clock),
		Target:  c.target,
		Message: msg,
		Unit:    c.unit,
	}
	if n := len(c.fields) + len(fields); n > 0 {
		rec.Fields = make([]Field, 0, n)
		rec.Fields = append(rec.Fields, c.fields...)
		rec.Fields = append(rec.Fields, fields...)
	}
	if c.withSource {
		if _, file, line, ok := runtime.Caller(skip); ok {
			rec.Source = Source{File: file, Line: line}
		}
	}
	return rec
}

// callerPackage returns the import path of the function skip frames up.
func callerPackage(skip int) string {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return ""
	}
	return packageOf(fn.Name())
}

// packageOf trims the function part of a qualified name such as
// "github.com/a/b.(*T).M".
func packageOf(qualified string) string {
	slash := strings.LastIndexByte(qualified, '/')
	if dot := strings.IndexByte(qualified[slash+1:], '.'); dot >= 0 {
		return qualified[:slash+1+dot]
	}
	return qualified
}
