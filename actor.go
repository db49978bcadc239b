package alog

import (
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Stats are the per-actor counters reported by Ref.Stats.
type Stats struct {
	Received uint64 // records taken from the mailbox
	Filtered uint64 // records below the subscriber's LevelFilter
	Written  uint64 // records the subscriber accepted
	Failed   uint64 // non-fatal Consume errors
	Dropped  uint64 // records rejected by a bounded mailbox or discarded at exit
	Queued   int    // messages waiting behind the stats request
	Flushes  uint64
}

// SpawnOptions configures a single LoggerActor.
type SpawnOptions struct {
	Mailbox MailboxOptions

	// FlushInterval drives Flush on subscribers implementing Flusher.
	// Zero disables periodic flushing; a final flush still runs on Stop.
	FlushInterval time.Duration

	// Diagnostics receives the actor's own failures. Defaults to zap.NewNop().
	Diagnostics *zap.Logger
}

type loggerActor struct {
	ref        *Ref
	sub        Subscriber
	flusher    Flusher
	flushEvery time.Duration
	diag       *zap.Logger
	st         Stats
}

// Spawn starts a LoggerActor that owns sub and returns its handle. The
// subscriber's LevelFilter is read once here. Spawn never blocks.
func Spawn(name string, sub Subscriber, opts SpawnOptions) *Ref {
	diag := opts.Diagnostics
	if diag == nil {
		diag = zap.NewNop()
	}
	ref := newRef(name, sub.LevelFilter(), newMailbox(opts.Mailbox))
	a := &loggerActor{
		ref:        ref,
		sub:        sub,
		flushEvery: opts.FlushInterval,
		diag:       diag.With(zap.String("logger", name), zap.Stringer("ref", ref.id)),
	}
	if f, ok := sub.(Flusher); ok {
		a.flusher = f
	}
	ref.state.Store(int32(StateRunning))
	go a.run()
	return ref
}

func (a *loggerActor) run() {
	reason := a.loop()
	a.terminate(reason)
}

func (a *loggerActor) loop() (reason error) {
	defer func() {
		if r := recover(); r != nil {
			reason = errors.Wrap(ErrActorPanic, fmt.Sprint(r))
		}
	}()

	var tick <-chan time.Time
	if a.flusher != nil && a.flushEvery > 0 {
		t := time.NewTicker(a.flushEvery)
		defer t.Stop()
		tick = t.C
	}

	mb := a.ref.mb
	for {
		batch := mb.takeAll()
		for i, m := range batch {
			switch m.kind {
			case msgRecord:
				if err := a.dispatch(m.rec); err != nil {
					a.discard(batch[i+1:])
					return err
				}
			case msgStats:
				st := a.st
				st.Dropped += mb.dropped.Load()
				st.Queued = len(batch) - i - 1 + mb.depth()
				m.reply <- st
			case msgStop:
				err := a.flush()
				a.discard(batch[i+1:])
				if IsFatal(err) {
					return err
				}
				return nil
			case msgKill:
				a.discard(batch[i+1:])
				return m.reason
			}
		}
		select {
		case <-mb.signal():
		case <-tick:
			if err := a.flush(); IsFatal(err) {
				return err
			}
		}
	}
}

// dispatch returns a non-nil error only when the actor must exit.
func (a *loggerActor) dispatch(rec Record) error {
	a.st.Received++
	if !a.ref.filter.Enabled(rec.Level) {
		a.st.Filtered++
		return nil
	}
	err := a.sub.Consume(rec)
	if err == nil {
		a.st.Written++
		return nil
	}
	if IsFatal(err) {
		a.diag.Error("subscriber unavailable, terminating", zap.Error(err))
		return err
	}
	a.st.Failed++
	a.diag.Warn("subscriber failed to consume record", zap.Error(err), zap.Stringer("level", rec.Level))
	return nil
}

// flush reports the Flusher's error; the caller exits when it is fatal.
func (a *loggerActor) flush() error {
	if a.flusher == nil {
		return nil
	}
	a.st.Flushes++
	err := a.flusher.Flush()
	switch {
	case err == nil:
	case IsFatal(err):
		a.diag.Error("subscriber unavailable on flush, terminating", zap.Error(err))
	default:
		a.diag.Warn("subscriber flush failed", zap.Error(err))
	}
	return err
}

func (a *loggerActor) discard(rest []message) {
	for _, m := range rest {
		if m.kind == msgRecord {
			a.st.Dropped++
		}
	}
}

// close releases the subscriber. A panicking Close is reported as
// ErrActorPanic; an erroring one is only logged.
func (a *loggerActor) close() (err error) {
	c, ok := a.sub.(io.Closer)
	if !ok {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			a.diag.Error("subscriber close panicked", zap.Any("panic", r))
			err = errors.Wrap(ErrActorPanic, fmt.Sprintf("close: %v", r))
		}
	}()
	if cerr := c.Close(); cerr != nil {
		a.diag.Warn("subscriber close failed", zap.Error(cerr))
	}
	return nil
}

func (a *loggerActor) terminate(reason error) {
	a.ref.state.Store(int32(StateTerminated))
	a.discard(a.ref.mb.close())
	if err := a.close(); err != nil && reason == nil {
		reason = err
	}
	if reason != nil {
		a.diag.Debug("logger terminated", zap.Error(reason), zap.Uint64("dropped", a.st.Dropped))
	}
	a.ref.reason = reason
	close(a.ref.done)
}
