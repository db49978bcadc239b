package alog

import (
	"sync"

	"github.com/pkg/errors"
)

// Subscriber is the output Strategy owned by a LoggerActor.
//
// Consume is only ever called from the owning actor's goroutine, one record at
// a time, so implementations need no locking of their own. Consume must not
// block indefinitely. Returning an error that wraps ErrSinkUnavailable
// terminates the actor; any other error is counted and reported to
// diagnostics, and the actor keeps running.
//
// LevelFilter is read once, when the actor is spawned.
type Subscriber interface {
	Consume(rec Record) error
	LevelFilter() LevelFilter
}

// Renewer is implemented by subscribers that can build a fresh instance from
// the configuration they were constructed with. Supervisors and pools use it;
// no state of the old instance may carry over.
type Renewer interface {
	Renew() (Subscriber, error)
}

// Flusher is implemented by subscribers that buffer output. The actor calls
// Flush on its FlushInterval and before a graceful stop.
type Flusher interface {
	Flush() error
}

// SubscriberFactory builds a Subscriber. It is retained by the supervisor and
// called once per spawned LoggerActor.
type SubscriberFactory func() (Subscriber, error)

// FactoryOf turns a constructed subscriber into a factory. The first call
// returns sub itself; later calls use Renew, or fail with ErrNotRenewable.
func FactoryOf(sub Subscriber) SubscriberFactory {
	var once sync.Once
	return func() (Subscriber, error) {
		first := false
		once.Do(func() { first = true })
		if first {
			return sub, nil
		}
		if r, ok := sub.(Renewer); ok {
			return r.Renew()
		}
		return nil, errors.Wrapf(ErrNotRenewable, "%T", sub)
	}
}

// SubscriberFunc adapts a function into a Subscriber with a fixed filter.
type SubscriberFunc struct {
	Filter LevelFilter
	Fn     func(Record) error
}

func (s SubscriberFunc) Consume(rec Record) error { return s.Fn(rec) }

func (s SubscriberFunc) LevelFilter() LevelFilter { return s.Filter }

// Renew returns s unchanged; a function carries no per-instance state.
func (s SubscriberFunc) Renew() (Subscriber, error) { return s, nil }
