package alog

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// State is the lifecycle state of a LoggerActor.
type State int32

const (
	StateUninitialized State = iota
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Ref is the opaque, copyable handle to a LoggerActor. It is the only way to
// reach the actor; all operations are messages into its mailbox. Two Refs are
// the same actor iff the pointers are equal.
type Ref struct {
	id     uuid.UUID
	name   string
	filter LevelFilter
	mb     *mailbox
	state  atomic.Int32
	done   chan struct{}
	reason error // written once before done is closed
}

func newRef(name string, filter LevelFilter, mb *mailbox) *Ref {
	return &Ref{
		id:     uuid.New(),
		name:   name,
		filter: filter,
		mb:     mb,
		done:   make(chan struct{}),
	}
}

func (r *Ref) ID() uuid.UUID { return r.id }
func (r *Ref) Name() string  { return r.name }

// LevelFilter is the subscriber's filter as captured at spawn time. Callers
// use it to skip building records that would be discarded anyway.
func (r *Ref) LevelFilter() LevelFilter { return r.filter }

func (r *Ref) State() State { return State(r.state.Load()) }

// Alive reports whether the actor still accepts messages.
func (r *Ref) Alive() bool { return r.State() == StateRunning }

// Done is closed once the actor has terminated and its subscriber is closed.
func (r *Ref) Done() <-chan struct{} { return r.done }

// Err returns the exit reason. It is nil while the actor runs and after a
// graceful stop.
func (r *Ref) Err() error {
	select {
	case <-r.done:
		return r.reason
	default:
		return nil
	}
}

// Send enqueues rec without waiting for it to be written. It fails with
// ErrSendFailed once the actor has terminated, and with ErrMailboxFull when a
// bounded mailbox rejects the record.
func (r *Ref) Send(rec Record) error {
	if err := r.mb.push(message{kind: msgRecord, rec: rec}); err != nil {
		if errors.Is(err, ErrSendFailed) {
			return errors.Wrapf(err, "logger %q", r.name)
		}
		return err
	}
	return nil
}

// Stop asks the actor to exit normally once everything queued before the
// request has been consumed.
func (r *Ref) Stop() error {
	return r.mb.push(message{kind: msgStop})
}

// Kill terminates the actor ahead of its backlog. The exit counts as
// abnormal; a nil reason is recorded as ErrKilled.
func (r *Ref) Kill(reason error) error {
	if reason == nil {
		reason = ErrKilled
	}
	return r.mb.pushFront(message{kind: msgKill, reason: reason})
}

// Stats asks the actor for its counters. The reply reflects every message
// queued before the request.
func (r *Ref) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	if err := r.mb.push(message{kind: msgStats, reply: reply}); err != nil {
		return Stats{}, errors.Wrapf(err, "logger %q", r.name)
	}
	select {
	case st := <-reply:
		return st, nil
	case <-r.done:
		return Stats{}, errors.Wrapf(ErrSendFailed, "logger %q", r.name)
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// wait blocks until the actor has terminated or ctx is done.
func (r *Ref) wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
