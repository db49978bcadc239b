package alog

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Registry maps well-known names to pools of live LoggerActor refs.
//
// It is itself an actor: all state lives in one goroutine and every method is
// a request into that goroutine, so register and resolve are atomic with
// respect to each other.
type Registry struct {
	reqs     chan func(*registryState)
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

type registryEntry struct {
	owner *supervisor // nil for names bound directly through Register
	refs  []*Ref
	next  int
}

type registryState struct {
	entries map[string]*registryEntry
	// Terminal causes of names the supervisor gave up on, reported by
	// Resolve until the name is initialised again.
	tombstones map[string]error
}

// NewRegistry starts a standalone registry actor. Most programs use the one
// owned by a System.
func NewRegistry() *Registry {
	r := &Registry{
		reqs:    make(chan func(*registryState)),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Registry) loop() {
	defer close(r.stopped)
	st := &registryState{
		entries:    make(map[string]*registryEntry),
		tombstones: make(map[string]error),
	}
	for {
		select {
		case fn := <-r.reqs:
			fn(st)
		case <-r.quit:
			return
		}
	}
}

// call runs fn on the registry goroutine and waits for it.
func (r *Registry) call(fn func(*registryState)) error {
	done := make(chan struct{})
	select {
	case r.reqs <- func(st *registryState) { fn(st); close(done) }:
	case <-r.quit:
		return ErrSystemClosed
	}
	<-done
	return nil
}

// Close stops the registry actor. Later calls fail with ErrSystemClosed.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.quit) })
	<-r.stopped
}

// Register binds ref to name. Registering the same ref twice is a no-op.
// It fails with ErrNameAlreadyBound while a different live ref holds the
// name, or while the name is managed by a System logger.
func (r *Registry) Register(name string, ref *Ref) error {
	return r.register(name, ref, nil)
}

func (r *Registry) register(name string, ref *Ref, owner *supervisor) error {
	if ref == nil {
		return errors.Wrap(errInvalidConfig, "register nil ref")
	}
	var err error
	if cerr := r.call(func(st *registryState) {
		e, ok := st.entries[name]
		if !ok {
			if owner != nil {
				// An owner must reserve first; a missing entry means the
				// name was released while a restart was pending.
				err = errors.Wrapf(ErrNameNotFound, "register %q", name)
				return
			}
			st.entries[name] = &registryEntry{refs: []*Ref{ref}}
			delete(st.tombstones, name)
			return
		}
		if e.owner != owner {
			err = errors.Wrapf(ErrNameAlreadyBound, "register %q", name)
			return
		}
		e.prune()
		for _, have := range e.refs {
			if have == ref {
				return
			}
		}
		if owner == nil && len(e.refs) > 0 {
			err = errors.Wrapf(ErrNameAlreadyBound, "register %q", name)
			return
		}
		e.refs = append(e.refs, ref)
	}); cerr != nil {
		return cerr
	}
	return err
}

// reserve claims name for owner ahead of spawning its pool, so a concurrent
// Init of the same name fails instead of racing.
func (r *Registry) reserve(name string, owner *supervisor) error {
	var err error
	if cerr := r.call(func(st *registryState) {
		if e, ok := st.entries[name]; ok {
			e.prune()
			if e.owner != nil || len(e.refs) > 0 {
				err = errors.Wrapf(ErrAlreadyInitialized, "init %q", name)
				return
			}
		}
		st.entries[name] = &registryEntry{owner: owner}
		delete(st.tombstones, name)
	}); cerr != nil {
		return cerr
	}
	return err
}

// release drops name entirely. A non-nil cause is remembered and reported by
// Resolve.
func (r *Registry) release(name string, owner *supervisor, cause error) {
	_ = r.call(func(st *registryState) {
		e, ok := st.entries[name]
		if !ok || e.owner != owner {
			return
		}
		delete(st.entries, name)
		if cause != nil {
			st.tombstones[name] = cause
		}
	})
}

func (r *Registry) owner(name string) *supervisor {
	var sv *supervisor
	_ = r.call(func(st *registryState) {
		if e, ok := st.entries[name]; ok {
			sv = e.owner
		}
	})
	return sv
}

// Resolve returns a live ref for name, rotating round-robin across the pool.
// The error is a *NotFoundError when nothing live is bound.
func (r *Registry) Resolve(name string) (*Ref, error) {
	var (
		ref   *Ref
		cause error
	)
	if err := r.call(func(st *registryState) {
		e, ok := st.entries[name]
		if !ok {
			cause = st.tombstones[name]
			return
		}
		e.prune()
		if len(e.refs) == 0 {
			if e.owner == nil {
				delete(st.entries, name)
			}
			return
		}
		if e.next >= len(e.refs) {
			e.next = 0
		}
		ref = e.refs[e.next]
		e.next = (e.next + 1) % len(e.refs)
	}); err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, &NotFoundError{Name: name, Cause: cause}
	}
	return ref, nil
}

// Deregister removes ref from name's pool and reports whether it was present.
func (r *Registry) Deregister(name string, ref *Ref) bool {
	var found bool
	_ = r.call(func(st *registryState) {
		e, ok := st.entries[name]
		if !ok {
			return
		}
		found = e.remove(ref)
		if len(e.refs) == 0 && e.owner == nil {
			delete(st.entries, name)
		}
	})
	return found
}

// Members returns a snapshot of the refs bound to name, dead ones included
// until they are deregistered or pruned by Resolve.
func (r *Registry) Members(name string) []*Ref {
	var out []*Ref
	_ = r.call(func(st *registryState) {
		if e, ok := st.entries[name]; ok {
			out = append(out, e.refs...)
		}
	})
	return out
}

// Names returns the bound names in sorted order.
func (r *Registry) Names() []string {
	var out []string
	_ = r.call(func(st *registryState) {
		for n := range st.entries {
			out = append(out, n)
		}
	})
	sort.Strings(out)
	return out
}

func (e *registryEntry) remove(ref *Ref) bool {
	for i, have := range e.refs {
		if have == ref {
			e.refs = append(e.refs[:i], e.refs[i+1:]...)
			if e.next > i {
				e.next--
			}
			return true
		}
	}
	return false
}

// prune drops refs whose actor has terminated.
func (e *registryEntry) prune() {
	live := e.refs[:0]
	for _, ref := range e.refs {
		if ref.Alive() {
			live = append(live, ref)
		}
	}
	for i := len(live); i < len(e.refs); i++ {
		e.refs[i] = nil
	}
	e.refs = live
	if e.next > len(e.refs) {
		e.next = 0
	}
}
