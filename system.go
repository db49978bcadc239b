package alog

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/trickstertwo/xclock"
	"go.uber.org/zap"
)

// DefaultName is the well-known name Init registers under.
const DefaultName = "logger"

// Options configures a System. The zero value is usable.
type Options struct {
	Clock       xclock.Clock // optional; defaults to xclock.Now()
	Diagnostics *zap.Logger  // optional; defaults to zap.NewNop()
	Observers   []Observer

	// Defaults for every LoggerActor the System spawns.
	Mailbox       MailboxOptions
	FlushInterval time.Duration
}

// System is one runtime scope: a registry actor plus the supervised loggers
// bound in it. Independent Systems share nothing.
type System struct {
	clock     xclock.Clock
	diag      *zap.Logger
	observers []Observer
	spawn     SpawnOptions
	reg       *Registry
}

func NewSystem(opts Options) *System {
	diag := opts.Diagnostics
	if diag == nil {
		diag = zap.NewNop()
	}
	obs := make([]Observer, len(opts.Observers))
	copy(obs, opts.Observers)
	return &System{
		clock:     opts.Clock,
		diag:      diag,
		observers: obs,
		spawn: SpawnOptions{
			Mailbox:       opts.Mailbox,
			FlushInterval: opts.FlushInterval,
			Diagnostics:   diag,
		},
		reg: NewRegistry(),
	}
}

// Init installs sub as the logger for DefaultName. A second Init without an
// intervening Stop fails with ErrAlreadyInitialized and leaves the live
// logger untouched.
func (s *System) Init(sub Subscriber) error {
	return s.NewBuilder().WithSubscriber(sub).Init()
}

func (s *System) Registry() *Registry { return s.reg }

func (s *System) Resolve(name string) (*Ref, error) { return s.reg.Resolve(name) }

// Stop gracefully tears name down: queued records are consumed, subscribers
// are closed and the name is released so Init may be called again.
func (s *System) Stop(ctx context.Context, name string) error {
	if sv := s.reg.owner(name); sv != nil {
		return sv.stop(ctx)
	}
	members := s.reg.Members(name)
	if len(members) == 0 {
		return &NotFoundError{Name: name}
	}
	for _, ref := range members {
		s.reg.Deregister(name, ref)
		_ = ref.Stop()
	}
	for _, ref := range members {
		if err := ref.wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown stops every name and then the registry actor.
func (s *System) Shutdown(ctx context.Context) error {
	var first error
	for _, name := range s.reg.Names() {
		if err := s.Stop(ctx, name); err != nil && !errors.Is(err, ErrNameNotFound) && first == nil {
			first = errors.Wrapf(err, "stop %q", name)
		}
	}
	s.reg.Close()
	return first
}

// Stats collects counters from every member of name's pool.
func (s *System) Stats(ctx context.Context, name string) ([]Stats, error) {
	members := s.reg.Members(name)
	if len(members) == 0 {
		return nil, &NotFoundError{Name: name}
	}
	out := make([]Stats, 0, len(members))
	for _, ref := range members {
		st, err := ref.Stats(ctx)
		if err != nil {
			if errors.Is(err, ErrSendFailed) {
				continue
			}
			return out, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *System) emit(e LifecycleEvent) {
	e.At = now(s.clock)
	for _, o := range s.observers {
		o.OnLifecycle(e)
	}
}
