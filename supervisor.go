package alog

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// RestartPolicy selects what a supervisor does when a pool member exits
// abnormally.
type RestartPolicy uint8

const (
	// RestartOnFailure rebuilds the member from the retained factory after a
	// backoff. A subscriber that cannot be renewed gives up on the first
	// restart.
	RestartOnFailure RestartPolicy = iota
	// RestartNever deregisters the dead member and keeps serving from the
	// rest of the pool. When the last member dies the name is released.
	RestartNever
)

// SupervisorConfig configures restart behavior for one well-known name.
type SupervisorConfig struct {
	Restart RestartPolicy

	MinBackoff time.Duration // delay before the first restart; default 50ms
	MaxBackoff time.Duration // cap on the doubling delay; default 5s

	// MaxRestarts is the number of rapid consecutive failures tolerated
	// before giving up. Default 5.
	MaxRestarts int

	// RapidWindow decides whether a failure is consecutive: one arriving
	// later than this after the previous failure resets the count and the
	// backoff. Default 30s.
	RapidWindow time.Duration
}

func (c SupervisorConfig) withDefaults() SupervisorConfig {
	if c.MinBackoff <= 0 {
		c.MinBackoff = 50 * time.Millisecond
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = 5 * time.Second
		if c.MaxBackoff < c.MinBackoff {
			c.MaxBackoff = c.MinBackoff
		}
	}
	if c.MaxRestarts <= 0 {
		c.MaxRestarts = 5
	}
	if c.RapidWindow <= 0 {
		c.RapidWindow = 30 * time.Second
	}
	return c
}

func (c SupervisorConfig) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.MinBackoff
	b.MaxInterval = c.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// supervisor is the monitoring actor for one name. It owns the pool
// membership and the retained factory; only it rebinds the name after a
// restart.
type supervisor struct {
	name    string
	factory SubscriberFactory
	cfg     SupervisorConfig
	spawn   SpawnOptions
	reg     *Registry
	emit    func(LifecycleEvent)
	diag    *zap.Logger

	exits   chan *Ref
	restart chan struct{}
	stopReq chan chan struct{}
	done    chan struct{}

	// Loop-owned state.
	members  map[*Ref]struct{}
	bo       *backoff.ExponentialBackOff
	failures int
	lastFail time.Time
	pending  []*time.Timer
	stopping bool
	gaveUp   bool
	waiters  []chan struct{}
}

func newSupervisor(name string, factory SubscriberFactory, cfg SupervisorConfig, spawn SpawnOptions, reg *Registry, emit func(LifecycleEvent), diag *zap.Logger) *supervisor {
	cfg = cfg.withDefaults()
	return &supervisor{
		name:    name,
		factory: factory,
		cfg:     cfg,
		spawn:   spawn,
		reg:     reg,
		emit:    emit,
		diag:    diag.With(zap.String("logger", name)),
		exits:   make(chan *Ref),
		restart: make(chan struct{}),
		stopReq: make(chan chan struct{}),
		done:    make(chan struct{}),
		members: make(map[*Ref]struct{}),
		bo:      cfg.newBackOff(),
	}
}

// start spawns one member per subscriber, binds them and begins monitoring.
// The name must already be reserved for s.
func (s *supervisor) start(subs []Subscriber) error {
	refs := make([]*Ref, 0, len(subs))
	for _, sub := range subs {
		ref := Spawn(s.name, sub, s.spawn)
		if err := s.reg.register(s.name, ref, s); err != nil {
			_ = ref.Stop()
			for _, r := range refs {
				_ = r.Stop()
			}
			return err
		}
		refs = append(refs, ref)
	}
	for _, ref := range refs {
		s.members[ref] = struct{}{}
		s.watch(ref)
		s.notify(LifecycleStarted, ref, nil)
	}
	go s.loop()
	return nil
}

func (s *supervisor) watch(ref *Ref) {
	go func() {
		<-ref.Done()
		select {
		case s.exits <- ref:
		case <-s.done:
		}
	}()
}

func (s *supervisor) loop() {
	defer close(s.done)
	for {
		select {
		case ref := <-s.exits:
			s.handleExit(ref)
		case <-s.restart:
			s.respawn()
		case w := <-s.stopReq:
			s.waiters = append(s.waiters, w)
			if !s.stopping {
				s.stopping = true
				s.cancelPending()
				for ref := range s.members {
					_ = ref.Stop()
				}
			}
		}
		if len(s.members) > 0 || len(s.pending) > 0 {
			continue
		}
		if s.stopping {
			s.reg.release(s.name, s, nil)
			for _, w := range s.waiters {
				close(w)
			}
			return
		}
		if s.gaveUp {
			return
		}
	}
}

func (s *supervisor) handleExit(ref *Ref) {
	delete(s.members, ref)
	s.reg.Deregister(s.name, ref)
	reason := ref.Err()
	if reason == nil || s.stopping || s.gaveUp {
		s.notify(LifecycleStopped, ref, reason)
		return
	}
	s.diag.Warn("logger crashed", zap.Error(reason), zap.Stringer("ref", ref.ID()))
	s.notify(LifecycleCrashed, ref, reason)
	if s.cfg.Restart == RestartNever {
		if len(s.members) == 0 {
			s.gaveUp = true
			s.reg.release(s.name, s, reason)
		}
		return
	}
	s.failed(reason)
}

// failed counts a failure and either schedules a restart or gives up.
func (s *supervisor) failed(reason error) {
	at := time.Now()
	if !s.lastFail.IsZero() && at.Sub(s.lastFail) > s.cfg.RapidWindow {
		s.failures = 0
		s.bo.Reset()
	}
	s.lastFail = at
	s.failures++
	if s.failures > s.cfg.MaxRestarts {
		s.giveUp(errors.Wrapf(ErrRestartLimitExceeded, "logger %q failed %d times, last: %v", s.name, s.failures, reason))
		return
	}
	d := s.bo.NextBackOff()
	s.diag.Info("restarting logger", zap.Duration("backoff", d), zap.Int("failures", s.failures))
	t := time.AfterFunc(d, func() {
		select {
		case s.restart <- struct{}{}:
		case <-s.done:
		}
	})
	s.pending = append(s.pending, t)
}

func (s *supervisor) respawn() {
	if len(s.pending) > 0 {
		s.pending = s.pending[1:]
	}
	if s.stopping || s.gaveUp {
		return
	}
	sub, err := s.factory()
	if err == nil && sub == nil {
		err = errors.Wrap(ErrNoSubscriber, "factory returned nil")
	}
	if errors.Is(err, ErrNotRenewable) {
		s.giveUp(errors.Wrapf(err, "restart logger %q", s.name))
		return
	}
	if err != nil {
		s.diag.Warn("logger factory failed", zap.Error(err))
		s.failed(errors.Wrap(err, "rebuild subscriber"))
		return
	}
	ref := Spawn(s.name, sub, s.spawn)
	if err := s.reg.register(s.name, ref, s); err != nil {
		s.diag.Warn("re-register failed", zap.Error(err))
		_ = ref.Stop()
		s.failed(errors.Wrap(err, "re-register"))
		return
	}
	s.members[ref] = struct{}{}
	s.watch(ref)
	s.notify(LifecycleRestarted, ref, nil)
}

// giveUp stops the pool and releases the name with cause as its terminal
// fault.
func (s *supervisor) giveUp(cause error) {
	s.gaveUp = true
	s.cancelPending()
	s.diag.Error("giving up on logger", zap.Error(cause))
	for ref := range s.members {
		_ = ref.Stop()
	}
	s.reg.release(s.name, s, cause)
	s.notify(LifecycleGaveUp, nil, cause)
}

func (s *supervisor) cancelPending() {
	for _, t := range s.pending {
		t.Stop()
	}
	s.pending = nil
}

func (s *supervisor) notify(kind LifecycleKind, ref *Ref, err error) {
	if s.emit == nil {
		return
	}
	s.emit(LifecycleEvent{
		Name:     s.name,
		Kind:     kind,
		Ref:      ref,
		Err:      err,
		Restarts: s.failures,
	})
}

// stop drains and stops every member, then releases the name.
func (s *supervisor) stop(ctx context.Context) error {
	w := make(chan struct{})
	select {
	case s.stopReq <- w:
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-w:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
