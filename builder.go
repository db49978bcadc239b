package alog

import (
	"time"

	"github.com/pkg/errors"
)

// Builder separates construction of a supervised logger from its
// registration (Builder pattern). Obtain one from System.NewBuilder.
type Builder struct {
	sys     *System
	name    string
	sub     Subscriber
	factory SubscriberFactory
	pool    int
	sup     SupervisorConfig
	spawn   SpawnOptions
}

func (s *System) NewBuilder() *Builder {
	return &Builder{sys: s, name: DefaultName, pool: 1, spawn: s.spawn}
}

func (b *Builder) WithName(name string) *Builder {
	b.name = name
	return b
}

// WithSubscriber installs a constructed subscriber. Pooling requires it to
// implement Renewer, and so does surviving a restart.
func (b *Builder) WithSubscriber(sub Subscriber) *Builder {
	b.sub = sub
	return b
}

// WithFactory installs a factory, called once per pool member and once per
// restart. It takes precedence over WithSubscriber.
func (b *Builder) WithFactory(f SubscriberFactory) *Builder {
	b.factory = f
	return b
}

// WithPoolSize sets the number of LoggerActors bound to the name.
func (b *Builder) WithPoolSize(n int) *Builder {
	if n < 1 {
		n = 1
	}
	b.pool = n
	return b
}

func (b *Builder) WithSupervisor(cfg SupervisorConfig) *Builder {
	b.sup = cfg
	return b
}

func (b *Builder) WithMailbox(m MailboxOptions) *Builder {
	b.spawn.Mailbox = m
	return b
}

// WithFlushInterval overrides Options.FlushInterval for this name. Zero
// keeps the system default.
func (b *Builder) WithFlushInterval(d time.Duration) *Builder {
	if d > 0 {
		b.spawn.FlushInterval = d
	}
	return b
}

// Init builds the pool, binds it under the name and starts supervision.
func (b *Builder) Init() error {
	if b.name == "" {
		return errors.Wrap(errInvalidConfig, "empty logger name")
	}
	factory, err := b.resolveFactory()
	if err != nil {
		return err
	}
	sv := newSupervisor(b.name, factory, b.sup, b.spawn, b.sys.reg, b.sys.emit, b.sys.diag)
	if err := b.sys.reg.reserve(b.name, sv); err != nil {
		return err
	}
	subs := make([]Subscriber, 0, b.pool)
	for i := 0; i < b.pool; i++ {
		sub, err := factory()
		if err == nil && sub == nil {
			err = ErrNoSubscriber
		}
		if err != nil {
			b.sys.reg.release(b.name, sv, nil)
			return errors.Wrapf(err, "build subscriber %d of %d", i+1, b.pool)
		}
		subs = append(subs, sub)
	}
	if err := sv.start(subs); err != nil {
		b.sys.reg.release(b.name, sv, nil)
		return err
	}
	return nil
}

func (b *Builder) resolveFactory() (SubscriberFactory, error) {
	if b.factory != nil {
		return b.factory, nil
	}
	if b.sub == nil {
		return nil, ErrNoSubscriber
	}
	if _, ok := b.sub.(Renewer); b.pool > 1 && !ok {
		return nil, errors.Wrapf(ErrNotRenewable, "%T used with a pool of %d", b.sub, b.pool)
	}
	return FactoryOf(b.sub), nil
}
