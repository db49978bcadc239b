// Package multi fans records out to several subscribers. Each child runs in
// its own unregistered LoggerActor, so a slow child delays only itself.
package multi

import (
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/trickstertwo/alog"
)

// Subscriber owns its children's actors. They are spawned on the first
// record, from the owning actor's goroutine, and stopped on Close.
type Subscriber struct {
	children []alog.Subscriber
	opts     alog.SpawnOptions
	filter   alog.LevelFilter
	refs     []*alog.Ref
}

var _ alog.Subscriber = (*Subscriber)(nil)

// New combines children. The combined filter admits anything any child
// admits; each child still applies its own.
func New(children ...alog.Subscriber) *Subscriber {
	return NewWithOptions(alog.SpawnOptions{}, children...)
}

// NewWithOptions is New with explicit options for the child actors.
func NewWithOptions(opts alog.SpawnOptions, children ...alog.Subscriber) *Subscriber {
	filters := make([]alog.LevelFilter, len(children))
	for i, c := range children {
		filters[i] = c.LevelFilter()
	}
	return &Subscriber{
		children: append([]alog.Subscriber(nil), children...),
		opts:     opts,
		filter:   alog.MostVerbose(filters...),
	}
}

func (s *Subscriber) LevelFilter() alog.LevelFilter { return s.filter }

// Consume forwards rec to every child whose filter admits it. A child that
// has terminated makes the whole subscriber unavailable.
func (s *Subscriber) Consume(rec alog.Record) error {
	if s.refs == nil {
		s.spawn()
	}
	for _, ref := range s.refs {
		if !ref.LevelFilter().Enabled(rec.Level) {
			continue
		}
		if err := ref.Send(rec); err != nil {
			if errors.Is(err, alog.ErrSendFailed) {
				return errors.Wrapf(alog.ErrSinkUnavailable, "child %s: %v", ref.Name(), childErr(ref))
			}
			// A bounded child mailbox dropped the record; the child lives.
		}
	}
	return nil
}

func (s *Subscriber) spawn() {
	s.refs = make([]*alog.Ref, len(s.children))
	for i, c := range s.children {
		s.refs[i] = alog.Spawn("multi."+strconv.Itoa(i), c, s.opts)
	}
}

// Close stops every child after it drains, and waits for them.
func (s *Subscriber) Close() error {
	if s.refs == nil {
		var first error
		for _, c := range s.children {
			if cl, ok := c.(io.Closer); ok {
				if err := cl.Close(); err != nil && first == nil {
					first = err
				}
			}
		}
		return first
	}
	for _, ref := range s.refs {
		_ = ref.Stop()
	}
	for _, ref := range s.refs {
		<-ref.Done()
	}
	s.refs = nil
	return nil
}

// Renew renews every child. All children must implement alog.Renewer.
func (s *Subscriber) Renew() (alog.Subscriber, error) {
	fresh := make([]alog.Subscriber, len(s.children))
	for i, c := range s.children {
		r, ok := c.(alog.Renewer)
		if !ok {
			return nil, errors.Wrapf(alog.ErrNotRenewable, "child %d (%T)", i, c)
		}
		sub, err := r.Renew()
		if err != nil {
			return nil, errors.Wrapf(err, "renew child %d", i)
		}
		fresh[i] = sub
	}
	return NewWithOptions(s.opts, fresh...), nil
}

func childErr(ref *alog.Ref) error {
	if err := ref.Err(); err != nil {
		return err
	}
	return alog.ErrSendFailed
}
