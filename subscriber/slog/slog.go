// Package slogsubscriber connects alog and log/slog in both directions:
// Subscriber renders records through any slog.Handler, and Handler lets
// code written against slog feed a well-known logger through a Caller.
package slogsubscriber

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"

	"github.com/trickstertwo/alog"
)

// Subscriber adapts alog records to a slog.Handler. alog levels share slog's
// numbering, so levels pass through unchanged.
type Subscriber struct {
	h      slog.Handler
	filter alog.LevelFilter
}

var _ alog.Subscriber = (*Subscriber)(nil)

func New(h slog.Handler, filter alog.LevelFilter) *Subscriber {
	if h == nil {
		h = slog.Default().Handler()
	}
	return &Subscriber{h: h, filter: filter}
}

// NewJSON builds a Subscriber on a slog JSON handler writing to w.
func NewJSON(w io.Writer, filter alog.LevelFilter, opts *slog.HandlerOptions) *Subscriber {
	return New(slog.NewJSONHandler(orStdout(w), handlerOptions(opts)), filter)
}

// NewText builds a Subscriber on a slog text handler writing to w.
func NewText(w io.Writer, filter alog.LevelFilter, opts *slog.HandlerOptions) *Subscriber {
	return New(slog.NewTextHandler(orStdout(w), handlerOptions(opts)), filter)
}

func (s *Subscriber) LevelFilter() alog.LevelFilter { return s.filter }

// Consume hands rec to the handler. Handler errors are write failures and
// are reported as alog.ErrSinkUnavailable.
func (s *Subscriber) Consume(rec alog.Record) error {
	ctx := context.Background()
	lvl := slog.Level(rec.Level)
	if !s.h.Enabled(ctx, lvl) {
		return nil
	}
	r := slog.NewRecord(rec.Time, lvl, rec.Message, 0)
	if rec.Target != "" {
		r.AddAttrs(slog.String("target", rec.Target))
	}
	for i := range rec.Fields {
		r.AddAttrs(toAttr(rec.Fields[i]))
	}
	if err := s.h.Handle(ctx, r); err != nil {
		return errors.Wrapf(alog.ErrSinkUnavailable, "slog handler: %v", err)
	}
	return nil
}

// Renew shares the handler; slog handlers are safe for concurrent use.
func (s *Subscriber) Renew() (alog.Subscriber, error) {
	child := *s
	return &child, nil
}

// toAttr relies on slog.AnyValue, which keeps the concrete kind for every
// payload Field.Value returns.
func toAttr(f alog.Field) slog.Attr { return slog.Any(f.K, f.Value()) }

func orStdout(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}

func handlerOptions(opts *slog.HandlerOptions) *slog.HandlerOptions {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	if opts.Level == nil {
		// The actor filters authoritatively.
		opts.Level = slog.Level(alog.LevelTrace)
	}
	return opts
}
