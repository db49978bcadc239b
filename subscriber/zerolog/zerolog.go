// Package zerologsubscriber renders records through rs/zerolog.
package zerologsubscriber

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/trickstertwo/alog"
)

// Subscriber bridges alog records to a zerolog.Logger.
//
//   - Fast pre-check using GetLevel() so no zerolog.Event is allocated for
//     records the backend would drop.
//   - Uses Logger.WithLevel(...) to avoid a level switch per record.
//   - The record's call-site time is written as an RFC3339Nano string.
type Subscriber struct {
	l      zerolog.Logger
	filter alog.LevelFilter
	tsKey  string
	sink   *trackingWriter
	cfg    *Config
}

var _ alog.Subscriber = (*Subscriber)(nil)

// New wraps an existing zerolog logger.
func New(l zerolog.Logger, filter alog.LevelFilter) *Subscriber {
	return &Subscriber{l: l, filter: filter, tsKey: "ts"}
}

func (s *Subscriber) LevelFilter() alog.LevelFilter { return s.filter }

func (s *Subscriber) Consume(rec alog.Record) error {
	zlvl := mapLevel(rec.Level)
	if zlvl < s.l.GetLevel() {
		return nil
	}
	ev := s.l.WithLevel(zlvl)
	ev.Str(s.tsKey, rec.Time.UTC().Format(time.RFC3339Nano))
	if rec.Target != "" {
		ev.Str("target", rec.Target)
	}
	for i := range rec.Fields {
		appendEventField(ev, &rec.Fields[i])
	}
	ev.Msg(rec.Message)
	if s.sink != nil {
		if err := s.sink.take(); err != nil {
			return errors.Wrapf(alog.ErrSinkUnavailable, "zerolog write: %v", err)
		}
	}
	return nil
}

// Renew rebuilds from Config when available; a zerolog.Logger is a value and
// can otherwise be reused as is.
func (s *Subscriber) Renew() (alog.Subscriber, error) {
	if s.cfg != nil {
		return NewFromConfig(*s.cfg), nil
	}
	child := *s
	return &child, nil
}

// mapLevel converts alog.Level to zerolog.Level.
func mapLevel(l alog.Level) zerolog.Level {
	switch {
	case l <= alog.LevelTrace:
		return zerolog.TraceLevel
	case l <= alog.LevelDebug:
		return zerolog.DebugLevel
	case l <= alog.LevelInfo:
		return zerolog.InfoLevel
	case l <= alog.LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// appendEventField writes an alog.Field to a zerolog.Event.
func appendEventField(e *zerolog.Event, f *alog.Field) {
	switch f.Kind {
	case alog.KindString:
		e.Str(f.K, f.Str)
	case alog.KindInt64:
		e.Int64(f.K, f.Int64)
	case alog.KindUint64:
		e.Uint64(f.K, f.Uint64)
	case alog.KindFloat64:
		e.Float64(f.K, f.Float64)
	case alog.KindBool:
		e.Bool(f.K, f.Bool)
	case alog.KindDuration:
		e.Dur(f.K, f.Dur)
	case alog.KindTime:
		e.Time(f.K, f.Time)
	case alog.KindError:
		if f.Err != nil {
			if f.K == "" || f.K == "error" {
				e.Err(f.Err)
			} else {
				e.AnErr(f.K, f.Err)
			}
		}
	case alog.KindBytes:
		e.Bytes(f.K, f.Bytes)
	case alog.KindAny:
		e.Interface(f.K, f.Any)
	default:
		// Keep a placeholder to preserve shape
		e.Interface(f.K, nil)
	}
}

// trackingWriter remembers the first write error since the last take.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil && t.err == nil {
		t.err = err
	}
	return n, err
}

func (t *trackingWriter) take() error {
	err := t.err
	t.err = nil
	return err
}
