// Package console is the formatting subscriber: it renders records as text
// and writes them to a byte sink, standard output by default.
//
// Compact mode (the default) writes one line per record:
//
//	INFO net: listening addr=:8080 took=1.5ms
//
// Pretty mode writes the timestamp, level, target and message on the first
// line and breaks each field out on its own indented line.
package console

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/logrusorgru/aurora"
	"github.com/pkg/errors"
	"github.com/trickstertwo/alog"
)

// Subscriber formats records to an io.Writer. Configuration is fixed at
// construction; the toggles return modified copies.
type Subscriber struct {
	filter alog.LevelFilter
	w      io.Writer
	pretty bool
	color  bool
	target bool
}

var _ alog.Subscriber = Subscriber{}

// New returns a compact, uncolored subscriber writing to os.Stdout that
// shows targets.
func New(filter alog.LevelFilter) Subscriber {
	return NewWithWriter(filter, os.Stdout)
}

// NewWithWriter is New with an explicit sink.
func NewWithWriter(filter alog.LevelFilter, w io.Writer) Subscriber {
	if w == nil {
		w = os.Stdout
	}
	return Subscriber{filter: filter, w: w, target: true}
}

func (s Subscriber) Pretty() Subscriber {
	s.pretty = true
	return s
}

func (s Subscriber) Compact() Subscriber {
	s.pretty = false
	return s
}

func (s Subscriber) WithColor(on bool) Subscriber {
	s.color = on
	return s
}

func (s Subscriber) WithTarget(on bool) Subscriber {
	s.target = on
	return s
}

func (s Subscriber) LevelFilter() alog.LevelFilter { return s.filter }

// Consume writes one formatted record. A failed write is reported as
// alog.ErrSinkUnavailable.
func (s Subscriber) Consume(rec alog.Record) error {
	buf := getBuf()
	s.format(buf, rec)
	_, err := s.w.Write(buf.b)
	putBuf(buf)
	if err != nil {
		return errors.Wrapf(alog.ErrSinkUnavailable, "console write: %v", err)
	}
	return nil
}

// Renew returns s itself; the subscriber holds nothing but configuration.
func (s Subscriber) Renew() (alog.Subscriber, error) { return s, nil }

// AppendFormat appends the rendering of rec, newline included, to dst.
func (s Subscriber) AppendFormat(dst []byte, rec alog.Record) []byte {
	buf := &buffer{b: dst}
	s.format(buf, rec)
	return buf.b
}

func (s Subscriber) format(buf *buffer, rec alog.Record) {
	if s.pretty {
		s.formatPretty(buf, rec)
		return
	}
	s.formatCompact(buf, rec)
}

func (s Subscriber) formatCompact(buf *buffer, rec alog.Record) {
	s.writeLevel(buf, rec.Level)
	buf.writeByte(' ')
	if s.target {
		s.writeTarget(buf, rec.Target)
		buf.writeString(": ")
	}
	if messageNeedsQuote(rec.Message) {
		buf.quoted(rec.Message)
	} else {
		buf.writeString(rec.Message)
	}
	for i := range rec.Fields {
		buf.writeByte(' ')
		buf.key(rec.Fields[i].K)
		buf.writeByte('=')
		writeValue(buf, &rec.Fields[i])
	}
	if !rec.Source.IsZero() {
		buf.writeString(" source=")
		buf.textValue(rec.Source.File + ":" + strconv.Itoa(rec.Source.Line))
	}
	buf.writeByte('\n')
}

func (s Subscriber) formatPretty(buf *buffer, rec alog.Record) {
	buf.writeTime(rec.Time)
	buf.writeByte(' ')
	name := rec.Level.String()
	buf.pad(5 - len(name))
	s.writeLevel(buf, rec.Level)
	buf.writeByte(' ')
	if s.target {
		s.writeTarget(buf, rec.Target)
		buf.writeString(": ")
	}
	buf.writeString(rec.Message)
	buf.writeByte('\n')
	for i := range rec.Fields {
		buf.writeString("    ")
		buf.key(rec.Fields[i].K)
		buf.writeString(": ")
		writeValue(buf, &rec.Fields[i])
		buf.writeByte('\n')
	}
	if !rec.Source.IsZero() {
		buf.writeString("    at ")
		buf.writeString(rec.Source.File)
		buf.writeByte(':')
		buf.writeInt(int64(rec.Source.Line))
		buf.writeByte('\n')
	}
}

func (s Subscriber) writeLevel(buf *buffer, l alog.Level) {
	name := l.String()
	if !s.color {
		buf.writeString(name)
		return
	}
	switch l {
	case alog.LevelTrace, alog.LevelDebug:
		buf.writeString(aurora.White(name).String())
	case alog.LevelInfo:
		buf.writeString(aurora.Cyan(name).String())
	case alog.LevelWarn:
		buf.writeString(aurora.Yellow(name).String())
	case alog.LevelError:
		buf.writeString(aurora.Red(name).String())
	default:
		buf.writeString(name)
	}
}

func (s Subscriber) writeTarget(buf *buffer, target string) {
	if !s.color {
		if targetNeedsQuote(target) {
			buf.quoted(target)
		} else {
			buf.writeString(target)
		}
		return
	}
	buf.writeString(aurora.Faint(target).String())
}

func writeValue(buf *buffer, f *alog.Field) {
	switch f.Kind {
	case alog.KindString:
		buf.textValue(f.Str)
	case alog.KindInt64:
		buf.writeInt(f.Int64)
	case alog.KindUint64:
		buf.writeUint(f.Uint64)
	case alog.KindFloat64:
		buf.writeFloat(f.Float64)
	case alog.KindBool:
		buf.writeBool(f.Bool)
	case alog.KindDuration:
		buf.writeString(f.Dur.String())
	case alog.KindTime:
		buf.writeTime(f.Time)
	case alog.KindError:
		if f.Err == nil {
			buf.writeString("<nil>")
			return
		}
		buf.textValue(f.Err.Error())
	case alog.KindBytes:
		buf.writeBase64(f.Bytes)
	case alog.KindAny:
		buf.textValue(fmt.Sprint(f.Any))
	default:
		buf.writeString("<invalid>")
	}
}
