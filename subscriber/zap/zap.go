// Package zapsubscriber renders records through go.uber.org/zap.
package zapsubscriber

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trickstertwo/alog"
)

// Subscriber bridges alog records to a zap.Logger.
//
//   - Uses Logger.Check(level, msg) so disabled levels build no fields.
//   - Writes the record's call-site time as an RFC3339Nano "ts" string field;
//     zap's own clock is never consulted.
//   - Adds the record target under "target".
type Subscriber struct {
	l         *zap.Logger
	filter    alog.LevelFilter
	tsKey     string
	targetKey string

	sink *trackingSink // set when built from Config
	cfg  *Config
}

var _ alog.Subscriber = (*Subscriber)(nil)

// New wraps an existing zap logger. Write failures inside zap cannot be
// observed this way; build from Config to get ErrSinkUnavailable reporting.
func New(l *zap.Logger, filter alog.LevelFilter) *Subscriber {
	if l == nil {
		l = zap.NewNop()
	}
	return &Subscriber{l: l, filter: filter, tsKey: "ts", targetKey: "target"}
}

func (s *Subscriber) LevelFilter() alog.LevelFilter { return s.filter }

// Consume writes rec as one zap entry.
func (s *Subscriber) Consume(rec alog.Record) error {
	ce := s.l.Check(toZapLevel(rec.Level), rec.Message)
	if ce == nil {
		return nil
	}
	zfs := make([]zap.Field, 0, 2+len(rec.Fields))
	zfs = append(zfs, zap.String(s.tsKey, rec.Time.UTC().Format(time.RFC3339Nano)))
	if rec.Target != "" {
		zfs = append(zfs, zap.String(s.targetKey, rec.Target))
	}
	for i := range rec.Fields {
		zfs = append(zfs, toZapField(&rec.Fields[i]))
	}
	ce.Write(zfs...)
	if s.sink != nil {
		if err := s.sink.take(); err != nil {
			return errors.Wrapf(alog.ErrSinkUnavailable, "zap write: %v", err)
		}
	}
	return nil
}

// Flush syncs the underlying core.
func (s *Subscriber) Flush() error {
	return s.l.Sync()
}

// Close flushes; the actor calls it once on termination.
func (s *Subscriber) Close() error { return s.Flush() }

// Renew rebuilds from Config when available; otherwise the wrapped zap
// logger is shared, which zap allows.
func (s *Subscriber) Renew() (alog.Subscriber, error) {
	if s.cfg != nil {
		return NewFromConfig(*s.cfg)
	}
	child := *s
	return &child, nil
}

func toZapLevel(l alog.Level) zapcore.Level {
	switch {
	case l <= alog.LevelDebug:
		return zapcore.DebugLevel // zap has no trace; map to debug
	case l <= alog.LevelInfo:
		return zapcore.InfoLevel
	case l <= alog.LevelWarn:
		return zapcore.WarnLevel
	default:
		// Avoid Fatal/DPanic to prevent exits in library code.
		return zapcore.ErrorLevel
	}
}

func toZapField(f *alog.Field) zap.Field {
	switch f.Kind {
	case alog.KindString:
		return zap.String(f.K, f.Str)
	case alog.KindInt64:
		return zap.Int64(f.K, f.Int64)
	case alog.KindUint64:
		return zap.Uint64(f.K, f.Uint64)
	case alog.KindFloat64:
		return zap.Float64(f.K, f.Float64)
	case alog.KindBool:
		return zap.Bool(f.K, f.Bool)
	case alog.KindDuration:
		return zap.Duration(f.K, f.Dur)
	case alog.KindTime:
		return zap.Time(f.K, f.Time)
	case alog.KindError:
		if f.Err == nil {
			return zap.Skip()
		}
		if f.K == "" || f.K == "error" {
			return zap.Error(f.Err)
		}
		return zap.NamedError(f.K, f.Err)
	case alog.KindBytes:
		return zap.ByteString(f.K, f.Bytes)
	case alog.KindAny:
		return zap.Any(f.K, f.Any)
	default:
		return zap.Skip()
	}
}

// trackingSink remembers the first write error since the last take.
type trackingSink struct {
	w   io.Writer
	err error
}

func (t *trackingSink) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil && t.err == nil {
		t.err = err
	}
	return n, err
}

// Sync forwards to the writer, skipping the process's standard streams whose
// Sync fails on terminals and pipes.
func (t *trackingSink) Sync() error {
	if t.w == os.Stdout || t.w == os.Stderr {
		return nil
	}
	if s, ok := t.w.(zapcore.WriteSyncer); ok {
		return s.Sync()
	}
	return nil
}

func (t *trackingSink) take() error {
	err := t.err
	t.err = nil
	return err
}
