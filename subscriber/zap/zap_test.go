package zapsubscriber

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trickstertwo/alog"
)

func newTestZap(buf *bytes.Buffer) *zap.Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "", // disable zap's own time; records carry "ts"
		LevelKey:       "level",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(buf), zapcore.DebugLevel)
	return zap.New(core)
}

func TestZapSubscriber_EmitsTSTargetAndFields(t *testing.T) {
	var buf bytes.Buffer
	s := New(newTestZap(&buf), alog.FilterInfo)

	at := time.Date(2024, 12, 31, 23, 59, 59, 123456789, time.UTC)
	rec := alog.Record{
		Level:   alog.LevelInfo,
		Time:    at,
		Target:  "net",
		Message: "state changed",
		Fields: []alog.Field{
			alog.Str("from", "old"),
			alog.Int64("count", 2),
			alog.Bool("ok", true),
			alog.Dur("dur", time.Millisecond),
			alog.Err("error", errors.New("boom")),
		},
	}
	if err := s.Consume(rec); err != nil {
		t.Fatalf("consume: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("json unmarshal: %v; line=%s", err, buf.String())
	}
	if m["level"] != "info" {
		t.Fatalf("level mismatch: %v", m["level"])
	}
	if m["message"] != "state changed" {
		t.Fatalf("message mismatch: %v", m["message"])
	}
	if m["ts"] != at.Format(time.RFC3339Nano) {
		t.Fatalf("ts mismatch: %v", m["ts"])
	}
	if m["target"] != "net" {
		t.Fatalf("target mismatch: %v", m["target"])
	}
	if m["from"] != "old" || m["count"] != float64(2) || m["ok"] != true {
		t.Fatalf("fields mismatch: %v", m)
	}
	if m["dur"] != "1ms" {
		t.Fatalf("dur mismatch: %v", m["dur"])
	}
	if m["error"] != "boom" {
		t.Fatalf("error mismatch: %v", m["error"])
	}
}

func TestZapSubscriber_TraceMapsToDebug(t *testing.T) {
	var buf bytes.Buffer
	s := New(newTestZap(&buf), alog.FilterTrace)
	_ = s.Consume(alog.Record{Level: alog.LevelTrace, Message: "deep"})
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("json unmarshal: %v", err)
	}
	if m["level"] != "debug" {
		t.Fatalf("want debug, got %v", m["level"])
	}
	if _, ok := m["target"]; ok {
		t.Fatalf("empty target should be omitted")
	}
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestZapSubscriber_ConfigSurfacesWriteErrors(t *testing.T) {
	s, err := NewFromConfig(Config{Writer: brokenWriter{}, Filter: alog.FilterInfo})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	err = s.Consume(alog.Record{Level: alog.LevelInfo, Message: "x"})
	if !errors.Is(err, alog.ErrSinkUnavailable) {
		t.Fatalf("want ErrSinkUnavailable, got %v", err)
	}
}

func TestZapSubscriber_RenewFromConfig(t *testing.T) {
	var buf bytes.Buffer
	s, _ := NewFromConfig(Config{Writer: &buf, Filter: alog.FilterWarn})
	fresh, err := s.Renew()
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if fresh == alog.Subscriber(s) {
		t.Fatalf("renew should build a new instance")
	}
	if fresh.LevelFilter() != alog.FilterWarn {
		t.Fatalf("filter lost")
	}
	_ = fresh.Consume(alog.Record{Level: alog.LevelWarn, Message: "again"})
	if !bytes.Contains(buf.Bytes(), []byte(`"message":"again"`)) {
		t.Fatalf("renewed subscriber did not write: %s", buf.String())
	}
}
