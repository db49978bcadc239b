package collector

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"

	"github.com/trickstertwo/alog"
)

type ingest struct {
	mu      sync.Mutex
	batches [][]*fastjson.Value
	headers []http.Header
	status  int
}

func (in *ingest) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ingest/batch" {
			http.NotFound(w, r)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
			return
		}
		if r.Header.Get("Content-Encoding") == "zstd" {
			dec, _ := zstd.NewReader(nil)
			body, err = dec.DecodeAll(body, nil)
			dec.Close()
			if err != nil {
				t.Errorf("zstd: %v", err)
				return
			}
		}
		v, err := fastjson.ParseBytes(body)
		if err != nil {
			t.Errorf("parse %q: %v", body, err)
			return
		}
		rows, _ := v.Array()
		in.mu.Lock()
		in.batches = append(in.batches, rows)
		in.headers = append(in.headers, r.Header.Clone())
		status := in.status
		in.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
		}
	})
}

func (in *ingest) got() ([][]*fastjson.Value, []http.Header) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([][]*fastjson.Value(nil), in.batches...), append([]http.Header(nil), in.headers...)
}

func rec(msg string, fields ...alog.Field) alog.Record {
	return alog.Record{
		Level:   alog.LevelWarn,
		Time:    time.Unix(1700000000, 5),
		Target:  "svc/db",
		Message: msg,
		Fields:  fields,
		Unit:    uuid.MustParse("11111111-2222-3333-4444-555555555555"),
	}
}

func TestBatchesAndFlush(t *testing.T) {
	in := &ingest{}
	srv := httptest.NewServer(in.handler(t))
	defer srv.Close()

	s, err := New(Config{URL: srv.URL, APIKey: "k", Service: "api", Instance: "i-1", BatchSize: 2})
	require.NoError(t, err)

	require.NoError(t, s.Consume(rec("one", alog.Int("n", 1), alog.Str("who", "x"))))
	batches, _ := in.got()
	require.Empty(t, batches, "first row stays pending")
	require.NoError(t, s.Consume(rec("two")))
	require.NoError(t, s.Consume(rec("three", alog.Bool("ok", true))))
	require.NoError(t, s.Close())

	batches, headers := in.got()
	require.Len(t, batches, 2)
	require.Len(t, batches[0], 2)
	require.Len(t, batches[1], 1)

	first := batches[0][0]
	require.Equal(t, "one", string(first.GetStringBytes("message")))
	require.Equal(t, "WARN", string(first.GetStringBytes("level")))
	require.Equal(t, "svc/db", string(first.GetStringBytes("logger")))
	require.Equal(t, "api", string(first.GetStringBytes("service")))
	require.Equal(t, "i-1", string(first.GetStringBytes("instance_id")))
	require.Equal(t, "11111111-2222-3333-4444-555555555555", string(first.GetStringBytes("thread")))
	require.Equal(t, int64(1700000000000000005), first.GetInt64("timestamp"))
	require.Equal(t, 1, first.GetInt("attributes", "n"))
	require.Equal(t, "x", string(first.GetStringBytes("attributes", "who")))
	require.True(t, batches[1][0].GetBool("attributes", "ok"))

	require.Equal(t, "Bearer k", headers[0].Get("Authorization"))
	require.Equal(t, "i-1", headers[0].Get("X-Instance-ID"))
}

func TestCompressedBodies(t *testing.T) {
	in := &ingest{}
	srv := httptest.NewServer(in.handler(t))
	defer srv.Close()

	s, err := New(Config{URL: srv.URL, Compress: true, BatchSize: 1})
	require.NoError(t, err)
	require.NoError(t, s.Consume(rec("zipped")))
	require.NoError(t, s.Close())

	batches, headers := in.got()
	require.Len(t, batches, 1)
	require.Equal(t, "zstd", headers[0].Get("Content-Encoding"))
	require.Equal(t, "zipped", string(batches[0][0].GetStringBytes("message")))
}

func TestConsecutiveFailuresBecomeFatal(t *testing.T) {
	in := &ingest{status: http.StatusServiceUnavailable}
	srv := httptest.NewServer(in.handler(t))
	defer srv.Close()

	s, err := New(Config{URL: srv.URL, BatchSize: 1, MaxFailures: 2})
	require.NoError(t, err)

	err = s.Consume(rec("a"))
	require.Error(t, err)
	require.False(t, alog.IsFatal(err), "first failure is not fatal")

	err = s.Consume(rec("b"))
	require.ErrorIs(t, err, alog.ErrSinkUnavailable)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	in := &ingest{status: http.StatusInternalServerError}
	srv := httptest.NewServer(in.handler(t))
	defer srv.Close()

	s, err := New(Config{URL: srv.URL, BatchSize: 1, MaxFailures: 2})
	require.NoError(t, err)
	require.Error(t, s.Consume(rec("a")))

	in.mu.Lock()
	in.status = 0
	in.mu.Unlock()
	require.NoError(t, s.Consume(rec("b")))

	in.mu.Lock()
	in.status = http.StatusInternalServerError
	in.mu.Unlock()
	err = s.Consume(rec("c"))
	require.Error(t, err)
	require.False(t, alog.IsFatal(err))
}

func TestRenewGetsFreshInstance(t *testing.T) {
	s, err := New(Config{URL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	fresh, err := s.Renew()
	require.NoError(t, err)
	require.NotEqual(t, s.cfg.Instance, fresh.(*Subscriber).cfg.Instance)
}

func TestUnderLoggerActor(t *testing.T) {
	in := &ingest{}
	srv := httptest.NewServer(in.handler(t))
	defer srv.Close()

	s, err := New(Config{URL: srv.URL, Filter: alog.FilterInfo})
	require.NoError(t, err)
	ref := alog.Spawn("collector", s, alog.SpawnOptions{})
	require.NoError(t, ref.Send(rec("via actor")))
	require.NoError(t, ref.Stop())
	<-ref.Done()

	batches, _ := in.got()
	require.Len(t, batches, 1, "graceful stop flushes pending rows")
	require.Equal(t, "via actor", string(batches[0][0].GetStringBytes("message")))
}

func TestFlushFailuresEndTheActor(t *testing.T) {
	in := &ingest{status: http.StatusInternalServerError}
	srv := httptest.NewServer(in.handler(t))
	defer srv.Close()

	s, err := New(Config{URL: srv.URL, Filter: alog.FilterInfo, BatchSize: 1000, MaxFailures: 2})
	require.NoError(t, err)
	ref := alog.Spawn("collector", s, alog.SpawnOptions{FlushInterval: 10 * time.Millisecond})

	deadline := time.After(5 * time.Second)
	for done := false; !done; {
		_ = ref.Send(rec("quiet"))
		select {
		case <-ref.Done():
			done = true
		case <-time.After(5 * time.Millisecond):
		case <-deadline:
			t.Fatal("collector kept running against a failing endpoint")
		}
	}
	require.ErrorIs(t, ref.Err(), alog.ErrSinkUnavailable)
}

func TestDuplicateKeysKeepTheLastValue(t *testing.T) {
	in := &ingest{}
	srv := httptest.NewServer(in.handler(t))
	defer srv.Close()

	s, err := New(Config{URL: srv.URL, BatchSize: 1})
	require.NoError(t, err)
	require.NoError(t, s.Consume(rec("dup", alog.Str("role", "reader"), alog.Int("n", 1), alog.Str("role", "admin"))))
	require.NoError(t, s.Close())

	batches, _ := in.got()
	require.Len(t, batches, 1)
	attrs := batches[0][0].GetObject("attributes")
	require.Equal(t, 2, attrs.Len())
	require.Equal(t, "admin", string(batches[0][0].GetStringBytes("attributes", "role")))
}
