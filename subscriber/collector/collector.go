// Package collector ships records to a remote log collector over HTTP. Rows
// are JSON objects posted in batches to <URL>/api/ingest/batch, optionally
// zstd-compressed.
package collector

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/valyala/fastjson"

	"github.com/trickstertwo/alog"
)

// Config is an explicit, code-first configuration for the collector.
type Config struct {
	URL      string // collector base URL; required
	APIKey   string // sent as a bearer token when set
	Service  string
	Host     string // default os.Hostname()
	Instance string // default a random UUID per subscriber instance

	Filter      alog.LevelFilter
	BatchSize   int           // rows per request; default 100
	Timeout     time.Duration // per request; default 5s
	MaxFailures int           // consecutive failed batches before the sink is unavailable; default 3
	Compress    bool          // zstd request bodies

	Client *http.Client // default a client with no timeout of its own
}

// Subscriber batches rows and posts them from the owning actor's goroutine.
// A failed batch is dropped; only a run of MaxFailures failures is fatal.
type Subscriber struct {
	orig     Config // as supplied, for Renew
	cfg      Config
	client   *http.Client
	enc      *zstd.Encoder
	arena    fastjson.Arena
	row      []byte
	pending  bytes.Buffer
	rows     int
	failures int
}

var _ alog.Subscriber = (*Subscriber)(nil)

var errStatus = errors.New("collector: unexpected status")

func New(cfg Config) (*Subscriber, error) {
	if cfg.URL == "" {
		return nil, errors.New("collector: URL is required")
	}
	orig := cfg
	if cfg.Host == "" {
		cfg.Host, _ = os.Hostname()
	}
	if cfg.Instance == "" {
		cfg.Instance = uuid.NewString()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	s := &Subscriber{orig: orig, cfg: cfg, client: cfg.Client}
	if s.client == nil {
		s.client = &http.Client{}
	}
	if cfg.Compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, errors.Wrap(err, "collector: zstd encoder")
		}
		s.enc = enc
	}
	return s, nil
}

func (s *Subscriber) LevelFilter() alog.LevelFilter { return s.cfg.Filter }

// Consume appends rec to the pending batch and posts it once full.
func (s *Subscriber) Consume(rec alog.Record) error {
	s.row = s.encode(s.row[:0], rec)
	if s.rows == 0 {
		s.pending.WriteByte('[')
	} else {
		s.pending.WriteByte(',')
	}
	s.pending.Write(s.row)
	s.rows++
	if s.rows >= s.cfg.BatchSize {
		return s.send()
	}
	return nil
}

// Flush posts any pending rows.
func (s *Subscriber) Flush() error {
	if s.rows == 0 {
		return nil
	}
	return s.send()
}

// Close flushes and releases the encoder.
func (s *Subscriber) Close() error {
	err := s.Flush()
	if s.enc != nil {
		_ = s.enc.Close()
	}
	s.client.CloseIdleConnections()
	return err
}

// Renew builds an independent subscriber from the supplied configuration, so
// an unset Instance gets a fresh id.
func (s *Subscriber) Renew() (alog.Subscriber, error) {
	return New(s.orig)
}

func (s *Subscriber) send() error {
	s.pending.WriteByte(']')
	body := s.pending.Bytes()
	if s.enc != nil {
		body = s.enc.EncodeAll(body, nil)
	}
	err := s.post(body)
	s.pending.Reset()
	s.rows = 0
	if err == nil {
		s.failures = 0
		return nil
	}
	s.failures++
	if s.failures >= s.cfg.MaxFailures {
		return errors.Wrapf(alog.ErrSinkUnavailable, "collector: %d consecutive failures, last: %v", s.failures, err)
	}
	return errors.Wrap(err, "collector: batch dropped")
}

func (s *Subscriber) post(body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	url := strings.TrimRight(s.cfg.URL, "/") + "/api/ingest/batch"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Instance-ID", s.cfg.Instance)
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
	if s.enc != nil {
		req.Header.Set("Content-Encoding", "zstd")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Wrapf(errStatus, "HTTP %d", resp.StatusCode)
	}
	return nil
}

// encode renders one row. The arena is reset per row, so nothing it returns
// outlives the call.
func (s *Subscriber) encode(dst []byte, rec alog.Record) []byte {
	a := &s.arena
	defer a.Reset()

	row := a.NewObject()
	row.Set("timestamp", a.NewNumberString(strconv.FormatInt(rec.Time.UnixNano(), 10)))
	row.Set("level", a.NewString(rec.Level.String()))
	row.Set("message", a.NewString(rec.Message))
	if rec.Target != "" {
		row.Set("logger", a.NewString(rec.Target))
	}
	if rec.Unit != uuid.Nil {
		row.Set("thread", a.NewString(rec.Unit.String()))
	}
	if !rec.Source.IsZero() {
		row.Set("file", a.NewString(rec.Source.File))
		row.Set("line", a.NewNumberInt(rec.Source.Line))
	}
	row.Set("service", a.NewString(s.cfg.Service))
	row.Set("host", a.NewString(s.cfg.Host))
	row.Set("instance_id", a.NewString(s.cfg.Instance))

	// attributes is a JSON object, as the ingest endpoint expects; a repeated
	// key keeps its last value.
	attrs := a.NewObject()
	for i := range rec.Fields {
		attrs.Set(rec.Fields[i].K, fieldValue(a, &rec.Fields[i]))
	}
	row.Set("attributes", attrs)
	return row.MarshalTo(dst)
}

func fieldValue(a *fastjson.Arena, f *alog.Field) *fastjson.Value {
	switch f.Kind {
	case alog.KindString:
		return a.NewString(f.Str)
	case alog.KindInt64:
		return a.NewNumberString(strconv.FormatInt(f.Int64, 10))
	case alog.KindUint64:
		return a.NewNumberString(strconv.FormatUint(f.Uint64, 10))
	case alog.KindFloat64:
		if math.IsNaN(f.Float64) || math.IsInf(f.Float64, 0) {
			return a.NewString(strconv.FormatFloat(f.Float64, 'g', -1, 64))
		}
		return a.NewNumberFloat64(f.Float64)
	case alog.KindBool:
		if f.Bool {
			return a.NewTrue()
		}
		return a.NewFalse()
	case alog.KindDuration:
		return a.NewString(f.Dur.String())
	case alog.KindTime:
		return a.NewString(f.Time.Format(time.RFC3339Nano))
	case alog.KindError:
		if f.Err == nil {
			return a.NewNull()
		}
		return a.NewString(f.Err.Error())
	case alog.KindBytes:
		return a.NewString(base64.StdEncoding.EncodeToString(f.Bytes))
	case alog.KindAny:
		return a.NewString(fmt.Sprint(f.Any))
	default:
		return a.NewNull()
	}
}
