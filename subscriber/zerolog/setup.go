package zerologsubscriber

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/trickstertwo/alog"
)

// Config is an explicit, code-first configuration for a zerolog-backed
// subscriber. Package-level zerolog settings are never modified.
type Config struct {
	Writer             io.Writer // default: os.Stdout
	Filter             alog.LevelFilter
	Console            bool   // zerolog.ConsoleWriter instead of JSON
	ConsoleTimeFormat  string // only used if Console==true; default time.RFC3339Nano
	NoColor            bool   // only used if Console==true
	TimestampFieldName string // default "ts"; Console uses zerolog.TimestampFieldName
}

// NewFromConfig builds a subscriber owning its writer chain. Write errors
// surface from Consume as alog.ErrSinkUnavailable.
func NewFromConfig(cfg Config) *Subscriber {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	tsKey := cfg.TimestampFieldName
	if tsKey == "" {
		tsKey = "ts"
	}

	sink := &trackingWriter{w: w}
	var zl zerolog.Logger
	if cfg.Console {
		// The console writer renders its time column from this key.
		tsKey = zerolog.TimestampFieldName
		cw := zerolog.ConsoleWriter{Out: sink, NoColor: cfg.NoColor, TimeFormat: time.RFC3339Nano}
		if cfg.ConsoleTimeFormat != "" {
			cw.TimeFormat = cfg.ConsoleTimeFormat
		}
		zl = zerolog.New(cw)
	} else {
		zl = zerolog.New(sink)
	}
	// The actor filters authoritatively; keep the backend fully open.
	zl = zl.Level(zerolog.TraceLevel)

	saved := cfg
	return &Subscriber{l: zl, filter: cfg.Filter, tsKey: tsKey, sink: sink, cfg: &saved}
}
