package zapsubscriber

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trickstertwo/alog"
)

// Config is an explicit, code-first configuration for a zap-backed
// subscriber. No envs, no hidden init.
type Config struct {
	Writer             io.Writer // default: os.Stdout
	Filter             alog.LevelFilter
	Console            bool                  // console encoder instead of JSON
	EncoderConfig      zapcore.EncoderConfig // if zero, a sensible default is used
	TimestampFieldName string                // default "ts"
	TargetFieldName    string                // default "target"
}

// NewFromConfig builds a dedicated zap core writing to cfg.Writer. Write
// errors surface from Consume as alog.ErrSinkUnavailable.
func NewFromConfig(cfg Config) (*Subscriber, error) {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	if cfg.TimestampFieldName == "" {
		cfg.TimestampFieldName = "ts"
	}
	if cfg.TargetFieldName == "" {
		cfg.TargetFieldName = "target"
	}

	// Encoder config defaults: do not let zap inject its own time (records carry "ts")
	encCfg := cfg.EncoderConfig
	if encCfg.LevelKey == "" && encCfg.MessageKey == "" && encCfg.EncodeTime == nil {
		encCfg = zapcore.EncoderConfig{
			LevelKey:       "level",
			MessageKey:     "message",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.RFC3339NanoTimeEncoder, // used for zap.Time fields
			EncodeDuration: zapcore.StringDurationEncoder,
		}
	}
	encCfg.TimeKey = ""

	var enc zapcore.Encoder
	if cfg.Console {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	sink := &trackingSink{w: w}
	// The actor filters authoritatively; the core accepts everything.
	core := zapcore.NewCore(enc, sink, zapcore.DebugLevel)
	// Write errors are reported through Consume, not zap's error output.
	zl := zap.New(core,
		zap.AddStacktrace(zapcore.FatalLevel+1),
		zap.ErrorOutput(zapcore.AddSync(io.Discard)),
	)

	saved := cfg
	return &Subscriber{
		l:         zl,
		filter:    cfg.Filter,
		tsKey:     cfg.TimestampFieldName,
		targetKey: cfg.TargetFieldName,
		sink:      sink,
		cfg:       &saved,
	}, nil
}
