package alog

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Level mirrors slog numeric semantics and extends it with Trace (-8).
// Levels are totally ordered by severity: Trace < Debug < Info < Warn < Error.
type Level int

const (
	LevelTrace Level = -8
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the upper-case level name.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "LEVEL(" + strconv.Itoa(int(l)) + ")"
	}
}

// Valid reports whether l is one of the five defined levels.
func (l Level) Valid() bool {
	switch l {
	case LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError:
		return true
	}
	return false
}

var errParseLevel = errors.New(`alog: expected one of "error", "warn", "info", "debug", "trace", or a number 1-5`)

// ParseLevel accepts a case-insensitive level name or a number where
// 1 is Error and 5 is Trace.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "1":
		return LevelError, nil
	case "warn", "warning", "2":
		return LevelWarn, nil
	case "info", "3":
		return LevelInfo, nil
	case "debug", "4":
		return LevelDebug, nil
	case "trace", "5":
		return LevelTrace, nil
	}
	return 0, errors.Wrapf(errParseLevel, "parse level %q", s)
}

// LevelFilter is the minimum severity a subscriber accepts. Records with
// level >= filter are forwarded; FilterOff disables everything.
type LevelFilter int

const (
	FilterTrace = LevelFilter(LevelTrace)
	FilterDebug = LevelFilter(LevelDebug)
	FilterInfo  = LevelFilter(LevelInfo)
	FilterWarn  = LevelFilter(LevelWarn)
	FilterError = LevelFilter(LevelError)
	FilterOff   = LevelFilter(math.MaxInt32)
)

// Filter returns the filter that admits l and everything more severe.
func Filter(l Level) LevelFilter { return LevelFilter(l) }

// Enabled reports whether a record at level l passes the filter.
// The boundary is inclusive.
func (f LevelFilter) Enabled(l Level) bool {
	return f != FilterOff && int(l) >= int(f)
}

func (f LevelFilter) String() string {
	if f == FilterOff {
		return "OFF"
	}
	return Level(f).String()
}

// ParseLevelFilter accepts everything ParseLevel does plus "off".
func ParseLevelFilter(s string) (LevelFilter, error) {
	if strings.EqualFold(strings.TrimSpace(s), "off") {
		return FilterOff, nil
	}
	l, err := ParseLevel(s)
	if err != nil {
		return FilterOff, err
	}
	return Filter(l), nil
}

// MostVerbose returns the filter admitting every record any of fs admits.
func MostVerbose(fs ...LevelFilter) LevelFilter {
	out := FilterOff
	for _, f := range fs {
		if f < out {
			out = f
		}
	}
	return out
}
