package console

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/trickstertwo/alog"
)

// ParsedField is one key/value pair recovered from a compact line. Values
// come back as their text rendering.
type ParsedField struct {
	Key   string
	Value string
}

// Parsed is the content ParseCompact recovers from one line.
type Parsed struct {
	Level   alog.Level
	Target  string
	Message string
	Fields  []ParsedField
}

var errMalformed = errors.New("console: malformed compact line")

// ParseCompact parses one line written in compact mode with colors off.
// withTarget must match the writer's WithTarget setting.
func ParseCompact(line string, withTarget bool) (Parsed, error) {
	var p Parsed
	line = strings.TrimSuffix(line, "\n")

	sp := strings.IndexByte(line, ' ')
	if sp < 0 {
		return p, errors.Wrap(errMalformed, "missing level")
	}
	lvl, err := alog.ParseLevel(line[:sp])
	if err != nil {
		return p, err
	}
	p.Level = lvl
	rest := line[sp+1:]

	if withTarget {
		target, n, err := parseToken(rest, ':')
		if err != nil {
			return p, errors.Wrap(err, "target")
		}
		rest = rest[n:]
		if !strings.HasPrefix(rest, ": ") {
			return p, errors.Wrap(errMalformed, "missing target separator")
		}
		p.Target = target
		rest = rest[2:]
	}

	if strings.HasPrefix(rest, `"`) {
		q, err := strconv.QuotedPrefix(rest)
		if err != nil {
			return p, errors.Wrap(errMalformed, "message: "+err.Error())
		}
		p.Message, _ = strconv.Unquote(q)
		rest = rest[len(q):]
	} else {
		// A bare message holds neither '=' nor '"', so the field list starts
		// at the last space before the first of them.
		end := len(rest)
		if i := strings.IndexAny(rest, `="`); i >= 0 {
			end = strings.LastIndexByte(rest[:i], ' ')
			if end < 0 {
				return p, errors.Wrap(errMalformed, "field without message")
			}
		}
		p.Message = rest[:end]
		rest = rest[end:]
	}

	for len(rest) > 0 {
		if rest[0] != ' ' {
			return p, errors.Wrap(errMalformed, "expected space before field")
		}
		rest = rest[1:]
		key, n, err := parseToken(rest, '=')
		if err != nil {
			return p, errors.Wrap(err, "field key")
		}
		rest = rest[n:]
		if !strings.HasPrefix(rest, "=") {
			return p, errors.Wrapf(errMalformed, "field %q has no value", key)
		}
		rest = rest[1:]
		val, n, err := parseToken(rest, ' ')
		if err != nil {
			return p, errors.Wrapf(err, "field %q", key)
		}
		rest = rest[n:]
		p.Fields = append(p.Fields, ParsedField{Key: key, Value: val})
	}
	return p, nil
}

// parseToken reads a quoted literal, or bare text up to stop or the end of s.
// It returns the decoded token and the number of bytes consumed.
func parseToken(s string, stop byte) (string, int, error) {
	if strings.HasPrefix(s, `"`) {
		q, err := strconv.QuotedPrefix(s)
		if err != nil {
			return "", 0, errors.Wrap(errMalformed, err.Error())
		}
		v, err := strconv.Unquote(q)
		if err != nil {
			return "", 0, errors.Wrap(errMalformed, err.Error())
		}
		return v, len(q), nil
	}
	if i := strings.IndexByte(s, stop); i >= 0 {
		return s[:i], i, nil
	}
	return s, len(s), nil
}
