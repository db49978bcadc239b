package console

import "unicode/utf8"

const hexDigits = "0123456789abcdef"

// quoted writes s as a double-quoted literal that strconv.Unquote accepts.
func (buf *buffer) quoted(s string) {
	buf.writeByte('"')
	start := 0
	for i := 0; i < len(s); {
		c := s[i]
		if c >= 0x20 && c != '\\' && c != '"' && c < 0x80 {
			i++
			continue
		}
		if start < i {
			buf.writeString(s[start:i])
		}
		if c < 0x80 {
			switch c {
			case '\\', '"':
				buf.writeByte('\\')
				buf.writeByte(c)
			case '\n':
				buf.writeString(`\n`)
			case '\r':
				buf.writeString(`\r`)
			case '\t':
				buf.writeString(`\t`)
			default:
				buf.writeString(`\x`)
				buf.writeByte(hexDigits[c>>4])
				buf.writeByte(hexDigits[c&0xF])
			}
			i++
			start = i
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			buf.writeString(`�`)
			i++
			start = i
			continue
		}
		i += size
	}
	if start < len(s) {
		buf.writeString(s[start:])
	}
	buf.writeByte('"')
}

// textValue writes s bare unless it would be ambiguous on a compact line.
func (buf *buffer) textValue(s string) {
	if needsQuote(s, false) {
		buf.quoted(s)
		return
	}
	buf.writeString(s)
}

// key writes a field key. Keys additionally may not contain '=' or be empty.
func (buf *buffer) key(s string) {
	if s == "" || needsQuote(s, true) {
		buf.quoted(s)
		return
	}
	buf.writeString(s)
}

func needsQuote(s string, eq bool) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= 0x1F || c == ' ' || c == '"' || c == 0x7F || (eq && c == '=') {
			return true
		}
	}
	return false
}

// messageNeedsQuote reports whether a bare message could be confused with the
// field list that follows it.
func messageNeedsQuote(s string) bool {
	if s == "" || s[0] == ' ' || s[len(s)-1] == ' ' {
		return true
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= 0x1F || c == '"' || c == '=' || c == 0x7F {
			return true
		}
	}
	return false
}

// targetNeedsQuote reports whether a bare target could swallow the ": "
// separator.
func targetNeedsQuote(s string) bool {
	if s == "" {
		return true
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= 0x1F || c == ' ' || c == '"' || c == ':' || c == 0x7F {
			return true
		}
	}
	return false
}
