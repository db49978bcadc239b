package console

import (
	"encoding/base64"
	"math"
	"strconv"
	"sync"
	"time"
)

// buffer is a growing byte buffer reused across records.
type buffer struct{ b []byte }

func (buf *buffer) writeString(s string) { buf.b = append(buf.b, s...) }
func (buf *buffer) writeByte(c byte)     { buf.b = append(buf.b, c) }

func (buf *buffer) pad(n int) {
	for ; n > 0; n-- {
		buf.b = append(buf.b, ' ')
	}
}

var bufPool = sync.Pool{New: func() any { return &buffer{b: make([]byte, 0, 512)} }}

func getBuf() *buffer {
	buf := bufPool.Get().(*buffer)
	buf.b = buf.b[:0]
	return buf
}

func putBuf(buf *buffer) {
	if cap(buf.b) <= 64*1024 {
		bufPool.Put(buf)
	}
}

func (buf *buffer) writeInt(v int64) { buf.b = strconv.AppendInt(buf.b, v, 10) }

func (buf *buffer) writeUint(v uint64) { buf.b = strconv.AppendUint(buf.b, v, 10) }

func (buf *buffer) writeFloat(f float64) {
	switch {
	case math.IsNaN(f):
		buf.writeString("NaN")
	case math.IsInf(f, 1):
		buf.writeString("+Inf")
	case math.IsInf(f, -1):
		buf.writeString("-Inf")
	default:
		buf.b = strconv.AppendFloat(buf.b, f, 'g', -1, 64)
	}
}

func (buf *buffer) writeBool(v bool) { buf.b = strconv.AppendBool(buf.b, v) }

func (buf *buffer) writeTime(t time.Time) { buf.b = t.AppendFormat(buf.b, time.RFC3339Nano) }

func (buf *buffer) writeBase64(data []byte) {
	n := base64.StdEncoding.EncodedLen(len(data))
	start := len(buf.b)
	buf.b = append(buf.b, make([]byte, n)...)
	base64.StdEncoding.Encode(buf.b[start:], data)
}
