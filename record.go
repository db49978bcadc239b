package alog

import (
	"time"

	"github.com/google/uuid"
)

// Source is the call site that produced a Record.
type Source struct {
	File string
	Line int
}

// IsZero reports whether no call site was captured.
func (s Source) IsZero() bool { return s.File == "" && s.Line == 0 }

// Record is one log event. It is fully rendered at the call site and owns its
// Fields slice; once sent, neither the sender nor the LoggerActor mutates it.
type Record struct {
	Level   Level
	Time    time.Time // assigned at the call site, not at delivery
	Target  string
	Message string
	Fields  []Field // insertion order is significant

	// Unit identifies the calling unit (its Caller). Zero for records built
	// with NewRecord.
	Unit   uuid.UUID
	Source Source
}

// NewRecord builds a Record stamped with the current xclock time.
// The fields are copied into a slice owned by the record.
func NewRecord(level Level, target, msg string, fields ...Field) Record {
	return Record{
		Level:   level,
		Time:    now(nil),
		Target:  target,
		Message: msg,
		Fields:  copyFields(nil, fields),
	}
}

// Field returns the first field with key k.
func (r Record) Field(k string) (Field, bool) {
	for _, f := range r.Fields {
		if f.K == k {
			return f, true
		}
	}
	return Field{}, false
}
