package alog

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// DropPolicy controls what a bounded mailbox does when it is full.
type DropPolicy uint8

const (
	DropNewest DropPolicy = iota // discard the incoming record (default)
	DropOldest                   // discard the oldest queued record to make room
)

// MailboxOptions configures LoggerActor mailboxes. The zero value is an
// unbounded mailbox, so senders never block and never drop.
type MailboxOptions struct {
	// Capacity bounds the number of queued records. Zero or negative means
	// unbounded. Control messages are never counted or dropped.
	Capacity int
	Policy   DropPolicy
}

type msgKind uint8

const (
	msgRecord msgKind = iota
	msgStop
	msgKill
	msgStats
)

type message struct {
	kind   msgKind
	rec    Record
	reason error
	reply  chan Stats
}

// mailbox is a multi-producer single-consumer queue. Producers append under
// mu and poke notify; the owning actor takes the whole backlog at once.
type mailbox struct {
	mu      sync.Mutex
	queue   []message
	records int
	closed  bool
	notify  chan struct{}
	opts    MailboxOptions
	dropped atomic.Uint64
}

func newMailbox(opts MailboxOptions) *mailbox {
	return &mailbox{
		queue:  make([]message, 0, 16),
		notify: make(chan struct{}, 1),
		opts:   opts,
	}
}

// push appends m. It fails only when the mailbox is closed, or when a bounded
// mailbox is full under DropNewest.
func (m *mailbox) push(msg message) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSendFailed
	}
	if msg.kind == msgRecord && m.opts.Capacity > 0 && m.records >= m.opts.Capacity {
		if m.opts.Policy == DropNewest {
			m.mu.Unlock()
			m.dropped.Add(1)
			return errors.WithStack(ErrMailboxFull)
		}
		m.dropOldestLocked()
	}
	m.queue = append(m.queue, msg)
	if msg.kind == msgRecord {
		m.records++
	}
	m.mu.Unlock()
	m.poke()
	return nil
}

// pushFront places msg ahead of everything queued. Used for kill.
func (m *mailbox) pushFront(msg message) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSendFailed
	}
	m.queue = append(m.queue, message{})
	copy(m.queue[1:], m.queue)
	m.queue[0] = msg
	m.mu.Unlock()
	m.poke()
	return nil
}

func (m *mailbox) dropOldestLocked() {
	for i := range m.queue {
		if m.queue[i].kind != msgRecord {
			continue
		}
		m.queue = append(m.queue[:i], m.queue[i+1:]...)
		m.records--
		m.dropped.Add(1)
		return
	}
}

func (m *mailbox) poke() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// takeAll removes and returns the current backlog. The returned slice is owned
// by the caller.
func (m *mailbox) takeAll() []message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil
	}
	out := m.queue
	m.queue = make([]message, 0, cap(out))
	m.records = 0
	return out
}

func (m *mailbox) signal() <-chan struct{} { return m.notify }

// close rejects further pushes and returns whatever was still queued.
func (m *mailbox) close() []message {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	out := m.queue
	m.queue = nil
	m.records = 0
	return out
}

func (m *mailbox) depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
