package alog

import (
	"time"
)

// Observer pattern

// LifecycleKind enumerates LoggerActor lifecycle transitions.
type LifecycleKind uint8

const (
	LifecycleStarted   LifecycleKind = iota + 1 // a pool member registered
	LifecycleStopped                            // a member exited normally
	LifecycleCrashed                            // a member exited abnormally
	LifecycleRestarted                          // a replacement registered
	LifecycleGaveUp                             // restart limit reached, name released
)

func (k LifecycleKind) String() string {
	switch k {
	case LifecycleStarted:
		return "started"
	case LifecycleStopped:
		return "stopped"
	case LifecycleCrashed:
		return "crashed"
	case LifecycleRestarted:
		return "restarted"
	case LifecycleGaveUp:
		return "gave_up"
	default:
		return "unknown"
	}
}

// LifecycleEvent is a read-only snapshot of one transition.
type LifecycleEvent struct {
	At       time.Time
	Name     string
	Kind     LifecycleKind
	Ref      *Ref  // nil for GaveUp
	Err      error // exit reason for Crashed, terminal cause for GaveUp
	Restarts int   // consecutive failures so far
}

// Observer receives lifecycle notifications. Events for one name are delivered
// in order from that name's supervisor goroutine; implementations MUST be
// concurrency-safe across names and must not block.
type Observer interface {
	OnLifecycle(e LifecycleEvent)
}

// ObserverFunc adapts a function into an Observer.
type ObserverFunc func(LifecycleEvent)

func (f ObserverFunc) OnLifecycle(e LifecycleEvent) { f(e) }
