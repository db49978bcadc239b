package alog

import (
	"strconv"

	"github.com/pkg/errors"
)

var (
	// ErrAlreadyInitialized is returned by Init when the name already has a
	// live logger in this System.
	ErrAlreadyInitialized = errors.New("alog: logger already initialized")

	// ErrNameNotFound is matched by every *NotFoundError.
	ErrNameNotFound = errors.New("alog: name not found")

	// ErrNameAlreadyBound is returned by Register when a different, live
	// reference already holds the name.
	ErrNameAlreadyBound = errors.New("alog: name already bound")

	// ErrSendFailed is returned when the target actor has terminated.
	ErrSendFailed = errors.New("alog: send failed, logger terminated")

	// ErrSinkUnavailable marks a subscriber failure as fatal to its
	// LoggerActor. Subscribers wrap it to request termination.
	ErrSinkUnavailable = errors.New("alog: sink unavailable")

	// ErrRestartLimitExceeded is the terminal cause recorded when the
	// supervisor gives up on a name.
	ErrRestartLimitExceeded = errors.New("alog: restart limit exceeded")

	ErrNoSubscriber  = errors.New("alog: no subscriber configured")
	ErrNotRenewable  = errors.New("alog: subscriber cannot be renewed")
	ErrSystemClosed  = errors.New("alog: system closed")
	ErrMailboxFull   = errors.New("alog: mailbox full, dropping record")
	ErrActorPanic    = errors.New("alog: logger actor panicked")
	ErrKilled        = errors.New("alog: logger actor killed")
	errInvalidConfig = errors.New("alog: invalid configuration")
)

// NotFoundError is returned by Resolve. Cause carries the terminal fault
// that removed the name, if any (for example ErrRestartLimitExceeded).
type NotFoundError struct {
	Name  string
	Cause error
}

func (e *NotFoundError) Error() string {
	msg := "alog: name " + strconv.Quote(e.Name) + " not found"
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNameNotFound }

func (e *NotFoundError) Unwrap() error { return e.Cause }

// IsFatal reports whether a subscriber error must terminate the actor.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSinkUnavailable)
}
