package alog

import (
	"time"

	"github.com/trickstertwo/xclock"
)

// now reads c, falling back to the process-wide xclock default so frozen
// clocks installed with xclock.SetDefault are respected.
func now(c xclock.Clock) time.Time {
	if c != nil {
		return c.Now()
	}
	return xclock.Now()
}
