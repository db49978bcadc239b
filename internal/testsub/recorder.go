// Package testsub provides a recording subscriber for tests.
package testsub

import (
	"sync"
	"time"

	"github.com/trickstertwo/alog"
)

// Recorder stores every consumed record. Fail, when set, is consulted before
// each record is stored; a non-nil result is returned from Consume instead.
type Recorder struct {
	filter alog.LevelFilter

	mu      sync.Mutex
	cond    *sync.Cond
	records []alog.Record
	closed  int
	Fail    func(alog.Record) error
}

func New(filter alog.LevelFilter) *Recorder {
	r := &Recorder{filter: filter}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *Recorder) LevelFilter() alog.LevelFilter { return r.filter }

func (r *Recorder) Consume(rec alog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		if err := r.Fail(rec); err != nil {
			return err
		}
	}
	r.records = append(r.records, rec)
	r.cond.Broadcast()
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	r.closed++
	r.mu.Unlock()
	return nil
}

// Closed reports how many times Close was called.
func (r *Recorder) Closed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Records returns a copy of what has been consumed so far.
func (r *Recorder) Records() []alog.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]alog.Record(nil), r.records...)
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// WaitFor blocks until at least n records were consumed or d elapses, and
// reports whether the count was reached.
func (r *Recorder) WaitFor(n int, d time.Duration) bool {
	deadline := time.Now().Add(d)
	t := time.AfterFunc(d, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer t.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.records) < n {
		if !time.Now().Before(deadline) {
			return false
		}
		r.cond.Wait()
	}
	return true
}
