// Package pool keeps reusable timers for bounding blocking socket operations.
package pool

import (
	"sync"
	"time"
)

var timers sync.Pool

// GetTimer returns a stopped-and-drained timer from the pool, armed to fire after d.
//
// Give it back with PutTimer once the guarded operation is done.
func GetTimer(d time.Duration) *time.Timer {
	v := timers.Get()
	if v == nil {
		return time.NewTimer(d)
	}

	t, _ := v.(*time.Timer)
	if t.Reset(d) {
		select {
		case <-t.C:
		default:
		}
	}

	return t
}

// PutTimer stops t and returns it to the pool. t must not be used afterwards.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timers.Put(t)
}

// Within runs fn and reports whether it finished before d elapsed.
// fn keeps running in the background on timeout; it must unblock on its own.
func Within(d time.Duration, fn func()) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()

	t := GetTimer(d)
	defer PutTimer(t)

	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}
