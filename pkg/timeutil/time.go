// Package timeutil is the single clock for session timestamps and expiry.
package timeutil

import (
	"sync/atomic"
	"time"
)

var clock atomic.Pointer[func() time.Time]

// Now returns the current time in UTC
func Now() time.Time {
	if f := clock.Load(); f != nil {
		return (*f)().UTC()
	}
	return time.Now().UTC()
}

// Freeze pins Now to t until the returned restore func is called. Tests only.
func Freeze(t time.Time) (restore func()) {
	f := func() time.Time { return t }
	prev := clock.Swap(&f)
	return func() { clock.Store(prev) }
}
