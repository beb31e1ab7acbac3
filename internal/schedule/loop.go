package schedule

import (
	"sync"
	"time"
)

// Loop serializes handlers the way a browser main thread does: signal handlers
// and delayed actions scheduled through it never run concurrently.
type Loop struct {
	mu    sync.Mutex
	inner Scheduler
}

// NewLoop wraps inner so that its delayed actions run inside the loop.
func NewLoop(inner Scheduler) *Loop {
	return &Loop{inner: inner}
}

// Do runs fn on the loop.
func (l *Loop) Do(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn()
}

func (l *Loop) Now() time.Time { return l.inner.Now() }

// AfterFunc schedules fn to run on the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	return l.inner.AfterFunc(d, func() { l.Do(fn) })
}
