package schedule

import (
	"sync"
	"time"
)

// Debouncer keeps at most one pending action per key. Triggering a key cancels
// and replaces its pending action; Cancel drops it.
type Debouncer[K comparable] struct {
	sched   Scheduler
	mu      sync.Mutex
	gen     uint64
	pending map[K]debounced
}

type debounced struct {
	timer Timer
	gen   uint64
}

// NewDebouncer creates a Debouncer on sched.
func NewDebouncer[K comparable](sched Scheduler) *Debouncer[K] {
	return &Debouncer[K]{sched: sched, pending: make(map[K]debounced)}
}

// Trigger schedules fn for key after d, replacing any pending action for key.
func (d *Debouncer[K]) Trigger(key K, delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pending[key]; ok {
		p.timer.Stop()
	}
	d.gen++
	gen := d.gen
	t := d.sched.AfterFunc(delay, func() {
		d.mu.Lock()
		p, ok := d.pending[key]
		// A replaced timer that raced past Stop must not run.
		if !ok || p.gen != gen {
			d.mu.Unlock()
			return
		}
		delete(d.pending, key)
		d.mu.Unlock()
		fn()
	})
	d.pending[key] = debounced{timer: t, gen: gen}
}

// Cancel drops the pending action for key and reports whether there was one.
func (d *Debouncer[K]) Cancel(key K) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pending[key]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(d.pending, key)
	return true
}

// Pending reports whether key has an action waiting.
func (d *Debouncer[K]) Pending(key K) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}
