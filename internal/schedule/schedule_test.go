package schedule

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func TestManual_RunsDueActionsInOrder(t *testing.T) {
	m := NewManual(epoch)
	var got []string
	m.AfterFunc(300*time.Millisecond, func() { got = append(got, "b") })
	m.AfterFunc(100*time.Millisecond, func() { got = append(got, "a") })
	stopped := m.AfterFunc(200*time.Millisecond, func() { got = append(got, "x") })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	m.Advance(250 * time.Millisecond)
	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, epoch.Add(250*time.Millisecond), m.Now())

	m.Advance(time.Second)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 0, m.Pending())
}

func TestManual_ActionScheduledFromAction(t *testing.T) {
	m := NewManual(epoch)
	var at time.Time
	m.AfterFunc(100*time.Millisecond, func() {
		m.AfterFunc(100*time.Millisecond, func() { at = m.Now() })
	})
	m.Advance(time.Second)
	assert.Equal(t, epoch.Add(200*time.Millisecond), at)
}

func TestDebouncer_TriggerReplaces(t *testing.T) {
	m := NewManual(epoch)
	d := NewDebouncer[string](m)
	calls := 0
	for i := 0; i < 5; i++ {
		d.Trigger("email", 600*time.Millisecond, func() { calls++ })
		m.Advance(100 * time.Millisecond)
	}
	assert.Equal(t, 0, calls)
	assert.True(t, d.Pending("email"))

	m.Advance(600 * time.Millisecond)
	assert.Equal(t, 1, calls)
	assert.False(t, d.Pending("email"))
}

func TestDebouncer_Cancel(t *testing.T) {
	m := NewManual(epoch)
	d := NewDebouncer[int](m)
	ran := false
	d.Trigger(1, time.Second, func() { ran = true })
	assert.True(t, d.Cancel(1))
	assert.False(t, d.Cancel(1))
	m.Advance(2 * time.Second)
	assert.False(t, ran)
}

func TestDebouncer_KeysIndependent(t *testing.T) {
	m := NewManual(epoch)
	d := NewDebouncer[string](m)
	var got []string
	d.Trigger("a", 100*time.Millisecond, func() { got = append(got, "a") })
	d.Trigger("b", 50*time.Millisecond, func() { got = append(got, "b") })
	m.Advance(time.Second)
	assert.Equal(t, []string{"b", "a"}, got)
}

func TestLoop_SerializesDelayedActions(t *testing.T) {
	l := NewLoop(Real())
	var mu sync.Mutex
	inside := 0
	maxInside := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		l.AfterFunc(time.Millisecond, func() {
			defer wg.Done()
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(100 * time.Microsecond)
			mu.Lock()
			inside--
			mu.Unlock()
		})
	}
	wg.Wait()
	assert.Equal(t, 1, maxInside)
}
