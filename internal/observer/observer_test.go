package observer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/formbeacon/internal/dom"
	"github.com/gyaneshwarpardhi/formbeacon/internal/event"
	"github.com/gyaneshwarpardhi/formbeacon/internal/schedule"
)

type sink struct {
	types  []event.Type
	fields []event.Fields
}

func (s *sink) Emit(t event.Type, f event.Fields) {
	s.types = append(s.types, t)
	s.fields = append(s.fields, f)
}

var start = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func newPage(t *testing.T) *dom.Page {
	t.Helper()
	p, err := dom.NewPage("https://example.com/")
	require.NoError(t, err)
	p.NavigationStart = start
	return p
}

func TestPageView_ImmediateWhenLoaded(t *testing.T) {
	page := newPage(t)
	clock := schedule.NewManual(start.Add(320 * time.Millisecond))
	out := &sink{}

	pv := NewPageView(page, out, clock)
	pv.Start()
	pv.Loaded()

	require.Equal(t, []event.Type{event.PageView}, out.types)
	assert.Equal(t, int64(320), out.fields[0]["load_time"])
}

func TestPageView_WaitsForLoad(t *testing.T) {
	page := newPage(t)
	page.ReadyState = "interactive"
	clock := schedule.NewManual(start)
	out := &sink{}

	pv := NewPageView(page, out, clock)
	pv.Start()
	assert.Empty(t, out.types)

	clock.Advance(time.Second)
	pv.Loaded()
	pv.Start()
	require.Len(t, out.types, 1)
	assert.Equal(t, int64(1000), out.fields[0]["load_time"])
	assert.Equal(t, dom.ReadyComplete, page.ReadyState)
}

func TestPageView_LoadTimeNeverNegative(t *testing.T) {
	page := newPage(t)
	clock := schedule.NewManual(start.Add(-time.Minute))
	out := &sink{}

	NewPageView(page, out, clock).Start()

	require.Len(t, out.fields, 1)
	assert.GreaterOrEqual(t, out.fields[0]["load_time"].(int64), int64(0))
}

func TestDepth(t *testing.T) {
	tests := []struct {
		name               string
		top, doc, viewport float64
		want               int
	}{
		{"top", 0, 3000, 1000, 0},
		{"half", 1000, 3000, 1000, 50},
		{"rounds", 1499, 3000, 1000, 75},
		{"bottom", 2000, 3000, 1000, 100},
		{"overscroll clamps", 2600, 3000, 1000, 100},
		{"negative clamps", -40, 3000, 1000, 0},
		{"not scrollable", 0, 800, 1000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Depth(tt.top, tt.doc, tt.viewport))
		})
	}
}

func TestScroll_MilestonesFireOnceFromTopToBottom(t *testing.T) {
	page := newPage(t)
	page.DocumentHeight, page.ViewportHeight = 3000, 1000
	clock := schedule.NewManual(start)
	out := &sink{}
	s := NewScroll(page, out, clock)

	for top := 0.0; top <= 2000; top += 50 {
		page.ScrollTop = top
		s.Scrolled()
		clock.Advance(200 * time.Millisecond)
	}
	// scroll back up and down again
	for _, top := range []float64{0, 2000, 1000, 2000} {
		page.ScrollTop = top
		s.Scrolled()
		clock.Advance(200 * time.Millisecond)
	}

	require.Equal(t, []event.Type{event.Scroll, event.Scroll, event.Scroll}, out.types)
	assert.Equal(t, 50, out.fields[0]["depth"])
	assert.Equal(t, 75, out.fields[1]["depth"])
	assert.Equal(t, 90, out.fields[2]["depth"])
	assert.Equal(t, 50, out.fields[0]["scroll_percentage"])
}

func TestScroll_BurstIsDebounced(t *testing.T) {
	page := newPage(t)
	page.DocumentHeight, page.ViewportHeight = 3000, 1000
	clock := schedule.NewManual(start)
	out := &sink{}
	s := NewScroll(page, out, clock)

	for top := 0.0; top <= 2000; top += 100 {
		page.ScrollTop = top
		s.Scrolled()
		clock.Advance(10 * time.Millisecond)
	}
	assert.Empty(t, out.types)

	clock.Advance(ScrollDebounce)
	require.Len(t, out.types, 3, "one settled jump to the bottom passes every milestone")
	for i, m := range Milestones {
		assert.Equal(t, m, out.fields[i]["depth"])
		assert.Equal(t, 100, out.fields[i]["scroll_percentage"])
		assert.True(t, s.Reached(m))
	}
}
