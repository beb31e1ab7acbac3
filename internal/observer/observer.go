// Package observer holds the passive page observers: the one-shot PageView and
// scroll-depth milestones.
package observer

import (
	"math"
	"time"

	"github.com/gyaneshwarpardhi/formbeacon/internal/dom"
	"github.com/gyaneshwarpardhi/formbeacon/internal/event"
	"github.com/gyaneshwarpardhi/formbeacon/internal/schedule"
)

// ScrollDebounce is the quiet period that ends a scroll burst.
const ScrollDebounce = 150 * time.Millisecond

// Milestones are the scroll depths reported, each once per page life.
var Milestones = []int{50, 75, 90}

// Emitter receives observer events.
type Emitter interface {
	Emit(t event.Type, fields event.Fields)
}

// PageView reports the page view exactly once.
type PageView struct {
	page  *dom.Page
	out   Emitter
	clock schedule.Scheduler
	sent  bool
}

// NewPageView creates the observer. Nothing is emitted until Start or Loaded.
func NewPageView(page *dom.Page, out Emitter, clock schedule.Scheduler) *PageView {
	return &PageView{page: page, out: out, clock: clock}
}

// Start emits immediately when the document has already finished loading.
func (p *PageView) Start() {
	if p.page.ReadyState == dom.ReadyComplete {
		p.send()
	}
}

// Loaded handles the load completion signal.
func (p *PageView) Loaded() {
	p.page.ReadyState = dom.ReadyComplete
	p.send()
}

func (p *PageView) send() {
	if p.sent {
		return
	}
	p.sent = true
	p.out.Emit(event.PageView, event.Fields{"load_time": p.loadTime()})
}

// loadTime is milliseconds since navigation start, never negative.
func (p *PageView) loadTime() int64 {
	if p.page.NavigationStart.IsZero() {
		return 0
	}
	ms := p.clock.Now().Sub(p.page.NavigationStart).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}

// Scroll reports scroll-depth milestones after each scroll burst settles.
type Scroll struct {
	page     *dom.Page
	out      Emitter
	debounce *schedule.Debouncer[struct{}]
	reached  map[int]bool
}

// NewScroll creates the observer.
func NewScroll(page *dom.Page, out Emitter, sched schedule.Scheduler) *Scroll {
	return &Scroll{
		page:     page,
		out:      out,
		debounce: schedule.NewDebouncer[struct{}](sched),
		reached:  make(map[int]bool, len(Milestones)),
	}
}

// Scrolled handles one scroll signal; the page geometry is read when the burst settles.
func (s *Scroll) Scrolled() {
	s.debounce.Trigger(struct{}{}, ScrollDebounce, s.measure)
}

func (s *Scroll) measure() {
	d := Depth(s.page.ScrollTop, s.page.DocumentHeight, s.page.ViewportHeight)
	for _, m := range Milestones {
		if d >= m && !s.reached[m] {
			s.reached[m] = true
			s.out.Emit(event.Scroll, event.Fields{"depth": m, "scroll_percentage": d})
		}
	}
}

// Reached reports whether milestone m has fired.
func (s *Scroll) Reached(m int) bool { return s.reached[m] }

// Depth is the scrolled percentage of the scrollable height, clamped to [0,100].
// A page that cannot scroll has depth 0.
func Depth(scrollTop, documentHeight, viewportHeight float64) int {
	scrollable := documentHeight - viewportHeight
	if scrollable <= 0 {
		return 0
	}
	d := int(math.Round(scrollTop / scrollable * 100))
	return max(0, min(d, 100))
}
