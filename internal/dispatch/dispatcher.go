package dispatch

import (
	"fmt"
	"log/slog"

	"github.com/gyaneshwarpardhi/formbeacon/internal/dom"
	"github.com/gyaneshwarpardhi/formbeacon/internal/metrics"
	"github.com/gyaneshwarpardhi/formbeacon/internal/schedule"
)

// Dispatcher applies signals to the page and runs their handlers on the loop.
type Dispatcher struct {
	page *dom.Page
	reg  *Registry
	loop *schedule.Loop
	log  *slog.Logger
}

// New creates a Dispatcher.
func New(page *dom.Page, reg *Registry, loop *schedule.Loop, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{page: page, reg: reg, loop: loop, log: log}
}

// Dispatch processes one signal. The returned error is diagnostic only: an
// unresolved target, a handler error or a recovered handler panic. A signal
// kind nobody registered for is not an error.
func (d *Dispatcher) Dispatch(sig Signal) (err error) {
	metrics.SignalsDispatched.WithLabelValues(string(sig.Kind)).Inc()
	d.loop.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("signal %s handler panicked: %v", sig.Kind, r)
				d.log.Error("signal handler panicked", "kind", sig.Kind, "target", sig.Target, "panic", r)
			}
		}()
		tgt := d.resolve(sig.Target)
		d.apply(sig, tgt)

		h, gerr := d.reg.Get(sig.Kind)
		if gerr != nil {
			d.log.Debug("signal ignored", "kind", sig.Kind, "reason", gerr)
			return
		}
		if err = h.Handle(sig, tgt); err != nil {
			d.log.Debug("signal not handled", "kind", sig.Kind, "target", sig.Target, "err", err)
		}
	})
	return err
}

func (d *Dispatcher) resolve(ref string) Target {
	if ref == "" {
		return Target{}
	}
	e, f := d.page.Lookup(ref)
	if e != nil {
		return Target{Element: e, Form: d.page.FormOf(e)}
	}
	return Target{Form: f}
}

// apply makes the change the browser would have made before firing the event.
func (d *Dispatcher) apply(sig Signal, tgt Target) {
	if e := tgt.Element; e != nil {
		switch {
		case sig.Selected != nil:
			e.Select(sig.Selected...)
		case sig.Value != nil && e.Tag == "select":
			e.Select(*sig.Value)
		case sig.Value != nil:
			e.Value = *sig.Value
		}
		if sig.Checked != nil {
			e.Checked = *sig.Checked
			if e.Checked && e.Type == "radio" {
				for _, other := range d.page.Group(e) {
					if other != e {
						other.Checked = false
					}
				}
			}
		}
		if sig.Files != nil {
			e.Files = append([]string(nil), sig.Files...)
		}
	}

	if sig.Hidden != nil {
		d.page.Hidden = *sig.Hidden
	}
	if sig.ScrollTop != nil {
		d.page.ScrollTop = *sig.ScrollTop
	}
	if sig.DocumentHeight != nil {
		d.page.DocumentHeight = *sig.DocumentHeight
	}
	if sig.ViewportHeight != nil {
		d.page.ViewportHeight = *sig.ViewportHeight
	}
	if sig.Kind == Load {
		d.page.ReadyState = dom.ReadyComplete
	}
}
