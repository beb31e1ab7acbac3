// Package dispatch maps the named page signals onto tracker transitions.
//
// A Signal describes what the browser observed. The Dispatcher first applies the
// page mutation that came with it (a new value, a checked box, a scroll offset)
// and then runs the single Handler registered for its Kind on the event loop.
package dispatch

import (
	"errors"

	"github.com/gyaneshwarpardhi/formbeacon/internal/dom"
)

// Kind names a page signal.
type Kind string

const (
	Load       Kind = "load"
	Focus      Kind = "focus"
	Input      Kind = "input"
	Change     Kind = "change"
	Blur       Kind = "blur"
	Submit     Kind = "submit"
	Unload     Kind = "unload"
	Visibility Kind = "visibility"
	ScrollKind Kind = "scroll"
)

// ErrNoTarget is returned when a signal that needs a control or form names
// nothing on the page.
var ErrNoTarget = errors.New("signal target not found")

// Signal is one observed page event. Pointer fields are mutations that only
// apply when set.
type Signal struct {
	Kind   Kind   `yaml:"kind" json:"kind"`
	Target string `yaml:"target,omitempty" json:"target,omitempty"` // "#id", control/form name or "@handle"

	Value    *string  `yaml:"value,omitempty" json:"value,omitempty"`
	Checked  *bool    `yaml:"checked,omitempty" json:"checked,omitempty"`
	Selected []string `yaml:"selected,omitempty" json:"selected,omitempty"`
	Files    []string `yaml:"files,omitempty" json:"files,omitempty"`

	Hidden         *bool    `yaml:"hidden,omitempty" json:"hidden,omitempty"`
	ScrollTop      *float64 `yaml:"scroll_top,omitempty" json:"scroll_top,omitempty"`
	DocumentHeight *float64 `yaml:"document_height,omitempty" json:"document_height,omitempty"`
	ViewportHeight *float64 `yaml:"viewport_height,omitempty" json:"viewport_height,omitempty"`
}

// Target is what a signal resolved to. Form is set for form targets and for
// controls that belong to a form.
type Target struct {
	Element *dom.Element
	Form    *dom.Form
}
