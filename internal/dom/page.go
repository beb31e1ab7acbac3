// Package dom is the page model the beacon observes: forms, their controls and
// the handful of document properties that end up in event context.
//
// Forms and elements receive a stable integer handle at first observation so the
// tracker can key per-form state by identity without holding on to the page.
package dom

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Markers the host page uses to steer tracking.
const (
	AttrIgnore  = "data-tracker-ignore"
	AttrMask    = "data-tracker-mask"
	AttrNoValue = "data-tracker-no-value"
	AttrAlias   = "data-tracker-alias"
)

// ReadyComplete is the ready state of a fully loaded document.
const ReadyComplete = "complete"

// Option is one <option> of a select.
type Option struct {
	Value    string
	Text     string
	Selected bool
}

// Element is a form control: input, textarea or select.
type Element struct {
	Handle      int
	Tag         string // input | textarea | select
	Type        string // lower-cased; select-one/select-multiple/textarea for non-inputs
	Name        string
	ID          string
	Value       string
	Checked     bool
	Disabled    bool
	Hidden      bool // computed display:none / visibility:hidden
	Multiple    bool
	Options     []Option
	Files       []string
	Placeholder string
	Label       string // resolved <label> text, empty when none
	FormRef     string // value of the form="" attribute
	Attrs       map[string]string

	owner *Form
}

// Attr returns an attribute value.
func (e *Element) Attr(name string) (string, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

// HasAttr reports whether the attribute is present, whatever its value.
func (e *Element) HasAttr(name string) bool {
	_, ok := e.Attrs[name]
	return ok
}

// SelectedValues returns the values of selected options.
func (e *Element) SelectedValues() []string {
	var out []string
	for _, o := range e.Options {
		if o.Selected {
			out = append(out, o.Value)
		}
	}
	return out
}

// Select marks exactly the given option values as selected and syncs Value.
func (e *Element) Select(values ...string) {
	want := make(map[string]bool, len(values))
	for _, v := range values {
		want[v] = true
	}
	e.Value = ""
	for i := range e.Options {
		e.Options[i].Selected = want[e.Options[i].Value]
		if e.Options[i].Selected && e.Value == "" {
			e.Value = e.Options[i].Value
		}
	}
}

// Form is a <form> element.
type Form struct {
	Handle int
	ID     string
	Name   string
	Action string
	Attrs  map[string]string

	elements []*Element
}

// HasAttr reports whether the attribute is present.
func (f *Form) HasAttr(name string) bool {
	_, ok := f.Attrs[name]
	return ok
}

// Ignored reports whether the host page opted the form out of tracking.
func (f *Form) Ignored() bool { return f == nil || f.HasAttr(AttrIgnore) }

// Page is a single page load. Its lifetime bounds all tracker state.
type Page struct {
	URL             *url.URL
	Title           string
	Referrer        string
	UserAgent       string
	Language        string
	ScreenWidth     int
	ScreenHeight    int
	ReadyState      string
	NavigationStart time.Time
	Hidden          bool

	ScrollTop      float64
	DocumentHeight float64
	ViewportHeight float64

	forms    []*Form
	elements []*Element
	handles  int
}

// NewPage returns an empty, fully loaded page at rawURL.
func NewPage(rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &Page{URL: u, ReadyState: ReadyComplete, NavigationStart: time.Now()}, nil
}

// AddForm registers a form and assigns its handle.
func (p *Page) AddForm(f *Form) *Form {
	if f.Attrs == nil {
		f.Attrs = map[string]string{}
	}
	f.Handle = p.nextHandle()
	p.forms = append(p.forms, f)
	return f
}

// AddElement registers a control, optionally as a descendant of owner.
func (p *Page) AddElement(owner *Form, e *Element) *Element {
	if e.Attrs == nil {
		e.Attrs = map[string]string{}
	}
	if e.Tag == "" {
		e.Tag = "input"
	}
	if e.Type == "" {
		e.Type = defaultType(e)
	}
	e.Handle = p.nextHandle()
	e.owner = owner
	if owner != nil {
		owner.elements = append(owner.elements, e)
	}
	p.elements = append(p.elements, e)
	return e
}

func (p *Page) nextHandle() int {
	p.handles++
	return p.handles
}

func defaultType(e *Element) string {
	switch e.Tag {
	case "textarea":
		return "textarea"
	case "select":
		if e.Multiple {
			return "select-multiple"
		}
		return "select-one"
	default:
		return "text"
	}
}

// Forms returns all forms in document order.
func (p *Page) Forms() []*Form { return p.forms }

// Elements returns all controls in document order.
func (p *Page) Elements() []*Element { return p.elements }

// FormOf returns the form an element belongs to: its ancestor form, else the
// form its form="" attribute references.
func (p *Page) FormOf(e *Element) *Form {
	if e == nil {
		return nil
	}
	if e.owner != nil {
		return e.owner
	}
	if e.FormRef != "" {
		return p.formByID(e.FormRef)
	}
	return nil
}

func (p *Page) formByID(id string) *Form {
	for _, f := range p.forms {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// Descendants returns the controls nested inside the form.
func (f *Form) Descendants() []*Element { return f.elements }

// Associated returns the form's descendants followed by controls outside it
// that reference it through the form="" attribute.
func (p *Page) Associated(f *Form) []*Element {
	out := make([]*Element, 0, len(f.elements))
	out = append(out, f.elements...)
	if f.ID == "" {
		return out
	}
	for _, e := range p.elements {
		if e.owner == nil && e.FormRef == f.ID {
			out = append(out, e)
		}
	}
	return out
}

// Group returns the controls of the same type and name in the element's scope:
// its form's associated controls, or the whole document when it has no form.
func (p *Page) Group(e *Element) []*Element {
	if e.Name == "" {
		return []*Element{e}
	}
	scope := p.elements
	if f := p.FormOf(e); f != nil {
		scope = p.Associated(f)
	}
	var out []*Element
	for _, c := range scope {
		if c.Type == e.Type && c.Name == e.Name {
			out = append(out, c)
		}
	}
	return out
}

// Lookup resolves a signal target: "@<handle>", "#<id>" or a control name.
// A reference may resolve to a form or to an element.
func (p *Page) Lookup(ref string) (*Element, *Form) {
	switch {
	case strings.HasPrefix(ref, "@"):
		h, err := strconv.Atoi(ref[1:])
		if err != nil {
			return nil, nil
		}
		for _, f := range p.forms {
			if f.Handle == h {
				return nil, f
			}
		}
		for _, e := range p.elements {
			if e.Handle == h {
				return e, nil
			}
		}
	case strings.HasPrefix(ref, "#"):
		id := ref[1:]
		if f := p.formByID(id); f != nil {
			return nil, f
		}
		for _, e := range p.elements {
			if e.ID == id {
				return e, nil
			}
		}
	default:
		for _, f := range p.forms {
			if f.Name == ref {
				return nil, f
			}
		}
		for _, e := range p.elements {
			if e.Name == ref {
				return e, nil
			}
		}
	}
	return nil, nil
}

// ScreenResolution formats the screen size as "<w>x<h>".
func (p *Page) ScreenResolution() string {
	return strconv.Itoa(p.ScreenWidth) + "x" + strconv.Itoa(p.ScreenHeight)
}

// Href returns the page URL as a string.
func (p *Page) Href() string {
	if p.URL == nil {
		return ""
	}
	return p.URL.String()
}

// Query returns the page URL query parameters.
func (p *Page) Query() url.Values {
	if p.URL == nil {
		return url.Values{}
	}
	return p.URL.Query()
}
