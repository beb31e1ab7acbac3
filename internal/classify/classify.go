// Package classify decides, for a single form control, its reporting key, whether
// its value is sensitive, whether the value may be captured and what the value is.
package classify

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gyaneshwarpardhi/formbeacon/internal/config"
	"github.com/gyaneshwarpardhi/formbeacon/internal/dom"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// capturableTypes are the input types whose values may ever be captured.
var capturableTypes = map[string]bool{
	"text": true, "email": true, "tel": true, "number": true, "search": true, "url": true,
	"password": true, "checkbox": true, "radio": true, "file": true,
	"date": true, "datetime-local": true, "time": true, "month": true, "week": true, "color": true,
}

// Value is the primitive value of a control: a scalar, or a list for checkbox
// groups and multi-selects.
type Value struct {
	Items []string
	Multi bool
}

func scalar(s string) Value { return Value{Items: []string{s}} }

func list(items []string) Value { return Value{Items: items, Multi: true} }

// Empty reports whether the value carries nothing worth reporting.
func (v Value) Empty() bool {
	if v.Multi {
		return len(v.Items) == 0
	}
	return len(v.Items) == 0 || strings.TrimSpace(v.Items[0]) == ""
}

// Classification is the full verdict for one control.
type Classification struct {
	Key          string
	Sensitive    bool
	CaptureValue bool
	Value        Value
}

// Classifier applies the configured masking and capture policy.
type Classifier struct {
	cfg       *config.TrackerConfig
	page      *dom.Page
	patterns  []string
	allowlist []string
}

// New builds a Classifier for one page.
func New(cfg *config.TrackerConfig, page *dom.Page) *Classifier {
	c := &Classifier{cfg: cfg, page: page}
	for _, p := range cfg.SensitivePatterns() {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			c.patterns = append(c.patterns, p)
		}
	}
	for _, k := range cfg.FieldValueAllowlist {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			c.allowlist = append(c.allowlist, k)
		}
	}
	return c
}

// Classify returns every decision for e at once.
func (c *Classifier) Classify(e *dom.Element) Classification {
	return Classification{
		Key:          Key(e),
		Sensitive:    c.Sensitive(e),
		CaptureValue: c.ShouldCaptureValue(e),
		Value:        c.Primitive(e),
	}
}

// Key is the alias marker, else name, else id, else "field_<type>".
func Key(e *dom.Element) string {
	if alias, ok := e.Attr(dom.AttrAlias); ok && alias != "" {
		return alias
	}
	if e.Name != "" {
		return e.Name
	}
	if e.ID != "" {
		return e.ID
	}
	t := e.Type
	if t == "" {
		t = "text"
	}
	return "field_" + t
}

// Label is the resolved <label>, else the placeholder, else the name, else "unknown".
func Label(e *dom.Element) string {
	switch {
	case e.Label != "":
		return e.Label
	case e.Placeholder != "":
		return e.Placeholder
	case e.Name != "":
		return e.Name
	default:
		return "unknown"
	}
}

// IsHidden reports a control that is not rendered.
func IsHidden(e *dom.Element) bool {
	return e.Hidden || e.Type == "hidden"
}

// Eligible reports whether the control takes part in form tracking at all.
func (c *Classifier) Eligible(e *dom.Element) bool {
	if e == nil || e.HasAttr(dom.AttrIgnore) {
		return false
	}
	switch e.Tag {
	case "input":
		switch e.Type {
		case "button", "submit", "reset", "image":
			return false
		}
	case "textarea", "select":
	default:
		return false
	}
	if !c.cfg.IncludeDisabledOrHidden && (e.Disabled || IsHidden(e)) {
		return false
	}
	return true
}

// Sensitive is true for password inputs, the mask marker, or a name/id matching
// one of the sensitive patterns.
func (c *Classifier) Sensitive(e *dom.Element) bool {
	if e.Type == "password" || e.HasAttr(dom.AttrMask) {
		return true
	}
	return c.sensitiveName(e.Name) || c.sensitiveName(e.ID)
}

func (c *Classifier) sensitiveName(s string) bool {
	if s == "" {
		return false
	}
	s = strings.ToLower(s)
	for _, p := range c.patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// Allowlisted reports a control whose name or id is on the value allow-list.
func (c *Classifier) Allowlisted(e *dom.Element) bool {
	n, i := strings.ToLower(e.Name), strings.ToLower(e.ID)
	for _, k := range c.allowlist {
		if n == k || i == k {
			return true
		}
	}
	return false
}

// masked reports whether masking hides this control's value.
func (c *Classifier) masked(e *dom.Element, maskingOn bool) bool {
	return maskingOn && c.Sensitive(e) && !c.Allowlisted(e)
}

// ShouldCaptureValue applies the capture gates in order; the allow-list beats masking.
func (c *Classifier) ShouldCaptureValue(e *dom.Element) bool {
	if !c.cfg.CollectFieldValues {
		return false
	}
	if v, _ := e.Attr(dom.AttrNoValue); v == "true" {
		return false
	}
	if !c.cfg.IncludeDisabledOrHidden && (e.Disabled || IsHidden(e)) {
		return false
	}
	switch {
	case e.Type == "file":
		if !c.cfg.IncludeFileNamesOnLead {
			return false
		}
	case e.Type == "checkbox" || e.Type == "radio":
		if !c.cfg.IncludeCheckboxRadioOnLead {
			return false
		}
	}
	if !(capturableTypes[e.Type] || e.Tag == "textarea" || e.Tag == "select") {
		return false
	}
	return !c.masked(e, c.cfg.MaskSensitiveFields)
}

func isToggle(e *dom.Element) bool { return e.Type == "checkbox" || e.Type == "radio" }

func (c *Classifier) unchecked() string {
	if c.cfg.IncludeUncheckedAsFalse {
		return "false"
	}
	return ""
}

func toggleValue(e *dom.Element) string {
	if e.Value == "" {
		return "on"
	}
	return e.Value
}

// Primitive extracts the raw, type-specific value of the control.
func (c *Classifier) Primitive(e *dom.Element) Value {
	switch {
	case e.Type == "checkbox":
		if group := c.page.Group(e); len(group) > 1 {
			var checked []string
			for _, g := range group {
				if g.Checked {
					checked = append(checked, toggleValue(g))
				}
			}
			if len(checked) > 0 {
				return list(checked)
			}
			return scalar(c.unchecked())
		}
		if e.Checked {
			return scalar(toggleValue(e))
		}
		return scalar(c.unchecked())
	case e.Type == "radio":
		for _, g := range c.page.Group(e) {
			if g.Checked {
				return scalar(toggleValue(g))
			}
		}
		return scalar(c.unchecked())
	case e.Type == "file":
		if !c.cfg.IncludeFileNamesOnLead || len(e.Files) == 0 {
			return scalar("")
		}
		return scalar(e.Files[0])
	case e.Tag == "select" && e.Multiple:
		return list(e.SelectedValues())
	default:
		return scalar(e.Value)
	}
}

// HasValue reports whether the control currently holds something to report.
// Under unchecked-as-false every checkbox and radio holds a value.
func (c *Classifier) HasValue(e *dom.Element) bool {
	if isToggle(e) && c.cfg.IncludeUncheckedAsFalse {
		return true
	}
	if e.Type == "file" {
		return len(e.Files) > 0
	}
	return !c.Primitive(e).Empty()
}

// Sanitize collapses whitespace, trims, joins lists with ", " and truncates.
func (c *Classifier) Sanitize(v Value) string {
	return Sanitize(v, c.cfg.MaxFieldValueLength)
}

// Sanitize is the policy-free form of Classifier.Sanitize. limit <= 0 disables truncation.
func Sanitize(v Value, limit int) string {
	var s string
	if v.Multi {
		parts := make([]string, 0, len(v.Items))
		for _, item := range v.Items {
			if item = clean(item); item != "" {
				parts = append(parts, item)
			}
		}
		s = strings.Join(parts, ", ")
	} else if len(v.Items) > 0 {
		s = clean(v.Items[0])
	}
	if limit > 0 && utf8.RuneCountInString(s) > limit {
		s = string([]rune(s)[:limit])
	}
	return s
}

func clean(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// FieldFilledValue is the value reported on FieldFilled. ok is false when the
// value must be omitted entirely.
func (c *Classifier) FieldFilledValue(e *dom.Element) (string, bool) {
	if !c.cfg.ForceFieldValueOnFieldFilled || !c.cfg.CollectFieldValues {
		return "", false
	}
	if v, _ := e.Attr(dom.AttrNoValue); v == "true" {
		return "", false
	}
	if c.masked(e, c.cfg.MaskOnFieldFilled()) {
		return c.cfg.FieldFilledMaskReplacement, true
	}
	out := c.Sanitize(c.Primitive(e))
	if out == "" && isToggle(e) && c.cfg.IncludeUncheckedAsFalse {
		out = "false"
	}
	return out, true
}

// LeadValue is the value captured into Lead form data. ok is false when the
// control contributes nothing.
func (c *Classifier) LeadValue(e *dom.Element) (string, bool) {
	if !c.ShouldCaptureValue(e) {
		return "", false
	}
	v := c.Sanitize(c.Primitive(e))
	if v == "" {
		if isToggle(e) && c.cfg.IncludeUncheckedAsFalse {
			return "false", true
		}
		return "", false
	}
	return v, true
}
