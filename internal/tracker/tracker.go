// Package tracker is the form-interaction state machine. It turns noisy control
// signals (focus, input, change, blur, submit, page hide/unload) into at most one
// FormStarted, one FieldFilled per field key, one Lead and one FormAbandoned per
// form.
//
// A Tracker is not safe for concurrent use. Drive it from a single loop
// (schedule.Loop) and give it a scheduler whose delayed actions run on that loop.
package tracker

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/gyaneshwarpardhi/formbeacon/internal/classify"
	"github.com/gyaneshwarpardhi/formbeacon/internal/config"
	"github.com/gyaneshwarpardhi/formbeacon/internal/dom"
	"github.com/gyaneshwarpardhi/formbeacon/internal/event"
	"github.com/gyaneshwarpardhi/formbeacon/internal/schedule"
)

// DebounceDelay is how long a text-like field must stay quiet before it counts as filled.
const DebounceDelay = 600 * time.Millisecond

// Reason records which path detected a filled field.
type Reason string

const (
	ReasonDebounce Reason = "debounce"
	ReasonChange   Reason = "change"
	ReasonBlur     Reason = "blur"
	ReasonFinalize Reason = "finalize"
)

// commonLeadKeys are captured on Lead when whole-form capture is off.
var commonLeadKeys = map[string]bool{
	"name": true, "first_name": true, "last_name": true, "full_name": true,
	"email": true, "phone": true, "tel": true, "whatsapp": true,
	"company": true, "message": true,
}

// Emitter receives the events the tracker produces.
type Emitter interface {
	Emit(t event.Type, fields event.Fields)
}

// Options wires a Tracker.
type Options struct {
	Config     *config.TrackerConfig
	Page       *dom.Page
	Classifier *classify.Classifier
	Emitter    Emitter
	Scheduler  schedule.Scheduler
	Logger     *slog.Logger
	Version    string
}

// Tracker owns the per-form state table for one page.
type Tracker struct {
	cfg      *config.TrackerConfig
	page     *dom.Page
	cls      *classify.Classifier
	out      Emitter
	sched    schedule.Scheduler
	debounce *schedule.Debouncer[int]
	log      *slog.Logger
	version  string

	forms map[int]*FormState
}

// New creates a Tracker with an empty state table.
func New(opts Options) *Tracker {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		cfg:      opts.Config,
		page:     opts.Page,
		cls:      opts.Classifier,
		out:      opts.Emitter,
		sched:    opts.Scheduler,
		debounce: schedule.NewDebouncer[int](opts.Scheduler),
		log:      log,
		version:  opts.Version,
		forms:    make(map[int]*FormState),
	}
}

// State returns the recorded state of f, or nil if it was never observed.
func (t *Tracker) State(f *dom.Form) *FormState {
	if f == nil {
		return nil
	}
	return t.forms[f.Handle]
}

// Phase returns the lifecycle phase of f.
func (t *Tracker) Phase(f *dom.Form) Phase {
	if s := t.State(f); s != nil {
		return s.Phase
	}
	return Untouched
}

func (t *Tracker) state(f *dom.Form) *FormState {
	s, ok := t.forms[f.Handle]
	if !ok {
		s = newFormState(f)
		t.forms[f.Handle] = s
	}
	return s
}

// qualify returns the tracked form of a field signal, or nil when the signal is
// to be ignored.
func (t *Tracker) qualify(e *dom.Element) *dom.Form {
	if !t.cls.Eligible(e) {
		return nil
	}
	f := t.page.FormOf(e)
	if f.Ignored() {
		return nil
	}
	if t.Phase(f).terminal() {
		return nil
	}
	return f
}

// Focus starts the form on its first qualifying field.
func (t *Tracker) Focus(e *dom.Element) {
	if f := t.qualify(e); f != nil {
		t.ensureStarted(f, classify.Key(e))
	}
}

// Input starts the form if needed and (re)arms the field's debounce timer.
// Toggles, files and selects report through Change instead.
func (t *Tracker) Input(e *dom.Element) {
	f := t.qualify(e)
	if f == nil {
		return
	}
	t.ensureStarted(f, classify.Key(e))
	if e.Type == "checkbox" || e.Type == "radio" || e.Type == "file" || e.Tag == "select" {
		return
	}
	t.debounce.Trigger(e.Handle, DebounceDelay, func() {
		t.fieldFilled(f, e, ReasonDebounce)
	})
}

// Change reports the field immediately.
func (t *Tracker) Change(e *dom.Element) {
	if f := t.qualify(e); f != nil {
		t.ensureStarted(f, classify.Key(e))
		t.fieldFilled(f, e, ReasonChange)
	}
}

// Blur reports the field immediately in case its debounce has not fired yet.
func (t *Tracker) Blur(e *dom.Element) {
	if f := t.qualify(e); f != nil {
		t.ensureStarted(f, classify.Key(e))
		t.fieldFilled(f, e, ReasonBlur)
	}
}

func (t *Tracker) ensureStarted(f *dom.Form, firstField string) {
	s := t.state(f)
	if s.started() {
		return
	}
	s.Phase = Started
	t.out.Emit(event.FormStarted, event.Fields{
		"form_id":          formID(f),
		"form_instance_id": s.InstanceID,
		"form_action":      t.formAction(f),
		"first_field":      firstField,
	})
	t.emitSchema(f)
}

// firstField is the key of the form's first eligible control, used when a form
// starts on submit without any field signal.
func (t *Tracker) firstField(f *dom.Form) string {
	for _, e := range t.page.Associated(f) {
		if t.cls.Eligible(e) {
			return classify.Key(e)
		}
	}
	return ""
}

// SchemaField describes one eligible control in a FormSchema event.
type SchemaField struct {
	Key       string  `json:"key"`
	Name      *string `json:"name"`
	ID        *string `json:"id"`
	Type      string  `json:"type"`
	Label     string  `json:"label"`
	Sensitive bool    `json:"sensitive"`
}

func (t *Tracker) emitSchema(f *dom.Form) {
	if !t.cfg.EmitFormSchemaOnStart {
		return
	}
	schema := []SchemaField{}
	for _, e := range t.page.Associated(f) {
		if !t.cls.Eligible(e) {
			continue
		}
		c := t.cls.Classify(e)
		schema = append(schema, SchemaField{
			Key:       c.Key,
			Name:      nonEmpty(e.Name),
			ID:        nonEmpty(e.ID),
			Type:      e.Type,
			Label:     classify.Label(e),
			Sensitive: c.Sensitive,
		})
	}
	t.out.Emit(event.FormSchema, event.Fields{
		"form_id":     formID(f),
		"form_action": t.formAction(f),
		"fields":      schema,
	})
}

// fieldFilled is the single convergence point of the debounce, change, blur and
// finalize paths. It always cancels the field's pending debounce first and emits
// FieldFilled at most once per field key per form.
func (t *Tracker) fieldFilled(f *dom.Form, e *dom.Element, reason Reason) {
	t.debounce.Cancel(e.Handle)

	s := t.state(f)
	if s.Phase.terminal() {
		return
	}
	if !t.cls.HasValue(e) {
		// A tracked clear forgets the remembered value; finalize keeps it for backfill.
		if fs, ok := s.Fields[classify.Key(e)]; ok && reason != ReasonFinalize {
			fs.LastValue, fs.HasLast = "", false
		}
		return
	}
	key := classify.Key(e)
	fs := s.field(key, e.Type)
	fs.Timestamp = t.sched.Now()
	if v, ok := t.cls.LeadValue(e); ok && v != "" {
		fs.LastValue, fs.HasLast = v, true
	}
	if fs.Emitted {
		return
	}

	payload := event.Fields{
		"form_id":      formID(f),
		"field_name":   key,
		"field_type":   e.Type,
		"field_label":  classify.Label(e),
		"field_reason": string(reason),
	}
	if v, ok := t.cls.FieldFilledValue(e); ok {
		payload["field_value"] = v
	}
	t.out.Emit(event.FieldFilled, payload)
	fs.Emitted = true
}

// finalize runs fill detection over every eligible control associated with f,
// so that no in-flight debounce is lost.
func (t *Tracker) finalize(f *dom.Form) {
	for _, e := range t.page.Associated(f) {
		if t.cls.Eligible(e) {
			t.fieldFilled(f, e, ReasonFinalize)
		}
	}
}

// Submit finalizes the form, marks it submitted and emits Lead.
func (t *Tracker) Submit(f *dom.Form) {
	if f.Ignored() {
		return
	}
	if p := t.Phase(f); p.terminal() {
		t.log.Debug("submit on finished form ignored", "form_id", formID(f), "phase", p)
		return
	}
	t.ensureStarted(f, t.firstField(f))
	t.finalize(f)

	s := t.state(f)
	s.Phase = Submitted

	lead := t.collectLead(f, s)
	if t.cfg.Debug && t.cfg.EmitFormDebugSummary {
		t.emitDebugSummary(f, s, lead)
	}
	t.out.Emit(event.Lead, event.Fields{
		"form_data":        lead,
		"form_id":          formID(f),
		"form_instance_id": s.InstanceID,
		"form_action":      t.formAction(f),
	})
}

func (t *Tracker) collectLead(f *dom.Form, s *FormState) map[string]string {
	out := make(map[string]string)
	for _, e := range t.page.Associated(f) {
		if !t.cls.Eligible(e) {
			continue
		}
		key := classify.Key(e)
		if v, ok := t.cls.LeadValue(e); ok && v != "" {
			out[key] = v
		}
	}
	if t.cfg.IncludeTrackedValuesOnLead {
		for _, key := range s.order {
			fs := s.Fields[key]
			if out[key] == "" && fs.HasLast {
				out[key] = fs.LastValue
			}
		}
	}
	if !t.cfg.IncludeAllFieldsOnLead {
		for key := range out {
			if !commonLeadKeys[key] {
				delete(out, key)
			}
		}
	}
	return out
}

func (t *Tracker) emitDebugSummary(f *dom.Form, s *FormState, lead map[string]string) {
	var seen []string
	has := make(map[string]bool)
	add := func(k string) {
		if k != "" && !has[k] {
			has[k] = true
			seen = append(seen, k)
		}
	}
	for _, e := range t.page.Associated(f) {
		if t.cls.Eligible(e) {
			add(classify.Key(e))
		}
	}
	for _, k := range s.order {
		add(k)
	}

	sent := make([]string, 0, len(lead))
	for k := range lead {
		sent = append(sent, k)
	}
	sort.Strings(sent)

	missing := []string{}
	for _, k := range seen {
		if _, ok := lead[k]; !ok {
			missing = append(missing, k)
		}
	}

	t.out.Emit(event.FormDebugSummary, event.Fields{
		"form_id":      formID(f),
		"form_action":  t.formAction(f),
		"seen_keys":    seen,
		"sent_keys":    sent,
		"missing_keys": missing,
		"flags": map[string]bool{
			"includeAllFieldsOnLead":       t.cfg.IncludeAllFieldsOnLead,
			"includeCheckboxRadioOnLead":   t.cfg.IncludeCheckboxRadioOnLead,
			"includeFileNamesOnLead":       t.cfg.IncludeFileNamesOnLead,
			"includeDisabledOrHidden":      t.cfg.IncludeDisabledOrHidden,
			"includeUncheckedAsFalse":      t.cfg.IncludeUncheckedAsFalse,
			"maskSensitiveFields":          t.cfg.MaskSensitiveFields,
			"includeTrackedValuesOnLead":   t.cfg.IncludeTrackedValuesOnLead,
			"forceFieldValueOnFieldFilled": t.cfg.ForceFieldValueOnFieldFilled,
			"fieldFilledMaskSensitive":     t.cfg.MaskOnFieldFilled(),
		},
		"version": t.version,
	})
}

// Unload handles the page being left.
func (t *Tracker) Unload() { t.leave() }

// VisibilityHidden handles the tab being hidden. A hidden tab may never come
// back, so it is treated like a page exit.
func (t *Tracker) VisibilityHidden() { t.leave() }

// leave finalizes every started form and reports the ones abandoned with
// recorded field activity.
func (t *Tracker) leave() {
	for _, f := range t.page.Forms() {
		if f.Ignored() {
			continue
		}
		s := t.State(f)
		if s == nil || s.Phase != Started {
			continue
		}
		active := len(s.Fields) > 0 || t.typing(f)
		t.finalize(f)
		if !active {
			continue
		}
		s.Phase = Abandoned

		filled := s.FieldKeys()
		total := t.countControls(f)
		completion := 0
		if total > 0 {
			completion = int(math.Round(float64(len(filled)) / float64(total) * 100))
		}
		t.out.Emit(event.FormAbandoned, event.Fields{
			"form_id":          formID(f),
			"form_instance_id": s.InstanceID,
			"form_action":      t.formAction(f),
			"filled_fields":    filled,
			"field_count":      len(filled),
			"total_fields":     total,
			"completion_rate":  completion,
		})
	}
}

// typing reports a pending input debounce on any of the form's controls.
func (t *Tracker) typing(f *dom.Form) bool {
	for _, e := range t.page.Associated(f) {
		if t.debounce.Pending(e.Handle) {
			return true
		}
	}
	return false
}

// countControls counts the form's visible-type, non-button controls.
func (t *Tracker) countControls(f *dom.Form) int {
	n := 0
	for _, e := range t.page.Associated(f) {
		switch e.Tag {
		case "textarea", "select":
			n++
		case "input":
			switch e.Type {
			case "hidden", "submit", "button", "reset", "image":
			default:
				n++
			}
		}
	}
	return n
}

func (t *Tracker) formAction(f *dom.Form) string {
	if f.Action != "" {
		return f.Action
	}
	return t.page.Href()
}

func formID(f *dom.Form) string {
	if f.ID != "" {
		return f.ID
	}
	return "unknown"
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
