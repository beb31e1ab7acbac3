package tracker

import (
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/formbeacon/internal/dom"
)

// Phase is the lifecycle position of one form.
type Phase int

const (
	Untouched Phase = iota
	Started
	Submitted
	Abandoned
)

func (p Phase) String() string {
	switch p {
	case Untouched:
		return "untouched"
	case Started:
		return "started"
	case Submitted:
		return "submitted"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// FieldState is what the tracker remembers about one field key of one form.
type FieldState struct {
	Type      string
	LastValue string // last capturable value seen on a tracked path
	HasLast   bool
	Emitted   bool
	Timestamp time.Time
}

// FormState is the per-form record, keyed by the form's page handle.
type FormState struct {
	Handle     int
	InstanceID string
	Phase      Phase
	Fields     map[string]*FieldState

	order []string
}

func newFormState(f *dom.Form) *FormState {
	return &FormState{
		Handle:     f.Handle,
		InstanceID: uuid.NewString(),
		Fields:     make(map[string]*FieldState),
	}
}

// field returns the state for key, creating it on first activity.
func (s *FormState) field(key, typ string) *FieldState {
	fs, ok := s.Fields[key]
	if !ok {
		fs = &FieldState{Type: typ}
		s.Fields[key] = fs
		s.order = append(s.order, key)
	}
	return fs
}

// FieldKeys returns the keys with recorded activity in first-seen order.
func (s *FormState) FieldKeys() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// terminal reports a phase no transition leaves.
func (p Phase) terminal() bool { return p == Submitted || p == Abandoned }

func (s *FormState) started() bool { return s.Phase != Untouched }
