package event

// Type names the kind of an outbound event.
type Type string

const (
	PageView         Type = "PageView"
	FormStarted      Type = "FormStarted"
	FormSchema       Type = "FormSchema"
	FieldFilled      Type = "FieldFilled"
	Lead             Type = "Lead"
	FormAbandoned    Type = "FormAbandoned"
	Scroll           Type = "Scroll"
	FormDebugSummary Type = "FormDebugSummary"
)

// KeyType is the only event key a caller may not overwrite.
const KeyType = "type"

// Fields is the event-specific payload supplied by a caller.
type Fields map[string]any

// Envelope is the canonical outbound unit. It is never mutated after construction.
type Envelope struct {
	CompanyID string         `json:"companyId"`
	Event     map[string]any `json:"event"` // type + context fields + caller fields
	DedupeKey string         `json:"dedupeKey"`
}

// Type returns the event type carried inside the envelope.
func (e *Envelope) Type() Type {
	t, _ := e.Event[KeyType].(string)
	return Type(t)
}
