package dispatch

import (
	"fmt"
	"sort"
	"sync"
)

// Handler is one state-machine transition bound to a signal kind.
type Handler interface {
	// Kind returns the signal kind this handler is registered under.
	Kind() Kind
	// Handle runs the transition for a signal whose page mutation was already applied.
	Handle(sig Signal, tgt Target) error
}

type handlerFunc struct {
	kind Kind
	fn   func(Signal, Target) error
}

func (h handlerFunc) Kind() Kind                          { return h.kind }
func (h handlerFunc) Handle(sig Signal, tgt Target) error { return h.fn(sig, tgt) }

// HandlerFunc adapts a function to a Handler for kind.
func HandlerFunc(kind Kind, fn func(Signal, Target) error) Handler {
	return handlerFunc{kind: kind, fn: fn}
}

// Registry maps signal kinds to their handlers.
// It is safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Kind]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Kind]Handler)}
}

// Register adds a handler. Panics on duplicate kind to surface miswiring early.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[h.Kind()]; exists {
		panic(fmt.Sprintf("dispatch registry: duplicate kind %q", h.Kind()))
	}
	r.handlers[h.Kind()] = h
}

// Get returns the handler for the given kind.
func (r *Registry) Get(kind Kind) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("no handler registered for signal kind %q", kind)
	}
	return h, nil
}

// Kinds returns all registered kinds, sorted.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
