package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/formbeacon/internal/event"
)

// Transport delivers one envelope.
type Transport interface {
	Send(ctx context.Context, env *event.Envelope) error
}

// HTTPTransport POSTs envelopes as JSON to the collection endpoint.
type HTTPTransport struct {
	URL    string
	Client *http.Client
}

// NewHTTPTransport returns a transport over a keep-alive client.
func NewHTTPTransport(endpoint string) *HTTPTransport {
	return &HTTPTransport{
		URL: endpoint,
		Client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (t *HTTPTransport) Send(ctx context.Context, env *event.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", t.URL, err)
	}
	defer resp.Body.Close()
	// Any body is tolerated; it is read only so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post %s: unexpected status %s", t.URL, resp.Status)
	}
	return nil
}

// Recorder keeps every envelope in memory instead of sending it.
type Recorder struct {
	mu        sync.Mutex
	envelopes []*event.Envelope
	Err       error // returned from every Send when set
}

func (r *Recorder) Send(_ context.Context, env *event.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envelopes = append(r.envelopes, env)
	return r.Err
}

// Envelopes returns a copy of everything recorded so far.
func (r *Recorder) Envelopes() []*event.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*event.Envelope, len(r.envelopes))
	copy(out, r.envelopes)
	return out
}

// OfType returns the recorded envelopes of one event type.
func (r *Recorder) OfType(t event.Type) []*event.Envelope {
	var out []*event.Envelope
	for _, env := range r.Envelopes() {
		if env.Type() == t {
			out = append(out, env)
		}
	}
	return out
}

// Types returns the event types in recording order.
func (r *Recorder) Types() []event.Type {
	envs := r.Envelopes()
	out := make([]event.Type, len(envs))
	for i, env := range envs {
		out[i] = env.Type()
	}
	return out
}
