package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/formbeacon/internal/dom"
	"github.com/gyaneshwarpardhi/formbeacon/internal/event"
	"github.com/gyaneshwarpardhi/formbeacon/internal/identity"
	"github.com/gyaneshwarpardhi/formbeacon/internal/storage"
)

var fixedNow = func() time.Time { return time.Date(2026, 10, 19, 8, 30, 0, 123e6, time.UTC) }

func newPage(t *testing.T) *dom.Page {
	t.Helper()
	p, err := dom.NewPage("https://shop.example.com/landing?utm_source=news&utm_campaign=fall&gclid=g1&fbclid=f1")
	require.NoError(t, err)
	p.Title = "Landing"
	p.Referrer = "https://search.example.com/"
	p.UserAgent = "test-agent"
	p.Language = "en-US"
	p.ScreenWidth, p.ScreenHeight = 1920, 1080
	return p
}

func newEmitter(t *testing.T, tr Transport, workers int) *Emitter {
	t.Helper()
	ids := identity.New(identity.Options{
		Cookies: storage.NewCookieJar(fixedNow),
		Session: storage.NewMemory("session"),
		Now:     fixedNow,
	})
	return New(context.Background(), Options{
		CompanyID: "acme",
		Page:      newPage(t),
		Identity:  ids,
		Transport: tr,
		Now:       fixedNow,
		Workers:   workers,
	})
}

func TestBuild_ContextAndCallerFields(t *testing.T) {
	e := newEmitter(t, nil, 0)
	env := e.Build(event.Lead, event.Fields{
		"type":       "Spoofed",
		"page_title": "Checkout",
		"form_id":    "signup",
	})

	assert.Equal(t, "acme", env.CompanyID)
	assert.Equal(t, event.Lead, env.Type())
	assert.Regexp(t, `^evt_\d+_[0-9a-z]{9}$`, env.DedupeKey)

	ev := env.Event
	assert.Equal(t, "Checkout", ev["page_title"], "caller fields overwrite context fields")
	assert.Equal(t, "signup", ev["form_id"])
	assert.Equal(t, "https://shop.example.com/landing?utm_source=news&utm_campaign=fall&gclid=g1&fbclid=f1", ev["page_url"])
	assert.Equal(t, "https://search.example.com/", ev["referrer"])
	assert.Equal(t, "g1", ev["gclid"])
	assert.Equal(t, "fb.1.1792398600123.f1", ev["fbc"])
	assert.Equal(t, "news", ev["utm_source"])
	assert.Nil(t, ev["utm_medium"])
	assert.Equal(t, "1920x1080", ev["screen_resolution"])
	assert.Equal(t, "en-US", ev["language"])
	assert.Equal(t, "test-agent", ev["user_agent"])
	assert.Equal(t, "2026-10-19T08:30:00.123Z", ev["timestamp"])
	assert.Regexp(t, `^vis_`, ev["visitor_id"])
	assert.Regexp(t, `^sess_`, ev["session_id"])
	assert.Regexp(t, `^fb\.1\.`, ev["fbp"])
}

func TestBuild_DedupeKeysAreUnique(t *testing.T) {
	e := newEmitter(t, nil, 0)
	a := e.Build(event.PageView, nil)
	b := e.Build(event.PageView, nil)
	assert.NotEqual(t, a.DedupeKey, b.DedupeKey)
}

func TestHTTPTransport_PostsJSONEnvelope(t *testing.T) {
	var mu sync.Mutex
	var got map[string]any
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	e := newEmitter(t, NewHTTPTransport(srv.URL), 1)
	e.Emit(event.PageView, event.Fields{"load_time": 42})
	e.Drain()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "application/json", contentType)
	require.NotNil(t, got)
	assert.Equal(t, "acme", got["companyId"])
	assert.NotEmpty(t, got["dedupeKey"])
	inner, ok := got["event"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "PageView", inner["type"])
	assert.Equal(t, float64(42), inner["load_time"])
}

func TestHTTPTransport_NonSuccessIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewHTTPTransport(srv.URL).Send(context.Background(), &event.Envelope{CompanyID: "acme"})
	assert.Error(t, err)
}

func TestEmit_SwallowsDeliveryFailures(t *testing.T) {
	rec := &Recorder{Err: errors.New("network down")}
	e := newEmitter(t, rec, 0)
	assert.NotPanics(t, func() { e.Emit(event.Scroll, event.Fields{"depth": 50}) })
	assert.Len(t, rec.Envelopes(), 1)

	unreachable := newEmitter(t, NewHTTPTransport("http://127.0.0.1:1/hook"), 1)
	unreachable.Emit(event.PageView, nil)
	unreachable.Drain()
}

type blockingTransport struct {
	release chan struct{}
	mu      sync.Mutex
	sent    int
}

func (b *blockingTransport) Send(ctx context.Context, _ *event.Envelope) error {
	<-b.release
	b.mu.Lock()
	b.sent++
	b.mu.Unlock()
	return nil
}

func TestEmit_DropsWhenQueueFull(t *testing.T) {
	bt := &blockingTransport{release: make(chan struct{})}
	ids := identity.New(identity.Options{Now: fixedNow})
	e := New(context.Background(), Options{
		CompanyID:  "acme",
		Page:       newPage(t),
		Identity:   ids,
		Transport:  bt,
		Now:        fixedNow,
		Workers:    1,
		QueueDepth: 1,
	})

	start := time.Now()
	for i := 0; i < 10; i++ {
		e.Emit(event.Scroll, nil)
	}
	assert.Less(t, time.Since(start), time.Second, "Emit must not block on delivery")

	close(bt.release)
	e.Drain()
	bt.mu.Lock()
	defer bt.mu.Unlock()
	assert.GreaterOrEqual(t, bt.sent, 1)
	assert.Less(t, bt.sent, 10)

	e.Emit(event.Scroll, nil) // after drain: dropped, no panic
}

func TestRecorder_PreservesOrderWithOneWorker(t *testing.T) {
	rec := &Recorder{}
	e := newEmitter(t, rec, 1)
	e.Emit(event.FormStarted, nil)
	e.Emit(event.FieldFilled, nil)
	e.Emit(event.Lead, nil)
	e.Drain()
	assert.Equal(t, []event.Type{event.FormStarted, event.FieldFilled, event.Lead}, rec.Types())
}
