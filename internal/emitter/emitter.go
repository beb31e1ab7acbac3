// Package emitter assembles event envelopes and delivers them, fire-and-forget,
// to the collection endpoint.
package emitter

import (
	"context"
	"log/slog"
	"time"

	"github.com/gyaneshwarpardhi/formbeacon/internal/dom"
	"github.com/gyaneshwarpardhi/formbeacon/internal/event"
	"github.com/gyaneshwarpardhi/formbeacon/internal/identity"
	"github.com/gyaneshwarpardhi/formbeacon/internal/metrics"
)

const isoMillis = "2006-01-02T15:04:05.000Z"

// Options configures an Emitter.
type Options struct {
	CompanyID string
	Page      *dom.Page
	Identity  *identity.Store
	Transport Transport
	Now       func() time.Time

	// Workers is the number of delivery goroutines; 0 delivers inline on the
	// goroutine that calls Emit.
	Workers     int
	QueueDepth  int
	SendTimeout time.Duration
	Logger      *slog.Logger
}

// Emitter builds envelopes and hands them to the delivery pool.
type Emitter struct {
	opts Options
	log  *slog.Logger
	pool *workerPool[*event.Envelope]
	ctx  context.Context
}

// New creates an Emitter and starts its delivery workers.
func New(ctx context.Context, opts Options) *Emitter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	e := &Emitter{opts: opts, log: opts.Logger, ctx: ctx}
	if opts.Workers > 0 {
		depth := opts.QueueDepth
		if depth <= 0 {
			depth = opts.Workers * 10
		}
		e.pool = newWorkerPool[*event.Envelope](ctx, opts.Workers, depth, e.deliver)
	}
	return e
}

// Emit builds an envelope for t and queues it for delivery. It never blocks on
// the network and never reports failure to the caller.
func (e *Emitter) Emit(t event.Type, fields event.Fields) {
	env := e.Build(t, fields)
	metrics.EventsEmitted.WithLabelValues(string(t)).Inc()
	if e.pool == nil {
		e.deliver(e.ctx, env)
		return
	}
	if !e.pool.Submit(env) {
		metrics.EventsDropped.Inc()
		e.log.Debug("delivery queue full, event dropped", "type", t, "dedupe_key", env.DedupeKey)
	}
	metrics.QueueUtilization.Set(e.QueueUtilization())
}

// Build assembles the envelope: fresh context fields, caller fields on top
// (except the event type), the tenant id and a new dedupe key.
func (e *Emitter) Build(t event.Type, fields event.Fields) *event.Envelope {
	now := e.opts.Now()
	ev := e.contextFields(now)
	for k, v := range fields {
		if k == event.KeyType {
			continue
		}
		ev[k] = v
	}
	ev[event.KeyType] = string(t)
	return &event.Envelope{
		CompanyID: e.opts.CompanyID,
		Event:     ev,
		DedupeKey: identity.NewID("evt", now),
	}
}

func (e *Emitter) contextFields(now time.Time) map[string]any {
	page := e.opts.Page
	query := page.Query()
	ids := e.opts.Identity
	utm := ids.UTM(query)

	ev := map[string]any{
		"page_url":          page.Href(),
		"page_title":        page.Title,
		"referrer":          page.Referrer,
		"visitor_id":        ids.VisitorID(),
		"session_id":        ids.SessionID(),
		"fbp":               optional(ids.ClickID(identity.FBP, query)),
		"fbc":               optional(ids.ClickID(identity.FBC, query)),
		"gclid":             optional(ids.ClickID(identity.GCLID, query)),
		"utm_source":        nullable(utm.Source),
		"utm_medium":        nullable(utm.Medium),
		"utm_campaign":      nullable(utm.Campaign),
		"utm_content":       nullable(utm.Content),
		"utm_term":          nullable(utm.Term),
		"user_agent":        page.UserAgent,
		"screen_resolution": page.ScreenResolution(),
		"language":          page.Language,
		"timestamp":         now.UTC().Format(isoMillis),
	}
	return ev
}

func optional(v string, ok bool) any {
	if !ok {
		return nil
	}
	return v
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func (e *Emitter) deliver(ctx context.Context, env *event.Envelope) {
	if e.opts.Transport == nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, e.opts.SendTimeout)
	defer cancel()

	start := time.Now()
	err := e.opts.Transport.Send(sendCtx, env)
	metrics.DeliveryDuration.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.Deliveries.WithLabelValues("error").Inc()
		e.log.Debug("event delivery failed", "type", env.Type(), "dedupe_key", env.DedupeKey, "err", err)
		return
	}
	metrics.Deliveries.WithLabelValues("success").Inc()
	e.log.Debug("event sent", "type", env.Type(), "dedupe_key", env.DedupeKey)
}

// QueueUtilization returns queue used / capacity (0-1).
func (e *Emitter) QueueUtilization() float64 {
	if e.pool == nil || e.pool.QueueCap() == 0 {
		return 0
	}
	return float64(e.pool.QueueLen()) / float64(e.pool.QueueCap())
}

// Drain waits for queued envelopes to be delivered. Emit after Drain drops.
func (e *Emitter) Drain() {
	if e.pool != nil {
		e.pool.Drain()
	}
}
