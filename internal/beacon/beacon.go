// Package beacon wires the tracker for one page load: identity, classification,
// form tracking, passive observers and delivery, behind a single Beacon value.
//
// Everything the beacon holds lives exactly as long as the page it was built
// for. Nothing is shared between beacons except the storage tiers handed in.
package beacon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gyaneshwarpardhi/formbeacon/internal/classify"
	"github.com/gyaneshwarpardhi/formbeacon/internal/config"
	"github.com/gyaneshwarpardhi/formbeacon/internal/dispatch"
	"github.com/gyaneshwarpardhi/formbeacon/internal/dom"
	"github.com/gyaneshwarpardhi/formbeacon/internal/emitter"
	"github.com/gyaneshwarpardhi/formbeacon/internal/event"
	"github.com/gyaneshwarpardhi/formbeacon/internal/identity"
	"github.com/gyaneshwarpardhi/formbeacon/internal/observer"
	"github.com/gyaneshwarpardhi/formbeacon/internal/schedule"
	"github.com/gyaneshwarpardhi/formbeacon/internal/storage"
	"github.com/gyaneshwarpardhi/formbeacon/internal/tracker"
)

// Version is reported in debug summaries and by the CLI.
const Version = "1.8.2"

type options struct {
	transport emitter.Transport
	sched     schedule.Scheduler
	logger    *slog.Logger
	cookies   storage.Tier
	local     storage.Tier
	session   storage.Tier
}

// Option customizes New.
type Option func(*options)

// WithTransport replaces the HTTP transport built from webhook_url.
func WithTransport(t emitter.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithScheduler replaces the wall clock, e.g. with schedule.NewManual in tests.
func WithScheduler(s schedule.Scheduler) Option {
	return func(o *options) { o.sched = s }
}

// WithLogger replaces the logger built from the debug flag.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStorage supplies the cookie, durable and session tiers. A nil tier falls
// back to the one derived from the storage config.
func WithStorage(cookies, local, session storage.Tier) Option {
	return func(o *options) {
		o.cookies, o.local, o.session = cookies, local, session
	}
}

// Beacon is the tracker context for one page.
type Beacon struct {
	cfg     *config.TrackerConfig
	page    *dom.Page
	log     *slog.Logger
	loop    *schedule.Loop
	ids     *identity.Store
	out     *emitter.Emitter
	tracker *tracker.Tracker
	disp    *dispatch.Dispatcher

	cancel  context.CancelFunc
	closers []func() error
}

// New validates cfg and builds a Beacon observing page. An invalid config
// aborts start-up: nothing is wired and the error is returned.
func New(cfg *config.TrackerConfig, page *dom.Page, opts ...Option) (*Beacon, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	log := o.logger
	if log == nil {
		log = newLogger(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		log.Error("tracker disabled: invalid configuration", "err", err)
		return nil, fmt.Errorf("beacon: %w", err)
	}
	log = log.With("company_id", cfg.CompanyID)

	sched := o.sched
	if sched == nil {
		sched = schedule.Real()
	}
	b := &Beacon{
		cfg:  cfg,
		page: page,
		log:  log,
		loop: schedule.NewLoop(sched),
	}

	b.ids = identity.New(identity.Options{
		Cookies: b.cookieTier(o.cookies, sched),
		Local:   b.localTier(o.local, sched),
		Session: sessionTier(o.session),
		Now:     sched.Now,
		Logger:  log.With("component", "identity"),
	})

	transport := o.transport
	if transport == nil {
		transport = emitter.NewHTTPTransport(cfg.WebhookURL)
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.out = emitter.New(ctx, emitter.Options{
		CompanyID:   cfg.CompanyID,
		Page:        page,
		Identity:    b.ids,
		Transport:   transport,
		Now:         sched.Now,
		Workers:     cfg.Delivery.SendWorkers,
		QueueDepth:  cfg.Delivery.QueueDepth,
		SendTimeout: time.Duration(cfg.Delivery.SendTimeoutMs) * time.Millisecond,
		Logger:      log.With("component", "emitter"),
	})

	reg := dispatch.NewRegistry()
	b.wire(reg, sched)
	b.disp = dispatch.New(page, reg, b.loop, log.With("component", "dispatch"))

	log.Info("tracker initialized", "version", Version, "webhook_url", cfg.WebhookURL, "signals", reg.Kinds())
	return b, nil
}

// wire registers the handlers of every enabled feature and starts the page view.
func (b *Beacon) wire(reg *dispatch.Registry, sched schedule.Scheduler) {
	cfg := b.cfg
	if cfg.AutoPageView {
		pv := observer.NewPageView(b.page, b.out, sched)
		reg.Register(dispatch.HandlerFunc(dispatch.Load, func(dispatch.Signal, dispatch.Target) error {
			pv.Loaded()
			return nil
		}))
		b.loop.Do(pv.Start)
	}

	if cfg.AutoFormTracking {
		b.tracker = tracker.New(tracker.Options{
			Config:     cfg,
			Page:       b.page,
			Classifier: classify.New(cfg, b.page),
			Emitter:    b.out,
			Scheduler:  b.loop,
			Logger:     b.log.With("component", "tracker"),
			Version:    Version,
		})
		tr := b.tracker
		field := func(kind dispatch.Kind, fn func(*dom.Element)) {
			reg.Register(dispatch.HandlerFunc(kind, func(sig dispatch.Signal, tgt dispatch.Target) error {
				if tgt.Element == nil {
					return fmt.Errorf("%w: %q", dispatch.ErrNoTarget, sig.Target)
				}
				fn(tgt.Element)
				return nil
			}))
		}
		field(dispatch.Focus, tr.Focus)
		field(dispatch.Input, tr.Input)
		field(dispatch.Change, tr.Change)
		field(dispatch.Blur, tr.Blur)
		reg.Register(dispatch.HandlerFunc(dispatch.Submit, func(sig dispatch.Signal, tgt dispatch.Target) error {
			if tgt.Form == nil {
				return fmt.Errorf("%w: %q", dispatch.ErrNoTarget, sig.Target)
			}
			tr.Submit(tgt.Form)
			return nil
		}))
		reg.Register(dispatch.HandlerFunc(dispatch.Unload, func(dispatch.Signal, dispatch.Target) error {
			tr.Unload()
			return nil
		}))
		reg.Register(dispatch.HandlerFunc(dispatch.Visibility, func(dispatch.Signal, dispatch.Target) error {
			if b.page.Hidden {
				tr.VisibilityHidden()
			}
			return nil
		}))
	}

	if cfg.AutoScrollTracking {
		sc := observer.NewScroll(b.page, b.out, b.loop)
		reg.Register(dispatch.HandlerFunc(dispatch.ScrollKind, func(dispatch.Signal, dispatch.Target) error {
			sc.Scrolled()
			return nil
		}))
	}
}

func (b *Beacon) cookieTier(t storage.Tier, sched schedule.Scheduler) storage.Tier {
	switch {
	case b.cfg.Storage.CookiesBlocked:
		return storage.Unavailable("cookie")
	case t != nil:
		return t
	default:
		return storage.NewCookieJar(sched.Now)
	}
}

func (b *Beacon) localTier(t storage.Tier, sched schedule.Scheduler) storage.Tier {
	switch {
	case b.cfg.Storage.LocalStorageBlocked:
		return storage.Unavailable("local")
	case t != nil:
		return t
	}
	db, err := storage.OpenSQLite(b.cfg.Storage.SQLitePath, sched.Now)
	if err != nil {
		b.log.Debug("durable storage unavailable", "path", b.cfg.Storage.SQLitePath, "err", err)
		return storage.Unavailable("local")
	}
	b.closers = append(b.closers, db.Close)
	return db
}

func sessionTier(t storage.Tier) storage.Tier {
	if t != nil {
		return t
	}
	return storage.NewMemory("session")
}

func newLogger(cfg *config.TrackerConfig) *slog.Logger {
	level := slog.LevelWarn
	if cfg != nil && cfg.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Dispatch feeds one page signal to the tracker. It never fails; problems are
// logged at debug level.
func (b *Beacon) Dispatch(sig dispatch.Signal) {
	if err := b.disp.Dispatch(sig); err != nil {
		b.log.Debug("signal dropped", "kind", sig.Kind, "target", sig.Target, "err", err)
	}
}

// Track emits a custom event with the standard context fields.
func (b *Beacon) Track(t event.Type, fields event.Fields) {
	b.loop.Do(func() { b.out.Emit(t, fields) })
}

// VisitorID returns the persisted visitor id.
func (b *Beacon) VisitorID() string { return b.ids.VisitorID() }

// SessionID returns the session id.
func (b *Beacon) SessionID() string { return b.ids.SessionID() }

// Version returns the tracker version.
func (b *Beacon) Version() string { return Version }

// Capabilities reports which durable storage tiers are usable.
func (b *Beacon) Capabilities() identity.Capabilities { return b.ids.Capabilities() }

// Tracker exposes the form state machine, nil when form tracking is off.
func (b *Beacon) Tracker() *tracker.Tracker { return b.tracker }

// Close waits for queued events to be delivered and releases storage.
func (b *Beacon) Close() error {
	b.out.Drain()
	b.cancel()
	var firstErr error
	for _, c := range b.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
