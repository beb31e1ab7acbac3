// Package identity resolves and persists the visitor, session and ad-attribution
// identifiers attached to every outbound event.
//
// Persisted identifiers are looked up cookie → durable storage → page-life memory
// and generated when none is found. Writes go to the first tier that accepts them;
// every tier failure degrades to the next one and is never surfaced to callers.
package identity

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/formbeacon/internal/metrics"
	"github.com/gyaneshwarpardhi/formbeacon/internal/storage"
)

const (
	keyVisitor = "_visitor_id"
	keySession = "_session_id"
	keyFBP     = "_fbp"
	keyFBC     = "_fbc"
	keyUTMs    = "_utms"

	visitorTTL = 365 * 24 * time.Hour
	clickTTL   = 90 * 24 * time.Hour
)

// ClickKind selects an attribution identifier.
type ClickKind string

const (
	FBP   ClickKind = "fbp"
	FBC   ClickKind = "fbc"
	GCLID ClickKind = "gclid"
)

// UTM holds campaign parameters captured for the session.
type UTM struct {
	Source   string `json:"utm_source"`
	Medium   string `json:"utm_medium"`
	Campaign string `json:"utm_campaign"`
	Content  string `json:"utm_content"`
	Term     string `json:"utm_term"`
}

// Capabilities reports which durable tiers passed the start-up probe.
type Capabilities struct {
	Cookies      bool `json:"cookiesEnabled"`
	LocalStorage bool `json:"storageEnabled"`
}

// Options wires the tiers. Nil tiers are treated as unavailable.
type Options struct {
	Cookies storage.Tier
	Local   storage.Tier
	Session storage.Tier
	Now     func() time.Time
	Logger  *slog.Logger
}

// Store resolves identifiers. It is safe for concurrent use.
type Store struct {
	cookies storage.Tier
	local   storage.Tier
	session storage.Tier
	now     func() time.Time
	log     *slog.Logger
	caps    Capabilities

	mu     sync.Mutex
	memory map[string]string // page-life fallback, never persisted
}

// New probes the durable tiers and returns a ready Store.
func New(opts Options) *Store {
	s := &Store{
		now:    opts.Now,
		log:    opts.Logger,
		memory: make(map[string]string),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.cookies, s.caps.Cookies = s.probe(opts.Cookies, "cookie")
	s.local, s.caps.LocalStorage = s.probe(opts.Local, "local")
	s.session = opts.Session
	if s.session == nil {
		s.session = storage.Unavailable("session")
	}
	return s
}

func (s *Store) probe(t storage.Tier, name string) (storage.Tier, bool) {
	if t == nil {
		return storage.Unavailable(name), false
	}
	if err := storage.Probe(t); err != nil {
		s.log.Debug("storage tier blocked", "tier", t.Name(), "err", err)
		return storage.Unavailable(t.Name()), false
	}
	return t, true
}

// Capabilities returns the result of the start-up probe.
func (s *Store) Capabilities() Capabilities { return s.caps }

// VisitorID returns the long-lived visitor id, creating it on first use.
func (s *Store) VisitorID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.lookupDurable(keyVisitor); ok {
		return v
	}
	v := NewID("vis", s.now())
	s.persistDurable(keyVisitor, v, visitorTTL)
	return v
}

// SessionID returns the id scoped to the session tier, creating it on first use.
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.lookupSession(keySession); ok {
		return v
	}
	v := NewID("sess", s.now())
	s.persistSession(keySession, v)
	return v
}

// ClickID returns the attribution identifier of the given kind. query is the
// current page's URL query. ok is false when no identifier exists yet and none
// can be derived.
func (s *Store) ClickID(kind ClickKind, query url.Values) (string, bool) {
	switch kind {
	case GCLID:
		v := query.Get("gclid")
		return v, v != ""
	case FBP:
		s.mu.Lock()
		defer s.mu.Unlock()
		if v, ok := s.lookupDurable(keyFBP); ok {
			return v, true
		}
		v := newFBP(s.now())
		s.persistDurable(keyFBP, v, clickTTL)
		return v, true
	case FBC:
		s.mu.Lock()
		defer s.mu.Unlock()
		if v, ok := s.lookupDurable(keyFBC); ok {
			return v, true
		}
		fbclid := query.Get("fbclid")
		if fbclid == "" {
			return "", false
		}
		v := newFBC(s.now(), fbclid)
		s.persistDurable(keyFBC, v, clickTTL)
		return v, true
	default:
		return "", false
	}
}

// UTM returns the campaign parameters of the session. The first URL carrying a
// source or campaign wins; later URLs never replace it within the session.
func (s *Store) UTM(query url.Values) UTM {
	s.mu.Lock()
	defer s.mu.Unlock()
	if raw, ok := s.lookupSession(keyUTMs); ok {
		var u UTM
		if err := json.Unmarshal([]byte(raw), &u); err == nil {
			return u
		}
		s.log.Debug("discarding unreadable utm cache", "raw", raw)
	}
	live := UTM{
		Source:   query.Get("utm_source"),
		Medium:   query.Get("utm_medium"),
		Campaign: query.Get("utm_campaign"),
		Content:  query.Get("utm_content"),
		Term:     query.Get("utm_term"),
	}
	if live.Source != "" || live.Campaign != "" {
		if data, err := json.Marshal(live); err == nil {
			s.persistSession(keyUTMs, string(data))
		}
	}
	return live
}

func (s *Store) lookupDurable(key string) (string, bool) {
	for _, t := range []storage.Tier{s.cookies, s.local} {
		v, ok, err := t.Get(key)
		if err != nil {
			s.fallback(t, "read", key, err)
			continue
		}
		if ok && v != "" {
			return v, true
		}
	}
	v, ok := s.memory[key]
	return v, ok
}

func (s *Store) persistDurable(key, value string, ttl time.Duration) {
	s.memory[key] = value
	for _, t := range []storage.Tier{s.cookies, s.local} {
		err := t.Set(key, value, ttl)
		if err == nil {
			return
		}
		s.fallback(t, "write", key, err)
	}
}

func (s *Store) lookupSession(key string) (string, bool) {
	v, ok, err := s.session.Get(key)
	if err != nil {
		s.fallback(s.session, "read", key, err)
	} else if ok && v != "" {
		return v, true
	}
	v, ok = s.memory[key]
	return v, ok
}

func (s *Store) persistSession(key, value string) {
	s.memory[key] = value
	if err := s.session.Set(key, value, 0); err != nil {
		s.fallback(s.session, "write", key, err)
	}
}

func (s *Store) fallback(t storage.Tier, op, key string, err error) {
	metrics.StorageFallbacks.WithLabelValues(t.Name()).Inc()
	s.log.Debug("storage tier failed, falling back", "tier", t.Name(), "op", op, "key", key, "err", err)
}
