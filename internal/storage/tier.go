// Package storage provides the persistence tiers the identity store falls back across:
// a cookie jar, a durable key/value store and a session-scoped map.
package storage

import (
	"errors"
	"time"
)

// ErrUnavailable is returned by a tier the host environment has blocked
// (private mode, disabled cookies, exhausted quota).
var ErrUnavailable = errors.New("storage tier unavailable")

// Tier is a string key/value store with optional expiry.
type Tier interface {
	Name() string
	Get(key string) (value string, ok bool, err error)
	// Set stores value; ttl <= 0 means no expiry (or session lifetime for cookies).
	Set(key, value string, ttl time.Duration) error
	Delete(key string) error
}

// Probe performs a write/read/delete round trip and reports whether the tier is usable.
func Probe(t Tier) error {
	const key, val = "_test", "1"
	if err := t.Set(key, val, time.Minute); err != nil {
		return err
	}
	got, ok, err := t.Get(key)
	if err != nil {
		return err
	}
	if !ok || got != val {
		return ErrUnavailable
	}
	return t.Delete(key)
}

type unavailable struct{ name string }

// Unavailable returns a tier that fails every operation.
func Unavailable(name string) Tier { return unavailable{name: name} }

func (u unavailable) Name() string { return u.name }
func (u unavailable) Get(string) (string, bool, error) { return "", false, ErrUnavailable }
func (u unavailable) Set(string, string, time.Duration) error { return ErrUnavailable }
func (u unavailable) Delete(string) error { return ErrUnavailable }
