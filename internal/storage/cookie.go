package storage

import (
	"sync"
	"time"
)

type cookie struct {
	value   string
	expires time.Time // zero = session cookie
}

// CookieJar models document.cookie for a single path-wide scope.
type CookieJar struct {
	mu      sync.Mutex
	cookies map[string]cookie
	now     func() time.Time
}

// NewCookieJar creates an empty jar. now may be nil to use the wall clock.
func NewCookieJar(now func() time.Time) *CookieJar {
	if now == nil {
		now = time.Now
	}
	return &CookieJar{cookies: make(map[string]cookie), now: now}
}

func (j *CookieJar) Name() string { return "cookie" }

func (j *CookieJar) Get(key string) (string, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	c, ok := j.cookies[key]
	if !ok {
		return "", false, nil
	}
	if !c.expires.IsZero() && !j.now().Before(c.expires) {
		delete(j.cookies, key)
		return "", false, nil
	}
	return c.value, true, nil
}

func (j *CookieJar) Set(key, value string, ttl time.Duration) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	c := cookie{value: value}
	if ttl > 0 {
		c.expires = j.now().Add(ttl)
	}
	j.cookies[key] = c
	return nil
}

func (j *CookieJar) Delete(key string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.cookies, key)
	return nil
}
