package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestCookieJar_Expiry(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	jar := NewCookieJar(clk.now)

	require.NoError(t, jar.Set("_fbp", "fb.1.x", time.Hour))
	require.NoError(t, jar.Set("_sess", "s", 0))

	v, ok, err := jar.Get("_fbp")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fb.1.x", v)

	clk.t = clk.t.Add(2 * time.Hour)
	_, ok, _ = jar.Get("_fbp")
	assert.False(t, ok, "expired cookie must not be returned")

	_, ok, _ = jar.Get("_sess")
	assert.True(t, ok, "session cookie has no expiry")
}

func TestSQLite_RoundTripAndExpiry(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"), clk.now)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Set("_visitor_id", "vis_1", 0))
	require.NoError(t, db.Set("_fbc", "fb.1.2.abc", time.Minute))
	require.NoError(t, db.Set("_visitor_id", "vis_2", 0))

	v, ok, err := db.Get("_visitor_id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "vis_2", v)

	clk.t = clk.t.Add(time.Hour)
	_, ok, err = db.Get("_fbc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.Delete("_visitor_id"))
	_, ok, _ = db.Get("_visitor_id")
	assert.False(t, ok)
}

func TestSQLite_InMemory(t *testing.T) {
	db, err := OpenSQLite("", nil)
	require.NoError(t, err)
	defer db.Close()
	assert.NoError(t, Probe(db))
}

func TestProbe(t *testing.T) {
	assert.NoError(t, Probe(NewMemory("session")))
	assert.NoError(t, Probe(NewCookieJar(nil)))

	err := Probe(Unavailable("cookie"))
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestMemory_Clear(t *testing.T) {
	m := NewMemory("session")
	require.NoError(t, m.Set("_session_id", "sess_1", 0))
	m.Clear()
	_, ok, _ := m.Get("_session_id")
	assert.False(t, ok)
}
