// ABOUTME: Tests for the in-memory session store
// ABOUTME: Covers copy semantics, clearing and idle-TTL eviction

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGetRoundTrip(t *testing.T) {
	m := NewMemoryStore(0, nil)
	defer m.Close()

	s := &Session{Flow: "onboarding", Step: 2}
	s.Set("name", "Alice")
	m.Put("@alice:example.org", s)

	got, ok := m.Get("@alice:example.org")
	require.True(t, ok)
	assert.Equal(t, "onboarding", got.Flow)
	assert.Equal(t, 2, got.Step)
	assert.Equal(t, "Alice", got.Value("name"))
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	m := NewMemoryStore(0, nil)
	defer m.Close()

	s := &Session{Flow: "onboarding"}
	s.Set("name", "Alice")
	m.Put("id", s)

	got, _ := m.Get("id")
	got.Set("name", "Mallory")
	got.Step = 9

	fresh, _ := m.Get("id")
	assert.Equal(t, "Alice", fresh.Value("name"), "mutating a Get result must not leak into the store")
	assert.Equal(t, 0, fresh.Step)
}

func TestMemoryStore_ClearIsUnconditional(t *testing.T) {
	m := NewMemoryStore(0, nil)
	defer m.Close()

	m.Put("id", &Session{Flow: "find"})
	m.Clear("id")

	_, ok := m.Get("id")
	assert.False(t, ok)

	// Clearing a missing session is fine
	m.Clear("id")
}

func TestMemoryStore_OneSessionPerIdentity(t *testing.T) {
	m := NewMemoryStore(0, nil)
	defer m.Close()

	m.Put("id", &Session{Flow: "onboarding", Step: 3})
	m.Put("id", &Session{Flow: "find"})

	got, ok := m.Get("id")
	require.True(t, ok)
	assert.Equal(t, "find", got.Flow)
	assert.Equal(t, 0, got.Step)
	assert.Equal(t, 1, m.Len())
}

func TestMemoryStore_EvictsIdleSessions(t *testing.T) {
	m := NewMemoryStore(50*time.Millisecond, nil)
	defer m.Close()

	m.Put("idle", &Session{Flow: "onboarding"})
	m.Put("busy", &Session{Flow: "find"})

	// Keep the busy session warm past the idle cutoff
	deadline := time.Now().Add(1200 * time.Millisecond)
	for time.Now().Before(deadline) {
		_, ok := m.Get("busy")
		require.True(t, ok, "refreshed session must survive")
		time.Sleep(20 * time.Millisecond)
	}

	_, ok := m.Get("idle")
	assert.False(t, ok, "idle session should be evicted")
	assert.Equal(t, 1, m.Len())
}

func TestMemoryStore_ZeroTTLNeverEvicts(t *testing.T) {
	m := NewMemoryStore(0, nil)
	defer m.Close()

	m.Put("id", &Session{Flow: "onboarding"})
	time.Sleep(50 * time.Millisecond)

	_, ok := m.Get("id")
	assert.True(t, ok)
}
