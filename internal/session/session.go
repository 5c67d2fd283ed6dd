// ABOUTME: Dialog session store keyed by external identity
// ABOUTME: Ephemeral per-user flow state with idle-TTL eviction

package session

import (
	"log/slog"
	"maps"
	"sync"
	"time"
)

// Session is the ephemeral record of a user's active dialog flow: which flow,
// which step, and the partial data accumulated so far. Sessions never survive
// a process restart.
type Session struct {
	Flow    string
	Step    int
	Data    map[string]string
	touched time.Time
}

// Value returns the accumulated value for a key, or "".
func (s *Session) Value(key string) string {
	return s.Data[key]
}

// Set accumulates one value into the partial data.
func (s *Session) Set(key, value string) {
	if s.Data == nil {
		s.Data = make(map[string]string)
	}
	s.Data[key] = value
}

// Store is the session contract: one session per identity, cleared
// unconditionally on cancel, completion, or when a new flow starts.
type Store interface {
	Get(identity string) (*Session, bool)
	Put(identity string, s *Session)
	Clear(identity string)
}

// MemoryStore is a mutex-guarded in-memory Store. If a TTL is set, a janitor
// goroutine evicts sessions idle longer than the TTL so abandoned flows do
// not accumulate unbounded.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

// NewMemoryStore creates a session store. A ttl of zero disables eviction.
func NewMemoryStore(ttl time.Duration, logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		stop:     make(chan struct{}),
		logger:   logger.With("component", "sessions"),
	}
	if ttl > 0 {
		go m.janitor()
	}
	return m
}

// Get returns the identity's session, refreshing its idle stamp.
func (m *MemoryStore) Get(identity string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[identity]
	if !ok {
		return nil, false
	}
	s.touched = time.Now()

	// Copy so callers never mutate shared state outside Put
	c := &Session{Flow: s.Flow, Step: s.Step, Data: make(map[string]string, len(s.Data)), touched: s.touched}
	maps.Copy(c.Data, s.Data)
	return c, true
}

// Put replaces the identity's session. Starting a new flow always goes
// through Put with a fresh session, never a merge.
func (m *MemoryStore) Put(identity string, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &Session{Flow: s.Flow, Step: s.Step, Data: make(map[string]string, len(s.Data)), touched: time.Now()}
	maps.Copy(c.Data, s.Data)
	m.sessions[identity] = c
}

// Clear removes the identity's session unconditionally.
func (m *MemoryStore) Clear(identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, identity)
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops the janitor.
func (m *MemoryStore) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *MemoryStore) janitor() {
	interval := m.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *MemoryStore) evictIdle() {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	for identity, s := range m.sessions {
		if s.touched.Before(cutoff) {
			delete(m.sessions, identity)
			m.logger.Debug("evicted idle session", "flow", s.Flow)
		}
	}
}
