package cypher

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultSessionTimeout is how long an idle session survives.
const DefaultSessionTimeout = 30 * time.Minute

// SessionManager tracks sessions by id and expires idle ones, rolling back
// whatever transaction they left open.
type SessionManager struct {
	exec    *Executor
	timeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
	log      *logrus.Entry
}

// NewSessionManager returns a manager creating sessions on exec. A
// non-positive timeout uses DefaultSessionTimeout.
func NewSessionManager(exec *Executor, timeout time.Duration) *SessionManager {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &SessionManager{
		exec:     exec,
		timeout:  timeout,
		sessions: make(map[string]*Session),
		log:      exec.log.WithField("component", "sessions"),
	}
}

// Create registers a new session.
func (m *SessionManager) Create() (*Session, error) {
	s := m.exec.NewSession()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrSessionsClosed
	}
	m.sessions[s.ID] = s
	return s, nil
}

// Get returns the session with id and marks it used.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch()
	return s, nil
}

// Remove closes the session with id, rolling back its open transaction.
func (m *SessionManager) Remove(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		_ = s.rollback()
	}
	return nil
}

// Len returns the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupExpired removes sessions idle since before now minus the timeout
// and returns how many were removed. Sessions busy running a statement are
// left alone.
func (m *SessionManager) CleanupExpired(now time.Time) int {
	cutoff := now.Add(-m.timeout)
	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if !s.LastUsed().Before(cutoff) || !s.mu.TryLock() {
			continue
		}
		delete(m.sessions, id)
		expired = append(expired, s)
	}
	m.mu.Unlock()

	for _, s := range expired {
		if s.tx != nil {
			s.log.WithField("tx", s.tx.ID).Info("rolling back transaction of expired session")
			_ = s.rollback()
		}
		s.mu.Unlock()
	}
	if len(expired) > 0 {
		m.log.WithField("count", len(expired)).Debug("expired idle sessions")
	}
	return len(expired)
}

// Run expires idle sessions every interval until ctx is done.
func (m *SessionManager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.CleanupExpired(now)
		}
	}
}

// Close rolls back every open transaction and drops all sessions.
func (m *SessionManager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.closed = true
	m.mu.Unlock()
	for _, s := range sessions {
		s.mu.Lock()
		if s.tx != nil {
			_ = s.rollback()
		}
		s.mu.Unlock()
	}
}
