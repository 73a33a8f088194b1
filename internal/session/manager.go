package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown or expired sessions
var ErrNotFound = errors.New("session not found")

// IDGenerator generates unique session IDs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.New().String()
}

type systemTime struct{}

func (systemTime) Now() time.Time {
	return time.Now()
}

// Manager owns the live sessions
type Manager struct {
	deps        Deps
	idGenerator IDGenerator
	timeSource  TimeSource

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager with uuid IDs and the system clock
func NewManager(deps Deps) *Manager {
	return NewManagerWithDeps(deps, uuidGenerator{}, systemTime{})
}

// NewManagerWithDeps creates a Manager with custom ID and time sources for testing
func NewManagerWithDeps(deps Deps, idGen IDGenerator, timeSrc TimeSource) *Manager {
	return &Manager{
		deps:        deps,
		idGenerator: idGen,
		timeSource:  timeSrc,
		sessions:    make(map[string]*Session),
	}
}

// Create starts a new empty session
func (m *Manager) Create() *Session {
	s := newSession(m.idGenerator.Generate(), m.timeSource.Now(), m.deps)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	slog.Info("Session created", "session", s.ID)
	return s
}

// Get returns a session and marks it as recently used
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.touch(m.timeSource.Now())
	return s, nil
}

// Delete tears a session down. In-flight uploads finish on their own and
// their results are dropped.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.Queue.Clear()
	slog.Info("Session deleted", "session", id)
	return nil
}

// CleanupIdle removes sessions unused for longer than maxAge and returns how
// many were removed.
func (m *Manager) CleanupIdle(maxAge time.Duration) int {
	cutoff := m.timeSource.Now().Add(-maxAge)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Queue.Clear()
		slog.Info("Session expired", "session", s.ID)
	}
	return len(expired)
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
