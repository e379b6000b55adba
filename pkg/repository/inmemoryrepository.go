package repository

import (
	"sync"

	"go.uber.org/zap"

	"github.com/tecu23/chess-relay/pkg/game"
)

// InMemorySessionRepository is an in-memory implementation of SessionRepository
type InMemorySessionRepository struct {
	sessions map[string]*game.Session
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository(logger *zap.Logger) *InMemorySessionRepository {
	return &InMemorySessionRepository{
		sessions: make(map[string]*game.Session),
		logger:   logger,
	}
}

// SaveSession stores a session under its key. A key can only be taken once.
func (r *InMemorySessionRepository) SaveSession(session *game.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.Key]; ok {
		return ErrSessionExists
	}

	r.sessions[session.Key] = session
	r.logger.Debug("session stored", zap.String("room_key", session.Key))
	return nil
}

// GetSession retrieves a session by room key
func (r *InMemorySessionRepository) GetSession(key string) (*game.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[key]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return session, nil
}

// DeleteSession removes the session stored under key and reports whether one
// was present.
func (r *InMemorySessionRepository) DeleteSession(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[key]; !ok {
		return false
	}

	delete(r.sessions, key)
	r.logger.Debug("session deleted", zap.String("room_key", key))
	return true
}

// ListSessions returns all stored sessions
func (r *InMemorySessionRepository) ListSessions() []*game.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*game.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}

	return sessions
}

// Count returns the number of stored sessions
func (r *InMemorySessionRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
