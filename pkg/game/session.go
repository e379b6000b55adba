package game

import (
	"sync"
	"time"
)

// SessionStatus tracks how far a room has been filled
type SessionStatus string

// A session starts out waiting for an opponent and becomes full once a second
// player takes a seat. There is no way back.
const (
	StatusAwaitingOpponent SessionStatus = "awaiting_opponent"
	StatusFull             SessionStatus = "full"
)

// Session is the shared state of one game room. It is keyed by the id of the
// connection that created it.
type Session struct {
	Key       string
	CreatorID string
	CreatedAt time.Time

	position string
	status   SessionStatus

	mu sync.RWMutex
}

// NewSession creates a session awaiting an opponent at the given position.
func NewSession(key, creatorID, position string) *Session {
	return &Session{
		Key:       key,
		CreatorID: creatorID,
		CreatedAt: time.Now(),
		position:  position,
		status:    StatusAwaitingOpponent,
	}
}

// FEN returns the stored position.
func (s *Session) FEN() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position
}

// SetFEN overwrites the stored position.
func (s *Session) SetFEN(position string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = position
}

// IsUnmodified reports whether no move has been played since the session was
// created or last reset to the standard start.
func (s *Session) IsUnmodified() bool {
	return s.FEN() == StartingFEN
}

// Status returns the fill state of the room.
func (s *Session) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// MarkFull records that the second seat has been taken.
func (s *Session) MarkFull() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusFull
}

// Restart puts a session back into its freshly created state at position.
func (s *Session) Restart(position string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = position
	s.status = StatusAwaitingOpponent
}
