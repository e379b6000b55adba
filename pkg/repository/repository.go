// Package repository stores game sessions for the lifetime of the process
package repository

import (
	"errors"

	"github.com/tecu23/chess-relay/pkg/game"
)

var (
	// ErrSessionNotFound is returned when no session exists for a room key
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned when a room key is already taken
	ErrSessionExists = errors.New("session already exists")
)

// SessionRepository is a keyed store holding at most one session per room key
type SessionRepository interface {
	SaveSession(session *game.Session) error
	GetSession(key string) (*game.Session, error)
	DeleteSession(key string) bool
	ListSessions() []*game.Session
	Count() int
}
