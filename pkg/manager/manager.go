// Package manager owns the lifecycle of game sessions
package manager

import (
	"errors"

	"go.uber.org/zap"

	"github.com/tecu23/chess-relay/pkg/events"
	"github.com/tecu23/chess-relay/pkg/game"
	"github.com/tecu23/chess-relay/pkg/repository"
)

// MovePayload is published with move events
type MovePayload struct {
	Move     string
	Position string
	Reason   string
}

// Manager creates, advances and removes sessions. It does not know about
// connections or rooms; the hub decides who gets told what.
type Manager struct {
	repo      repository.SessionRepository
	rules     game.Rules
	publisher *events.Publisher
	logger    *zap.Logger
}

// NewManager creates a new manager over the given store and rules
func NewManager(
	repo repository.SessionRepository,
	rules game.Rules,
	publisher *events.Publisher,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		repo:      repo,
		rules:     rules,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateSession creates the session keyed by creatorID. Calling it again for
// the same creator restarts the existing session instead of replacing it. A
// position that does not parse falls back to the standard start.
func (m *Manager) CreateSession(creatorID, position string) *game.Session {
	fen, err := m.rules.Normalize(position)
	if err != nil {
		m.logger.Warn("invalid initial position, using standard start",
			zap.String("room_key", creatorID),
			zap.String("position", position),
			zap.Error(err),
		)
		fen = game.StartingFEN
	}

	if existing, err := m.repo.GetSession(creatorID); err == nil {
		existing.Restart(fen)
		m.logger.Info("restarted game session", zap.String("room_key", creatorID))
		return existing
	}

	session := game.NewSession(creatorID, creatorID, fen)
	if err := m.repo.SaveSession(session); err != nil {
		// Only the hub goroutine creates sessions, so the key cannot have been
		// taken since the lookup above.
		m.logger.Error("failed to store session", zap.String("room_key", creatorID), zap.Error(err))
	}

	m.logger.Info("created new game session", zap.String("room_key", creatorID))

	m.publisher.Publish(events.Event{
		Type:    events.EventSessionCreated,
		RoomKey: creatorID,
		Payload: fen,
	})

	return session
}

// GetSession returns a session by room key
func (m *Manager) GetSession(key string) (*game.Session, error) {
	return m.repo.GetSession(key)
}

// ResetSession starts a fresh game between two seated players: the position
// goes back to the standard start and the session is marked full.
func (m *Manager) ResetSession(key string) (*game.Session, error) {
	session, err := m.repo.GetSession(key)
	if err != nil {
		return nil, err
	}

	session.SetFEN(game.StartingFEN)
	session.MarkFull()

	m.publisher.Publish(events.Event{
		Type:    events.EventSessionReset,
		RoomKey: key,
		Payload: game.StartingFEN,
	})

	return session, nil
}

// CanSwitchColor reports whether the session is still at the standard start.
func (m *Manager) CanSwitchColor(key string) (bool, error) {
	session, err := m.repo.GetSession(key)
	if err != nil {
		return false, err
	}

	return session.IsUnmodified(), nil
}

// ApplyMove plays move in the session through the rules engine and stores the
// resulting position. On rejection the stored position is left untouched.
func (m *Manager) ApplyMove(key, move string) (string, error) {
	session, err := m.repo.GetSession(key)
	if err != nil {
		return "", err
	}

	position, err := m.rules.Apply(session.FEN(), move)
	if err != nil {
		m.logger.Debug("move rejected",
			zap.String("room_key", key),
			zap.String("move", move),
			zap.Error(err),
		)
		m.publisher.Publish(events.Event{
			Type:    events.EventMoveRejected,
			RoomKey: key,
			Payload: MovePayload{Move: move, Position: session.FEN(), Reason: err.Error()},
		})
		return "", err
	}

	session.SetFEN(position)

	m.logger.Info("processed move",
		zap.String("room_key", key),
		zap.String("move", move),
		zap.String("position", position),
	)

	m.publisher.Publish(events.Event{
		Type:    events.EventMoveProcessed,
		RoomKey: key,
		Payload: MovePayload{Move: move, Position: position},
	})

	return position, nil
}

// RemoveSession deletes the session keyed by key and reports whether it existed
func (m *Manager) RemoveSession(key string) bool {
	if !m.repo.DeleteSession(key) {
		return false
	}

	m.logger.Info("removed game session", zap.String("room_key", key))

	m.publisher.Publish(events.Event{
		Type:    events.EventSessionRemoved,
		RoomKey: key,
	})

	return true
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	return m.repo.Count()
}

// IsNotFound reports whether err means the room key has no session.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrSessionNotFound)
}
