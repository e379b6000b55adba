// Package game holds the session entity and the chess rules used to advance it
package game

import (
	"errors"
	"fmt"
	"strings"

	"github.com/corentings/chess/v2"
)

// StartingFEN is the standard initial chess position.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	// ErrIllegalMove is returned when a move cannot be played in a position
	ErrIllegalMove = errors.New("illegal move")
	// ErrInvalidPosition is returned for a position string that does not parse
	ErrInvalidPosition = errors.New("invalid position")
)

// Rules validates and applies moves. The relay never computes legality itself.
type Rules interface {
	// Apply plays move on position and returns the resulting position.
	Apply(position, move string) (string, error)
	// Normalize parses a position and returns it in canonical form.
	Normalize(position string) (string, error)
}

// ChessRules implements Rules on top of github.com/corentings/chess/v2.
type ChessRules struct{}

// NewChessRules returns the default rules implementation.
func NewChessRules() *ChessRules {
	return &ChessRules{}
}

// Normalize accepts a FEN string, or "" / "startpos" for the standard start.
func (r *ChessRules) Normalize(position string) (string, error) {
	position = strings.TrimSpace(position)
	if position == "" || position == "startpos" {
		return StartingFEN, nil
	}

	g, err := r.load(position)
	if err != nil {
		return "", err
	}

	return g.FEN(), nil
}

// Apply accepts a single move in standard algebraic notation ("e4", "Nf3",
// "O-O") or UCI long algebraic notation ("e2e4", "e7e8q").
func (r *ChessRules) Apply(position, move string) (string, error) {
	move = strings.TrimSpace(move)
	if move == "" {
		return "", fmt.Errorf("%w: empty move", ErrIllegalMove)
	}
	if len(strings.Fields(move)) != 1 {
		return "", fmt.Errorf("%w: %q is not a single move", ErrIllegalMove, move)
	}

	g, err := r.load(position)
	if err != nil {
		return "", err
	}

	m, err := decodeMove(g.Position(), move)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrIllegalMove, move)
	}

	san := chess.AlgebraicNotation{}.Encode(g.Position(), m)
	if err := g.PushMove(san, nil); err != nil {
		return "", fmt.Errorf("%w: %s", ErrIllegalMove, move)
	}

	return g.FEN(), nil
}

// decodeMove resolves move to one of the legal moves of pos.
func decodeMove(pos *chess.Position, move string) (*chess.Move, error) {
	if m, err := chess.AlgebraicNotation{}.Decode(pos, move); err == nil {
		return m, nil
	}

	m, err := chess.UCINotation{}.Decode(pos, move)
	if err != nil {
		return nil, err
	}

	for _, valid := range pos.ValidMoves() {
		if valid.S1() == m.S1() && valid.S2() == m.S2() && valid.Promo() == m.Promo() {
			return &valid, nil
		}
	}

	return nil, fmt.Errorf("%s is not a legal move", move)
}

func (r *ChessRules) load(position string) (*chess.Game, error) {
	opt, err := chess.FEN(position)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}

	return chess.NewGame(opt), nil
}
