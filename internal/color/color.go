// Package color provides the seat colors handed out in a game room
package color

// Color represents the seat a connection holds in a room
type Color string

// Possible seats in a room. Only White and Black may be held by a player; any
// number of connections can watch as Spectator.
const (
	None      Color = ""
	White     Color = "white"
	Black     Color = "black"
	Spectator Color = "spectator"
)

// Opp returns the opposite color for the given color. Spectators and unseated
// connections have no opposite and are returned unchanged.
func (c Color) Opp() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	}

	return c
}

// IsPlayer reports whether the color is one of the two playing seats.
func (c Color) IsPlayer() bool {
	return c == White || c == Black
}
