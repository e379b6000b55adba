// Package messages defines the websocket wire format of the relay
package messages

import "encoding/json"

// Inbound message types
const (
	TypeCreateSession     = "CREATE_SESSION"
	TypeJoinSession       = "JOIN_SESSION"
	TypeSwitchColor       = "SWITCH_COLOR"
	TypeMoveMade          = "MOVE_MADE"
	TypeChatSent          = "CHAT_SENT"
	TypeRequestEngineMove = "REQUEST_ENGINE_MOVE"
)

// InboundMessage is the generic wrapper for messages coming from the client.
// The "type" field tells us the action; "payload" is the data we parse further.
// "ref" is optional and is echoed back on acknowledgements and errors.
type InboundMessage struct {
	Type    string          `json:"type"`
	Ref     string          `json:"ref,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// CreateSessionPayload carries the initial position of a new session
type CreateSessionPayload struct {
	Position string `json:"position"`
}

// RoomPayload addresses an existing room. It is used by JOIN_SESSION,
// SWITCH_COLOR and REQUEST_ENGINE_MOVE.
type RoomPayload struct {
	RoomKey string `json:"room_key"`
}

// MakeMovePayload represents the payload for making a move during a game
type MakeMovePayload struct {
	RoomKey string `json:"room_key"`
	Move    string `json:"move"`
}

// ChatPayload represents a chat line sent to a room
type ChatPayload struct {
	RoomKey string `json:"room_key"`
	Text    string `json:"text"`
}
