package messages

import "github.com/tecu23/chess-relay/internal/color"

// Outbound events
const (
	EventConnected      = "CONNECTED"
	EventSessionCreated = "SESSION_CREATED"
	EventRoomJoined     = "ROOM_JOINED"
	EventColorAssigned  = "COLOR_ASSIGNED"
	EventColorSwitched  = "COLOR_SWITCHED"
	EventSessionReset   = "SESSION_RESET"
	EventMoveBroadcast  = "MOVE_BROADCAST"
	EventMoveRejected   = "MOVE_REJECTED"
	EventChatReceived   = "CHAT_RECEIVED"
	EventSessionClosed  = "SESSION_CLOSED"
	EventError          = "ERROR"
)

// OutboundMessage is how we wrap responses before sending
// them to the client
type OutboundMessage struct {
	Event   string      `json:"event"`
	Ref     string      `json:"ref,omitempty"`
	Payload interface{} `json:"payload"`
}

// ConnectedPayload greets a new connection with its id, which doubles as its room key
type ConnectedPayload struct {
	ConnectionID string `json:"connection_id"`
}

// SessionCreatedPayload is sent to the creator of a session
type SessionCreatedPayload struct {
	RoomKey  string `json:"room_key"`
	Position string `json:"position"`
}

// RoomJoinedPayload tells every member that someone entered the room
type RoomJoinedPayload struct {
	RoomKey string `json:"room_key"`
}

// ColorAssignedPayload tells a connection which seat it holds
type ColorAssignedPayload struct {
	RoomKey string      `json:"room_key"`
	Color   color.Color `json:"color"`
}

// ColorSwitchedPayload tells every member that the players swapped colors
type ColorSwitchedPayload struct {
	RoomKey string `json:"room_key"`
}

// SessionResetPayload tells every member to start over from Position
type SessionResetPayload struct {
	RoomKey  string `json:"room_key"`
	Position string `json:"position"`
}

// MoveBroadcastPayload is sent to every room member after a move was applied
type MoveBroadcastPayload struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	RoomKey  string `json:"room_key"`
	Position string `json:"position"`
	Move     string `json:"move"`
}

// MoveRejectedPayload is sent to the sender of a move the rules refused
type MoveRejectedPayload struct {
	RoomKey string `json:"room_key"`
	Move    string `json:"move"`
	Reason  string `json:"reason"`
}

// ChatReceivedPayload carries a chat line to every member but its sender
type ChatReceivedPayload struct {
	RoomKey string      `json:"room_key"`
	Text    string      `json:"text"`
	From    color.Color `json:"from"`
}

// SessionClosedPayload tells the remaining members that the room is gone
type SessionClosedPayload struct {
	RoomKey string `json:"room_key"`
	Reason  string `json:"reason"`
}

// ErrorKind discriminates the failures reported to a client
type ErrorKind string

const (
	ErrRoomNotFound      ErrorKind = "room_not_found"
	ErrInvalidPayload    ErrorKind = "invalid_payload"
	ErrUnknownEvent      ErrorKind = "unknown_event"
	ErrEngineUnavailable ErrorKind = "engine_unavailable"
)

// ErrorPayload reports a failed request to its sender
type ErrorPayload struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}
