package server

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/tecu23/chess-relay/internal/color"
	"github.com/tecu23/chess-relay/pkg/events"
	"github.com/tecu23/chess-relay/pkg/game"
	"github.com/tecu23/chess-relay/pkg/manager"
	"github.com/tecu23/chess-relay/pkg/messages"
	"github.com/tecu23/chess-relay/pkg/repository"
)

const afterE4Prefix = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq"

type received struct {
	Event   string          `json:"event"`
	Ref     string          `json:"ref"`
	Payload json.RawMessage `json:"payload"`
}

func newTestHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	p := events.NewPublisher()
	repo := repository.NewInMemoryRepository(zap.NewNop())
	gm := manager.NewManager(repo, game.NewChessRules(), p, zap.NewNop())
	return NewHub(gm, p, zap.NewNop(), opts...)
}

func newTestConn(h *Hub) *Connection {
	return &Connection{
		ID:     uuid.New(),
		hub:    h,
		send:   make(chan []byte, 64),
		logger: zap.NewNop(),
	}
}

// connect registers a connection directly, bypassing the event loop, and
// discards the CONNECTED greeting.
func connect(t *testing.T, h *Hub) *Connection {
	t.Helper()
	c := newTestConn(h)
	h.registerConnection(c)
	got := drain(t, c)
	require.Len(t, got, 1)
	require.Equal(t, messages.EventConnected, got[0].Event)
	return c
}

func drain(t *testing.T, c *Connection) []received {
	t.Helper()
	var out []received
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return out
			}
			var r received
			require.NoError(t, json.Unmarshal(data, &r))
			out = append(out, r)
		default:
			return out
		}
	}
}

func next(t *testing.T, c *Connection) received {
	t.Helper()
	select {
	case data := <-c.send:
		var r received
		require.NoError(t, json.Unmarshal(data, &r))
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return received{}
	}
}

func eventNames(rs []received) []string {
	names := make([]string, 0, len(rs))
	for _, r := range rs {
		names = append(names, r.Event)
	}
	return names
}

func decodePayload[T any](t *testing.T, r received) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.Payload, &v))
	return v
}

func find(rs []received, event string) (received, bool) {
	for _, r := range rs {
		if r.Event == event {
			return r, true
		}
	}
	return received{}, false
}

func inbound(c *Connection, typ, ref string, payload interface{}) InboundHubMessage {
	raw, _ := json.Marshal(payload)
	return InboundHubMessage{
		Conn:    c,
		Message: messages.InboundMessage{Type: typ, Ref: ref, Payload: raw},
	}
}

func createSession(t *testing.T, h *Hub, c *Connection) string {
	t.Helper()
	h.handleInbound(inbound(c, messages.TypeCreateSession, "", messages.CreateSessionPayload{Position: game.StartingFEN}))
	got := drain(t, c)
	created, ok := find(got, messages.EventSessionCreated)
	require.True(t, ok)
	return decodePayload[messages.SessionCreatedPayload](t, created).RoomKey
}

func joinSession(h *Hub, c *Connection, key string) {
	h.handleInbound(inbound(c, messages.TypeJoinSession, "", messages.RoomPayload{RoomKey: key}))
}

func storedFEN(t *testing.T, h *Hub, key string) string {
	t.Helper()
	s, err := h.gameManager.GetSession(key)
	require.NoError(t, err)
	return s.FEN()
}

func TestHub_Scenario(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	b := connect(t, h)

	h.handleInbound(inbound(a, messages.TypeCreateSession, "r1", messages.CreateSessionPayload{Position: game.StartingFEN}))
	got := drain(t, a)
	require.Equal(t, []string{messages.EventSessionCreated, messages.EventColorAssigned}, eventNames(got))
	assert.Equal(t, "r1", got[0].Ref)

	created := decodePayload[messages.SessionCreatedPayload](t, got[0])
	assert.Equal(t, a.ID.String(), created.RoomKey)
	assert.Equal(t, game.StartingFEN, created.Position)
	assert.Equal(t, color.White, decodePayload[messages.ColorAssignedPayload](t, got[1]).Color)
	key := created.RoomKey

	joinSession(h, b, key)

	gotB := drain(t, b)
	require.Equal(t, []string{messages.EventRoomJoined, messages.EventColorAssigned, messages.EventSessionReset}, eventNames(gotB))
	assert.Equal(t, color.Black, decodePayload[messages.ColorAssignedPayload](t, gotB[1]).Color)
	assert.Equal(t, game.StartingFEN, decodePayload[messages.SessionResetPayload](t, gotB[2]).Position)

	gotA := drain(t, a)
	require.Equal(t, []string{messages.EventRoomJoined, messages.EventSessionReset}, eventNames(gotA))
	assert.Equal(t, game.StartingFEN, decodePayload[messages.SessionResetPayload](t, gotA[1]).Position)

	h.handleInbound(inbound(a, messages.TypeMoveMade, "", messages.MakeMovePayload{RoomKey: key, Move: "e4"}))
	for _, c := range []*Connection{a, b} {
		got := drain(t, c)
		require.Equal(t, []string{messages.EventMoveBroadcast}, eventNames(got))
		move := decodePayload[messages.MoveBroadcastPayload](t, got[0])
		assert.True(t, move.Success)
		assert.Equal(t, "e4", move.Move)
		assert.Contains(t, move.Position, afterE4Prefix)
	}
	assert.Contains(t, storedFEN(t, h, key), afterE4Prefix)

	h.handleInbound(inbound(a, messages.TypeChatSent, "", messages.ChatPayload{RoomKey: key, Text: "hi"}))
	assert.Empty(t, drain(t, a))
	gotB = drain(t, b)
	require.Equal(t, []string{messages.EventChatReceived}, eventNames(gotB))
	chat := decodePayload[messages.ChatReceivedPayload](t, gotB[0])
	assert.Equal(t, "hi", chat.Text)
	assert.Equal(t, color.White, chat.From)
}

func TestHub_CreateSessionInvalidPosition(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)

	h.handleInbound(inbound(a, messages.TypeCreateSession, "", messages.CreateSessionPayload{Position: "garbage"}))
	got := drain(t, a)
	created, ok := find(got, messages.EventSessionCreated)
	require.True(t, ok)
	assert.Equal(t, game.StartingFEN, decodePayload[messages.SessionCreatedPayload](t, created).Position)
}

func TestHub_CreateSessionWithoutPayload(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)

	h.handleInbound(InboundHubMessage{Conn: a, Message: messages.InboundMessage{Type: messages.TypeCreateSession}})
	got := drain(t, a)
	assert.Equal(t, []string{messages.EventSessionCreated, messages.EventColorAssigned}, eventNames(got))
}

func TestHub_RecreateSessionClosesRoom(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	b := connect(t, h)

	key := createSession(t, h, a)
	joinSession(h, b, key)
	drain(t, a)
	drain(t, b)

	h.handleInbound(inbound(a, messages.TypeMoveMade, "", messages.MakeMovePayload{RoomKey: key, Move: "d4"}))
	drain(t, a)
	drain(t, b)

	again := createSession(t, h, a)
	assert.Equal(t, key, again)
	assert.Equal(t, game.StartingFEN, storedFEN(t, h, key))

	gotB := drain(t, b)
	require.Equal(t, []string{messages.EventSessionClosed}, eventNames(gotB))
	assert.Empty(t, b.room)
	assert.Equal(t, color.None, b.color)
	assert.Len(t, h.rooms[key], 1)
	assert.Equal(t, 1, h.gameManager.Count())
}

func TestHub_JoinSessionUnknownRoom(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	b := connect(t, h)
	createSession(t, h, a)

	h.handleInbound(inbound(b, messages.TypeJoinSession, "join-1", messages.RoomPayload{RoomKey: "nope"}))

	got := drain(t, b)
	require.Len(t, got, 1)
	assert.Equal(t, messages.EventError, got[0].Event)
	assert.Equal(t, "join-1", got[0].Ref)
	assert.Equal(t, messages.ErrRoomNotFound, decodePayload[messages.ErrorPayload](t, got[0]).Kind)
	assert.Empty(t, drain(t, a))
	assert.Empty(t, b.room)
}

func TestHub_JoinSessionSeats(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	b := connect(t, h)
	c := connect(t, h)
	d := connect(t, h)

	key := createSession(t, h, a)
	joinSession(h, b, key)
	drain(t, a)
	drain(t, b)

	h.handleInbound(inbound(a, messages.TypeMoveMade, "", messages.MakeMovePayload{RoomKey: key, Move: "e4"}))
	drain(t, a)
	drain(t, b)

	joinSession(h, c, key)
	gotC := drain(t, c)
	require.Equal(t, []string{messages.EventRoomJoined, messages.EventColorAssigned}, eventNames(gotC))
	assert.Equal(t, color.Spectator, decodePayload[messages.ColorAssignedPayload](t, gotC[1]).Color)
	assert.Equal(t, []string{messages.EventRoomJoined}, eventNames(drain(t, a)))
	assert.Equal(t, []string{messages.EventRoomJoined}, eventNames(drain(t, b)))

	// No reset for spectators.
	assert.Contains(t, storedFEN(t, h, key), afterE4Prefix)

	joinSession(h, d, key)
	assert.Equal(t, color.Spectator, d.color)

	players := 0
	for member := range h.rooms[key] {
		if member.color.IsPlayer() {
			players++
		}
	}
	assert.Equal(t, 2, players)
	assert.Len(t, h.rooms[key], 4)
}

func TestHub_JoinSessionTwiceKeepsSeat(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	b := connect(t, h)

	key := createSession(t, h, a)
	joinSession(h, b, key)
	drain(t, a)
	drain(t, b)

	h.handleInbound(inbound(a, messages.TypeMoveMade, "", messages.MakeMovePayload{RoomKey: key, Move: "e4"}))
	drain(t, a)
	drain(t, b)

	joinSession(h, b, key)
	gotB := drain(t, b)
	assert.Equal(t, []string{messages.EventRoomJoined, messages.EventColorAssigned}, eventNames(gotB))
	assert.Equal(t, color.Black, decodePayload[messages.ColorAssignedPayload](t, gotB[1]).Color)
	assert.Empty(t, drain(t, a))
	assert.Contains(t, storedFEN(t, h, key), afterE4Prefix)
}

func TestHub_VacatedSeatIsRefilled(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	b := connect(t, h)
	c := connect(t, h)

	key := createSession(t, h, a)
	joinSession(h, b, key)
	h.unregisterConnection(b)
	drain(t, a)

	joinSession(h, c, key)
	assert.Equal(t, color.Black, c.color)
	assert.Equal(t, []string{messages.EventRoomJoined, messages.EventSessionReset}, eventNames(drain(t, a)))
}

func TestHub_SwitchColor(t *testing.T) {
	tests := []struct {
		name       string
		moveFirst  bool
		wantSwitch bool
	}{
		{name: "unmodified position broadcasts", moveFirst: false, wantSwitch: true},
		{name: "after a move is a no-op", moveFirst: true, wantSwitch: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHub(t)
			a := connect(t, h)
			b := connect(t, h)
			s := connect(t, h)

			key := createSession(t, h, a)
			joinSession(h, b, key)
			joinSession(h, s, key)
			if tt.moveFirst {
				h.handleInbound(inbound(a, messages.TypeMoveMade, "", messages.MakeMovePayload{RoomKey: key, Move: "e4"}))
			}
			drain(t, a)
			drain(t, b)
			drain(t, s)

			h.handleInbound(inbound(b, messages.TypeSwitchColor, "", messages.RoomPayload{RoomKey: key}))

			for _, c := range []*Connection{a, b, s} {
				got := drain(t, c)
				if tt.wantSwitch {
					assert.Equal(t, []string{messages.EventColorSwitched}, eventNames(got))
				} else {
					assert.Empty(t, got)
				}
			}

			if tt.wantSwitch {
				assert.Equal(t, color.Black, a.color)
				assert.Equal(t, color.White, b.color)
			} else {
				assert.Equal(t, color.White, a.color)
				assert.Equal(t, color.Black, b.color)
			}
			assert.Equal(t, color.Spectator, s.color)
		})
	}
}

func TestHub_SwitchColorUnknownRoom(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)

	h.handleInbound(inbound(a, messages.TypeSwitchColor, "", messages.RoomPayload{RoomKey: "nope"}))
	assert.Empty(t, drain(t, a))
}

func TestHub_ApplyMove(t *testing.T) {
	tests := []struct {
		name         string
		move         string
		wantSender   []string
		wantOther    []string
		wantPosition string
	}{
		{
			name:         "legal move reaches everyone",
			move:         "e4",
			wantSender:   []string{messages.EventMoveBroadcast},
			wantOther:    []string{messages.EventMoveBroadcast},
			wantPosition: afterE4Prefix,
		},
		{
			name:         "uci notation",
			move:         "e2e4",
			wantSender:   []string{messages.EventMoveBroadcast},
			wantOther:    []string{messages.EventMoveBroadcast},
			wantPosition: afterE4Prefix,
		},
		{
			name:         "illegal move is rejected to sender only",
			move:         "e5",
			wantSender:   []string{messages.EventMoveRejected},
			wantOther:    nil,
			wantPosition: game.StartingFEN,
		},
		{
			name:         "several moves in one string are rejected",
			move:         "e4 e5 Nf3",
			wantSender:   []string{messages.EventMoveRejected},
			wantOther:    nil,
			wantPosition: game.StartingFEN,
		},
		{
			name:         "annotated move is rejected",
			move:         "e4 {c}",
			wantSender:   []string{messages.EventMoveRejected},
			wantOther:    nil,
			wantPosition: game.StartingFEN,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHub(t)
			a := connect(t, h)
			b := connect(t, h)

			key := createSession(t, h, a)
			joinSession(h, b, key)
			drain(t, a)
			drain(t, b)

			h.handleInbound(inbound(a, messages.TypeMoveMade, "m1", messages.MakeMovePayload{RoomKey: key, Move: tt.move}))

			gotA := drain(t, a)
			gotB := drain(t, b)
			assert.Equal(t, tt.wantSender, eventNames(gotA))
			if tt.wantOther == nil {
				assert.Empty(t, gotB)
			} else {
				assert.Equal(t, tt.wantOther, eventNames(gotB))
			}
			assert.Contains(t, storedFEN(t, h, key), tt.wantPosition)

			if rejected, ok := find(gotA, messages.EventMoveRejected); ok {
				assert.Equal(t, "m1", rejected.Ref)
				payload := decodePayload[messages.MoveRejectedPayload](t, rejected)
				assert.Equal(t, tt.move, payload.Move)
				assert.NotEmpty(t, payload.Reason)
			}
		})
	}
}

func TestHub_ApplyMoveUnknownRoomIsDropped(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)

	h.handleInbound(inbound(a, messages.TypeMoveMade, "", messages.MakeMovePayload{RoomKey: "nope", Move: "e4"}))
	assert.Empty(t, drain(t, a))
}

func TestHub_RelayChat(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	b := connect(t, h)
	s := connect(t, h)
	outsider := connect(t, h)

	key := createSession(t, h, a)
	joinSession(h, b, key)
	joinSession(h, s, key)
	drain(t, a)
	drain(t, b)
	drain(t, s)

	h.handleInbound(inbound(b, messages.TypeChatSent, "", messages.ChatPayload{RoomKey: key, Text: "good luck"}))

	assert.Empty(t, drain(t, b))
	assert.Empty(t, drain(t, outsider))
	for _, c := range []*Connection{a, s} {
		got := drain(t, c)
		require.Len(t, got, 1)
		chat := decodePayload[messages.ChatReceivedPayload](t, got[0])
		assert.Equal(t, "good luck", chat.Text)
		assert.Equal(t, color.Black, chat.From)
		assert.Equal(t, key, chat.RoomKey)
	}
}

func TestHub_RelayChatUnknownRoom(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)

	h.handleInbound(inbound(a, messages.TypeChatSent, "c1", messages.ChatPayload{RoomKey: "nope", Text: "hi"}))

	got := drain(t, a)
	require.Len(t, got, 1)
	assert.Equal(t, messages.EventError, got[0].Event)
	assert.Equal(t, "c1", got[0].Ref)
	assert.Equal(t, messages.ErrRoomNotFound, decodePayload[messages.ErrorPayload](t, got[0]).Kind)
}

func TestHub_Disconnect(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	b := connect(t, h)

	keyA := createSession(t, h, a)
	keyB := createSession(t, h, b)
	joinSession(h, b, keyA)
	drain(t, a)
	drain(t, b)

	// b only joined a's room: a's session stays, b's own session goes.
	h.unregisterConnection(b)
	_, err := h.gameManager.GetSession(keyA)
	assert.NoError(t, err)
	_, err = h.gameManager.GetSession(keyB)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)

	c := connect(t, h)
	joinSession(h, c, keyA)
	drain(t, c)
	drain(t, a)

	h.unregisterConnection(a)
	_, err = h.gameManager.GetSession(keyA)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)

	gotC := drain(t, c)
	require.Equal(t, []string{messages.EventSessionClosed}, eventNames(gotC))
	assert.Equal(t, keyA, decodePayload[messages.SessionClosedPayload](t, gotC[0]).RoomKey)
	assert.Empty(t, c.room)

	_, ok := <-a.send
	assert.False(t, ok, "send channel of a disconnected client is closed")

	connections, rooms := h.Stats()
	assert.Equal(t, 1, connections)
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, h.gameManager.Count())
}

func TestHub_BadInbound(t *testing.T) {
	tests := []struct {
		name     string
		msg      messages.InboundMessage
		wantKind messages.ErrorKind
	}{
		{
			name:     "unknown type",
			msg:      messages.InboundMessage{Type: "DANCE", Ref: "x"},
			wantKind: messages.ErrUnknownEvent,
		},
		{
			name:     "payload of the wrong shape",
			msg:      messages.InboundMessage{Type: messages.TypeMoveMade, Ref: "x", Payload: json.RawMessage(`"e4"`)},
			wantKind: messages.ErrInvalidPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHub(t)
			a := connect(t, h)

			h.handleInbound(InboundHubMessage{Conn: a, Message: tt.msg})

			got := drain(t, a)
			require.Len(t, got, 1)
			assert.Equal(t, messages.EventError, got[0].Event)
			assert.Equal(t, "x", got[0].Ref)
			assert.Equal(t, tt.wantKind, decodePayload[messages.ErrorPayload](t, got[0]).Kind)
		})
	}
}

func TestHub_IgnoresUnregisteredSender(t *testing.T) {
	h := newTestHub(t)
	ghost := newTestConn(h)

	h.handleInbound(inbound(ghost, messages.TypeCreateSession, "", messages.CreateSessionPayload{}))
	assert.Empty(t, drain(t, ghost))
	assert.Equal(t, 0, h.gameManager.Count())
}

type fakeSuggester struct {
	move string
	err  error
}

func (f fakeSuggester) BestMove(ctx context.Context, fen string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.move, nil
}

func TestHub_RequestEngineMove(t *testing.T) {
	h := newTestHub(t, WithEngine(fakeSuggester{move: "e2e4"}, time.Second))
	go h.Run()
	defer h.Shutdown()

	a := newTestConn(h)
	h.Register(a)
	require.Equal(t, messages.EventConnected, next(t, a).Event)

	h.Dispatch(inbound(a, messages.TypeCreateSession, "", messages.CreateSessionPayload{}))
	created := next(t, a)
	require.Equal(t, messages.EventSessionCreated, created.Event)
	require.Equal(t, messages.EventColorAssigned, next(t, a).Event)
	key := decodePayload[messages.SessionCreatedPayload](t, created).RoomKey

	h.Dispatch(inbound(a, messages.TypeRequestEngineMove, "e1", messages.RoomPayload{RoomKey: key}))

	got := next(t, a)
	require.Equal(t, messages.EventMoveBroadcast, got.Event)
	move := decodePayload[messages.MoveBroadcastPayload](t, got)
	assert.Equal(t, "e2e4", move.Move)
	assert.Contains(t, move.Position, afterE4Prefix)
}

func TestHub_RequestEngineMoveErrors(t *testing.T) {
	tests := []struct {
		name     string
		opts     []Option
		roomKey  func(a *Connection) string
		wantKind messages.ErrorKind
	}{
		{
			name:     "no engine configured",
			roomKey:  func(a *Connection) string { return a.ID.String() },
			wantKind: messages.ErrEngineUnavailable,
		},
		{
			name:     "unknown room",
			opts:     []Option{WithEngine(fakeSuggester{move: "e2e4"}, time.Second)},
			roomKey:  func(*Connection) string { return "nope" },
			wantKind: messages.ErrRoomNotFound,
		},
		{
			name:     "engine failure",
			opts:     []Option{WithEngine(fakeSuggester{err: errors.New("boom")}, time.Second)},
			roomKey:  func(a *Connection) string { return a.ID.String() },
			wantKind: messages.ErrEngineUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHub(t, tt.opts...)
			go h.Run()
			defer h.Shutdown()

			a := newTestConn(h)
			h.Register(a)
			require.Equal(t, messages.EventConnected, next(t, a).Event)

			h.Dispatch(inbound(a, messages.TypeCreateSession, "", messages.CreateSessionPayload{}))
			next(t, a)
			next(t, a)

			h.Dispatch(inbound(a, messages.TypeRequestEngineMove, "e1", messages.RoomPayload{RoomKey: tt.roomKey(a)}))

			got := next(t, a)
			require.Equal(t, messages.EventError, got.Event)
			assert.Equal(t, "e1", got.Ref)
			assert.Equal(t, tt.wantKind, decodePayload[messages.ErrorPayload](t, got).Kind)
		})
	}
}

func TestHub_EngineMoveDiscardedWhenPositionChanged(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	key := createSession(t, h, a)

	h.handleInbound(inbound(a, messages.TypeMoveMade, "", messages.MakeMovePayload{RoomKey: key, Move: "d4"}))
	drain(t, a)

	h.handleInbound(InboundHubMessage{
		Conn:   a,
		engine: &engineResult{roomKey: key, position: game.StartingFEN, move: "e2e4"},
	})

	assert.Empty(t, drain(t, a))
	assert.NotContains(t, storedFEN(t, h, key), afterE4Prefix)
}

func TestHub_ShutdownLeaksNothing(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newTestHub(t, WithEngine(fakeSuggester{move: "e2e4"}, time.Second))
	go h.Run()

	a := newTestConn(h)
	h.Register(a)
	require.Equal(t, messages.EventConnected, next(t, a).Event)

	h.Shutdown()
	h.Shutdown()

	for range a.send {
	}

	late := newTestConn(h)
	h.Register(late)
	_, ok := <-late.send
	assert.False(t, ok)
}
