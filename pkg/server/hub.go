package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tecu23/chess-relay/internal/color"
	"github.com/tecu23/chess-relay/pkg/events"
	"github.com/tecu23/chess-relay/pkg/manager"
	"github.com/tecu23/chess-relay/pkg/messages"
)

const defaultEngineTimeout = 10 * time.Second

// MoveSuggester picks a move for a position. The engine pool implements it.
type MoveSuggester interface {
	BestMove(ctx context.Context, fen string) (string, error)
}

// InboundHubMessage are the messages that the hub receives
type InboundHubMessage struct {
	Conn    *Connection             // who sent it
	Message messages.InboundMessage // decoded envelope

	engine *engineResult // set only for moves coming back from the engine
}

type engineResult struct {
	roomKey  string
	position string // position the engine searched
	ref      string
	move     string
	err      error
}

// Option configures a Hub
type Option func(*Hub)

// WithEngine lets clients ask for engine moves. timeout bounds a single search.
func WithEngine(engine MoveSuggester, timeout time.Duration) Option {
	return func(h *Hub) {
		h.engine = engine
		if timeout > 0 {
			h.engineTimeout = timeout
		}
	}
}

// Hub keeps track of all active connections and the rooms they sit in.
// Every event is handled to completion on the Run goroutine before the next
// one is taken, so room membership, seat colors and the session store are
// never observed half-updated.
type Hub struct {
	mu          sync.RWMutex                       // guards map writes against Stats readers
	connections map[*Connection]bool               // Registered connections
	rooms       map[string]map[*Connection]struct{} // Room key to members

	register   chan *Connection       // Incoming registration
	unregister chan *Connection       // Incoming unregistration
	inbound    chan InboundHubMessage // Channel of inbound messages routed to a room

	done         chan struct{}
	stopped      chan struct{}
	shutdownOnce sync.Once

	ctx    context.Context // cancelled on shutdown, bounds engine searches
	cancel context.CancelFunc
	wg     sync.WaitGroup // engine searches in flight

	gameManager   *manager.Manager
	engine        MoveSuggester
	engineTimeout time.Duration

	publisher *events.Publisher
	logger    *zap.Logger
}

// NewHub creates a new hub
func NewHub(gm *manager.Manager, publisher *events.Publisher, logger *zap.Logger, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		connections:   make(map[*Connection]bool),
		rooms:         make(map[string]map[*Connection]struct{}),
		register:      make(chan *Connection),
		unregister:    make(chan *Connection),
		inbound:       make(chan InboundHubMessage, 64),
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
		gameManager:   gm,
		engineTimeout: defaultEngineTimeout,
		publisher:     publisher,
		logger:        logger,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Run is the main execution of the hub. It returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.stopped)

	for {
		select {
		case conn := <-h.register:
			h.registerConnection(conn)

		case conn := <-h.unregister:
			h.unregisterConnection(conn)

		case msg := <-h.inbound:
			h.handleInbound(msg)

		case <-h.done:
			h.closeAll()
			return
		}
	}
}

// Shutdown stops the event loop, closes every connection and waits for
// engine searches to finish. It must only be called once Run has started.
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		h.cancel()
		close(h.done)
		<-h.stopped
		h.wg.Wait()
		h.logger.Info("Hub shut down")
	})
}

// Register hands a new connection to the hub
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		close(conn.send)
	}
}

// Unregister removes a connection from the hub
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Dispatch queues an inbound message for the event loop
func (h *Hub) Dispatch(msg InboundHubMessage) {
	select {
	case h.inbound <- msg:
	case <-h.done:
	}
}

// Stats returns the number of connections and of rooms with members
func (h *Hub) Stats() (connections, rooms int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections), len(h.rooms)
}

func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	h.connections[conn] = true
	count := len(h.connections)
	h.mu.Unlock()

	h.logger.Debug("New connection registered",
		zap.String("connection_id", conn.ID.String()),
		zap.Int("connections", count),
	)

	h.send(conn, messages.OutboundMessage{
		Event:   messages.EventConnected,
		Payload: messages.ConnectedPayload{ConnectionID: conn.ID.String()},
	})

	h.publisher.Publish(events.Event{Type: events.EventConnectionOpened})
}

// unregisterConnection releases everything the connection holds. The session
// it created goes away with it and the remaining members of that room are
// told and detached; sessions it merely joined stay.
func (h *Hub) unregisterConnection(conn *Connection) {
	if _, ok := h.connections[conn]; !ok {
		return
	}

	h.leaveRoom(conn)

	h.mu.Lock()
	delete(h.connections, conn)
	count := len(h.connections)
	h.mu.Unlock()
	close(conn.send)

	key := conn.ID.String()
	if h.gameManager.RemoveSession(key) {
		h.closeRoom(key, "creator disconnected")
	}

	h.logger.Debug("Connection unregistered",
		zap.String("connection_id", key),
		zap.Int("connections", count),
	)

	h.publisher.Publish(events.Event{Type: events.EventConnectionClosed})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.connections {
		close(conn.send)
	}

	h.connections = make(map[*Connection]bool)
	h.rooms = make(map[string]map[*Connection]struct{})
}

// handleInbound is where you decode or route the message from a client.
func (h *Hub) handleInbound(msg InboundHubMessage) {
	if msg.engine != nil {
		h.handleEngineResult(msg.Conn, msg.engine)
		return
	}

	if _, ok := h.connections[msg.Conn]; !ok {
		return
	}

	ref := msg.Message.Ref

	switch msg.Message.Type {
	case messages.TypeCreateSession:
		var payload messages.CreateSessionPayload
		if !h.decode(msg, &payload) {
			return
		}
		h.createSession(msg.Conn, payload.Position, ref)

	case messages.TypeJoinSession:
		var payload messages.RoomPayload
		if !h.decode(msg, &payload) {
			return
		}
		h.joinSession(msg.Conn, payload.RoomKey, ref)

	case messages.TypeSwitchColor:
		var payload messages.RoomPayload
		if !h.decode(msg, &payload) {
			return
		}
		h.switchColor(payload.RoomKey)

	case messages.TypeMoveMade:
		var payload messages.MakeMovePayload
		if !h.decode(msg, &payload) {
			return
		}
		h.applyMove(msg.Conn, payload.RoomKey, payload.Move, ref)

	case messages.TypeChatSent:
		var payload messages.ChatPayload
		if !h.decode(msg, &payload) {
			return
		}
		h.relayChat(msg.Conn, payload.RoomKey, payload.Text, ref)

	case messages.TypeRequestEngineMove:
		var payload messages.RoomPayload
		if !h.decode(msg, &payload) {
			return
		}
		h.requestEngineMove(msg.Conn, payload.RoomKey, ref)

	default:
		h.sendError(msg.Conn, ref, messages.ErrUnknownEvent, "Unknown message type "+msg.Message.Type)
	}
}

// decode unmarshals the payload into v. An absent payload leaves v zero.
func (h *Hub) decode(msg InboundHubMessage, v interface{}) bool {
	raw := msg.Message.Payload
	if len(raw) == 0 || string(raw) == "null" {
		return true
	}

	if err := json.Unmarshal(raw, v); err != nil {
		h.logger.Debug("invalid payload",
			zap.String("type", msg.Message.Type),
			zap.String("connection_id", msg.Conn.ID.String()),
			zap.Error(err),
		)
		h.sendError(msg.Conn, msg.Message.Ref, messages.ErrInvalidPayload, "Invalid "+msg.Message.Type+" payload")
		return false
	}

	return true
}

func (h *Hub) createSession(conn *Connection, position, ref string) {
	key := conn.ID.String()

	h.leaveRoom(conn)
	// Re-creating restarts the game, so whoever was still seated in the old
	// one is let go.
	h.closeRoom(key, "session restarted")

	session := h.gameManager.CreateSession(key, position)

	h.joinRoom(conn, key, color.White)

	h.send(conn, messages.OutboundMessage{
		Event: messages.EventSessionCreated,
		Ref:   ref,
		Payload: messages.SessionCreatedPayload{
			RoomKey:  key,
			Position: session.FEN(),
		},
	})
	h.send(conn, messages.OutboundMessage{
		Event:   messages.EventColorAssigned,
		Payload: messages.ColorAssignedPayload{RoomKey: key, Color: color.White},
	})
}

func (h *Hub) joinSession(conn *Connection, key, ref string) {
	if _, err := h.gameManager.GetSession(key); err != nil {
		h.logger.Debug("join for unknown room",
			zap.String("room_key", key),
			zap.String("connection_id", conn.ID.String()),
		)
		h.sendError(conn, ref, messages.ErrRoomNotFound, "No room found with given room key")
		return
	}

	if conn.room == key {
		h.send(conn, messages.OutboundMessage{
			Event:   messages.EventRoomJoined,
			Ref:     ref,
			Payload: messages.RoomJoinedPayload{RoomKey: key},
		})
		h.send(conn, messages.OutboundMessage{
			Event:   messages.EventColorAssigned,
			Payload: messages.ColorAssignedPayload{RoomKey: key, Color: conn.color},
		})
		return
	}

	h.leaveRoom(conn)

	seat := h.freeSeat(key)
	h.joinRoom(conn, key, seat)

	h.logger.Info("connection joined room",
		zap.String("room_key", key),
		zap.String("connection_id", conn.ID.String()),
		zap.String("color", string(seat)),
	)

	h.broadcast(key, messages.OutboundMessage{
		Event:   messages.EventRoomJoined,
		Payload: messages.RoomJoinedPayload{RoomKey: key},
	})
	h.send(conn, messages.OutboundMessage{
		Event:   messages.EventColorAssigned,
		Ref:     ref,
		Payload: messages.ColorAssignedPayload{RoomKey: key, Color: seat},
	})

	if seat == color.Spectator {
		return
	}

	session, err := h.gameManager.ResetSession(key)
	if err != nil {
		h.logger.Error("failed to reset session", zap.String("room_key", key), zap.Error(err))
		return
	}

	h.broadcast(key, messages.OutboundMessage{
		Event:   messages.EventSessionReset,
		Payload: messages.SessionResetPayload{RoomKey: key, Position: session.FEN()},
	})
}

// freeSeat picks the seat for a newcomer: black while it is open, white if
// only white is open, otherwise a spectator seat.
func (h *Hub) freeSeat(key string) color.Color {
	taken := make(map[color.Color]bool)
	for member := range h.rooms[key] {
		if member.color.IsPlayer() {
			taken[member.color] = true
		}
	}

	switch {
	case !taken[color.Black]:
		return color.Black
	case !taken[color.White]:
		return color.White
	default:
		return color.Spectator
	}
}

func (h *Hub) switchColor(key string) {
	ok, err := h.gameManager.CanSwitchColor(key)
	if err != nil {
		h.logger.Debug("switch color for unknown room", zap.String("room_key", key))
		return
	}
	if !ok {
		h.logger.Debug("switch color ignored, game in progress", zap.String("room_key", key))
		return
	}

	for member := range h.rooms[key] {
		member.color = member.color.Opp()
	}

	h.broadcast(key, messages.OutboundMessage{
		Event:   messages.EventColorSwitched,
		Payload: messages.ColorSwitchedPayload{RoomKey: key},
	})
}

func (h *Hub) applyMove(conn *Connection, key, move, ref string) bool {
	position, err := h.gameManager.ApplyMove(key, move)
	if manager.IsNotFound(err) {
		h.logger.Warn("game state not found for move",
			zap.String("room_key", key),
			zap.String("move", move),
		)
		return false
	}

	if err != nil {
		h.send(conn, messages.OutboundMessage{
			Event: messages.EventMoveRejected,
			Ref:   ref,
			Payload: messages.MoveRejectedPayload{
				RoomKey: key,
				Move:    move,
				Reason:  err.Error(),
			},
		})
		return false
	}

	h.broadcast(key, messages.OutboundMessage{
		Event: messages.EventMoveBroadcast,
		Payload: messages.MoveBroadcastPayload{
			Success:  true,
			Message:  "Move executed successfully",
			RoomKey:  key,
			Position: position,
			Move:     move,
		},
	})

	return true
}

func (h *Hub) relayChat(conn *Connection, key, text, ref string) {
	if _, err := h.gameManager.GetSession(key); err != nil {
		h.sendError(conn, ref, messages.ErrRoomNotFound, "No game found for room "+key)
		return
	}

	data, err := json.Marshal(messages.OutboundMessage{
		Event: messages.EventChatReceived,
		Payload: messages.ChatReceivedPayload{
			RoomKey: key,
			Text:    text,
			From:    conn.color,
		},
	})
	if err != nil {
		h.logger.Error("Error marshaling JSON", zap.Error(err))
		return
	}

	for member := range h.rooms[key] {
		if member == conn {
			continue
		}
		member.enqueue(data)
	}

	h.publisher.Publish(events.Event{Type: events.EventChatRelayed, RoomKey: key})
}

func (h *Hub) requestEngineMove(conn *Connection, key, ref string) {
	if h.engine == nil {
		h.sendError(conn, ref, messages.ErrEngineUnavailable, "No engine configured")
		return
	}

	session, err := h.gameManager.GetSession(key)
	if err != nil {
		h.sendError(conn, ref, messages.ErrRoomNotFound, "No room found with given room key")
		return
	}

	position := session.FEN()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ctx, cancel := context.WithTimeout(h.ctx, h.engineTimeout)
		move, err := h.engine.BestMove(ctx, position)
		cancel()

		h.Dispatch(InboundHubMessage{
			Conn: conn,
			engine: &engineResult{
				roomKey:  key,
				position: position,
				ref:      ref,
				move:     move,
				err:      err,
			},
		})
	}()
}

func (h *Hub) handleEngineResult(conn *Connection, res *engineResult) {
	if res.err != nil {
		h.logger.Warn("engine search failed", zap.String("room_key", res.roomKey), zap.Error(res.err))
		h.sendError(conn, res.ref, messages.ErrEngineUnavailable, res.err.Error())
		return
	}

	session, err := h.gameManager.GetSession(res.roomKey)
	if err != nil {
		h.logger.Debug("engine move for removed room", zap.String("room_key", res.roomKey))
		return
	}

	if session.FEN() != res.position {
		h.logger.Debug("engine move discarded, position changed during search",
			zap.String("room_key", res.roomKey),
			zap.String("move", res.move),
		)
		return
	}

	if h.applyMove(conn, res.roomKey, res.move, res.ref) {
		h.publisher.Publish(events.Event{
			Type:    events.EventEngineMoved,
			RoomKey: res.roomKey,
			Payload: res.move,
		})
	}
}

func (h *Hub) joinRoom(conn *Connection, key string, seat color.Color) {
	h.mu.Lock()
	members, ok := h.rooms[key]
	if !ok {
		members = make(map[*Connection]struct{})
		h.rooms[key] = members
	}
	members[conn] = struct{}{}
	h.mu.Unlock()

	conn.room = key
	conn.color = seat
}

func (h *Hub) leaveRoom(conn *Connection) {
	if conn.room == "" {
		return
	}

	h.mu.Lock()
	if members, ok := h.rooms[conn.room]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(h.rooms, conn.room)
		}
	}
	h.mu.Unlock()

	conn.room = ""
	conn.color = color.None
}

// closeRoom detaches every member of the room and tells them why.
func (h *Hub) closeRoom(key, reason string) {
	members := h.rooms[key]
	if len(members) == 0 {
		return
	}

	h.broadcast(key, messages.OutboundMessage{
		Event:   messages.EventSessionClosed,
		Payload: messages.SessionClosedPayload{RoomKey: key, Reason: reason},
	})

	h.mu.Lock()
	delete(h.rooms, key)
	h.mu.Unlock()

	for member := range members {
		member.room = ""
		member.color = color.None
	}

	h.logger.Info("room closed", zap.String("room_key", key), zap.String("reason", reason))
}

// broadcast sends msg to every member of the room, the sender included.
func (h *Hub) broadcast(key string, msg messages.OutboundMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Error marshaling JSON", zap.Error(err))
		return
	}

	for member := range h.rooms[key] {
		member.enqueue(data)
	}
}

// send delivers msg to conn if it is still registered.
func (h *Hub) send(conn *Connection, msg messages.OutboundMessage) {
	if conn == nil {
		return
	}
	if _, ok := h.connections[conn]; !ok {
		return
	}

	conn.SendJSON(msg)
}

func (h *Hub) sendError(conn *Connection, ref string, kind messages.ErrorKind, msg string) {
	h.send(conn, messages.OutboundMessage{
		Event: messages.EventError,
		Ref:   ref,
		Payload: messages.ErrorPayload{
			Kind:    kind,
			Message: msg,
		},
	})
}
