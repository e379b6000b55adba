// Package events carries relay lifecycle notifications to interested components
package events

import "sync"

// EventType represents the type of event
type EventType string

// Define event types
const (
	EventConnectionOpened EventType = "CONNECTION_OPENED"
	EventConnectionClosed EventType = "CONNECTION_CLOSED"
	EventSessionCreated   EventType = "SESSION_CREATED"
	EventSessionReset     EventType = "SESSION_RESET"
	EventSessionRemoved   EventType = "SESSION_REMOVED"
	EventMoveProcessed    EventType = "MOVE_PROCESSED"
	EventMoveRejected     EventType = "MOVE_REJECTED"
	EventChatRelayed      EventType = "CHAT_RELAYED"
	EventEngineMoved      EventType = "ENGINE_MOVED"

	allEvents EventType = "*"
)

// Event represents an event in the system
type Event struct {
	Type    EventType
	RoomKey string // Optional, can be empty for connection events
	Payload interface{}
}

// Handler is a function that processes events
type Handler func(event Event)

// Publisher is the central event publisher
type Publisher struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Handler
	wg          sync.WaitGroup
}

// NewPublisher creates a new event publisher
func NewPublisher() *Publisher {
	return &Publisher{
		subscribers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for a specific event type
func (p *Publisher) Subscribe(eventType EventType, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.subscribers[eventType] = append(p.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for all event types
func (p *Publisher) SubscribeAll(handler Handler) {
	p.Subscribe(allEvents, handler)
}

// Publish broadcasts an event to its subscribers and to the "all events"
// handlers. Handlers run concurrently and never block the publisher.
func (p *Publisher) Publish(event Event) {
	p.mu.RLock()
	handlers := append([]Handler{}, p.subscribers[event.Type]...)
	handlers = append(handlers, p.subscribers[allEvents]...)
	p.mu.RUnlock()

	for _, handler := range handlers {
		p.wg.Add(1)
		go func(h Handler) {
			defer p.wg.Done()
			h(event)
		}(handler)
	}
}

// Wait blocks until every handler started so far has returned.
func (p *Publisher) Wait() {
	p.wg.Wait()
}
