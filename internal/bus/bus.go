// Package bus provides an internal event bus for component communication
package bus

import (
	"sync"
	"time"
)

// EventType identifies different event types
type EventType string

// Event types for the avatar
const (
	// EventTypeAll subscribes a handler to every event type.
	EventTypeAll EventType = ""

	// Session events
	EventTypeSessionStarted EventType = "session.started"
	EventTypeSessionEnded   EventType = "session.ended"
	EventTypeSessionReset   EventType = "session.reset"

	// STT events
	EventTypeTranscript EventType = "stt.transcript"

	// Safety events
	EventTypeSafetyWarn  EventType = "safety.warn"
	EventTypeSafetyBlock EventType = "safety.block"

	// Translation events
	EventTypeTranslated EventType = "pipeline.translated"

	// Playback events
	EventTypePlaybackStarted EventType = "playback.started"
	EventTypePlaybackFrozen  EventType = "playback.frozen"
	EventTypePlaybackCleared EventType = "playback.cleared"
	EventTypePlaybackIdle    EventType = "playback.idle"
)

// Event represents a bus event
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"sessionId,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type. EventTypeAll receives everything.
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

// Publish sends an event to all subscribed handlers without waiting
func (b *EventBus) Publish(event Event) {
	for _, handler := range b.prepare(&event) {
		go handler(event)
	}
}

// PublishSync sends an event and waits for all handlers to complete
func (b *EventBus) PublishSync(event Event) {
	var wg sync.WaitGroup
	for _, handler := range b.prepare(&event) {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}

func (b *EventBus) prepare(event *Event) []Handler {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers := make([]Handler, 0, len(b.handlers[event.Type])+len(b.handlers[EventTypeAll]))
	handlers = append(handlers, b.handlers[event.Type]...)
	if event.Type != EventTypeAll {
		handlers = append(handlers, b.handlers[EventTypeAll]...)
	}
	return handlers
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]Handler)
}
