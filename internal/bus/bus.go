// Package bus provides an in-process event bus for lip sync components
package bus

import (
	"sync"
)

// EventType identifies different event types
type EventType string

// Event types published by the pipeline
const (
	// Utterance lifecycle
	EventTypeUtteranceArmed    EventType = "utterance.armed"
	EventTypeUtterancePlaying  EventType = "utterance.playing"
	EventTypeUtteranceFinished EventType = "utterance.finished"
	EventTypeUtteranceStopped  EventType = "utterance.stopped"

	// Refinement
	EventTypeRefineStarted  EventType = "refine.started"
	EventTypeRefineAccepted EventType = "refine.accepted"
	EventTypeRefineRejected EventType = "refine.rejected"

	// Renderer feed
	EventTypeClientConnected    EventType = "stream.client_connected"
	EventTypeClientDisconnected EventType = "stream.client_disconnected"

	// Configuration
	EventTypeConfigReloaded EventType = "config.reloaded"
)

// Event represents a bus event
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type
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

// SubscribeAll adds a handler receiving every event
func (b *EventBus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

func (b *EventBus) snapshot(t EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers := make([]Handler, 0, len(b.handlers[t])+len(b.all))
	handlers = append(handlers, b.handlers[t]...)
	return append(handlers, b.all...)
}

// Publish sends an event to all subscribed handlers without waiting.
// Handlers run on their own goroutines so a slow handler never stalls
// the render tick.
func (b *EventBus) Publish(event Event) {
	for _, handler := range b.snapshot(event.Type) {
		go handler(event)
	}
}

// PublishSync sends an event and waits for all handlers to complete
func (b *EventBus) PublishSync(event Event) {
	var wg sync.WaitGroup
	for _, handler := range b.snapshot(event.Type) {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]Handler)
	b.all = nil
}
