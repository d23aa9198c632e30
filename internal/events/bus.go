package events

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler receives a published event. Handlers run synchronously on the
// publisher's goroutine; a panic in one handler is isolated and logged.
type Handler func(e *Event)

// Bus is an in-process publish/subscribe bus keyed by event type.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType]map[int]Handler
	nextID   int
	log      zerolog.Logger
}

// NewBus creates an event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType]map[int]Handler),
		log:      log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe function. Callers with a bounded lifetime (SSE connections)
// must unsubscribe on teardown or the handler leaks.
func (b *Bus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[int]Handler)
	}
	b.handlers[eventType][id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers[eventType], id)
		b.mu.Unlock()
	}
}

// SubscribeAll registers a handler for every currently-known event type.
// Used by the SSE stream, which forwards everything to connected clients.
// The returned function removes all of the registrations.
func (b *Bus) SubscribeAll(handler Handler) func() {
	all := []EventType{
		PortfolioChanged,
		PriceUpdated,
		FxRateUpdated,
		TransactionRecorded,
		StoreReset,
		SystemStatusChanged,
		ErrorOccurred,
	}
	unsubs := make([]func(), 0, len(all))
	for _, t := range all {
		unsubs = append(unsubs, b.Subscribe(t, handler))
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// Emit publishes an event to every handler subscribed to its type, in
// subscription order.
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	b.mu.RLock()
	ids := make([]int, 0, len(b.handlers[eventType]))
	for id := range b.handlers[eventType] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, len(ids))
	for i, id := range ids {
		handlers[i] = b.handlers[eventType][id]
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.dispatch(handler, event)
	}
}

// dispatch runs one handler with panic isolation so a broken subscriber
// cannot take down the publisher or starve the other subscribers.
func (b *Bus) dispatch(handler Handler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("event_type", string(event.Type)).
				Interface("panic", r).
				Msg("Event handler panicked")
		}
	}()
	handler(event)
}
