package client

import (
	"context"
	"fmt"
	"sync"
)

// Event names a server event a Handler can be registered for.
type Event string

const (
	EventBegin     Event = "begin"
	EventStartTurn Event = "start_turn"
	EventEndTurn   Event = "end_turn"
	EventAttack    Event = "attack"
	EventHit       Event = "hit"
	EventMiss      Event = "miss"
	EventWin       Event = "win"
	EventLose      Event = "lose"
)

// Events is the closed set of events a client can handle.
var Events = []Event{
	EventBegin, EventStartTurn, EventEndTurn, EventAttack,
	EventHit, EventMiss, EventWin, EventLose,
}

// Valid reports whether e belongs to Events.
func (e Event) Valid() bool {
	for _, v := range Events {
		if e == v {
			return true
		}
	}
	return false
}

// Handler reacts to one event. arg is the attack vector for EventAttack and
// empty for every other event.
type Handler func(ctx context.Context, arg string)

// UnknownEventError is returned when registering a handler for an event outside Events.
type UnknownEventError struct {
	Event Event
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unable to register handler for unknown event %q", e.Event)
}

// Handlers is a table of at most one Handler per event.
type Handlers struct {
	mu sync.RWMutex
	m  map[Event]Handler
}

// NewHandlers creates an empty table.
func NewHandlers() *Handlers {
	return &Handlers{m: make(map[Event]Handler)}
}

// On registers h for event, replacing any earlier handler.
//
// Precondition: h must be non-nil.
// Postcondition: Returns *UnknownEventError if event is not in Events.
func (h *Handlers) On(event Event, fn Handler) error {
	if !event.Valid() {
		return &UnknownEventError{Event: event}
	}
	if fn == nil {
		return fmt.Errorf("nil handler for event %q", event)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.m[event] = fn
	return nil
}

// Dispatch calls the handler registered for event and reports whether there was one.
func (h *Handlers) Dispatch(ctx context.Context, event Event, arg string) bool {
	h.mu.RLock()
	fn, ok := h.m[event]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	fn(ctx, arg)
	return true
}
