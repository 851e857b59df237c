package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/cory-johannsen/battleship/internal/gameserver/battlev1"
)

// Outbox is the single ordered queue of events bound for one client stream.
// The client reader and the relay listener both produce into it; the stream
// write loop is its only consumer.
type Outbox struct {
	uid    string
	events chan *battlev1.Response
	done   chan struct{}
	once   sync.Once
}

// NewOutbox creates an Outbox for the given player.
//
// Precondition: uid must be non-empty.
// Postcondition: Returns an open Outbox holding at most size pending events.
func NewOutbox(uid string, size int) *Outbox {
	if size <= 0 {
		size = 64
	}
	return &Outbox{
		uid:    uid,
		events: make(chan *battlev1.Response, size),
		done:   make(chan struct{}),
	}
}

// UID returns the player's unique identifier.
func (o *Outbox) UID() string {
	return o.uid
}

// Emit enqueues resp, waiting for space while the queue is full.
//
// Precondition: resp must be non-nil.
// Postcondition: resp is enqueued, or an error is returned if the outbox is
// closed or ctx ends first.
func (o *Outbox) Emit(ctx context.Context, resp *battlev1.Response) error {
	select {
	case <-o.done:
		return fmt.Errorf("outbox %s is closed", o.uid)
	default:
	}
	select {
	case o.events <- resp:
		return nil
	case <-o.done:
		return fmt.Errorf("outbox %s is closed", o.uid)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the read-only event channel. It is never closed; watch Done.
func (o *Outbox) Events() <-chan *battlev1.Response {
	return o.events
}

// Done is closed by Close.
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}

// Pending removes and returns every event queued right now without waiting.
func (o *Outbox) Pending() []*battlev1.Response {
	var out []*battlev1.Response
	for {
		select {
		case r := <-o.events:
			out = append(out, r)
		default:
			return out
		}
	}
}

// Close rejects further Emit calls. Safe to call more than once.
func (o *Outbox) Close() {
	o.once.Do(func() { close(o.done) })
}

// IsClosed reports whether the outbox has been closed.
func (o *Outbox) IsClosed() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}
