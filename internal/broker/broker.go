// Package broker wraps the shared key-value and publish/subscribe store that
// game servers use to find each other and relay turn messages.
//
// The store must provide a list with head push, tail pop and remove-by-value,
// ordered per-channel publish/subscribe with subscriber counts, and a liveness
// probe. Client implements it over Redis; brokertest.Memory implements it in
// process for tests.
package broker

import (
	"context"
	"errors"
)

// ErrUnreachable is returned when the broker does not answer the liveness
// probe within the retry budget.
var ErrUnreachable = errors.New("broker unreachable")

// Queue is an ordered list of string values stored under a key.
type Queue interface {
	// PopTail removes and returns the oldest value. ok is false when the list is empty.
	PopTail(ctx context.Context, key string) (value string, ok bool, err error)
	// PushHead prepends value to the list.
	PushHead(ctx context.Context, key, value string) error
	// RemoveOne deletes the first occurrence of value and reports how many were removed.
	RemoveOne(ctx context.Context, key, value string) (int64, error)
}

// PubSub publishes payloads on named channels and delivers them to subscribers
// in publish order.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns once the subscription is active on the broker, so any
	// message published afterwards is delivered.
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	// NumSub reports how many subscribers the channel currently has.
	NumSub(ctx context.Context, channel string) (int64, error)
}

// Subscription is a live feed of payloads published on one channel.
type Subscription interface {
	// Messages is closed after Close.
	Messages() <-chan []byte
	Close() error
}

// Broker is the full capability set a game server needs.
type Broker interface {
	Queue
	PubSub
}
