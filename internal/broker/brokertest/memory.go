// Package brokertest provides an in-process broker.Broker for tests.
package brokertest

import (
	"context"
	"errors"
	"sync"

	"github.com/cory-johannsen/battleship/internal/broker"
)

// ErrClosed is returned by every operation after Memory.Fail has been called.
var ErrClosed = errors.New("memory broker failed")

// Memory implements broker.Broker with Redis list and pub/sub semantics:
// head push, tail pop, remove-first-match, per-channel ordered fan-out, and
// subscriber counts. All methods are safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	lists    map[string][]string
	channels map[string]map[*subscription]struct{}
	failed   bool

	// Published records every payload by channel, in publish order.
	published map[string][][]byte
}

// NewMemory returns an empty broker.
func NewMemory() *Memory {
	return &Memory{
		lists:     make(map[string][]string),
		channels:  make(map[string]map[*subscription]struct{}),
		published: make(map[string][][]byte),
	}
}

// Fail makes all subsequent operations return ErrClosed.
func (m *Memory) Fail() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = true
}

// List returns a copy of the list under key, head first.
func (m *Memory) List(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lists[key]...)
}

// Published returns a copy of every payload published on channel.
func (m *Memory) Published(channel string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.published[channel]...)
}

// PopTail implements broker.Queue.
func (m *Memory) PopTail(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed {
		return "", false, ErrClosed
	}
	l := m.lists[key]
	if len(l) == 0 {
		return "", false, nil
	}
	v := l[len(l)-1]
	m.lists[key] = l[:len(l)-1]
	return v, true, nil
}

// PushHead implements broker.Queue.
func (m *Memory) PushHead(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed {
		return ErrClosed
	}
	m.lists[key] = append([]string{value}, m.lists[key]...)
	return nil
}

// RemoveOne implements broker.Queue.
func (m *Memory) RemoveOne(_ context.Context, key, value string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed {
		return 0, ErrClosed
	}
	l := m.lists[key]
	for i, v := range l {
		if v == value {
			m.lists[key] = append(l[:i:i], l[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

// Publish implements broker.PubSub. Delivery to each subscriber never blocks
// the publisher.
func (m *Memory) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed {
		return ErrClosed
	}
	p := append([]byte(nil), payload...)
	m.published[channel] = append(m.published[channel], p)
	for s := range m.channels[channel] {
		s.deliver(p)
	}
	return nil
}

// NumSub implements broker.PubSub.
func (m *Memory) NumSub(_ context.Context, channel string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed {
		return 0, ErrClosed
	}
	return int64(len(m.channels[channel])), nil
}

// Subscribe implements broker.PubSub.
func (m *Memory) Subscribe(_ context.Context, channel string) (broker.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed {
		return nil, ErrClosed
	}
	s := &subscription{
		owner:   m,
		channel: channel,
		out:     make(chan []byte),
		signal:  make(chan struct{}, 1),
		quit:    make(chan struct{}),
	}
	if m.channels[channel] == nil {
		m.channels[channel] = make(map[*subscription]struct{})
	}
	m.channels[channel][s] = struct{}{}
	go s.pump()
	return s, nil
}

func (m *Memory) unsubscribe(s *subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels[s.channel], s)
	if len(m.channels[s.channel]) == 0 {
		delete(m.channels, s.channel)
	}
}

// subscription buffers without bound so a slow reader never blocks Publish,
// while still handing payloads out in publish order.
type subscription struct {
	owner   *Memory
	channel string
	out     chan []byte
	signal  chan struct{}
	quit    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	pending [][]byte
}

func (s *subscription) deliver(p []byte) {
	s.mu.Lock()
	s.pending = append(s.pending, p)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscription) next() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, false
	}
	p := s.pending[0]
	s.pending = s.pending[1:]
	return p, true
}

func (s *subscription) pump() {
	defer close(s.out)
	for {
		select {
		case <-s.quit:
			return
		case <-s.signal:
		}
		for {
			p, ok := s.next()
			if !ok {
				break
			}
			select {
			case s.out <- p:
			case <-s.quit:
				return
			}
		}
	}
}

func (s *subscription) Messages() <-chan []byte {
	return s.out
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.owner.unsubscribe(s)
		close(s.quit)
	})
	return nil
}

var _ broker.Broker = (*Memory)(nil)
