package matchmaking

import (
	"context"
	"errors"
	"sync"
)

// ErrMatched is returned when advertising a game this session joined rather than created.
var ErrMatched = errors.New("matchmaking: game was matched, not created")

// Ticket is one session's claim on a game id. A ticket advertises its game
// at most once and retracts only a game it advertised.
type Ticket struct {
	mm    *Matchmaker
	id    string
	isNew bool

	mu         sync.Mutex
	advertised bool
	retracted  bool
}

// Open resolves a game id for a new session.
func (m *Matchmaker) Open(ctx context.Context) (*Ticket, error) {
	id, isNew, err := m.FindOrCreateGame(ctx)
	if err != nil {
		return nil, err
	}
	return &Ticket{mm: m, id: id, isNew: isNew}, nil
}

// GameID returns the resolved id.
func (t *Ticket) GameID() string { return t.id }

// IsNew reports whether this session created the game.
func (t *Ticket) IsNew() bool { return t.isNew }

// Advertise publishes a created game on the queue. Repeated calls are no-ops.
func (t *Ticket) Advertise(ctx context.Context) error {
	if !t.isNew {
		return ErrMatched
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.advertised {
		return nil
	}
	if err := t.mm.Advertise(ctx, t.id); err != nil {
		return err
	}
	t.advertised = true
	return nil
}

// Retract withdraws the game if this ticket advertised it. Safe to call more
// than once and on tickets that never advertised.
func (t *Ticket) Retract(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.advertised || t.retracted {
		return nil
	}
	if err := t.mm.Retract(ctx, t.id); err != nil {
		return err
	}
	t.retracted = true
	return nil
}
