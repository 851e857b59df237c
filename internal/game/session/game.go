// Package session holds the per-connection state of a player: the local view
// of whose turn it is, the outbound event queue, and the registry of players
// connected to this process.
package session

import "sync"

// Game is one process's view of a match. The turn flag says whether the local
// player may attack; the peer process keeps the complementary flag, and the two
// are reconciled only through relayed STOP_TURN messages.
type Game struct {
	id string

	mu     sync.Mutex
	myTurn bool
}

// NewGame creates a Game with the turn flag cleared.
//
// Precondition: id must be non-empty.
func NewGame(id string) *Game {
	return &Game{id: id}
}

// ID returns the game identifier, which is also the relay channel name.
func (g *Game) ID() string {
	return g.id
}

// MyTurn reports whether the local player holds the turn.
func (g *Game) MyTurn() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.myTurn
}

// StartTurn gives the turn to the local player.
//
// Postcondition: MyTurn() is true. Returns whether the flag changed.
func (g *Game) StartTurn() bool {
	return g.setTurn(true)
}

// EndTurn takes the turn away from the local player.
//
// Postcondition: MyTurn() is false. Returns whether the flag changed.
func (g *Game) EndTurn() bool {
	return g.setTurn(false)
}

func (g *Game) setTurn(v bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	changed := g.myTurn != v
	g.myTurn = v
	return changed
}
