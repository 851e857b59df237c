package session

import (
	"fmt"
	"sync"
)

// PlayerSession tracks one connected player on this process.
type PlayerSession struct {
	// PlayerID is the client-chosen identifier sent in the join request.
	PlayerID string
	// Game is set once matchmaking resolved a game id.
	Game *Game
	// Outbox carries events to the player's stream.
	Outbox *Outbox
}

// Manager tracks all players connected to this process.
// All methods are safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	players map[string]*PlayerSession // player id → session
	games   map[string]string         // game id → player id
}

// NewManager creates an empty session Manager.
func NewManager() *Manager {
	return &Manager{
		players: make(map[string]*PlayerSession),
		games:   make(map[string]string),
	}
}

// AddPlayer registers a new player with an outbox of the given size.
//
// Precondition: playerID must be non-empty.
// Postcondition: Returns the created PlayerSession, or an error if the player is already connected.
func (m *Manager) AddPlayer(playerID string, outboxSize int) (*PlayerSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.players[playerID]; exists {
		return nil, fmt.Errorf("player %q already connected", playerID)
	}
	sess := &PlayerSession{
		PlayerID: playerID,
		Outbox:   NewOutbox(playerID, outboxSize),
	}
	m.players[playerID] = sess
	return sess, nil
}

// AttachGame binds the player's session to a game.
//
// Postcondition: GetPlayerByGame(game.ID()) returns the session. Returns an error if the player is unknown.
func (m *Manager) AttachGame(playerID string, game *Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.players[playerID]
	if !ok {
		return fmt.Errorf("player %q not found", playerID)
	}
	sess.Game = game
	m.games[game.ID()] = playerID
	return nil
}

// RemovePlayer removes a player session and closes its outbox.
//
// Postcondition: The player is removed from all tracking. Returns an error if not found.
func (m *Manager) RemovePlayer(playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, exists := m.players[playerID]
	if !exists {
		return fmt.Errorf("player %q not found", playerID)
	}
	if sess.Game != nil {
		delete(m.games, sess.Game.ID())
	}
	sess.Outbox.Close()
	delete(m.players, playerID)
	return nil
}

// GetPlayer returns the session for playerID.
func (m *Manager) GetPlayer(playerID string) (*PlayerSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.players[playerID]
	return sess, ok
}

// GetPlayerByGame returns the local session playing gameID.
func (m *Manager) GetPlayerByGame(gameID string) (*PlayerSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pid, ok := m.games[gameID]
	if !ok {
		return nil, false
	}
	return m.players[pid], true
}

// PlayerCount returns the number of connected players.
func (m *Manager) PlayerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.players)
}

// GameCount returns the number of players bound to a game.
func (m *Manager) GameCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.games)
}
