// Package matchmaking pairs players through a shared open-game queue and
// waits for both of them to be listening on the game channel.
package matchmaking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/battleship/internal/broker"
)

// Matchmaker hands out game ids from the open-game queue.
// It holds no per-game state and is safe for concurrent use.
type Matchmaker struct {
	queue  broker.Queue
	key    string
	logger *zap.Logger
}

// NewMatchmaker creates a Matchmaker over queue key.
//
// Precondition: queue and logger must be non-nil; key must be non-empty.
func NewMatchmaker(queue broker.Queue, key string, logger *zap.Logger) *Matchmaker {
	return &Matchmaker{queue: queue, key: key, logger: logger}
}

// FindOrCreateGame takes the oldest open game if there is one, or mints a
// new id otherwise. It never advertises.
//
// Postcondition: isNew is false iff id was removed from the queue.
func (m *Matchmaker) FindOrCreateGame(ctx context.Context) (id string, isNew bool, err error) {
	id, ok, err := m.queue.PopTail(ctx, m.key)
	if err != nil {
		return "", false, fmt.Errorf("popping open game: %w", err)
	}
	if ok {
		m.logger.Info("matched open game", zap.String("game_id", id))
		return id, false, nil
	}
	id = uuid.New().String()
	m.logger.Info("created game", zap.String("game_id", id))
	return id, true, nil
}

// Advertise puts id on the open-game queue.
func (m *Matchmaker) Advertise(ctx context.Context, id string) error {
	if err := m.queue.PushHead(ctx, m.key, id); err != nil {
		return fmt.Errorf("advertising game %s: %w", id, err)
	}
	return nil
}

// Retract removes one occurrence of id from the open-game queue. Retracting
// an id that was already matched is not an error.
func (m *Matchmaker) Retract(ctx context.Context, id string) error {
	n, err := m.queue.RemoveOne(ctx, m.key, id)
	if err != nil {
		return fmt.Errorf("retracting game %s: %w", id, err)
	}
	m.logger.Debug("retracted game", zap.String("game_id", id), zap.Int64("removed", n))
	return nil
}
