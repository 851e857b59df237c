package gameserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cory-johannsen/battleship/internal/broker"
	"github.com/cory-johannsen/battleship/internal/config"
	"github.com/cory-johannsen/battleship/internal/game/session"
	"github.com/cory-johannsen/battleship/internal/gameserver/battlev1"
	"github.com/cory-johannsen/battleship/internal/relay"
)

// bridge couples one client stream with one game channel. The reader, the
// listener and the drain loop all stop on done.
type bridge struct {
	stream battlev1.Battleships_GameServer
	sub    broker.Subscription
	out    *session.Outbox
	proto  *relay.Protocol
	cfg    config.SessionConfig
	logger *zap.Logger

	done     chan struct{}
	once     sync.Once
	why      atomic.Value
	lastSeen atomic.Int64
}

func newBridge(stream battlev1.Battleships_GameServer, sub broker.Subscription, out *session.Outbox, cfg config.SessionConfig, logger *zap.Logger) *bridge {
	b := &bridge{
		stream: stream,
		sub:    sub,
		out:    out,
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
	b.touch()
	return b
}

// stop signals every loop to finish. The first reason wins.
func (b *bridge) stop(reason string) {
	b.once.Do(func() {
		b.why.Store(reason)
		close(b.done)
	})
}

func (b *bridge) reason() string {
	if r, ok := b.why.Load().(string); ok {
		return r
	}
	return ""
}

func (b *bridge) stopped() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

func (b *bridge) touch() {
	b.lastSeen.Store(time.Now().UnixNano())
}

func (b *bridge) idleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, b.lastSeen.Load()))
}

// readClient turns client requests into relay actions until the stream ends.
func (b *bridge) readClient(ctx context.Context) {
	for {
		req, err := b.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || status.Code(err) == codes.Canceled {
				b.logger.Info("client closed stream")
			} else if !b.stopped() {
				b.logger.Warn("receiving from client", zap.Error(err))
			}
			b.stop("client disconnected")
			return
		}
		if b.stopped() {
			return
		}
		if err := b.dispatch(ctx, req); err != nil {
			if errors.Is(err, ErrProtocol) {
				b.logger.Warn("dropping client request", zap.Error(err))
			} else {
				b.logger.Error("relaying client request", zap.Error(err))
			}
			continue
		}
		b.touch()
	}
}

func (b *bridge) dispatch(ctx context.Context, req *battlev1.Request) error {
	var err error
	switch {
	case req.GetMove() != nil:
		err = b.proto.Attack(ctx, req.GetMove().GetVector())
	case req.GetReport() != nil:
		state := req.GetReport().GetState()
		if !state.Valid() {
			return fmt.Errorf("%w: unknown report state %q", ErrProtocol, state)
		}
		err = b.proto.Report(ctx, state)
	case req.GetJoin() != nil:
		return fmt.Errorf("%w: join after session start", ErrProtocol)
	default:
		return fmt.Errorf("%w: empty request", ErrProtocol)
	}
	if errors.Is(err, relay.ErrOutOfTurn) || errors.Is(err, relay.ErrNotStarted) {
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return err
}

// listen feeds game channel messages to the protocol in arrival order.
func (b *bridge) listen(ctx context.Context) {
	for {
		select {
		case <-b.done:
			return
		case <-ctx.Done():
			return
		case payload, ok := <-b.sub.Messages():
			if !ok {
				b.logger.Warn("game channel closed")
				b.stop("subscription closed")
				return
			}
			b.touch()
			if err := b.proto.Handle(ctx, payload); err != nil && !errors.Is(err, relay.ErrDecode) {
				b.logger.Error("handling relay message", zap.Error(err))
			}
		}
	}
}

// drain writes outbox events to the stream until the session stops, then
// flushes whatever is still queued so the final result reaches the client.
func (b *bridge) drain(ctx context.Context) error {
	poll := b.cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case resp := <-b.out.Events():
			if err := b.stream.Send(resp); err != nil {
				return fmt.Errorf("sending event: %w", err)
			}
		case <-b.done:
			return b.flush()
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if b.idleExpired(now) {
				b.logger.Warn("opponent idle, abandoning game",
					zap.Duration("idle", b.idleFor(now)),
				)
				b.stop("opponent idle")
				return b.flush()
			}
		}
	}
}

// idleExpired reports whether the opponent has been silent for the idle
// timeout. The clock restarts whenever the local client owes the next move.
func (b *bridge) idleExpired(now time.Time) bool {
	if b.cfg.IdleTimeout <= 0 || b.proto.State() != relay.StateActive {
		return false
	}
	if b.proto.AwaitingLocal() {
		b.touch()
		return false
	}
	return b.idleFor(now) >= b.cfg.IdleTimeout
}

func (b *bridge) flush() error {
	for _, resp := range b.out.Pending() {
		if err := b.stream.Send(resp); err != nil {
			return fmt.Errorf("flushing event: %w", err)
		}
	}
	return nil
}
