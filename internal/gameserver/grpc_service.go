package gameserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cory-johannsen/battleship/internal/broker"
	"github.com/cory-johannsen/battleship/internal/config"
	"github.com/cory-johannsen/battleship/internal/game/session"
	"github.com/cory-johannsen/battleship/internal/gameserver/battlev1"
	"github.com/cory-johannsen/battleship/internal/matchmaking"
	"github.com/cory-johannsen/battleship/internal/observability"
	"github.com/cory-johannsen/battleship/internal/relay"
)

// ErrProtocol marks client input that breaks the stream contract.
var ErrProtocol = errors.New("gameserver: protocol violation")

// Session outcomes passed to ResultRecorder.
const (
	OutcomeWon       = "won"
	OutcomeLost      = "lost"
	OutcomeAbandoned = "abandoned"
)

// ResultRecorder persists the outcome of a finished session.
//
// Precondition: gameID and playerID must be non-empty; outcome is one of the Outcome constants.
// Postcondition: Returns nil on success or a non-nil error on failure.
type ResultRecorder interface {
	RecordResult(ctx context.Context, gameID, playerID, outcome string, startedAt, endedAt time.Time) error
}

// GameServiceServer implements the Battleships gRPC service. Each Game stream
// is one player; the opponent is reached only through the broker.
type GameServiceServer struct {
	battlev1.UnimplementedBattleshipsServer
	broker     broker.PubSub
	sessions   *session.Manager
	matchmaker *matchmaking.Matchmaker
	rendezvous *matchmaking.Rendezvous
	cfg        config.SessionConfig
	results    ResultRecorder
	logger     *zap.Logger
}

// NewGameServiceServer creates a GameServiceServer with the given dependencies.
//
// Precondition: pubsub, sessions, matchmaker, rendezvous and logger must be non-nil.
// results may be nil (outcomes are not persisted).
// Postcondition: Returns a fully initialised GameServiceServer.
func NewGameServiceServer(
	pubsub broker.PubSub,
	sessions *session.Manager,
	matchmaker *matchmaking.Matchmaker,
	rendezvous *matchmaking.Rendezvous,
	cfg config.SessionConfig,
	logger *zap.Logger,
	results ResultRecorder,
) *GameServiceServer {
	return &GameServiceServer{
		broker:     pubsub,
		sessions:   sessions,
		matchmaker: matchmaker,
		rendezvous: rendezvous,
		cfg:        cfg,
		results:    results,
		logger:     logger,
	}
}

// Game implements the bidirectional streaming RPC.
// Flow:
//  1. Wait for the join request
//  2. Register the player and resolve a game through the open-game queue
//  3. Subscribe to the game channel
//  4. Creator advertises the game; joiner waits for both subscribers and publishes BEGIN
//  5. Relay client input and channel messages into the outbox, drain it to the stream
//  6. On game end or disconnect: unsubscribe, retract, record the outcome
func (s *GameServiceServer) Game(stream battlev1.Battleships_GameServer) error {
	// Step 1: Wait for the join request
	first, err := stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return status.Errorf(codes.InvalidArgument, "%v: stream closed before join", ErrProtocol)
		}
		return fmt.Errorf("receiving join request: %w", err)
	}
	playerID := first.GetJoin().GetID()
	if playerID == "" {
		return status.Errorf(codes.InvalidArgument, "%v: first message must be a join with a player id", ErrProtocol)
	}
	startedAt := time.Now()

	// Step 2: Register the player and find a game
	sess, err := s.sessions.AddPlayer(playerID, s.cfg.OutboxSize)
	if err != nil {
		return status.Error(codes.AlreadyExists, err.Error())
	}
	defer s.removePlayer(playerID)

	ctx := stream.Context()
	ticket, err := s.matchmaker.Open(ctx)
	if err != nil {
		return status.Errorf(codes.Unavailable, "finding game: %v", err)
	}
	defer s.retract(ticket)

	game := session.NewGame(ticket.GameID())
	if err := s.sessions.AttachGame(playerID, game); err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	logger := observability.SessionLogger(s.logger, game.ID(), playerID)
	logger.Info("player joined",
		zap.Bool("created", ticket.IsNew()),
		zap.Int("players", s.sessions.PlayerCount()),
	)

	// Step 3: Subscribe before anyone can publish to the game
	sub, err := s.broker.Subscribe(ctx, game.ID())
	if err != nil {
		return status.Errorf(codes.Unavailable, "subscribing to game %s: %v", game.ID(), err)
	}
	defer func() {
		if err := sub.Close(); err != nil {
			logger.Warn("closing subscription", zap.Error(err))
		}
	}()

	b := newBridge(stream, sub, sess.Outbox, s.cfg, logger)
	proto := relay.NewProtocol(game, playerID, s.broker, sess.Outbox, logger, func() { b.stop("game decided") })
	b.proto = proto
	proto.Subscribed()
	defer s.recordResult(game.ID(), playerID, proto, startedAt, logger)

	// Step 4: Advertise or rendezvous
	if ticket.IsNew() {
		if err := ticket.Advertise(ctx); err != nil {
			return status.Errorf(codes.Unavailable, "advertising game: %v", err)
		}
		logger.Info("waiting for opponent")
	} else {
		ok, err := s.rendezvous.EnsureSubscribers(ctx, game.ID(), 2)
		if err != nil {
			return status.Errorf(codes.Unavailable, "waiting for opponent: %v", err)
		}
		if !ok {
			logger.Warn("opponent not listening", zap.Error(matchmaking.ErrRendezvousTimeout))
			return status.Errorf(codes.Unavailable, "%v: game %s", matchmaking.ErrRendezvousTimeout, game.ID())
		}
		if err := proto.Begin(ctx); err != nil {
			return status.Errorf(codes.Unavailable, "starting game: %v", err)
		}
	}

	// Step 5: Run until the game ends or the client leaves
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.listen(runCtx)
	}()
	// Recv cannot be interrupted; the reader exits once the handler returns.
	go b.readClient(runCtx)

	err = b.drain(runCtx)

	// Step 6: Cleanup happens via defer
	b.stop("session ended")
	cancel()
	wg.Wait()

	logger.Info("session finished",
		zap.String("reason", b.reason()),
		zap.Stringer("state", proto.State()),
	)
	return err
}

func (s *GameServiceServer) removePlayer(playerID string) {
	if err := s.sessions.RemovePlayer(playerID); err != nil {
		s.logger.Warn("removing player on cleanup", zap.String("player_id", playerID), zap.Error(err))
	}
}

func (s *GameServiceServer) retract(ticket *matchmaking.Ticket) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ticket.Retract(ctx); err != nil {
		s.logger.Warn("retracting game on cleanup", zap.String("game_id", ticket.GameID()), zap.Error(err))
	}
}

// recordResult persists the outcome of a session that got past BEGIN.
func (s *GameServiceServer) recordResult(gameID, playerID string, proto *relay.Protocol, startedAt time.Time, logger *zap.Logger) {
	if s.results == nil {
		return
	}
	var outcome string
	switch proto.State() {
	case relay.StateWon:
		outcome = OutcomeWon
	case relay.StateLost:
		outcome = OutcomeLost
	case relay.StateActive:
		outcome = OutcomeAbandoned
	default:
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.results.RecordResult(ctx, gameID, playerID, outcome, startedAt, time.Now()); err != nil {
		logger.Warn("recording game result", zap.String("outcome", outcome), zap.Error(err))
		return
	}
	logger.Info("game result recorded", zap.String("outcome", outcome))
}
