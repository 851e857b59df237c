// Package client is a Go client for the Battleships game service. Callers
// register handlers for server events, join a game and answer with attacks
// and reports; the client owns the board rules.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cory-johannsen/battleship/internal/gameserver/battlev1"
)

var (
	// ErrNotJoined is returned when sending before Join.
	ErrNotJoined = errors.New("client: not joined")
	// ErrAlreadyJoined is returned by a second Join.
	ErrAlreadyJoined = errors.New("client: already joined")
	// ErrNoOutcome is returned by Wait when the stream ended without WIN or LOSE.
	ErrNoOutcome = errors.New("client: stream ended without a result")
)

// Client plays one game over one Game stream.
type Client struct {
	api      battlev1.BattleshipsClient
	conn     *grpc.ClientConn
	handlers *Handlers
	logger   *zap.Logger

	mu        sync.Mutex
	stream    battlev1.Battleships_GameClient
	playerID  string
	playerLog *zap.Logger

	done    chan struct{}
	outcome battlev1.TurnState
	err     error
}

// Dial connects to a game server at addr without transport security.
func Dial(addr string, logger *zap.Logger, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	c := New(battlev1.NewBattleshipsClient(conn), logger)
	c.conn = conn
	return c, nil
}

// New wraps an existing service client.
//
// Precondition: api and logger must be non-nil.
func New(api battlev1.BattleshipsClient, logger *zap.Logger) *Client {
	return &Client{
		api:      api,
		handlers: NewHandlers(),
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// On registers a handler. See Handlers.On.
func (c *Client) On(event Event, h Handler) error {
	if err := c.handlers.On(event, h); err != nil {
		return err
	}
	c.logger.Debug("registered handler", zap.String("event", string(event)))
	return nil
}

// Join opens the game stream under a fresh random player id.
func (c *Client) Join(ctx context.Context) error {
	return c.JoinAs(ctx, uuid.New().String())
}

// JoinAs opens the game stream as playerID and starts delivering events to
// the registered handlers. ctx bounds the whole stream.
func (c *Client) JoinAs(ctx context.Context, playerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return ErrAlreadyJoined
	}
	stream, err := c.api.Game(ctx)
	if err != nil {
		return fmt.Errorf("opening game stream: %w", err)
	}
	if err := stream.Send(battlev1.JoinRequest(playerID)); err != nil {
		return fmt.Errorf("sending join: %w", err)
	}
	logger := c.logger.With(zap.String("player_id", playerID))
	c.stream = stream
	c.playerID = playerID
	c.playerLog = logger
	logger.Info("joined")
	go c.receive(ctx, stream, logger)
	return nil
}

// PlayerID returns the id sent with Join.
func (c *Client) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// Attack fires at vector, e.g. "G4". The vector format is agreed between clients.
func (c *Client) Attack(vector string) error {
	if vector == "" {
		return errors.New("client: attack vector must be non-empty")
	}
	return c.send(battlev1.MoveRequest(vector))
}

// Hit reports that the last incoming attack hit a ship.
func (c *Client) Hit() error {
	return c.send(battlev1.ReportRequest(battlev1.StatusHit))
}

// Miss reports that the last incoming attack missed.
func (c *Client) Miss() error {
	return c.send(battlev1.ReportRequest(battlev1.StatusMiss))
}

// Defeat reports that the last incoming attack sank the final ship.
func (c *Client) Defeat() error {
	return c.send(battlev1.ReportRequest(battlev1.StatusDefeat))
}

func (c *Client) send(req *battlev1.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return ErrNotJoined
	}
	c.playerLog.Debug("sending", zap.Any("request", req))
	if err := c.stream.Send(req); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	return nil
}

// Wait blocks until the game is decided or the stream ends and returns
// WIN or LOSE.
func (c *Client) Wait(ctx context.Context) (battlev1.TurnState, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if c.outcome != "" {
		return c.outcome, nil
	}
	if c.err != nil {
		return "", c.err
	}
	return "", ErrNoOutcome
}

// Close ends the stream and releases the connection if Dial created it.
func (c *Client) Close() error {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	var errs []error
	if stream != nil {
		errs = append(errs, stream.CloseSend())
	}
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
	}
	return errors.Join(errs...)
}

var turnEvents = map[battlev1.TurnState]Event{
	battlev1.TurnBegin: EventBegin,
	battlev1.TurnStart: EventStartTurn,
	battlev1.TurnStop:  EventEndTurn,
	battlev1.TurnWin:   EventWin,
	battlev1.TurnLose:  EventLose,
}

var reportEvents = map[battlev1.StatusState]Event{
	battlev1.StatusHit:  EventHit,
	battlev1.StatusMiss: EventMiss,
}

func (c *Client) receive(ctx context.Context, stream battlev1.Battleships_GameClient, logger *zap.Logger) {
	defer close(c.done)
	for {
		resp, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.err = fmt.Errorf("receiving: %w", err)
				logger.Warn("stream ended", zap.Error(err))
			}
			return
		}
		logger.Debug("received", zap.Any("response", resp))
		c.handle(ctx, resp, logger)
	}
}

func (c *Client) handle(ctx context.Context, resp *battlev1.Response, logger *zap.Logger) {
	switch {
	case resp.GetTurn() != "":
		event, ok := turnEvents[resp.GetTurn()]
		if !ok {
			logger.Error("response contains unknown turn state", zap.String("turn", string(resp.GetTurn())))
			return
		}
		if event == EventWin || event == EventLose {
			c.outcome = resp.GetTurn()
		}
		c.handlers.Dispatch(ctx, event, "")
	case resp.GetMove() != nil:
		c.handlers.Dispatch(ctx, EventAttack, resp.GetMove().GetVector())
	case resp.GetReport() != nil:
		event, ok := reportEvents[resp.GetReport().GetState()]
		if !ok {
			logger.Error("report contains unknown state", zap.String("state", string(resp.GetReport().GetState())))
			return
		}
		c.handlers.Dispatch(ctx, event, "")
	default:
		logger.Error("got unknown response type")
	}
}
