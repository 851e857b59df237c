package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/battleship/internal/game/session"
	"github.com/cory-johannsen/battleship/internal/gameserver/battlev1"
)

var (
	// ErrOutOfTurn is returned when the local client attacks without the turn
	// or reports while holding it.
	ErrOutOfTurn = errors.New("relay: action out of turn")
	// ErrNotStarted is returned for client actions before the game began or after it ended.
	ErrNotStarted = errors.New("relay: game not in progress")
)

// UnknownKindError is returned when a handler is registered for a kind outside Kinds.
type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("relay: unknown message kind %q", e.Kind)
}

// Publisher sends a payload on a channel. broker.PubSub satisfies it.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Emitter delivers an event to the local client. session.Outbox satisfies it.
type Emitter interface {
	Emit(ctx context.Context, resp *battlev1.Response) error
}

// State is the locally observed phase of a game.
type State int

const (
	StateJoining State = iota
	StateAwaitingOpponent
	StateActive
	StateWon
	StateLost
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateAwaitingOpponent:
		return "awaiting_opponent"
	case StateActive:
		return "active"
	case StateWon:
		return "won"
	case StateLost:
		return "lost"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further messages are processed in s.
func (s State) Terminal() bool {
	return s == StateWon || s == StateLost
}

type handlerFunc func(ctx context.Context, msg Message) error

// Protocol interprets relay messages for one local player and turns local
// client actions into relay messages. Handle must be called from a single
// goroutine in channel order; Attack and Report may be called concurrently
// with it.
type Protocol struct {
	game        *session.Game
	player      string
	pub         Publisher
	out         Emitter
	logger      *zap.Logger
	handlers    map[Kind]handlerFunc
	onTerminate func()

	mu    sync.Mutex
	state State
	owes  bool
	ended sync.Once
}

// NewProtocol creates the state machine for player in game.
//
// Precondition: game, pub, out and logger must be non-nil; player must be non-empty.
// onTerminate may be nil; otherwise it is called once when the game is decided.
func NewProtocol(game *session.Game, player string, pub Publisher, out Emitter, logger *zap.Logger, onTerminate func()) *Protocol {
	p := &Protocol{
		game:        game,
		player:      player,
		pub:         pub,
		out:         out,
		logger:      logger,
		handlers:    make(map[Kind]handlerFunc, len(Kinds)),
		onTerminate: onTerminate,
	}
	for kind, h := range map[Kind]handlerFunc{
		KindBegin:    p.handleBegin,
		KindStopTurn: p.handleStopTurn,
		KindAttack:   p.handleAttack,
		KindStatus:   p.handleStatus,
		KindLost:     p.handleLost,
	} {
		if err := p.register(kind, h); err != nil {
			panic(fmt.Sprintf("building relay handlers: %v", err))
		}
	}
	return p
}

func (p *Protocol) register(kind Kind, h handlerFunc) error {
	if !kind.Valid() {
		return &UnknownKindError{Kind: kind}
	}
	p.handlers[kind] = h
	return nil
}

// State returns the current phase.
func (p *Protocol) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// AwaitingLocal reports whether the local client owes the next action: an
// attack after its turn started, or a report after an incoming attack.
func (p *Protocol) AwaitingLocal() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.owes && p.state == StateActive
}

func (p *Protocol) setOwes(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.owes = v
}

func (p *Protocol) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// Subscribed records that the relay channel is live and an opponent is awaited.
func (p *Protocol) Subscribed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateJoining {
		p.state = StateAwaitingOpponent
	}
}

// Begin announces on the channel that both players are subscribed.
// Only the second player to join calls it.
func (p *Protocol) Begin(ctx context.Context) error {
	return p.publish(ctx, KindBegin, "")
}

// Handle interprets one payload received on the game channel.
//
// Postcondition: undecodable payloads are logged and dropped with an error
// wrapping ErrDecode; the turn flag is untouched. After the game is decided
// every payload is ignored.
func (p *Protocol) Handle(ctx context.Context, payload []byte) error {
	if p.State().Terminal() {
		return nil
	}
	msg, err := Decode(payload)
	if err != nil {
		p.logger.Error("dropping relay message", zap.Error(err))
		return err
	}
	return p.handlers[msg.Kind](ctx, msg)
}

// Attack relays the local player's shot at vector.
//
// Postcondition: published only if the game is active and the local player
// holds the turn; otherwise returns ErrOutOfTurn or ErrNotStarted and nothing is sent.
func (p *Protocol) Attack(ctx context.Context, vector string) error {
	if p.State() != StateActive {
		p.logger.Warn("attack before game start", zap.String("vector", vector))
		return ErrNotStarted
	}
	if !p.game.MyTurn() {
		p.logger.Warn("attack received but not my turn", zap.String("vector", vector))
		return ErrOutOfTurn
	}
	p.logger.Info("relaying attack", zap.String("vector", vector))
	p.setOwes(false)
	if err := p.publish(ctx, KindAttack, vector); err != nil {
		p.setOwes(true)
		return err
	}
	return nil
}

// Report relays the local player's answer to an incoming attack. DEFEAT is
// relayed as a lost message, anything else as a status message.
//
// Postcondition: published only if the game is active and the local player
// does not hold the turn; otherwise returns ErrOutOfTurn or ErrNotStarted.
func (p *Protocol) Report(ctx context.Context, state battlev1.StatusState) error {
	if p.State() != StateActive {
		p.logger.Warn("report before game start", zap.String("state", string(state)))
		return ErrNotStarted
	}
	if p.game.MyTurn() {
		p.logger.Warn("report received but my turn", zap.String("state", string(state)))
		return ErrOutOfTurn
	}
	kind, data := KindLost, ""
	if state == battlev1.StatusDefeat {
		p.logger.Info("relaying defeat")
	} else {
		code, err := StatusCode(state)
		if err != nil {
			return err
		}
		p.logger.Info("relaying status", zap.String("state", string(state)))
		kind, data = KindStatus, code
	}
	p.setOwes(false)
	if err := p.publish(ctx, kind, data); err != nil {
		p.setOwes(true)
		return err
	}
	return nil
}

func (p *Protocol) publish(ctx context.Context, kind Kind, data string) error {
	payload, err := Message{Kind: kind, Player: p.player, Data: data}.Encode()
	if err != nil {
		return err
	}
	if err := p.pub.Publish(ctx, p.game.ID(), payload); err != nil {
		return fmt.Errorf("publishing %s: %w", kind, err)
	}
	return nil
}

func (p *Protocol) emit(ctx context.Context, resp *battlev1.Response) error {
	if err := p.out.Emit(ctx, resp); err != nil {
		return fmt.Errorf("emitting event: %w", err)
	}
	return nil
}

func (p *Protocol) own(msg Message) bool {
	return msg.Player == p.player
}

func (p *Protocol) handleBegin(ctx context.Context, msg Message) error {
	p.logger.Info("game begins", zap.String("from", msg.Player))
	p.setState(StateActive)
	if err := p.emit(ctx, battlev1.TurnResponse(battlev1.TurnBegin)); err != nil {
		return err
	}
	if p.own(msg) {
		// The player who joined second yields the opening move.
		return p.publish(ctx, KindStopTurn, "")
	}
	return nil
}

func (p *Protocol) handleStopTurn(ctx context.Context, msg Message) error {
	if p.own(msg) {
		p.game.EndTurn()
		p.logger.Info("turn ended")
		return p.emit(ctx, battlev1.TurnResponse(battlev1.TurnStop))
	}
	p.game.StartTurn()
	p.setOwes(true)
	p.logger.Info("turn started", zap.String("after", msg.Player))
	return p.emit(ctx, battlev1.TurnResponse(battlev1.TurnStart))
}

func (p *Protocol) handleAttack(ctx context.Context, msg Message) error {
	if p.own(msg) {
		return nil
	}
	p.setOwes(true)
	p.logger.Info("incoming attack", zap.String("vector", msg.Data))
	return p.emit(ctx, battlev1.MoveResponse(msg.Data))
}

func (p *Protocol) handleStatus(ctx context.Context, msg Message) error {
	if p.own(msg) {
		return nil
	}
	state, err := ParseStatusCode(msg.Data)
	if err == nil && state == battlev1.StatusDefeat {
		err = fmt.Errorf("%w: defeat must be relayed as %s", ErrDecode, KindLost)
	}
	if err != nil {
		p.logger.Error("dropping status message", zap.String("from", msg.Player), zap.Error(err))
		return err
	}
	p.logger.Info("attack result", zap.String("state", string(state)))
	if err := p.emit(ctx, battlev1.ReportResponse(state)); err != nil {
		return err
	}
	// The defender reporting ends the attacker's turn, which starts the defender's.
	return p.publish(ctx, KindStopTurn, "")
}

func (p *Protocol) handleLost(ctx context.Context, msg Message) error {
	turn, state := battlev1.TurnWin, StateWon
	if p.own(msg) {
		turn, state = battlev1.TurnLose, StateLost
	}
	p.logger.Info("game decided", zap.String("loser", msg.Player), zap.Stringer("outcome", state))
	p.setState(state)
	err := p.emit(ctx, battlev1.TurnResponse(turn))
	p.ended.Do(func() {
		if p.onTerminate != nil {
			p.onTerminate()
		}
	})
	return err
}
