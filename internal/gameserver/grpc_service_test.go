package gameserver_test

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/cory-johannsen/battleship/internal/broker/brokertest"
	"github.com/cory-johannsen/battleship/internal/config"
	"github.com/cory-johannsen/battleship/internal/game/session"
	"github.com/cory-johannsen/battleship/internal/gameserver"
	"github.com/cory-johannsen/battleship/internal/gameserver/battlev1"
	"github.com/cory-johannsen/battleship/internal/matchmaking"
)

const queueKey = "openGames"

type result struct {
	gameID, playerID, outcome string
}

type fakeRecorder struct {
	mu      sync.Mutex
	results []result
}

func (f *fakeRecorder) RecordResult(_ context.Context, gameID, playerID, outcome string, startedAt, endedAt time.Time) error {
	if endedAt.Before(startedAt) {
		return errors.New("ended before started")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result{gameID, playerID, outcome})
	return nil
}

func (f *fakeRecorder) outcomes() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.results))
	for _, r := range f.results {
		out[r.playerID] = r.outcome
	}
	return out
}

type serverOpts struct {
	session            config.SessionConfig
	rendezvousAttempts int
	results            gameserver.ResultRecorder
	logger             *zap.Logger
}

func defaultOpts() serverOpts {
	return serverOpts{
		session: config.SessionConfig{
			OutboxSize:   16,
			PollInterval: 20 * time.Millisecond,
		},
		rendezvousAttempts: 50,
		logger:             zap.NewNop(),
	}
}

// startServer runs one game server process on a loopback port over the shared broker.
func startServer(t *testing.T, mem *brokertest.Memory, opts serverOpts) battlev1.BattleshipsClient {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	mm := matchmaking.NewMatchmaker(mem, queueKey, opts.logger)
	rv := matchmaking.NewRendezvous(mem, opts.rendezvousAttempts, 10*time.Millisecond, opts.logger)
	svc := gameserver.NewGameServiceServer(mem, session.NewManager(), mm, rv, opts.session, opts.logger, opts.results)

	s := grpc.NewServer()
	battlev1.RegisterBattleshipsServer(s, svc)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return battlev1.NewBattleshipsClient(conn)
}

func join(t *testing.T, client battlev1.BattleshipsClient, playerID string) battlev1.Battleships_GameClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	stream, err := client.Game(ctx)
	require.NoError(t, err)
	require.NoError(t, stream.Send(battlev1.JoinRequest(playerID)))
	return stream
}

func recv(t *testing.T, stream battlev1.Battleships_GameClient) *battlev1.Response {
	t.Helper()
	resp, err := stream.Recv()
	require.NoError(t, err)
	return resp
}

func expectTurn(t *testing.T, stream battlev1.Battleships_GameClient, want battlev1.TurnState) {
	t.Helper()
	assert.Equal(t, want, recv(t, stream).GetTurn())
}

func waitAdvertised(t *testing.T, mem *brokertest.Memory) {
	t.Helper()
	require.Eventually(t, func() bool { return len(mem.List(queueKey)) == 1 },
		5*time.Second, 5*time.Millisecond, "creator never advertised")
}

// startGame connects alice to the first server and bob to the second and
// consumes the opening events.
func startGame(t *testing.T, mem *brokertest.Memory, a, b battlev1.BattleshipsClient) (alice, bob battlev1.Battleships_GameClient) {
	t.Helper()
	alice = join(t, a, "alice")
	waitAdvertised(t, mem)
	bob = join(t, b, "bob")

	expectTurn(t, alice, battlev1.TurnBegin)
	expectTurn(t, alice, battlev1.TurnStart)
	expectTurn(t, bob, battlev1.TurnBegin)
	expectTurn(t, bob, battlev1.TurnStop)
	return alice, bob
}

func TestGame_CreatorGetsOpeningTurn(t *testing.T) {
	mem := brokertest.NewMemory()
	a := startServer(t, mem, defaultOpts())
	b := startServer(t, mem, defaultOpts())

	startGame(t, mem, a, b)
	assert.Empty(t, mem.List(queueKey), "matched game left the queue")
}

func TestGame_AttackAndReport(t *testing.T) {
	mem := brokertest.NewMemory()
	a := startServer(t, mem, defaultOpts())
	b := startServer(t, mem, defaultOpts())
	alice, bob := startGame(t, mem, a, b)

	require.NoError(t, alice.Send(battlev1.MoveRequest("B2")))
	assert.Equal(t, "B2", recv(t, bob).GetMove().GetVector())

	require.NoError(t, bob.Send(battlev1.ReportRequest(battlev1.StatusHit)))
	assert.Equal(t, battlev1.StatusHit, recv(t, alice).GetReport().GetState())
	expectTurn(t, alice, battlev1.TurnStop)
	expectTurn(t, bob, battlev1.TurnStart)

	require.NoError(t, bob.Send(battlev1.MoveRequest("J9")))
	assert.Equal(t, "J9", recv(t, alice).GetMove().GetVector())
	require.NoError(t, alice.Send(battlev1.ReportRequest(battlev1.StatusMiss)))
	assert.Equal(t, battlev1.StatusMiss, recv(t, bob).GetReport().GetState())
	expectTurn(t, bob, battlev1.TurnStop)
	expectTurn(t, alice, battlev1.TurnStart)
}

func TestGame_DefeatEndsBothStreams(t *testing.T) {
	mem := brokertest.NewMemory()
	rec := &fakeRecorder{}
	opts := defaultOpts()
	opts.results = rec
	a := startServer(t, mem, opts)
	b := startServer(t, mem, opts)
	alice, bob := startGame(t, mem, a, b)

	require.NoError(t, alice.Send(battlev1.MoveRequest("E5")))
	assert.Equal(t, "E5", recv(t, bob).GetMove().GetVector())
	require.NoError(t, bob.Send(battlev1.ReportRequest(battlev1.StatusDefeat)))

	expectTurn(t, alice, battlev1.TurnWin)
	expectTurn(t, bob, battlev1.TurnLose)

	_, err := alice.Recv()
	assert.ErrorIs(t, err, io.EOF)
	_, err = bob.Recv()
	assert.ErrorIs(t, err, io.EOF)

	require.Eventually(t, func() bool { return len(rec.outcomes()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, map[string]string{
		"alice": gameserver.OutcomeWon,
		"bob":   gameserver.OutcomeLost,
	}, rec.outcomes())
}

func TestGame_OutOfTurnAttackIsDropped(t *testing.T) {
	mem := brokertest.NewMemory()
	core, logs := observer.New(zapcore.WarnLevel)
	opts := defaultOpts()
	opts.logger = zap.New(core)
	a := startServer(t, mem, defaultOpts())
	b := startServer(t, mem, opts)
	alice, bob := startGame(t, mem, a, b)

	require.NoError(t, bob.Send(battlev1.MoveRequest("A1")))
	require.Eventually(t, func() bool {
		return logs.FilterMessage("dropping client request").Len() == 1
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, alice.Send(battlev1.MoveRequest("C3")))
	assert.Equal(t, "C3", recv(t, bob).GetMove().GetVector(), "bob sees alice's attack, nothing of his own")
}

func TestGame_FirstMessageMustBeJoin(t *testing.T) {
	mem := brokertest.NewMemory()
	a := startServer(t, mem, defaultOpts())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := a.Game(ctx)
	require.NoError(t, err)
	require.NoError(t, stream.Send(battlev1.MoveRequest("A1")))

	_, err = stream.Recv()
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Empty(t, mem.List(queueKey))
}

func TestGame_EmptyPlayerIDRejected(t *testing.T) {
	mem := brokertest.NewMemory()
	a := startServer(t, mem, defaultOpts())

	stream := join(t, a, "")
	_, err := stream.Recv()
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGame_DuplicatePlayerRejected(t *testing.T) {
	mem := brokertest.NewMemory()
	a := startServer(t, mem, defaultOpts())

	join(t, a, "alice")
	waitAdvertised(t, mem)

	dup := join(t, a, "alice")
	_, err := dup.Recv()
	assert.Equal(t, codes.AlreadyExists, status.Code(err))
	assert.Len(t, mem.List(queueKey), 1, "duplicate never reached matchmaking")
}

func TestGame_RendezvousFailureAborts(t *testing.T) {
	mem := brokertest.NewMemory()
	require.NoError(t, mem.PushHead(context.Background(), queueKey, "ghost-game"))
	opts := defaultOpts()
	opts.rendezvousAttempts = 3
	b := startServer(t, mem, opts)

	bob := join(t, b, "bob")
	_, err := bob.Recv()
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Contains(t, err.Error(), matchmaking.ErrRendezvousTimeout.Error())
	assert.Empty(t, mem.Published("ghost-game"), "no BEGIN without an opponent")
}

func TestGame_CreatorDisconnectRetractsGame(t *testing.T) {
	mem := brokertest.NewMemory()
	a := startServer(t, mem, defaultOpts())

	alice := join(t, a, "alice")
	waitAdvertised(t, mem)
	require.NoError(t, alice.CloseSend())

	require.Eventually(t, func() bool { return len(mem.List(queueKey)) == 0 },
		5*time.Second, 5*time.Millisecond, "abandoned game still advertised")
}

func TestGame_IdleTimeoutAbandons(t *testing.T) {
	mem := brokertest.NewMemory()
	rec := &fakeRecorder{}
	opts := defaultOpts()
	opts.session.IdleTimeout = 150 * time.Millisecond
	opts.results = rec
	a := startServer(t, mem, opts)
	b := startServer(t, mem, opts)
	alice, bob := startGame(t, mem, a, b)

	// bob waits on alice, who holds the turn and never moves
	_, err := bob.Recv()
	assert.ErrorIs(t, err, io.EOF)
	require.Eventually(t, func() bool { return rec.outcomes()["bob"] == gameserver.OutcomeAbandoned },
		5*time.Second, 10*time.Millisecond)

	// alice owes the next move, so her own silence never ends her session
	require.Never(t, func() bool { _, ok := rec.outcomes()["alice"]; return ok },
		400*time.Millisecond, 20*time.Millisecond)

	// once she attacks she waits on bob, who is gone
	require.NoError(t, alice.Send(battlev1.MoveRequest("A1")))
	_, err = alice.Recv()
	assert.ErrorIs(t, err, io.EOF)

	require.Eventually(t, func() bool { return len(rec.outcomes()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, map[string]string{
		"alice": gameserver.OutcomeAbandoned,
		"bob":   gameserver.OutcomeAbandoned,
	}, rec.outcomes())
}

func TestGame_DefenderThinkingIsNotIdle(t *testing.T) {
	mem := brokertest.NewMemory()
	rec := &fakeRecorder{}
	opts := defaultOpts()
	opts.session.IdleTimeout = 150 * time.Millisecond
	opts.results = rec
	a := startServer(t, mem, opts)
	b := startServer(t, mem, opts)
	alice, bob := startGame(t, mem, a, b)

	require.NoError(t, alice.Send(battlev1.MoveRequest("C3")))
	assert.Equal(t, "C3", recv(t, bob).GetMove().GetVector())

	// alice's server gives up on bob, bob's server keeps waiting for his report
	_, err := alice.Recv()
	assert.ErrorIs(t, err, io.EOF)
	require.Never(t, func() bool { _, ok := rec.outcomes()["bob"]; return ok },
		400*time.Millisecond, 20*time.Millisecond)

	require.NoError(t, bob.Send(battlev1.ReportRequest(battlev1.StatusMiss)))
	_, err = bob.Recv()
	assert.ErrorIs(t, err, io.EOF)
	require.Eventually(t, func() bool { return rec.outcomes()["bob"] == gameserver.OutcomeAbandoned },
		5*time.Second, 10*time.Millisecond)
}

func TestGame_BrokerFailureIsUnavailable(t *testing.T) {
	mem := brokertest.NewMemory()
	mem.Fail()
	a := startServer(t, mem, defaultOpts())

	alice := join(t, a, "alice")
	_, err := alice.Recv()
	assert.Equal(t, codes.Unavailable, status.Code(err))
}
