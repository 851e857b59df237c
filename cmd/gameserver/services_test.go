package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cory-johannsen/battleship/internal/broker/brokertest"
	"github.com/cory-johannsen/battleship/internal/config"
	"github.com/cory-johannsen/battleship/internal/game/session"
	"github.com/cory-johannsen/battleship/internal/gameserver"
	"github.com/cory-johannsen/battleship/internal/gameserver/battlev1"
	"github.com/cory-johannsen/battleship/internal/matchmaking"
	"github.com/cory-johannsen/battleship/internal/server"
)

const queueKey = "openGames"

// memStore closes the in-memory broker the way the Redis client is closed.
type memStore struct {
	*brokertest.Memory
}

func (m memStore) Health(context.Context) error { return nil }

func (m memStore) Close() error {
	m.Fail()
	return nil
}

func TestShutdownRetractsWaitingCreator(t *testing.T) {
	logger := zaptest.NewLogger(t)
	mem := brokertest.NewMemory()
	sessions := session.NewManager()

	svc := gameserver.NewGameServiceServer(
		mem,
		sessions,
		matchmaking.NewMatchmaker(mem, queueKey, logger),
		matchmaking.NewRendezvous(mem, 50, 10*time.Millisecond, logger),
		config.SessionConfig{OutboxSize: 16, PollInterval: 20 * time.Millisecond},
		logger,
		nil,
	)
	grpcServer := grpc.NewServer()
	battlev1.RegisterBattleshipsServer(grpcServer, svc)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	lc := server.NewLifecycle(logger)
	wireLifecycle(lc,
		component{name: "grpc", svc: grpcService(grpcServer, func() (net.Listener, error) { return lis, nil }, logger)},
		component{name: "redis", svc: redisService(memStore{mem}, sessions, time.Hour, logger)},
	)

	runCtx, stopServer := context.WithCancel(context.Background())
	defer stopServer()
	done := make(chan error, 1)
	go func() { done <- lc.Run(runCtx) }()

	conn, err := grpc.NewClient(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	streamCtx, leave := context.WithCancel(context.Background())
	defer leave()
	stream, err := battlev1.NewBattleshipsClient(conn).Game(streamCtx)
	require.NoError(t, err)
	require.NoError(t, stream.Send(battlev1.JoinRequest("alice")))
	require.Eventually(t, func() bool { return len(mem.List(queueKey)) == 1 },
		5*time.Second, 5*time.Millisecond, "creator never advertised")

	stopServer()
	time.Sleep(200 * time.Millisecond)
	leave()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("lifecycle did not shut down")
	}

	assert.Empty(t, mem.List(queueKey), "advertised game left in the queue after shutdown")
	assert.Error(t, mem.PushHead(context.Background(), queueKey, "after"), "broker still open after shutdown")
}

func TestWireLifecycleStopsAPIFirst(t *testing.T) {
	var stopped []string
	svc := func(name string) component {
		quit := make(chan struct{})
		return component{name: name, svc: &server.FuncService{
			StartFn: func() error { <-quit; return nil },
			StopFn:  func() { stopped = append(stopped, name); close(quit) },
		}}
	}
	lc := server.NewLifecycle(zaptest.NewLogger(t))
	wireLifecycle(lc, svc("grpc"), svc("redis"), svc("postgres"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, lc.Run(ctx))
	assert.Equal(t, []string{"grpc", "postgres", "redis"}, stopped, "stop order")
}
