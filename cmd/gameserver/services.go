package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/cory-johannsen/battleship/internal/game/session"
	"github.com/cory-johannsen/battleship/internal/server"
	"github.com/cory-johannsen/battleship/internal/storage/postgres"
)

// component is one named lifecycle entry.
type component struct {
	name string
	svc  server.Service
}

// wireLifecycle registers every store ahead of api. Lifecycle stops services
// in reverse order, so api finishes draining its streams before any store
// is closed.
func wireLifecycle(lc *server.Lifecycle, api component, stores ...component) {
	for _, s := range stores {
		lc.Add(s.name, s.svc)
	}
	lc.Add(api.name, api.svc)
}

// grpcService serves s on the listener returned by listen until GracefulStop.
func grpcService(s *grpc.Server, listen func() (net.Listener, error), logger *zap.Logger) *server.FuncService {
	return &server.FuncService{
		StartFn: func() error {
			lis, err := listen()
			if err != nil {
				return err
			}
			logger.Info("gRPC server listening",
				zap.String("addr", lis.Addr().String()),
			)
			return s.Serve(lis)
		},
		StopFn: s.GracefulStop,
	}
}

func tcpListener(addr string) func() (net.Listener, error) {
	return func() (net.Listener, error) {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("listening on %s: %w", addr, err)
		}
		return lis, nil
	}
}

type healthCloser interface {
	Health(ctx context.Context) error
	Close() error
}

func redisService(brk healthCloser, sessions *session.Manager, interval time.Duration, logger *zap.Logger) *server.PeriodicService {
	return &server.PeriodicService{
		Name:     "redis",
		Interval: interval,
		Timeout:  5 * time.Second,
		Probe: func(ctx context.Context) error {
			if err := brk.Health(ctx); err != nil {
				return err
			}
			logger.Debug("redis healthy",
				zap.Int("players", sessions.PlayerCount()),
				zap.Int("games", sessions.GameCount()),
			)
			return nil
		},
		Close: func() {
			if err := brk.Close(); err != nil {
				logger.Warn("closing redis client", zap.Error(err))
			}
		},
		Logger: logger,
	}
}

func postgresService(pool *postgres.Pool, interval time.Duration, logger *zap.Logger) *server.PeriodicService {
	return &server.PeriodicService{
		Name:     "postgres",
		Interval: interval,
		Timeout:  5 * time.Second,
		Probe: func(ctx context.Context) error {
			return pool.Health(ctx, 5*time.Second)
		},
		Close:  pool.Close,
		Logger: logger,
	}
}
