// Package main provides the game server binary: it matches players through
// Redis, relays their turns over a per-game channel and serves the
// Battleships gRPC stream to clients.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/cory-johannsen/battleship/internal/broker"
	"github.com/cory-johannsen/battleship/internal/config"
	"github.com/cory-johannsen/battleship/internal/game/session"
	"github.com/cory-johannsen/battleship/internal/gameserver"
	"github.com/cory-johannsen/battleship/internal/gameserver/battlev1"
	"github.com/cory-johannsen/battleship/internal/matchmaking"
	"github.com/cory-johannsen/battleship/internal/observability"
	"github.com/cory-johannsen/battleship/internal/server"
	"github.com/cory-johannsen/battleship/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file; empty = defaults and environment only")
	healthInterval := flag.Duration("health-interval", 30*time.Second, "interval between redis and postgres health checks")
	flag.Parse()

	ctx := context.Background()

	var (
		cfg config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting game server",
		zap.String("grpc_addr", cfg.Server.Addr()),
		zap.String("redis_addr", cfg.Redis.Addr()),
	)

	// Connect to Redis; nothing works without it.
	redisStart := time.Now()
	brk := broker.NewClient(cfg.Redis, logger)
	if err := brk.PingErr(ctx); err != nil {
		logger.Fatal("connecting to redis", zap.Error(err))
	}
	logger.Info("redis connected",
		zap.String("addr", cfg.Redis.Addr()),
		zap.Duration("elapsed", time.Since(redisStart)),
	)

	// Optional results store.
	var (
		pool    *postgres.Pool
		results gameserver.ResultRecorder
	)
	if cfg.Database.Enabled {
		dbStart := time.Now()
		pool, err = postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		if err := pool.Health(ctx, 5*time.Second); err != nil {
			logger.Fatal("checking results store", zap.Error(err))
		}
		results = postgres.NewResultRepository(pool.DB())
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
	}

	matchmaker := matchmaking.NewMatchmaker(brk, cfg.Matchmaking.QueueKey, logger)
	rendezvous := matchmaking.NewRendezvous(brk, cfg.Matchmaking.RendezvousAttempts, cfg.Matchmaking.RendezvousDelay, logger)
	sessMgr := session.NewManager()

	gameService := gameserver.NewGameServiceServer(brk, sessMgr, matchmaker, rendezvous, cfg.Session, logger, results)

	grpcServer := grpc.NewServer()
	battlev1.RegisterBattleshipsServer(grpcServer, gameService)

	// Wire lifecycle
	stores := []component{
		{name: "redis", svc: redisService(brk, sessMgr, *healthInterval, logger)},
	}
	if pool != nil {
		stores = append(stores, component{name: "postgres", svc: postgresService(pool, *healthInterval, logger)})
	}
	lifecycle := server.NewLifecycle(logger)
	wireLifecycle(lifecycle,
		component{name: "grpc", svc: grpcService(grpcServer, tcpListener(cfg.Server.Addr()), logger)},
		stores...,
	)

	logger.Info("game server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("grpc_addr", cfg.Server.Addr()),
		zap.Bool("results_store", pool != nil),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
