// Package main provides a development client for the game server. It plays
// interactively from stdin or replays a YAML script.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/cory-johannsen/battleship/internal/client"
	"github.com/cory-johannsen/battleship/internal/command"
	"github.com/cory-johannsen/battleship/internal/config"
	"github.com/cory-johannsen/battleship/internal/observability"
)

func main() {
	addr := flag.String("addr", "localhost:50051", "game server address")
	scriptPath := flag.String("script", "", "YAML script to play; empty = interactive")
	player := flag.String("player", "", "player id; empty = random")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger, err := observability.NewLogger(config.LoggingConfig{Level: *logLevel, Format: "console"})
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(*addr, logger)
	if err != nil {
		logger.Fatal("dialing game server", zap.Error(err))
	}
	defer c.Close()

	announce := func(event client.Event) client.Handler {
		return func(_ context.Context, arg string) {
			if arg != "" {
				fmt.Printf("<< %s %s\n", event, arg)
				return
			}
			fmt.Printf("<< %s\n", event)
		}
	}
	for _, event := range client.Events {
		if err := c.On(event, announce(event)); err != nil {
			logger.Fatal("registering handler", zap.Error(err))
		}
	}

	interactive := *scriptPath == ""
	if !interactive {
		script, err := client.LoadScript(*scriptPath)
		if err != nil {
			logger.Fatal("loading script", zap.Error(err))
		}
		if *player == "" {
			*player = script.Player
		}
		if err := script.Bind(c, logger); err != nil {
			logger.Fatal("binding script", zap.Error(err))
		}
	}

	if *player != "" {
		err = c.JoinAs(ctx, *player)
	} else {
		err = c.Join(ctx)
	}
	if err != nil {
		logger.Fatal("joining game", zap.Error(err))
	}
	fmt.Printf("joined as %s, waiting for an opponent\n", c.PlayerID())

	if interactive {
		go readCommands(c, logger)
	}

	outcome, err := c.Wait(ctx)
	if err != nil {
		logger.Error("game did not finish", zap.Error(err))
		os.Exit(1)
	}
	fmt.Printf("game over: %s\n", outcome)
}

// readCommands sends one request per stdin line until quit or end of input.
func readCommands(c *client.Client, logger *zap.Logger) {
	registry := command.DefaultRegistry()
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd, args, err := registry.Lookup(scanner.Text())
		if err != nil {
			fmt.Println(err)
			continue
		}
		if cmd == nil {
			continue
		}
		switch cmd.Action {
		case command.ActionAttack:
			err = c.Attack(args[0])
		case command.ActionHit:
			err = c.Hit()
		case command.ActionMiss:
			err = c.Miss()
		case command.ActionDefeat:
			err = c.Defeat()
		case command.ActionHelp:
			for _, known := range registry.Commands() {
				fmt.Printf("  %-16s %s\n", known.Usage, known.Help)
			}
		case command.ActionQuit:
			if err := c.Close(); err != nil {
				logger.Warn("closing stream", zap.Error(err))
			}
			return
		}
		if err != nil {
			logger.Error("sending command", zap.Error(err))
		}
	}
}
