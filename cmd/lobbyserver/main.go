// Package main provides the lobby server binary: a websocket acceptor in
// front of the serialized lobby event loop.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/lobbyserver/internal/config"
	"github.com/cory-johannsen/lobbyserver/internal/lobby"
	"github.com/cory-johannsen/lobbyserver/internal/observability"
	"github.com/cory-johannsen/lobbyserver/internal/server"
	"github.com/cory-johannsen/lobbyserver/internal/transport/ws"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	dispatcher := lobby.NewDispatcher(logger, nil)
	acceptor := ws.NewAcceptor(cfg.Listen, dispatcher, logger)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("dispatcher", dispatcher)
	lifecycle.Add("websocket", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})

	logger.Info("lobby server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("listen_addr", cfg.Listen.Addr()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
