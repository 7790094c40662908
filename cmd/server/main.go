package main

import (
	"context"
	"log"
	"os"

	"github.com/tubepulse/accounts/internal/logging"
	"github.com/tubepulse/accounts/internal/server"
	"github.com/tubepulse/accounts/internal/server/config"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("config: %v", err)
		os.Exit(2)
	}

	logger := logging.New(cfg.Environment)

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "startup failed", "error", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error(ctx, "server stopped with error", "error", err)
		os.Exit(1)
	}
}
