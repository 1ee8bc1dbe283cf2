package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/dumaterial/materials-api/internal/config"
	"github.com/dumaterial/materials-api/internal/observability"
)

func main() {
	app := &cli.App{
		Name:  "materials-api",
		Usage: "Study materials API with separate admin and user realms",
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
		},
		// Running without a subcommand serves the API.
		Action: func(c *cli.Context) error {
			return serve(c.Context)
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatalf("materials-api: %v", err)
	}
}

// bootstrap loads configuration and builds the process logger.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}
