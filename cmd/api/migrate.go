package main

import (
	"github.com/urfave/cli/v2"

	"github.com/dumaterial/materials-api/internal/persistence"
)

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the database schema",
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: func(c *cli.Context) error {
					cfg, logger, err := bootstrap()
					if err != nil {
						return err
					}
					defer logger.Sync() //nolint:errcheck
					return persistence.RunMigrations(c.Context, cfg.Postgres.DSN, logger)
				},
			},
			{
				Name:  "down",
				Usage: "Revert the most recent migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Value: 1, Usage: "number of migrations to revert"},
				},
				Action: func(c *cli.Context) error {
					cfg, logger, err := bootstrap()
					if err != nil {
						return err
					}
					defer logger.Sync() //nolint:errcheck
					return persistence.RollbackMigrations(c.Context, cfg.Postgres.DSN, c.Int("steps"), logger)
				},
			},
		},
	}
}
