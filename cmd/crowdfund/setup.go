package main

import (
	"context"
	"fmt"

	"crowdfund/internal/db"

	"github.com/urfave/cli/v2"
)

var setupCommand = &cli.Command{
	Name:  "setup",
	Usage: "Apply database migrations and create storage buckets; safe to re-run",
	Action: func(cCtx *cli.Context) error {
		ctx := context.Background()

		config, err := loadConfig(cCtx)
		if err != nil {
			return cli.Exit(err, 1)
		}

		logger, err := newLogger(config)
		if err != nil {
			return cli.Exit(err, 1)
		}

		awsConfig, err := loadAWSConfig(ctx)
		if err != nil {
			return cli.Exit(err, 1)
		}

		pool, err := db.Connect(ctx, config)
		if err != nil {
			return cli.Exit(err, 1)
		}
		defer pool.Close()

		applied, err := db.Migrate(ctx, pool, logger)
		if err != nil {
			return cli.Exit(fmt.Errorf("migrations failed: %w", err), 1)
		}

		objects, err := newObjectStorage(config, awsConfig)
		if err != nil {
			return cli.Exit(err, 1)
		}

		created, err := objects.Provision(ctx, logger)
		if err != nil {
			return cli.Exit(fmt.Errorf("bucket provisioning failed: %w", err), 1)
		}

		logger.WithField("migrations_applied", applied).WithField("buckets_created", created).Info("setup complete")

		return nil
	},
}
