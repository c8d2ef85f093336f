package main

import (
	"context"
	"fmt"

	"crowdfund/internal/seed"

	"github.com/urfave/cli/v2"
)

var seedCommand = &cli.Command{
	Name:  "seed",
	Usage: "Seed the database with demo users, projects and backings",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    "backings",
			Aliases: []string{"b"},
			Usage:   "Backings to create per demo project",
			Value:   25,
		},
	},
	Action: func(cCtx *cli.Context) error {
		ctx := context.Background()

		a, err := newApp(ctx, cCtx)
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		defer a.Close()

		a.logger.Info("Seeding demo data...")

		report, err := seed.NewSeeder(a.users, a.projects, a.funding, a.logger).Run(ctx, cCtx.Int("backings"))
		if err != nil {
			return fmt.Errorf("failed to seed: %w", err)
		}

		fmt.Printf("Seeded %d users, %d projects, %d tiers, %d backings (%d sold out)\n",
			report.Users, report.Projects, report.Tiers, report.Backings, report.SoldOut)

		return nil
	},
}
