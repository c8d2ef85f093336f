package main

import (
	"context"
	"fmt"

	"github.com/k0kubun/pp/v3"
	"github.com/urfave/cli/v2"
)

var inspectCommand = &cli.Command{
	Name:  "inspect",
	Usage: "Dump stored records for debugging",
	Subcommands: []*cli.Command{
		{
			Name:      "project",
			Usage:     "Print a project with its tiers, milestones, funding dashboard and progress",
			ArgsUsage: "<project-id>",
			Action:    inspectProject,
		},
		{
			Name:      "backing",
			Usage:     "Print a backing and its funding effects",
			ArgsUsage: "<backing-id>",
			Action:    inspectBacking,
		},
	},
}

func inspectProject(cCtx *cli.Context) error {
	projectID := cCtx.Args().First()
	if projectID == "" {
		return cli.Exit("project id is required", 1)
	}

	ctx := context.Background()

	a, err := newApp(ctx, cCtx)
	if err != nil {
		return err
	}
	defer a.Close()

	dashboard, err := a.funding.ProjectDashboard(ctx, projectID)
	if err != nil {
		return err
	}

	milestones, err := a.projects.MilestonesByProject(ctx, projectID)
	if err != nil {
		return err
	}

	progress, err := a.projects.MilestoneProgress(ctx, projectID)
	if err != nil {
		return err
	}

	printer := pp.New()
	printer.SetColoringEnabled(false)

	fmt.Println("== dashboard")
	printer.Println(dashboard)
	fmt.Println("== milestones")
	printer.Println(milestones)
	fmt.Println("== progress")
	printer.Println(progress)

	return nil
}

func inspectBacking(cCtx *cli.Context) error {
	backingID := cCtx.Args().First()
	if backingID == "" {
		return cli.Exit("backing id is required", 1)
	}

	ctx := context.Background()

	a, err := newApp(ctx, cCtx)
	if err != nil {
		return err
	}
	defer a.Close()

	backing, err := a.store.Backing(ctx, backingID)
	if err != nil {
		return err
	}

	effects, err := a.store.EffectsByBacking(ctx, backingID)
	if err != nil {
		return err
	}

	pp.Println(backing)
	pp.Println(effects)

	return nil
}
