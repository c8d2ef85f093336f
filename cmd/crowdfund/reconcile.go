package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
)

var reconcileCommand = &cli.Command{
	Name:  "reconcile",
	Usage: "Apply every pending funding effect once and exit",
	Action: func(cCtx *cli.Context) error {
		ctx := context.Background()

		a, err := newApp(ctx, cCtx)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.funding.ReconcilePending(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("pending: %d applied: %d failed: %d projects: %d\n", report.Pending, report.Applied, report.Failed, report.Projects)

		if report.Failed > 0 {
			return cli.Exit(fmt.Sprintf("%d funding effects could not be applied", report.Failed), 1)
		}

		return nil
	},
}
