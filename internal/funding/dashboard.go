package funding

import (
	"context"

	"crowdfund/pkg/types"

	"golang.org/x/sync/errgroup"
)

func (s *Service) CheckTierAvailability(ctx context.Context, tierID string) (*types.TierAvailability, error) {
	tier, err := s.store.RewardTier(ctx, tierID)
	if err != nil {
		return nil, err
	}

	return &types.TierAvailability{
		TierID:    tier.ID,
		Available: tier.Available(),
		Remaining: tier.Remaining(),
		Claimed:   tier.ClaimedCount,
		IsLimited: tier.IsLimited,
	}, nil
}

// ProjectDashboard loads the project, its backing stats and its tiers concurrently.
func (s *Service) ProjectDashboard(ctx context.Context, projectID string) (*types.ProjectDashboard, error) {
	var (
		project *types.Project
		stats   *types.BackingStats
		tiers   []*types.RewardTier
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		project, err = s.store.Project(gctx, projectID)
		return err
	})

	g.Go(func() error {
		var err error
		stats, err = s.store.BackingStats(gctx, projectID)
		return err
	})

	g.Go(func() error {
		var err error
		tiers, err = s.store.TiersByProject(gctx, projectID)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &types.ProjectDashboard{
		Project:       project,
		Stats:         stats,
		Tiers:         tiers,
		PercentFunded: project.PercentFunded(),
		DaysLeft:      project.DaysLeft(s.clock()),
	}, nil
}
