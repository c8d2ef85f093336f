package funding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"crowdfund/pkg/types"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
)

// ReconcilePending applies funding effects left pending by earlier failures.
// Effects of one project are applied in creation order; different projects
// are worked on concurrently.
func (s *Service) ReconcilePending(ctx context.Context) (*types.ReconcileReport, error) {
	effects, err := s.store.PendingEffects(ctx, s.reconcileBatchSize)
	if err != nil {
		return nil, err
	}

	reconcilePendingEffects.Set(float64(len(effects)))

	report := &types.ReconcileReport{Pending: len(effects)}
	if len(effects) == 0 {
		return report, nil
	}

	byProject := make(map[string][]*types.FundingEffect)
	for _, effect := range effects {
		byProject[effect.ProjectID] = append(byProject[effect.ProjectID], effect)
	}
	report.Projects = len(byProject)

	pool, err := ants.NewPool(min(s.reconcileWorkers, len(byProject)))
	if err != nil {
		return nil, fmt.Errorf("failed to create reconcile pool: %w", err)
	}
	defer pool.Release()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for projectID, queue := range byProject {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()

			applied, failed := s.reconcileProject(ctx, projectID, queue)

			mu.Lock()
			report.Applied += applied
			report.Failed += failed
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			s.logger.WithError(err).WithField("project_id", projectID).Error("failed to submit reconcile task")

			mu.Lock()
			report.Failed += len(queue)
			mu.Unlock()
		}
	}

	wg.Wait()

	s.logger.WithFields(logrus.Fields{
		"pending":  report.Pending,
		"applied":  report.Applied,
		"failed":   report.Failed,
		"projects": report.Projects,
	}).Info("funding effects reconciled")

	return report, nil
}

// SettleProject applies every pending funding effect of one project in
// creation order and fails if any of them stays pending.
func (s *Service) SettleProject(ctx context.Context, projectID string) error {
	effects, err := s.store.PendingEffectsByProject(ctx, projectID)
	if err != nil {
		return err
	}

	for _, effect := range effects {
		if err := s.ApplyEffect(ctx, effect.ID); err != nil {
			return fmt.Errorf("failed to apply funding effect %s: %w", effect.ID, err)
		}
	}

	if len(effects) > 0 {
		s.logger.WithField("project_id", projectID).WithField("applied", len(effects)).Info("project funding settled")
	}

	return nil
}

func (s *Service) reconcileProject(ctx context.Context, projectID string, queue []*types.FundingEffect) (applied, failed int) {
	for i, effect := range queue {
		err := s.ApplyEffect(ctx, effect.ID)
		if err == nil {
			applied++
			continue
		}

		entry := s.logger.WithError(err).WithFields(logrus.Fields{
			"project_id": projectID,
			"effect_id":  effect.ID,
			"attempts":   effect.Attempts + 1,
		})

		terminal := errors.Is(err, types.ErrProjectNotFound) || effect.Attempts+1 >= s.effectMaxAttempts
		if recordErr := s.store.RecordEffectFailure(ctx, effect.ID, err.Error(), terminal); recordErr != nil {
			entry.WithError(recordErr).Error("failed to record funding effect failure")
			return applied, failed + len(queue) - i
		}

		if terminal {
			entry.Error("funding effect abandoned")
			reconcileAbandonedEffects.Inc()
			failed++
			continue
		}

		entry.Warn("failed to apply funding effect")

		// later effects of this project wait for the next pass
		return applied, failed + len(queue) - i
	}

	return applied, failed
}
