package projects

import (
	"context"
	"errors"
	"io"
	"time"

	"crowdfund/internal/storage"
	"crowdfund/pkg/types"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

type Store interface {
	Project(ctx context.Context, projectID string) (*types.Project, error)
	Projects(ctx context.Context, filter types.ProjectFilter) ([]*types.Project, error)
	LiveProjectsPastDeadline(ctx context.Context, now time.Time) ([]*types.Project, error)
	CreateProject(ctx context.Context, project *types.Project) error
	UpdateProject(ctx context.Context, project *types.Project, expectedVersion int64) error
	DeleteProject(ctx context.Context, projectID string) error

	RewardTier(ctx context.Context, tierID string) (*types.RewardTier, error)
	TiersByProject(ctx context.Context, projectID string) ([]*types.RewardTier, error)
	CreateTier(ctx context.Context, tier *types.RewardTier) error
	UpdateTier(ctx context.Context, tier *types.RewardTier, expectedVersion int64) error
	DeleteTier(ctx context.Context, tierID string) error

	Milestone(ctx context.Context, milestoneID string) (*types.Milestone, error)
	MilestonesByProject(ctx context.Context, projectID string) ([]*types.Milestone, error)
	ReplaceMilestones(ctx context.Context, projectID string, milestones []*types.Milestone) error
	UpdateMilestone(ctx context.Context, milestone *types.Milestone) error
	RecordFeedback(ctx context.Context, milestoneID string, score int) error
	AddEvidence(ctx context.Context, milestoneID, key string) error
	MarkOverdueMilestones(ctx context.Context, now time.Time) (int64, error)
}

// ObjectStore removes uploaded files that belonged to deleted projects.
type ObjectStore interface {
	Delete(ctx context.Context, bucket storage.Bucket, key string) error
}

// FundingSettler applies a project's pending funding effects. It fails when
// any of them is still pending afterwards.
type FundingSettler interface {
	SettleProject(ctx context.Context, projectID string) error
}

type ServiceConfig struct {
	Store   Store
	Objects ObjectStore
	Funding FundingSettler
	Logger  *logrus.Logger
	Clock   func() time.Time

	RetryMaxTries        uint
	RetryInitialInterval time.Duration
}

type Service struct {
	store   Store
	objects ObjectStore
	funding FundingSettler
	logger  *logrus.Logger
	clock   func() time.Time

	retryMaxTries        uint
	retryInitialInterval time.Duration
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("projects: store is required")
	}

	s := &Service{
		store:                cfg.Store,
		objects:              cfg.Objects,
		funding:              cfg.Funding,
		logger:               cfg.Logger,
		clock:                cfg.Clock,
		retryMaxTries:        cfg.RetryMaxTries,
		retryInitialInterval: cfg.RetryInitialInterval,
	}

	if s.logger == nil {
		s.logger = logrus.New()
		s.logger.SetOutput(io.Discard)
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.retryMaxTries == 0 {
		s.retryMaxTries = 5
	}
	if s.retryInitialInterval <= 0 {
		s.retryInitialInterval = 25 * time.Millisecond
	}

	return s, nil
}

// mutateProject reads the project, applies mutate and writes it back under the
// version it was read at. Funding effects bump the version too, so conflicts
// are retried against a fresh read.
func (s *Service) mutateProject(ctx context.Context, projectID string, mutate func(*types.Project) error) (*types.Project, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInitialInterval
	b.MaxInterval = time.Second

	operation := func() (*types.Project, error) {
		project, err := s.store.Project(ctx, projectID)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		expected := project.Version
		if err := mutate(project); err != nil {
			return nil, backoff.Permanent(err)
		}

		err = s.store.UpdateProject(ctx, project, expected)
		if errors.Is(err, types.ErrConcurrentModification) {
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		return project, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.retryMaxTries),
	)
}

// ownedProject loads a project and checks that actorID created it.
func (s *Service) ownedProject(ctx context.Context, projectID, actorID string) (*types.Project, error) {
	project, err := s.store.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if project.CreatorID != actorID {
		return nil, types.NewPermissionError("only the project creator can change this project")
	}

	return project, nil
}

func requireOwner(project *types.Project, actorID string) error {
	if project.CreatorID != actorID {
		return types.NewPermissionError("only the project creator can change this project")
	}
	return nil
}
