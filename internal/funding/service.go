package funding

import (
	"context"
	"errors"
	"io"
	"time"

	"crowdfund/internal/utils"
	"crowdfund/pkg/types"

	"github.com/sirupsen/logrus"
)

// Store is the persistence the funding service relies on. Every write that
// spans more than one row is a single atomic call.
type Store interface {
	Project(ctx context.Context, projectID string) (*types.Project, error)
	RewardTier(ctx context.Context, tierID string) (*types.RewardTier, error)
	TiersByProject(ctx context.Context, projectID string) ([]*types.RewardTier, error)

	Backing(ctx context.Context, backingID string) (*types.Backing, error)
	BackingByIdempotencyKey(ctx context.Context, key string) (*types.Backing, error)
	BackingsByProject(ctx context.Context, projectID string) ([]*types.Backing, error)
	BackingsByBacker(ctx context.Context, backerID string) ([]*types.Backing, error)
	BackingStats(ctx context.Context, projectID string) (*types.BackingStats, error)
	RecordBacking(ctx context.Context, backing *types.Backing, effect *types.FundingEffect) error
	RecordCancellation(ctx context.Context, backing *types.Backing, effect *types.FundingEffect, at time.Time) error
	UpdateBackingStatus(ctx context.Context, backingID string, from []types.BackingStatus, to types.BackingStatus) error
	SetPaymentIntent(ctx context.Context, backingID, paymentIntentID string) error

	Effect(ctx context.Context, effectID string) (*types.FundingEffect, error)
	EffectByIdempotencyKey(ctx context.Context, key string) (*types.FundingEffect, error)
	EffectsByBacking(ctx context.Context, backingID string) ([]*types.FundingEffect, error)
	PendingEffects(ctx context.Context, limit int) ([]*types.FundingEffect, error)
	PendingEffectsByProject(ctx context.Context, projectID string) ([]*types.FundingEffect, error)
	CreateEffect(ctx context.Context, effect *types.FundingEffect) error
	ApplyFundingEffect(ctx context.Context, effect *types.FundingEffect, expectedVersion int64, totals types.FundingTotals) error
	RecordEffectFailure(ctx context.Context, effectID, reason string, terminal bool) error
}

type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, backing *types.Backing, currency string) (string, error)
}

type ServiceConfig struct {
	Store    Store
	Payments PaymentGateway
	Logger   *logrus.Logger
	Clock    func() time.Time
	NewID    func() string

	RetryMaxTries        uint
	RetryInitialInterval time.Duration
	ReconcileBatchSize   int
	ReconcileWorkers     int

	// EffectMaxAttempts is how many failed reconcile attempts an effect gets
	// before it is marked failed.
	EffectMaxAttempts int
}

type Service struct {
	store    Store
	payments PaymentGateway
	logger   *logrus.Logger
	clock    func() time.Time
	newID    func() string

	retryMaxTries        uint
	retryInitialInterval time.Duration
	reconcileBatchSize   int
	reconcileWorkers     int
	effectMaxAttempts    int
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("funding: store is required")
	}

	s := &Service{
		store:                cfg.Store,
		payments:             cfg.Payments,
		logger:               cfg.Logger,
		clock:                cfg.Clock,
		newID:                cfg.NewID,
		retryMaxTries:        cfg.RetryMaxTries,
		retryInitialInterval: cfg.RetryInitialInterval,
		reconcileBatchSize:   cfg.ReconcileBatchSize,
		reconcileWorkers:     cfg.ReconcileWorkers,
		effectMaxAttempts:    cfg.EffectMaxAttempts,
	}

	if s.logger == nil {
		s.logger = logrus.New()
		s.logger.SetOutput(io.Discard)
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.newID == nil {
		s.newID = utils.NanoID
	}
	if s.retryMaxTries == 0 {
		s.retryMaxTries = 5
	}
	if s.retryInitialInterval <= 0 {
		s.retryInitialInterval = 25 * time.Millisecond
	}
	if s.reconcileBatchSize <= 0 {
		s.reconcileBatchSize = 200
	}
	if s.reconcileWorkers <= 0 {
		s.reconcileWorkers = 8
	}
	if s.effectMaxAttempts <= 0 {
		s.effectMaxAttempts = 10
	}

	return s, nil
}

func (s *Service) newEffect(kind types.EffectKind, projectID string, backingID *string, amount int64, backerDelta int, key string) *types.FundingEffect {
	return &types.FundingEffect{
		ID:             s.newID(),
		BackingID:      backingID,
		ProjectID:      projectID,
		Kind:           kind,
		AmountCents:    amount,
		BackerDelta:    backerDelta,
		Status:         types.EffectStatusPending,
		IdempotencyKey: key,
	}
}
