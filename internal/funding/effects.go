package funding

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"crowdfund/internal/utils"
	"crowdfund/pkg/types"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ApplyEffect applies a pending funding effect to its project with optimistic
// concurrency, retrying version conflicts and transient database errors with
// exponential backoff. An effect that was already applied is a no-op.
func (s *Service) ApplyEffect(ctx context.Context, effectID string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInitialInterval
	b.MaxInterval = time.Second

	operation := func() (struct{}, error) {
		err := s.applyEffectOnce(ctx, effectID)
		switch {
		case err == nil:
			fundingEffectsTotal.WithLabelValues("applied").Inc()
			return struct{}{}, nil
		case errors.Is(err, types.ErrEffectAlreadyApplied):
			fundingEffectsTotal.WithLabelValues("duplicate").Inc()
			return struct{}{}, nil
		case errors.Is(err, types.ErrConcurrentModification):
			fundingEffectsTotal.WithLabelValues("conflict").Inc()
			return struct{}{}, err
		case isTransient(err):
			fundingEffectsTotal.WithLabelValues("transient").Inc()
			return struct{}{}, err
		}

		fundingEffectsTotal.WithLabelValues("failed").Inc()
		return struct{}{}, backoff.Permanent(err)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.retryMaxTries),
	)
	return err
}

// isTransient reports whether err came from a dropped connection, a timeout or
// a serialization failure, all of which may succeed when repeated.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01":
			return true
		case strings.HasPrefix(pgErr.Code, "08"):
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func (s *Service) applyEffectOnce(ctx context.Context, effectID string) error {
	effect, err := s.store.Effect(ctx, effectID)
	if err != nil {
		return err
	}

	switch effect.Status {
	case types.EffectStatusApplied:
		return types.ErrEffectAlreadyApplied
	case types.EffectStatusFailed:
		return types.NewInvalidStateError("funding effect was abandoned")
	}

	project, err := s.store.Project(ctx, effect.ProjectID)
	if err != nil {
		return err
	}

	totals := project.Totals().Apply(effect)

	return s.store.ApplyFundingEffect(ctx, effect, project.Version, totals)
}

// UpdateProjectFunding moves a project's funding by amountChange cents outside
// of any backing. The backer count follows the sign of the change and the
// change is applied at most once per idempotency key.
func (s *Service) UpdateProjectFunding(ctx context.Context, projectID string, amountChange int64, idempotencyKey string) (*types.Project, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return nil, types.NewValidationError("idempotencyKey", "is required")
	}

	key := utils.EffectKey(string(types.EffectKindAdjustment), projectID, idempotencyKey)

	effect, err := s.store.EffectByIdempotencyKey(ctx, key)
	switch {
	case errors.Is(err, types.ErrEffectNotFound):
		if _, err := s.store.Project(ctx, projectID); err != nil {
			return nil, err
		}

		effect = s.newEffect(types.EffectKindAdjustment, projectID, nil, amountChange, types.BackerDeltaFor(amountChange), key)
		if err := s.store.CreateEffect(ctx, effect); err != nil {
			if !errors.Is(err, types.ErrDuplicateKey) {
				return nil, err
			}

			effect, err = s.store.EffectByIdempotencyKey(ctx, key)
			if err != nil {
				return nil, err
			}
		}
	case err != nil:
		return nil, err
	}

	if effect.ProjectID != projectID {
		return nil, &types.Error{Code: types.CodeConflict, Field: "idempotencyKey", Detail: "idempotency key was already used for another project"}
	}

	if err := s.ApplyEffect(ctx, effect.ID); err != nil {
		return nil, err
	}

	s.logger.WithField("project_id", projectID).
		WithField("effect_id", effect.ID).
		WithField("amount_cents", amountChange).
		Info("project funding adjusted")

	return s.store.Project(ctx, projectID)
}
