package funding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crowdfund/internal/utils"
	"crowdfund/pkg/types"

	"github.com/sirupsen/logrus"
)

type CreateBackingInput struct {
	ProjectID         string                 `json:"projectId" validate:"required"`
	BackerID          string                 `json:"backerId" validate:"required"`
	RewardTierID      *string                `json:"rewardTierId,omitempty"`
	PledgeAmountCents int64                  `json:"pledgeAmount" validate:"gte=100,lte=10000000"`
	ExtraSupportCents int64                  `json:"extraSupport" validate:"gte=0,lte=10000000"`
	BackerName        string                 `json:"backerName" validate:"required,max=200"`
	BackerEmail       string                 `json:"backerEmail" validate:"required,email"`
	ShippingAddress   *types.ShippingAddress `json:"shippingAddress,omitempty" validate:"omitempty"`
	IsAnonymous       bool                   `json:"isAnonymous"`
	IdempotencyKey    string                 `json:"idempotencyKey,omitempty" validate:"max=128"`
}

// CreateBacking validates a pledge, then records the backing, its tier claim
// and its pending funding effect atomically before applying the effect to the
// project totals. If the effect cannot be applied right away it stays pending
// and the reconciler picks it up; the backing is still returned.
func (s *Service) CreateBacking(ctx context.Context, input CreateBackingInput) (*types.Backing, error) {
	entry := s.logger.WithFields(logrus.Fields{
		"operation":  "create_backing",
		"project_id": input.ProjectID,
		"backer_id":  input.BackerID,
	})

	if err := utils.ValidateStruct(input); err != nil {
		backingsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	var idempotencyKey string
	if input.IdempotencyKey != "" {
		idempotencyKey = utils.EffectKey("backing", input.BackerID, input.IdempotencyKey)

		existing, err := s.replayBacking(ctx, entry, idempotencyKey, input.ProjectID)
		if err != nil || existing != nil {
			return existing, err
		}
	}

	project, err := s.store.Project(ctx, input.ProjectID)
	if err != nil {
		return nil, err
	}

	var tier *types.RewardTier
	if input.RewardTierID != nil {
		tier, err = s.store.RewardTier(ctx, *input.RewardTierID)
		if errors.Is(err, types.ErrRewardTierNotFound) {
			return nil, types.NewValidationError("rewardTierId", "reward tier does not exist")
		}
		if err != nil {
			return nil, err
		}
	}

	if err := validatePledge(project, tier, input); err != nil {
		backingsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	if err := checkEligibility(project, input.BackerID, s.clock()); err != nil {
		backingsTotal.WithLabelValues("ineligible").Inc()
		return nil, err
	}

	backing := &types.Backing{
		ID:                s.newID(),
		ProjectID:         project.ID,
		BackerID:          input.BackerID,
		RewardTierID:      input.RewardTierID,
		PledgeAmountCents: input.PledgeAmountCents,
		ExtraSupportCents: input.ExtraSupportCents,
		TotalAmountCents:  input.PledgeAmountCents + input.ExtraSupportCents,
		BackerName:        input.BackerName,
		BackerEmail:       input.BackerEmail,
		ShippingAddress:   input.ShippingAddress,
		IsAnonymous:       input.IsAnonymous,
		Status:            types.BackingStatusPending,
		IdempotencyKey:    idempotencyKey,
	}
	if backing.IdempotencyKey == "" {
		backing.IdempotencyKey = backing.ID
	}

	effect := s.newEffect(
		types.EffectKindPledge,
		project.ID,
		&backing.ID,
		backing.TotalAmountCents,
		1,
		utils.EffectKey(string(types.EffectKindPledge), backing.ID),
	)

	err = s.store.RecordBacking(ctx, backing, effect)
	switch {
	case errors.Is(err, types.ErrTierSoldOut):
		backingsTotal.WithLabelValues("sold_out").Inc()
		return nil, err
	case errors.Is(err, types.ErrDuplicateKey) && input.IdempotencyKey != "":
		// a concurrent retry of the same request won the insert
		backingsTotal.WithLabelValues("replayed").Inc()
		return s.store.BackingByIdempotencyKey(ctx, idempotencyKey)
	case err != nil:
		return nil, err
	}

	backingsTotal.WithLabelValues("created").Inc()
	entry = entry.WithField("backing_id", backing.ID)

	if err := s.ApplyEffect(ctx, effect.ID); err != nil {
		entry.WithError(err).WithField("effect_id", effect.ID).Warn("pledge effect left pending for reconciliation")
	}

	s.attachPayment(ctx, entry, backing, project.Currency)

	entry.WithField("total_cents", backing.TotalAmountCents).Info("backing created")

	return backing, nil
}

// replayBacking returns the backing already recorded under key, finishing any
// of its effects that are still pending.
func (s *Service) replayBacking(ctx context.Context, entry *logrus.Entry, key, projectID string) (*types.Backing, error) {
	existing, err := s.store.BackingByIdempotencyKey(ctx, key)
	if errors.Is(err, types.ErrBackingNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if existing.ProjectID != projectID {
		return nil, &types.Error{Code: types.CodeConflict, Field: "idempotencyKey", Detail: "idempotency key was already used for another project"}
	}

	if err := s.settleBacking(ctx, existing.ID); err != nil {
		entry.WithError(err).WithField("backing_id", existing.ID).Warn("replayed backing still has pending effects")
	}

	backingsTotal.WithLabelValues("replayed").Inc()
	return existing, nil
}

func validatePledge(project *types.Project, tier *types.RewardTier, input CreateBackingInput) error {
	if input.PledgeAmountCents+input.ExtraSupportCents > types.MaxPledgeCents {
		return types.NewValidationError("extraSupport", fmt.Sprintf("pledge plus extra support cannot exceed %s", utils.FormatCurrency(types.MaxPledgeCents)))
	}

	if tier == nil {
		return nil
	}

	if tier.ProjectID != project.ID {
		return types.NewValidationError("rewardTierId", "reward tier belongs to a different project")
	}

	if input.PledgeAmountCents < tier.PledgeAmountCents {
		return types.NewValidationError("pledgeAmount", fmt.Sprintf("must be at least %s for this reward", utils.FormatCurrency(tier.PledgeAmountCents)))
	}

	if tier.ShippingRequired && input.ShippingAddress == nil {
		return types.NewValidationError("shippingAddress", "is required for this reward")
	}

	return nil
}

func checkEligibility(project *types.Project, backerID string, now time.Time) error {
	if project.Status != types.ProjectStatusLive {
		return types.NewEligibilityError("project is not accepting backings")
	}

	if !now.Before(project.Deadline) {
		return types.NewEligibilityError("the funding deadline has passed")
	}

	if project.CreatorID == backerID {
		return types.NewEligibilityError("creators cannot back their own project")
	}

	return nil
}

func (s *Service) attachPayment(ctx context.Context, entry *logrus.Entry, backing *types.Backing, currency string) {
	if s.payments == nil {
		return
	}

	intentID, err := s.payments.CreatePaymentIntent(ctx, backing, currency)
	if err != nil {
		entry.WithError(err).Warn("failed to create payment intent")
		return
	}

	if err := s.store.SetPaymentIntent(ctx, backing.ID, intentID); err != nil {
		entry.WithError(err).Warn("failed to store payment intent")
		return
	}

	backing.PaymentIntentID = &intentID
}

// CancelBacking cancels on behalf of the backer or the project creator.
func (s *Service) CancelBacking(ctx context.Context, backingID, actorID string) (*types.Backing, error) {
	backing, err := s.store.Backing(ctx, backingID)
	if err != nil {
		return nil, err
	}

	if backing.BackerID != actorID {
		project, err := s.store.Project(ctx, backing.ProjectID)
		if err != nil {
			return nil, err
		}

		if project.CreatorID != actorID {
			return nil, types.NewPermissionError("only the backer or the project creator can cancel a backing")
		}
	}

	return s.cancel(ctx, backing)
}

// VoidBacking cancels a backing whose payment failed.
func (s *Service) VoidBacking(ctx context.Context, backingID string) (*types.Backing, error) {
	backing, err := s.store.Backing(ctx, backingID)
	if err != nil {
		return nil, err
	}

	return s.cancel(ctx, backing)
}

func (s *Service) cancel(ctx context.Context, backing *types.Backing) (*types.Backing, error) {
	entry := s.logger.WithFields(logrus.Fields{
		"operation":  "cancel_backing",
		"backing_id": backing.ID,
		"project_id": backing.ProjectID,
	})

	switch backing.Status {
	case types.BackingStatusFulfilled:
		return nil, types.NewInvalidStateError("fulfilled backings cannot be cancelled")
	case types.BackingStatusCancelled:
		return backing, nil
	}

	// the reversal must never be applied ahead of the pledge it reverses
	if err := s.settleBacking(ctx, backing.ID); err != nil {
		return nil, fmt.Errorf("failed to settle pledge before cancellation: %w", err)
	}

	now := s.clock()
	effect := s.newEffect(
		types.EffectKindCancellation,
		backing.ProjectID,
		&backing.ID,
		-backing.TotalAmountCents,
		-1,
		utils.EffectKey(string(types.EffectKindCancellation), backing.ID),
	)

	err := s.store.RecordCancellation(ctx, backing, effect, now)
	if errors.Is(err, types.ErrConcurrentModification) || errors.Is(err, types.ErrDuplicateKey) {
		current, getErr := s.store.Backing(ctx, backing.ID)
		if getErr != nil {
			return nil, getErr
		}

		switch current.Status {
		case types.BackingStatusCancelled:
			return current, nil
		case types.BackingStatusFulfilled:
			return nil, types.NewInvalidStateError("fulfilled backings cannot be cancelled")
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	backingCancellationsTotal.Inc()

	backing.Status = types.BackingStatusCancelled
	backing.CancelledAt = &now
	backing.UpdatedAt = now

	if err := s.ApplyEffect(ctx, effect.ID); err != nil {
		entry.WithError(err).WithField("effect_id", effect.ID).Warn("cancellation effect left pending for reconciliation")
	}

	entry.Info("backing cancelled")

	return backing, nil
}

// settleBacking applies the backing's pending effects in creation order.
func (s *Service) settleBacking(ctx context.Context, backingID string) error {
	effects, err := s.store.EffectsByBacking(ctx, backingID)
	if err != nil {
		return err
	}

	for _, effect := range effects {
		if effect.Status != types.EffectStatusPending {
			continue
		}

		if err := s.ApplyEffect(ctx, effect.ID); err != nil {
			return err
		}
	}

	return nil
}

// ConfirmBacking marks a pending backing as paid.
func (s *Service) ConfirmBacking(ctx context.Context, backingID string) (*types.Backing, error) {
	err := s.store.UpdateBackingStatus(ctx, backingID, []types.BackingStatus{types.BackingStatusPending}, types.BackingStatusConfirmed)
	if err != nil && !errors.Is(err, types.ErrConcurrentModification) {
		return nil, err
	}

	backing, getErr := s.store.Backing(ctx, backingID)
	if getErr != nil {
		return nil, getErr
	}

	if err != nil {
		switch backing.Status {
		case types.BackingStatusConfirmed, types.BackingStatusFulfilled:
			return backing, nil
		}
		return nil, types.NewInvalidStateError(fmt.Sprintf("a %s backing cannot be confirmed", backing.Status))
	}

	return backing, nil
}

// FulfillBacking is the creator's record that a confirmed backing's reward was delivered.
func (s *Service) FulfillBacking(ctx context.Context, backingID, actorID string) (*types.Backing, error) {
	backing, err := s.store.Backing(ctx, backingID)
	if err != nil {
		return nil, err
	}

	project, err := s.store.Project(ctx, backing.ProjectID)
	if err != nil {
		return nil, err
	}

	if project.CreatorID != actorID {
		return nil, types.NewPermissionError("only the project creator can fulfill a backing")
	}

	if backing.Status == types.BackingStatusFulfilled {
		return backing, nil
	}

	if backing.Status != types.BackingStatusConfirmed {
		return nil, types.NewInvalidStateError("only confirmed backings can be fulfilled")
	}

	err = s.store.UpdateBackingStatus(ctx, backingID, []types.BackingStatus{types.BackingStatusConfirmed}, types.BackingStatusFulfilled)
	if errors.Is(err, types.ErrConcurrentModification) {
		return nil, types.NewInvalidStateError("backing changed while it was being fulfilled")
	}
	if err != nil {
		return nil, err
	}

	backing.Status = types.BackingStatusFulfilled
	backing.UpdatedAt = s.clock()

	return backing, nil
}

// Backing hides contact details unless the viewer is the backer or the creator.
func (s *Service) Backing(ctx context.Context, backingID, viewerID string) (*types.Backing, error) {
	backing, err := s.store.Backing(ctx, backingID)
	if err != nil {
		return nil, err
	}

	if backing.BackerID == viewerID {
		return backing, nil
	}

	project, err := s.store.Project(ctx, backing.ProjectID)
	if err != nil {
		return nil, err
	}

	if project.CreatorID == viewerID {
		return backing, nil
	}

	return backing.Masked(), nil
}

// BackingsByProject lists every backing for the creator and only the counted,
// masked backings for anyone else.
func (s *Service) BackingsByProject(ctx context.Context, projectID, viewerID string) ([]*types.Backing, error) {
	project, err := s.store.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}

	backings, err := s.store.BackingsByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if project.CreatorID == viewerID {
		return backings, nil
	}

	out := make([]*types.Backing, 0, len(backings))
	for _, backing := range backings {
		if !backing.Counted() {
			continue
		}
		out = append(out, backing.Masked())
	}

	return out, nil
}

func (s *Service) BackingsByBacker(ctx context.Context, backerID string) ([]*types.Backing, error) {
	return s.store.BackingsByBacker(ctx, backerID)
}
