package projects

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crowdfund/internal/utils"
	"crowdfund/pkg/types"
)

type TierInput struct {
	Title             string     `json:"title" validate:"required,max=120"`
	Description       string     `json:"description" validate:"max=2000"`
	PledgeAmountCents int64      `json:"pledgeAmount" validate:"gte=100,lte=10000000"`
	IsLimited         bool       `json:"isLimited"`
	QuantityLimit     int        `json:"quantityLimit" validate:"required_if=IsLimited true,gte=0"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
	ShippingRequired  bool       `json:"shippingRequired"`
}

func (in TierInput) apply(tier *types.RewardTier) {
	tier.Title = in.Title
	tier.Description = in.Description
	tier.PledgeAmountCents = in.PledgeAmountCents
	tier.IsLimited = in.IsLimited
	tier.QuantityLimit = in.QuantityLimit
	tier.EstimatedDelivery = in.EstimatedDelivery
	tier.ShippingRequired = in.ShippingRequired
	if !in.IsLimited {
		tier.QuantityLimit = 0
	}
}

func (s *Service) editableProject(ctx context.Context, projectID, actorID string) (*types.Project, error) {
	project, err := s.ownedProject(ctx, projectID, actorID)
	if err != nil {
		return nil, err
	}

	switch project.Status {
	case types.ProjectStatusDraft, types.ProjectStatusLive:
		return project, nil
	}

	return nil, types.NewInvalidStateError(fmt.Sprintf("a %s project cannot be edited", project.Status))
}

func (s *Service) CreateTier(ctx context.Context, projectID, actorID string, input TierInput) (*types.RewardTier, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	if _, err := s.editableProject(ctx, projectID, actorID); err != nil {
		return nil, err
	}

	tier := &types.RewardTier{ProjectID: projectID}
	input.apply(tier)

	if err := s.store.CreateTier(ctx, tier); err != nil {
		return nil, err
	}

	return tier, nil
}

// UpdateTier refuses to lower a limit below the number of rewards already claimed.
func (s *Service) UpdateTier(ctx context.Context, tierID, actorID string, input TierInput) (*types.RewardTier, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	tier, err := s.store.RewardTier(ctx, tierID)
	if err != nil {
		return nil, err
	}

	if _, err := s.editableProject(ctx, tier.ProjectID, actorID); err != nil {
		return nil, err
	}

	expected := tier.Version
	input.apply(tier)

	if tier.IsLimited && tier.QuantityLimit < tier.ClaimedCount {
		return nil, types.NewValidationError("quantityLimit", fmt.Sprintf("cannot be below the %d rewards already claimed", tier.ClaimedCount))
	}

	err = s.store.UpdateTier(ctx, tier, expected)
	if errors.Is(err, types.ErrConcurrentModification) {
		// a claim may have landed between the read and the write
		current, getErr := s.store.RewardTier(ctx, tierID)
		if getErr != nil {
			return nil, getErr
		}
		if input.IsLimited && input.QuantityLimit < current.ClaimedCount {
			return nil, types.NewValidationError("quantityLimit", fmt.Sprintf("cannot be below the %d rewards already claimed", current.ClaimedCount))
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	return tier, nil
}

func (s *Service) DeleteTier(ctx context.Context, tierID, actorID string) error {
	tier, err := s.store.RewardTier(ctx, tierID)
	if err != nil {
		return err
	}

	if _, err := s.editableProject(ctx, tier.ProjectID, actorID); err != nil {
		return err
	}

	if tier.ClaimedCount > 0 {
		return types.NewInvalidStateError("reward tiers with claimed rewards cannot be deleted")
	}

	err = s.store.DeleteTier(ctx, tierID)
	if errors.Is(err, types.ErrConcurrentModification) {
		return types.NewInvalidStateError("reward tiers with claimed rewards cannot be deleted")
	}

	return err
}

func (s *Service) TiersByProject(ctx context.Context, projectID string) ([]*types.RewardTier, error) {
	return s.store.TiersByProject(ctx, projectID)
}
