package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crowdfund/internal/storage"
	"crowdfund/internal/utils"
	"crowdfund/pkg/types"

	"github.com/sirupsen/logrus"
)

const maxProjectImages = 10

type ProjectInput struct {
	Title               string `json:"title" validate:"required,max=120"`
	Tagline             string `json:"tagline" validate:"max=200"`
	Description         string `json:"description" validate:"max=20000"`
	Category            string `json:"category" validate:"required,max=60"`
	FundingGoalCents    int64  `json:"fundingGoal" validate:"gt=0,lte=1000000000"`
	Currency            string `json:"currency" validate:"omitempty,len=3,alpha"`
	FundingDurationDays int    `json:"fundingDuration" validate:"gte=1,lte=90"`
}

func (in ProjectInput) currency() string {
	if in.Currency == "" {
		return types.DefaultCurrency
	}
	return strings.ToUpper(in.Currency)
}

// CreateProject stores a draft. Its deadline is provisional until publish.
func (s *Service) CreateProject(ctx context.Context, creatorID string, input ProjectInput) (*types.Project, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	project := &types.Project{
		CreatorID:           creatorID,
		Title:               strings.TrimSpace(input.Title),
		Tagline:             input.Tagline,
		Description:         input.Description,
		Category:            input.Category,
		FundingGoalCents:    input.FundingGoalCents,
		Currency:            input.currency(),
		Status:              types.ProjectStatusDraft,
		FundingDurationDays: input.FundingDurationDays,
		ImageKeys:           []string{},
	}
	project.Deadline = project.FundingWindowEnd(s.clock())

	if err := s.store.CreateProject(ctx, project); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"project_id": project.ID,
		"creator_id": creatorID,
	}).Info("project created")

	return project, nil
}

// UpdateProject edits a draft or live project. The goal is frozen once live.
func (s *Service) UpdateProject(ctx context.Context, projectID, actorID string, input ProjectInput) (*types.Project, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	now := s.clock()

	return s.mutateProject(ctx, projectID, func(project *types.Project) error {
		if err := requireOwner(project, actorID); err != nil {
			return err
		}

		switch project.Status {
		case types.ProjectStatusDraft:
			project.FundingGoalCents = input.FundingGoalCents
			project.Currency = input.currency()
			project.FundingDurationDays = input.FundingDurationDays
			project.Deadline = project.FundingWindowEnd(now)
		case types.ProjectStatusLive:
			if input.FundingGoalCents != project.FundingGoalCents {
				return types.NewValidationError("fundingGoal", "cannot change once the project is live")
			}
			if input.currency() != project.Currency {
				return types.NewValidationError("currency", "cannot change once the project is live")
			}

			project.FundingDurationDays = input.FundingDurationDays
			project.Deadline = project.FundingWindowEnd(*project.PublishedAt)
			if !now.Before(project.Deadline) {
				return types.NewValidationError("fundingDuration", "would end the funding window in the past")
			}
		default:
			return types.NewInvalidStateError(fmt.Sprintf("a %s project cannot be edited", project.Status))
		}

		project.Title = strings.TrimSpace(input.Title)
		project.Tagline = input.Tagline
		project.Description = input.Description
		project.Category = input.Category
		return nil
	})
}

// PublishProject opens the funding window. A project needs at least one
// reward tier and a complete milestone plan first.
func (s *Service) PublishProject(ctx context.Context, projectID, actorID string) (*types.Project, error) {
	project, err := s.ownedProject(ctx, projectID, actorID)
	if err != nil {
		return nil, err
	}

	if project.Status != types.ProjectStatusDraft {
		return nil, types.NewInvalidStateError("only draft projects can be published")
	}

	tiers, err := s.store.TiersByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if len(tiers) == 0 {
		return nil, types.NewValidationError("rewardTiers", "at least one reward tier is required to publish")
	}

	milestones, err := s.store.MilestonesByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if err := checkMilestonePercentages(fundingPercentages(milestones)); err != nil {
		return nil, err
	}

	now := s.clock()

	project, err = s.mutateProject(ctx, projectID, func(project *types.Project) error {
		if project.Status != types.ProjectStatusDraft {
			return types.NewInvalidStateError("only draft projects can be published")
		}

		project.Status = types.ProjectStatusLive
		project.PublishedAt = &now
		project.Deadline = project.FundingWindowEnd(now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	projectTransitionsTotal.WithLabelValues(string(types.ProjectStatusLive)).Inc()
	s.logger.WithField("project_id", projectID).WithField("deadline", project.Deadline).Info("project published")

	return project, nil
}

func (s *Service) CancelProject(ctx context.Context, projectID, actorID string) (*types.Project, error) {
	project, err := s.mutateProject(ctx, projectID, func(project *types.Project) error {
		if err := requireOwner(project, actorID); err != nil {
			return err
		}

		switch project.Status {
		case types.ProjectStatusDraft, types.ProjectStatusLive:
		default:
			return types.NewInvalidStateError(fmt.Sprintf("a %s project cannot be cancelled", project.Status))
		}

		project.Status = types.ProjectStatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	projectTransitionsTotal.WithLabelValues(string(types.ProjectStatusCancelled)).Inc()
	s.logger.WithField("project_id", projectID).Info("project cancelled")

	return project, nil
}

// CompleteProject closes out a funded project once every milestone is done.
func (s *Service) CompleteProject(ctx context.Context, projectID, actorID string) (*types.Project, error) {
	milestones, err := s.store.MilestonesByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if len(milestones) == 0 {
		return nil, types.NewInvalidStateError("project has no milestones")
	}

	for _, milestone := range milestones {
		if milestone.Status != types.MilestoneStatusCompleted {
			return nil, types.NewInvalidStateError(fmt.Sprintf("milestone %q is not completed", milestone.Title))
		}
	}

	project, err := s.mutateProject(ctx, projectID, func(project *types.Project) error {
		if err := requireOwner(project, actorID); err != nil {
			return err
		}

		if project.Status != types.ProjectStatusFunded {
			return types.NewInvalidStateError("only funded projects can be completed")
		}

		project.Status = types.ProjectStatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	projectTransitionsTotal.WithLabelValues(string(types.ProjectStatusCompleted)).Inc()
	return project, nil
}

type CloseReport struct {
	Funded    int `json:"funded"`
	Cancelled int `json:"cancelled"`
	Deferred  int `json:"deferred"`
	Failed    int `json:"failed"`
}

// CloseExpiredProjects settles every live project whose deadline has passed:
// funded when the goal was reached, cancelled otherwise. Pending funding
// effects are applied first; a project whose effects cannot all be applied
// stays live until a later run.
func (s *Service) CloseExpiredProjects(ctx context.Context) (*CloseReport, error) {
	now := s.clock()

	expired, err := s.store.LiveProjectsPastDeadline(ctx, now)
	if err != nil {
		return nil, err
	}

	report := new(CloseReport)
	for _, candidate := range expired {
		if s.funding != nil {
			if err := s.funding.SettleProject(ctx, candidate.ID); err != nil {
				report.Deferred++
				s.logger.WithError(err).WithField("project_id", candidate.ID).Warn("expired project has unsettled funding, closing deferred")
				continue
			}
		}

		var outcome types.ProjectStatus

		_, err := s.mutateProject(ctx, candidate.ID, func(project *types.Project) error {
			if project.Status != types.ProjectStatusLive || now.Before(project.Deadline) {
				return errProjectSkipped
			}

			outcome = types.ProjectStatusCancelled
			if project.GoalReached() {
				outcome = types.ProjectStatusFunded
			}
			project.Status = outcome
			return nil
		})
		switch {
		case errors.Is(err, errProjectSkipped):
			continue
		case err != nil:
			report.Failed++
			s.logger.WithError(err).WithField("project_id", candidate.ID).Error("failed to close expired project")
			continue
		}

		projectTransitionsTotal.WithLabelValues(string(outcome)).Inc()
		if outcome == types.ProjectStatusFunded {
			report.Funded++
		} else {
			report.Cancelled++
		}
	}

	if len(expired) > 0 {
		s.logger.WithFields(logrus.Fields{
			"funded":    report.Funded,
			"cancelled": report.Cancelled,
			"deferred":  report.Deferred,
			"failed":    report.Failed,
		}).Info("expired projects closed")
	}

	return report, nil
}

var errProjectSkipped = errors.New("project no longer needs closing")

// DeleteProject removes a draft along with its uploaded images.
func (s *Service) DeleteProject(ctx context.Context, projectID, actorID string) error {
	project, err := s.ownedProject(ctx, projectID, actorID)
	if err != nil {
		return err
	}

	if project.Status != types.ProjectStatusDraft {
		return types.NewInvalidStateError("only draft projects can be deleted")
	}

	err = s.store.DeleteProject(ctx, projectID)
	if errors.Is(err, types.ErrConcurrentModification) {
		return types.NewInvalidStateError("only draft projects can be deleted")
	}
	if err != nil {
		return err
	}

	if s.objects != nil {
		for _, key := range project.ImageKeys {
			if err := s.objects.Delete(ctx, storage.BucketProjectImages, key); err != nil {
				s.logger.WithError(err).WithField("key", key).Warn("failed to delete project image")
			}
		}
	}

	s.logger.WithField("project_id", projectID).Info("project deleted")

	return nil
}

// AddProjectImage records an uploaded image key on the project.
func (s *Service) AddProjectImage(ctx context.Context, projectID, actorID, key string) (*types.Project, error) {
	return s.mutateProject(ctx, projectID, func(project *types.Project) error {
		if err := requireOwner(project, actorID); err != nil {
			return err
		}

		switch project.Status {
		case types.ProjectStatusDraft, types.ProjectStatusLive:
		default:
			return types.NewInvalidStateError(fmt.Sprintf("a %s project cannot be edited", project.Status))
		}

		if len(project.ImageKeys) >= maxProjectImages {
			return types.NewValidationError("images", fmt.Sprintf("a project can have at most %d images", maxProjectImages))
		}

		project.ImageKeys = append(project.ImageKeys, key)
		return nil
	})
}

// Project hides drafts from everyone but their creator.
func (s *Service) Project(ctx context.Context, projectID, viewerID string) (*types.Project, error) {
	project, err := s.store.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if project.Status == types.ProjectStatusDraft && project.CreatorID != viewerID {
		return nil, types.ErrProjectNotFound
	}

	return project, nil
}

// ListProjects only lists drafts when a creator asks for their own.
func (s *Service) ListProjects(ctx context.Context, filter types.ProjectFilter, viewerID string) ([]*types.Project, error) {
	if filter.Status == types.ProjectStatusDraft && (filter.CreatorID == "" || filter.CreatorID != viewerID) {
		return nil, types.NewPermissionError("drafts are only visible to their creator")
	}

	projects, err := s.store.Projects(ctx, filter)
	if err != nil {
		return nil, err
	}

	if filter.CreatorID != "" && filter.CreatorID == viewerID {
		return projects, nil
	}

	out := make([]*types.Project, 0, len(projects))
	for _, project := range projects {
		if project.Status != types.ProjectStatusDraft {
			out = append(out, project)
		}
	}

	return out, nil
}
