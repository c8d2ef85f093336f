package projects

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"crowdfund/internal/utils"
	"crowdfund/pkg/types"

	"github.com/sirupsen/logrus"
)

type MilestoneInput struct {
	Title             string    `json:"title" validate:"required,max=120"`
	Description       string    `json:"description" validate:"max=5000"`
	FundingPercentage int       `json:"fundingPercentage" validate:"gte=1,lte=100"`
	TargetDate        time.Time `json:"targetDate" validate:"required"`
	Deliverables      []string  `json:"deliverables" validate:"max=50,dive,required,max=500"`
}

type milestonePlan struct {
	Milestones []MilestoneInput `json:"milestones" validate:"required,min=1,max=20,dive"`
}

func fundingPercentages(milestones []*types.Milestone) []int {
	out := make([]int, len(milestones))
	for i, milestone := range milestones {
		out[i] = milestone.FundingPercentage
	}
	return out
}

func checkMilestonePercentages(percentages []int) error {
	if len(percentages) == 0 {
		return types.NewValidationError("milestones", "at least one milestone is required")
	}

	total := 0
	for _, p := range percentages {
		total += p
	}

	if total != 100 {
		return types.NewValidationError("milestones", fmt.Sprintf("funding percentages must add up to 100, got %d", total))
	}

	return nil
}

// SetMilestones replaces a draft project's milestone plan. Percentages must add
// up to exactly 100 and order follows the input.
func (s *Service) SetMilestones(ctx context.Context, projectID, actorID string, inputs []MilestoneInput) ([]*types.Milestone, error) {
	if err := utils.ValidateStruct(milestonePlan{Milestones: inputs}); err != nil {
		return nil, err
	}

	percentages := make([]int, len(inputs))
	for i, input := range inputs {
		percentages[i] = input.FundingPercentage
	}

	if err := checkMilestonePercentages(percentages); err != nil {
		return nil, err
	}

	project, err := s.ownedProject(ctx, projectID, actorID)
	if err != nil {
		return nil, err
	}

	if project.Status != types.ProjectStatusDraft {
		return nil, types.NewInvalidStateError("milestones are fixed once a project is published")
	}

	milestones := make([]*types.Milestone, len(inputs))
	for i, input := range inputs {
		milestones[i] = &types.Milestone{
			ProjectID:         projectID,
			Title:             strings.TrimSpace(input.Title),
			Description:       input.Description,
			SortOrder:         i + 1,
			FundingPercentage: input.FundingPercentage,
			TargetDate:        input.TargetDate,
			Status:            types.MilestoneStatusPending,
			Deliverables:      input.Deliverables,
			EvidenceKeys:      []string{},
		}
	}

	if err := s.store.ReplaceMilestones(ctx, projectID, milestones); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"project_id": projectID,
		"count":      len(milestones),
	}).Info("milestones replaced")

	return milestones, nil
}

func (s *Service) MilestonesByProject(ctx context.Context, projectID string) ([]*types.Milestone, error) {
	return s.store.MilestonesByProject(ctx, projectID)
}

// ownedMilestone loads a milestone of a published project created by actorID.
func (s *Service) ownedMilestone(ctx context.Context, milestoneID, actorID string) (*types.Milestone, error) {
	milestone, err := s.store.Milestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}

	project, err := s.ownedProject(ctx, milestone.ProjectID, actorID)
	if err != nil {
		return nil, err
	}

	switch project.Status {
	case types.ProjectStatusLive, types.ProjectStatusFunded:
		return milestone, nil
	}

	return nil, types.NewInvalidStateError(fmt.Sprintf("milestones of a %s project cannot change", project.Status))
}

func (s *Service) UpdateMilestoneStatus(ctx context.Context, milestoneID, actorID string, status types.MilestoneStatus) (*types.Milestone, error) {
	if !status.Valid() {
		return nil, types.NewValidationError("milestoneStatus", "is not a known milestone status")
	}

	milestone, err := s.ownedMilestone(ctx, milestoneID, actorID)
	if err != nil {
		return nil, err
	}

	if milestone.Status == status {
		return milestone, nil
	}

	if !milestone.Status.CanTransitionTo(status) {
		return nil, types.NewInvalidStateError(fmt.Sprintf("a %s milestone cannot move to %s", milestone.Status, status))
	}

	milestone.Status = status
	if status == types.MilestoneStatusCompleted {
		now := s.clock()
		milestone.CompletedAt = &now
	}

	if err := s.store.UpdateMilestone(ctx, milestone); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"milestone_id": milestoneID,
		"status":       status,
	}).Info("milestone status updated")

	return milestone, nil
}

func (s *Service) AddMilestoneEvidence(ctx context.Context, milestoneID, actorID, key string) (*types.Milestone, error) {
	milestone, err := s.ownedMilestone(ctx, milestoneID, actorID)
	if err != nil {
		return nil, err
	}

	if err := s.store.AddEvidence(ctx, milestoneID, key); err != nil {
		return nil, err
	}

	milestone.EvidenceKeys = append(milestone.EvidenceKeys, key)
	return milestone, nil
}

// SubmitFeedback adds a backer's 1 to 5 score to the milestone's running mean.
func (s *Service) SubmitFeedback(ctx context.Context, milestoneID, backerID string, score int) (*types.Milestone, error) {
	if score < types.MinFeedbackScore || score > types.MaxFeedbackScore {
		return nil, types.NewValidationError("score", fmt.Sprintf("must be between %d and %d", types.MinFeedbackScore, types.MaxFeedbackScore))
	}

	milestone, err := s.store.Milestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}

	project, err := s.store.Project(ctx, milestone.ProjectID)
	if err != nil {
		return nil, err
	}

	if project.CreatorID == backerID {
		return nil, types.NewPermissionError("creators cannot rate their own milestones")
	}

	if err := s.store.RecordFeedback(ctx, milestoneID, score); err != nil {
		return nil, err
	}

	milestoneFeedbackTotal.Inc()

	return s.store.Milestone(ctx, milestoneID)
}

func (s *Service) MilestoneProgress(ctx context.Context, projectID string) (*types.MilestoneProgress, error) {
	milestones, err := s.store.MilestonesByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	return summarizeMilestones(projectID, milestones, s.clock()), nil
}

func summarizeMilestones(projectID string, milestones []*types.Milestone, now time.Time) *types.MilestoneProgress {
	progress := &types.MilestoneProgress{
		ProjectID: projectID,
		Total:     len(milestones),
		ByStatus:  make(map[types.MilestoneStatus]int, len(types.MilestoneStatuses)),
	}

	for _, status := range types.MilestoneStatuses {
		progress.ByStatus[status] = 0
	}

	var scoreSum int64
	for _, milestone := range milestones {
		progress.ByStatus[milestone.Status]++

		if milestone.Status == types.MilestoneStatusCompleted {
			progress.Completed++
			progress.ReleasedFundingPercent += milestone.FundingPercentage
		}

		if milestone.Overdue(now) {
			progress.Overdue++
		}

		scoreSum += milestone.FeedbackScoreSum
		progress.FeedbackCount += milestone.FeedbackCount
	}

	if progress.Total > 0 {
		progress.CompletionPercent = roundTo2(float64(progress.Completed) / float64(progress.Total) * 100)
	}

	if progress.FeedbackCount > 0 {
		progress.AverageFeedbackScore = roundTo2(float64(scoreSum) / float64(progress.FeedbackCount))
	}

	return progress
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (s *Service) MarkOverdueMilestones(ctx context.Context) (int64, error) {
	marked, err := s.store.MarkOverdueMilestones(ctx, s.clock())
	if err != nil {
		return 0, err
	}

	if marked > 0 {
		overdueMilestonesTotal.Add(float64(marked))
		s.logger.WithField("count", marked).Info("milestones marked overdue")
	}

	return marked, nil
}
