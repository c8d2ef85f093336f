package projects

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"crowdfund/pkg/types"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func mustService(t *testing.T, store *memStore, objects ObjectStore) (*Service, *testClock) {
	t.Helper()

	logger, _ := test.NewNullLogger()
	clock := &testClock{now: testNow}

	svc, err := NewService(ServiceConfig{
		Store:                store,
		Objects:              objects,
		Logger:               logger,
		Clock:                clock.Now,
		RetryMaxTries:        10,
		RetryInitialInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return svc, clock
}

func projectInput() ProjectInput {
	return ProjectInput{
		Title:               "Pocket Synth",
		Tagline:             "A synthesizer that fits in your pocket",
		Category:            "music",
		FundingGoalCents:    500000,
		FundingDurationDays: 30,
	}
}

func mustDraft(t *testing.T, svc *Service) *types.Project {
	t.Helper()
	project, err := svc.CreateProject(context.Background(), "creator-1", projectInput())
	require.NoError(t, err)
	return project
}

// mustPublishable gives a draft one tier and a complete milestone plan.
func mustPublishable(t *testing.T, svc *Service, projectID string) {
	t.Helper()
	ctx := context.Background()

	_, err := svc.CreateTier(ctx, projectID, "creator-1", TierInput{Title: "Early bird", PledgeAmountCents: 2500})
	require.NoError(t, err)

	_, err = svc.SetMilestones(ctx, projectID, "creator-1", []MilestoneInput{
		{Title: "Prototype", FundingPercentage: 40, TargetDate: testNow.AddDate(0, 2, 0)},
		{Title: "Production", FundingPercentage: 60, TargetDate: testNow.AddDate(0, 6, 0)},
	})
	require.NoError(t, err)
}

func TestCreateProject(t *testing.T) {
	store := newMemStore()
	svc, _ := mustService(t, store, nil)

	project := mustDraft(t, svc)
	assert.Equal(t, types.ProjectStatusDraft, project.Status)
	assert.Equal(t, "USD", project.Currency)
	assert.Equal(t, testNow.AddDate(0, 0, 30), project.Deadline)
	assert.Nil(t, project.PublishedAt)
	assert.Equal(t, int64(1), project.Version)
}

func TestCreateProjectValidation(t *testing.T) {
	svc, _ := mustService(t, newMemStore(), nil)

	tests := []struct {
		name   string
		modify func(*ProjectInput)
		field  string
	}{
		{name: "zero goal", modify: func(in *ProjectInput) { in.FundingGoalCents = 0 }, field: "fundingGoal"},
		{name: "goal above maximum", modify: func(in *ProjectInput) { in.FundingGoalCents = types.MaxFundingGoalCents + 1 }, field: "fundingGoal"},
		{name: "zero duration", modify: func(in *ProjectInput) { in.FundingDurationDays = 0 }, field: "fundingDuration"},
		{name: "duration above maximum", modify: func(in *ProjectInput) { in.FundingDurationDays = 91 }, field: "fundingDuration"},
		{name: "missing title", modify: func(in *ProjectInput) { in.Title = "" }, field: "title"},
		{name: "bad currency", modify: func(in *ProjectInput) { in.Currency = "DOLLARS" }, field: "currency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := projectInput()
			tt.modify(&input)

			_, err := svc.CreateProject(context.Background(), "creator-1", input)
			require.Error(t, err)
			assert.Equal(t, types.CodeValidation, types.CodeOf(err))
			assert.Equal(t, tt.field, types.FieldOf(err))
		})
	}
}

func TestUpdateDraftRecomputesDeadline(t *testing.T) {
	svc, clock := mustService(t, newMemStore(), nil)
	project := mustDraft(t, svc)

	clock.now = testNow.AddDate(0, 0, 5)

	input := projectInput()
	input.FundingDurationDays = 45
	input.FundingGoalCents = 900000

	updated, err := svc.UpdateProject(context.Background(), project.ID, "creator-1", input)
	require.NoError(t, err)
	assert.Equal(t, clock.now.AddDate(0, 0, 45), updated.Deadline)
	assert.Equal(t, int64(900000), updated.FundingGoalCents)
	assert.Equal(t, int64(2), updated.Version)

	_, err = svc.UpdateProject(context.Background(), project.ID, "someone-else", input)
	assert.Equal(t, types.CodePermissionDenied, types.CodeOf(err))
}

func TestPublishProject(t *testing.T) {
	store := newMemStore()
	svc, clock := mustService(t, store, nil)
	ctx := context.Background()

	project := mustDraft(t, svc)

	_, err := svc.PublishProject(ctx, project.ID, "creator-1")
	assert.Equal(t, "rewardTiers", types.FieldOf(err))

	mustPublishable(t, svc, project.ID)

	// the funding window opens at publish, not at creation
	clock.now = testNow.AddDate(0, 0, 10)

	live, err := svc.PublishProject(ctx, project.ID, "creator-1")
	require.NoError(t, err)
	assert.Equal(t, types.ProjectStatusLive, live.Status)
	require.NotNil(t, live.PublishedAt)
	assert.Equal(t, clock.now, *live.PublishedAt)
	assert.Equal(t, clock.now.AddDate(0, 0, 30), live.Deadline)

	_, err = svc.PublishProject(ctx, project.ID, "creator-1")
	assert.Equal(t, types.CodeInvalidState, types.CodeOf(err))
}

func TestPublishRequiresCompleteMilestonePlan(t *testing.T) {
	store := newMemStore()
	svc, _ := mustService(t, store, nil)
	ctx := context.Background()

	project := mustDraft(t, svc)
	_, err := svc.CreateTier(ctx, project.ID, "creator-1", TierInput{Title: "Thanks", PledgeAmountCents: 500})
	require.NoError(t, err)

	// seeded directly, bypassing SetMilestones
	store.putMilestone(&types.Milestone{ID: "m1", ProjectID: project.ID, SortOrder: 1, FundingPercentage: 70})

	_, err = svc.PublishProject(ctx, project.ID, "creator-1")
	require.Error(t, err)
	assert.Equal(t, "milestones", types.FieldOf(err))
}

func TestLiveProjectEditsRetryVersionConflicts(t *testing.T) {
	store := newMemStore()
	svc, clock := mustService(t, store, nil)
	ctx := context.Background()

	project := mustDraft(t, svc)
	mustPublishable(t, svc, project.ID)
	live, err := svc.PublishProject(ctx, project.ID, "creator-1")
	require.NoError(t, err)

	store.conflicts = 2

	input := projectInput()
	input.Title = "Pocket Synth Pro"
	input.FundingDurationDays = 60

	updated, err := svc.UpdateProject(ctx, project.ID, "creator-1", input)
	require.NoError(t, err)
	assert.Equal(t, "Pocket Synth Pro", updated.Title)
	assert.Equal(t, live.PublishedAt.AddDate(0, 0, 60), updated.Deadline)

	// funding that landed during the retries survives the edit
	stored, err := store.Project(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), stored.CurrentFundingCents)
	assert.Equal(t, 2, stored.BackerCount)

	input.FundingGoalCents = 1
	_, err = svc.UpdateProject(ctx, project.ID, "creator-1", input)
	assert.Equal(t, "fundingGoal", types.FieldOf(err))

	clock.now = testNow.AddDate(0, 0, 20)
	input = projectInput()
	input.FundingDurationDays = 10
	_, err = svc.UpdateProject(ctx, project.ID, "creator-1", input)
	assert.Equal(t, "fundingDuration", types.FieldOf(err))
}

func TestCancelProject(t *testing.T) {
	store := newMemStore()
	svc, _ := mustService(t, store, nil)
	ctx := context.Background()

	project := mustDraft(t, svc)

	_, err := svc.CancelProject(ctx, project.ID, "someone-else")
	assert.Equal(t, types.CodePermissionDenied, types.CodeOf(err))

	cancelled, err := svc.CancelProject(ctx, project.ID, "creator-1")
	require.NoError(t, err)
	assert.Equal(t, types.ProjectStatusCancelled, cancelled.Status)

	_, err = svc.CancelProject(ctx, project.ID, "creator-1")
	assert.Equal(t, types.CodeInvalidState, types.CodeOf(err))
}

func TestCloseExpiredProjects(t *testing.T) {
	store := newMemStore()
	svc, _ := mustService(t, store, nil)
	ctx := context.Background()

	past := testNow.Add(-time.Hour)
	store.putProject(&types.Project{ID: "reached", Status: types.ProjectStatusLive, FundingGoalCents: 1000, CurrentFundingCents: 1200, Deadline: past})
	store.putProject(&types.Project{ID: "missed", Status: types.ProjectStatusLive, FundingGoalCents: 1000, CurrentFundingCents: 999, Deadline: past})
	store.putProject(&types.Project{ID: "running", Status: types.ProjectStatusLive, FundingGoalCents: 1000, Deadline: testNow.Add(time.Hour)})

	report, err := svc.CloseExpiredProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, &CloseReport{Funded: 1, Cancelled: 1}, report)

	for id, want := range map[string]types.ProjectStatus{
		"reached": types.ProjectStatusFunded,
		"missed":  types.ProjectStatusCancelled,
		"running": types.ProjectStatusLive,
	} {
		project, err := store.Project(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, project.Status, id)
	}
}

type fakeSettler struct {
	store   *memStore
	pending map[string]int64
	stuck   map[string]bool
	settled []string
}

func (f *fakeSettler) SettleProject(_ context.Context, projectID string) error {
	f.settled = append(f.settled, projectID)
	if f.stuck[projectID] {
		return errors.New("funding effect still pending")
	}

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.projects[projectID].CurrentFundingCents += f.pending[projectID]
	delete(f.pending, projectID)
	return nil
}

func TestCloseExpiredProjectsSettlesFundingFirst(t *testing.T) {
	store := newMemStore()
	svc, _ := mustService(t, store, nil)
	ctx := context.Background()

	past := testNow.Add(-time.Hour)
	store.putProject(&types.Project{ID: "late-pledge", Status: types.ProjectStatusLive, FundingGoalCents: 1000, CurrentFundingCents: 800, Deadline: past})
	store.putProject(&types.Project{ID: "stuck", Status: types.ProjectStatusLive, FundingGoalCents: 1000, CurrentFundingCents: 800, Deadline: past})

	settler := &fakeSettler{
		store:   store,
		pending: map[string]int64{"late-pledge": 300, "stuck": 300},
		stuck:   map[string]bool{"stuck": true},
	}
	svc.funding = settler

	report, err := svc.CloseExpiredProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, &CloseReport{Funded: 1, Deferred: 1}, report)
	assert.ElementsMatch(t, []string{"late-pledge", "stuck"}, settler.settled)

	project, err := store.Project(ctx, "late-pledge")
	require.NoError(t, err)
	assert.Equal(t, types.ProjectStatusFunded, project.Status)
	assert.Equal(t, int64(1100), project.CurrentFundingCents)

	project, err = store.Project(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, types.ProjectStatusLive, project.Status)

	settler.stuck = nil
	report, err = svc.CloseExpiredProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, &CloseReport{Funded: 1}, report)
}

func TestCompleteProject(t *testing.T) {
	store := newMemStore()
	svc, _ := mustService(t, store, nil)
	ctx := context.Background()

	store.putProject(&types.Project{ID: "p1", CreatorID: "creator-1", Status: types.ProjectStatusFunded})
	store.putMilestone(&types.Milestone{ID: "m1", ProjectID: "p1", SortOrder: 1, FundingPercentage: 50, Status: types.MilestoneStatusCompleted})
	store.putMilestone(&types.Milestone{ID: "m2", ProjectID: "p1", SortOrder: 2, FundingPercentage: 50, Status: types.MilestoneStatusReview})

	_, err := svc.CompleteProject(ctx, "p1", "creator-1")
	assert.Equal(t, types.CodeInvalidState, types.CodeOf(err))

	_, err = svc.UpdateMilestoneStatus(ctx, "m2", "creator-1", types.MilestoneStatusCompleted)
	require.NoError(t, err)

	completed, err := svc.CompleteProject(ctx, "p1", "creator-1")
	require.NoError(t, err)
	assert.Equal(t, types.ProjectStatusCompleted, completed.Status)
}

func TestDeleteProject(t *testing.T) {
	store := newMemStore()
	objects := &fakeObjects{}
	svc, _ := mustService(t, store, objects)
	ctx := context.Background()

	project := mustDraft(t, svc)
	_, err := svc.AddProjectImage(ctx, project.ID, "creator-1", "creator-1/cover.png")
	require.NoError(t, err)

	assert.Equal(t, types.CodePermissionDenied, types.CodeOf(svc.DeleteProject(ctx, project.ID, "someone-else")))

	require.NoError(t, svc.DeleteProject(ctx, project.ID, "creator-1"))
	assert.Equal(t, []string{"project_images/creator-1/cover.png"}, objects.deleted)

	_, err = store.Project(ctx, project.ID)
	assert.ErrorIs(t, err, types.ErrProjectNotFound)

	store.putProject(&types.Project{ID: "live", CreatorID: "creator-1", Status: types.ProjectStatusLive})
	assert.Equal(t, types.CodeInvalidState, types.CodeOf(svc.DeleteProject(ctx, "live", "creator-1")))
}

func TestDraftsAreOnlyVisibleToTheirCreator(t *testing.T) {
	store := newMemStore()
	svc, _ := mustService(t, store, nil)
	ctx := context.Background()

	project := mustDraft(t, svc)
	store.putProject(&types.Project{ID: "live", CreatorID: "creator-1", Status: types.ProjectStatusLive})

	_, err := svc.Project(ctx, project.ID, "visitor")
	assert.ErrorIs(t, err, types.ErrProjectNotFound)

	own, err := svc.Project(ctx, project.ID, "creator-1")
	require.NoError(t, err)
	assert.Equal(t, project.ID, own.ID)

	public, err := svc.ListProjects(ctx, types.ProjectFilter{}, "visitor")
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, "live", public[0].ID)

	mine, err := svc.ListProjects(ctx, types.ProjectFilter{CreatorID: "creator-1"}, "creator-1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	_, err = svc.ListProjects(ctx, types.ProjectFilter{Status: types.ProjectStatusDraft}, "visitor")
	assert.Equal(t, types.CodePermissionDenied, types.CodeOf(err))
}

func TestRewardTiers(t *testing.T) {
	store := newMemStore()
	svc, _ := mustService(t, store, nil)
	ctx := context.Background()

	project := mustDraft(t, svc)

	_, err := svc.CreateTier(ctx, project.ID, "creator-1", TierInput{Title: "Limited", PledgeAmountCents: 5000, IsLimited: true})
	assert.Equal(t, "quantityLimit", types.FieldOf(err))

	_, err = svc.CreateTier(ctx, project.ID, "someone-else", TierInput{Title: "Thanks", PledgeAmountCents: 500})
	assert.Equal(t, types.CodePermissionDenied, types.CodeOf(err))

	tier, err := svc.CreateTier(ctx, project.ID, "creator-1", TierInput{Title: "Limited", PledgeAmountCents: 5000, IsLimited: true, QuantityLimit: 10})
	require.NoError(t, err)

	store.mu.Lock()
	store.tiers[tier.ID].ClaimedCount = 4
	store.mu.Unlock()

	_, err = svc.UpdateTier(ctx, tier.ID, "creator-1", TierInput{Title: "Limited", PledgeAmountCents: 5000, IsLimited: true, QuantityLimit: 3})
	assert.Equal(t, "quantityLimit", types.FieldOf(err))

	updated, err := svc.UpdateTier(ctx, tier.ID, "creator-1", TierInput{Title: "Limited", PledgeAmountCents: 5000, IsLimited: true, QuantityLimit: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.QuantityLimit)
	assert.Equal(t, 4, updated.ClaimedCount)
	assert.False(t, updated.Available())

	assert.Equal(t, types.CodeInvalidState, types.CodeOf(svc.DeleteTier(ctx, tier.ID, "creator-1")))

	free, err := svc.CreateTier(ctx, project.ID, "creator-1", TierInput{Title: "Thanks", PledgeAmountCents: 500})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteTier(ctx, free.ID, "creator-1"))

	tiers, err := svc.TiersByProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Len(t, tiers, 1)
}

func TestSetMilestones(t *testing.T) {
	tests := []struct {
		name        string
		percentages []int
		field       string
	}{
		{name: "exactly 100", percentages: []int{25, 25, 50}},
		{name: "single milestone", percentages: []int{100}},
		{name: "under 100", percentages: []int{50, 40}, field: "milestones"},
		{name: "over 100", percentages: []int{60, 60}, field: "milestones"},
		{name: "zero share", percentages: []int{0, 100}, field: "milestones[0].fundingPercentage"},
		{name: "empty plan", percentages: []int{}, field: "milestones"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			svc, _ := mustService(t, store, nil)
			project := mustDraft(t, svc)

			inputs := make([]MilestoneInput, len(tt.percentages))
			for i, p := range tt.percentages {
				inputs[i] = MilestoneInput{Title: "Step", FundingPercentage: p, TargetDate: testNow.AddDate(0, i+1, 0)}
			}

			milestones, err := svc.SetMilestones(context.Background(), project.ID, "creator-1", inputs)
			if tt.field != "" {
				require.Error(t, err)
				assert.Equal(t, types.CodeValidation, types.CodeOf(err))
				assert.Equal(t, tt.field, types.FieldOf(err))
				return
			}

			require.NoError(t, err)
			for i, milestone := range milestones {
				assert.Equal(t, i+1, milestone.SortOrder)
				assert.Equal(t, types.MilestoneStatusPending, milestone.Status)
			}
		})
	}
}

func TestSetMilestonesOnlyOnDrafts(t *testing.T) {
	store := newMemStore()
	svc, _ := mustService(t, store, nil)
	store.putProject(&types.Project{ID: "live", CreatorID: "creator-1", Status: types.ProjectStatusLive})

	_, err := svc.SetMilestones(context.Background(), "live", "creator-1", []MilestoneInput{
		{Title: "All of it", FundingPercentage: 100, TargetDate: testNow.AddDate(0, 1, 0)},
	})
	assert.Equal(t, types.CodeInvalidState, types.CodeOf(err))
}

func TestUpdateMilestoneStatus(t *testing.T) {
	store := newMemStore()
	svc, clock := mustService(t, store, nil)
	ctx := context.Background()

	store.putProject(&types.Project{ID: "p1", CreatorID: "creator-1", Status: types.ProjectStatusFunded})
	store.putMilestone(&types.Milestone{ID: "m1", ProjectID: "p1", SortOrder: 1, FundingPercentage: 100, Status: types.MilestoneStatusPending})

	_, err := svc.UpdateMilestoneStatus(ctx, "m1", "creator-1", types.MilestoneStatusCompleted)
	assert.Equal(t, types.CodeInvalidState, types.CodeOf(err))

	_, err = svc.UpdateMilestoneStatus(ctx, "m1", "creator-1", "finished")
	assert.Equal(t, types.CodeValidation, types.CodeOf(err))

	_, err = svc.UpdateMilestoneStatus(ctx, "m1", "backer-1", types.MilestoneStatusInProgress)
	assert.Equal(t, types.CodePermissionDenied, types.CodeOf(err))

	for _, status := range []types.MilestoneStatus{types.MilestoneStatusInProgress, types.MilestoneStatusReview} {
		_, err = svc.UpdateMilestoneStatus(ctx, "m1", "creator-1", status)
		require.NoError(t, err)
	}

	clock.now = testNow.Add(time.Hour)
	done, err := svc.UpdateMilestoneStatus(ctx, "m1", "creator-1", types.MilestoneStatusCompleted)
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, clock.now, *done.CompletedAt)

	evidence, err := svc.AddMilestoneEvidence(ctx, "m1", "creator-1", "creator-1/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{"creator-1/report.pdf"}, evidence.EvidenceKeys)
}

func TestSubmitFeedbackKeepsTrueMean(t *testing.T) {
	store := newMemStore()
	svc, _ := mustService(t, store, nil)
	ctx := context.Background()

	store.putProject(&types.Project{ID: "p1", CreatorID: "creator-1", Status: types.ProjectStatusFunded})
	store.putMilestone(&types.Milestone{ID: "m1", ProjectID: "p1", SortOrder: 1, FundingPercentage: 100})

	var milestone *types.Milestone
	for _, score := range []int{5, 5, 2} {
		var err error
		milestone, err = svc.SubmitFeedback(ctx, "m1", "backer-1", score)
		require.NoError(t, err)
	}

	// averaging pairwise would give 3.5
	assert.Equal(t, int64(3), milestone.FeedbackCount)
	assert.InDelta(t, 4.0, milestone.FeedbackScore(), 1e-9)

	_, err := svc.SubmitFeedback(ctx, "m1", "backer-1", 6)
	assert.Equal(t, "score", types.FieldOf(err))

	_, err = svc.SubmitFeedback(ctx, "m1", "creator-1", 5)
	assert.Equal(t, types.CodePermissionDenied, types.CodeOf(err))
}

func TestMilestoneProgress(t *testing.T) {
	store := newMemStore()
	svc, _ := mustService(t, store, nil)
	ctx := context.Background()

	completedAt := testNow.AddDate(0, 0, -20)
	store.putMilestone(&types.Milestone{ID: "m1", ProjectID: "p1", SortOrder: 1, FundingPercentage: 30, Status: types.MilestoneStatusCompleted, TargetDate: testNow.AddDate(0, 0, -10), CompletedAt: &completedAt, FeedbackScoreSum: 9, FeedbackCount: 2})
	store.putMilestone(&types.Milestone{ID: "m2", ProjectID: "p1", SortOrder: 2, FundingPercentage: 30, Status: types.MilestoneStatusInProgress, TargetDate: testNow.AddDate(0, 0, -1), FeedbackScoreSum: 3, FeedbackCount: 1})
	store.putMilestone(&types.Milestone{ID: "m3", ProjectID: "p1", SortOrder: 3, FundingPercentage: 40, Status: types.MilestoneStatusPending, TargetDate: testNow.AddDate(0, 1, 0)})

	progress, err := svc.MilestoneProgress(ctx, "p1")
	require.NoError(t, err)

	assert.Equal(t, 3, progress.Total)
	assert.Equal(t, 1, progress.Completed)
	assert.Equal(t, 1, progress.Overdue)
	assert.Equal(t, 30, progress.ReleasedFundingPercent)
	assert.Equal(t, 33.33, progress.CompletionPercent)
	assert.Equal(t, int64(3), progress.FeedbackCount)
	assert.Equal(t, 4.0, progress.AverageFeedbackScore)
	assert.Equal(t, 1, progress.ByStatus[types.MilestoneStatusPending])
	assert.Equal(t, 0, progress.ByStatus[types.MilestoneStatusOverdue])

	empty, err := svc.MilestoneProgress(ctx, "none")
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.CompletionPercent)

	marked, err := svc.MarkOverdueMilestones(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	m2, err := store.Milestone(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, types.MilestoneStatusOverdue, m2.Status)
}

func TestAddProjectImageLimit(t *testing.T) {
	store := newMemStore()
	svc, _ := mustService(t, store, nil)
	ctx := context.Background()

	project := mustDraft(t, svc)
	for i := range maxProjectImages {
		_, err := svc.AddProjectImage(ctx, project.ID, "creator-1", fmt.Sprintf("creator-1/%d.png", i))
		require.NoError(t, err)
	}

	_, err := svc.AddProjectImage(ctx, project.ID, "creator-1", "one-too-many.png")
	assert.Equal(t, "images", types.FieldOf(err))
}
