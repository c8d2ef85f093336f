package funding

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"crowdfund/internal/utils"
	"crowdfund/pkg/types"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var testNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

type fakeGateway struct {
	calls int
	err   error
}

func (f *fakeGateway) CreatePaymentIntent(_ context.Context, backing *types.Backing, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "pi_" + backing.ID, nil
}

func mustService(t *testing.T, store *memStore, opts ...func(*ServiceConfig)) *Service {
	t.Helper()

	logger, _ := test.NewNullLogger()
	cfg := ServiceConfig{
		Store:                store,
		Logger:               logger,
		Clock:                func() time.Time { return testNow },
		RetryMaxTries:        200,
		RetryInitialInterval: time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	svc, err := NewService(cfg)
	require.NoError(t, err)
	return svc
}

func liveProject(id string) *types.Project {
	published := testNow.Add(-24 * time.Hour)
	return &types.Project{
		ID:                  id,
		CreatorID:           "creator-1",
		Title:               "Pocket Synth",
		FundingGoalCents:    10000,
		Currency:            "USD",
		Status:              types.ProjectStatusLive,
		FundingDurationDays: 30,
		PublishedAt:         &published,
		Deadline:            published.AddDate(0, 0, 30),
	}
}

func backingInput(projectID, backerID string, amount int64) CreateBackingInput {
	return CreateBackingInput{
		ProjectID:         projectID,
		BackerID:          backerID,
		PledgeAmountCents: amount,
		BackerName:        "Backer " + backerID,
		BackerEmail:       backerID + "@example.com",
	}
}

func mustProject(t *testing.T, store *memStore, projectID string) *types.Project {
	t.Helper()
	project, err := store.Project(context.Background(), projectID)
	require.NoError(t, err)
	return project
}

// withoutRetries makes every failed apply leave its effect pending.
func withoutRetries(cfg *ServiceConfig) {
	cfg.RetryMaxTries = 1
}

func pendingCount(t *testing.T, store *memStore) int {
	t.Helper()
	pending, err := store.PendingEffects(context.Background(), 1000)
	require.NoError(t, err)
	return len(pending)
}

func TestNewServiceRequiresStore(t *testing.T) {
	_, err := NewService(ServiceConfig{})
	require.Error(t, err)
}

func TestConcurrentBackingsAreAllCounted(t *testing.T) {
	for _, n := range []int{2, 25} {
		t.Run(fmt.Sprintf("%d backers", n), func(t *testing.T) {
			store := newMemStore()
			store.putProject(liveProject("p1"))
			svc := mustService(t, store)

			const amount = int64(2500)

			g, ctx := errgroup.WithContext(context.Background())
			for i := range n {
				g.Go(func() error {
					_, err := svc.CreateBacking(ctx, backingInput("p1", fmt.Sprintf("backer-%d", i), amount))
					return err
				})
			}
			require.NoError(t, g.Wait())

			project := mustProject(t, store, "p1")
			assert.Equal(t, int64(n)*amount, project.CurrentFundingCents)
			assert.Equal(t, n, project.BackerCount)
			assert.Zero(t, pendingCount(t, store))
		})
	}
}

func TestTierLimitHoldsUnderConcurrency(t *testing.T) {
	const limit = 10

	store := newMemStore()
	store.putProject(liveProject("p1"))
	store.putTier(&types.RewardTier{
		ID:                "tier-1",
		ProjectID:         "p1",
		Title:             "Early bird",
		PledgeAmountCents: 1500,
		IsLimited:         true,
		QuantityLimit:     limit,
	})
	svc := mustService(t, store)

	results := make(chan error, limit+5)
	g := new(errgroup.Group)
	for i := range limit + 5 {
		g.Go(func() error {
			input := backingInput("p1", fmt.Sprintf("backer-%d", i), 1500)
			input.RewardTierID = utils.StringPtr("tier-1")
			_, err := svc.CreateBacking(context.Background(), input)
			results <- err
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(results)

	var succeeded, soldOut int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, types.ErrTierSoldOut):
			soldOut++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, limit, succeeded)
	assert.Equal(t, 5, soldOut)

	tier, err := store.RewardTier(context.Background(), "tier-1")
	require.NoError(t, err)
	assert.Equal(t, limit, tier.ClaimedCount)

	project := mustProject(t, store, "p1")
	assert.Equal(t, int64(limit*1500), project.CurrentFundingCents)
	assert.Equal(t, limit, project.BackerCount)
}

func TestCancelBackingRestoresTotals(t *testing.T) {
	store := newMemStore()
	project := liveProject("p1")
	project.CurrentFundingCents = 7000
	project.BackerCount = 3
	store.putProject(project)
	store.putTier(&types.RewardTier{ID: "tier-1", ProjectID: "p1", PledgeAmountCents: 2000, IsLimited: true, QuantityLimit: 5, ClaimedCount: 1})
	svc := mustService(t, store)
	ctx := context.Background()

	input := backingInput("p1", "backer-1", 2500)
	input.ExtraSupportCents = 500
	input.RewardTierID = utils.StringPtr("tier-1")

	backing, err := svc.CreateBacking(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), backing.TotalAmountCents)

	afterCreate := mustProject(t, store, "p1")
	assert.Equal(t, int64(10000), afterCreate.CurrentFundingCents)
	assert.Equal(t, 4, afterCreate.BackerCount)

	cancelled, err := svc.CancelBacking(ctx, backing.ID, "backer-1")
	require.NoError(t, err)
	assert.Equal(t, types.BackingStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	afterCancel := mustProject(t, store, "p1")
	assert.Equal(t, int64(7000), afterCancel.CurrentFundingCents)
	assert.Equal(t, 3, afterCancel.BackerCount)

	tier, err := store.RewardTier(ctx, "tier-1")
	require.NoError(t, err)
	assert.Equal(t, 1, tier.ClaimedCount)

	// a second cancel is a no-op
	again, err := svc.CancelBacking(ctx, backing.ID, "backer-1")
	require.NoError(t, err)
	assert.Equal(t, types.BackingStatusCancelled, again.Status)
	assert.Equal(t, int64(7000), mustProject(t, store, "p1").CurrentFundingCents)
}

func TestCancelBackingSettlesPendingPledgeFirst(t *testing.T) {
	store := newMemStore()
	store.putProject(liveProject("p1"))
	svc := mustService(t, store, withoutRetries)
	ctx := context.Background()

	store.failApply = 1
	backing, err := svc.CreateBacking(ctx, backingInput("p1", "backer-1", 2500))
	require.NoError(t, err)
	assert.Equal(t, 1, pendingCount(t, store))
	assert.Zero(t, mustProject(t, store, "p1").CurrentFundingCents)

	_, err = svc.CancelBacking(ctx, backing.ID, "backer-1")
	require.NoError(t, err)

	project := mustProject(t, store, "p1")
	assert.Zero(t, project.CurrentFundingCents)
	assert.Zero(t, project.BackerCount)
	assert.Zero(t, pendingCount(t, store))
}

func TestCreateBackingRetriesTransientApplyErrors(t *testing.T) {
	store := newMemStore()
	store.putProject(liveProject("p1"))
	svc := mustService(t, store)

	store.failApply = 1
	_, err := svc.CreateBacking(context.Background(), backingInput("p1", "backer-1", 2500))
	require.NoError(t, err)

	project := mustProject(t, store, "p1")
	assert.Equal(t, int64(2500), project.CurrentFundingCents)
	assert.Equal(t, 1, project.BackerCount)
	assert.Zero(t, pendingCount(t, store))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "connection reset", err: fmt.Errorf("failed to apply: %w", errApplyUnavailable), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "connection exception", err: &pgconn.PgError{Code: "08006"}, want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "not found", err: types.ErrProjectNotFound, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}

func TestCancelFulfilledBackingIsRejected(t *testing.T) {
	store := newMemStore()
	store.putProject(liveProject("p1"))
	svc := mustService(t, store)
	ctx := context.Background()

	backing, err := svc.CreateBacking(ctx, backingInput("p1", "backer-1", 2500))
	require.NoError(t, err)

	_, err = svc.ConfirmBacking(ctx, backing.ID)
	require.NoError(t, err)

	_, err = svc.FulfillBacking(ctx, backing.ID, "creator-1")
	require.NoError(t, err)

	_, err = svc.CancelBacking(ctx, backing.ID, "backer-1")
	require.Error(t, err)
	assert.Equal(t, types.CodeInvalidState, types.CodeOf(err))
	assert.Equal(t, int64(2500), mustProject(t, store, "p1").CurrentFundingCents)
}

func TestCancelBackingPermissions(t *testing.T) {
	store := newMemStore()
	store.putProject(liveProject("p1"))
	svc := mustService(t, store)
	ctx := context.Background()

	backing, err := svc.CreateBacking(ctx, backingInput("p1", "backer-1", 2500))
	require.NoError(t, err)

	_, err = svc.CancelBacking(ctx, backing.ID, "someone-else")
	assert.Equal(t, types.CodePermissionDenied, types.CodeOf(err))

	_, err = svc.CancelBacking(ctx, backing.ID, "creator-1")
	require.NoError(t, err)
}

func TestApplyEffectTwiceCountsOnce(t *testing.T) {
	store := newMemStore()
	store.putProject(liveProject("p1"))
	svc := mustService(t, store)
	ctx := context.Background()

	backing, err := svc.CreateBacking(ctx, backingInput("p1", "backer-1", 2500))
	require.NoError(t, err)

	effects, err := store.EffectsByBacking(ctx, backing.ID)
	require.NoError(t, err)
	require.Len(t, effects, 1)

	// simulated retry of an effect that already landed
	require.NoError(t, svc.ApplyEffect(ctx, effects[0].ID))
	require.NoError(t, svc.ApplyEffect(ctx, effects[0].ID))

	project := mustProject(t, store, "p1")
	assert.Equal(t, int64(2500), project.CurrentFundingCents)
	assert.Equal(t, 1, project.BackerCount)
}

func TestCreateBackingIdempotencyKey(t *testing.T) {
	store := newMemStore()
	store.putProject(liveProject("p1"))
	store.putProject(liveProject("p2"))
	svc := mustService(t, store)
	ctx := context.Background()

	input := backingInput("p1", "backer-1", 2500)
	input.IdempotencyKey = "checkout-42"

	first, err := svc.CreateBacking(ctx, input)
	require.NoError(t, err)

	second, err := svc.CreateBacking(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	project := mustProject(t, store, "p1")
	assert.Equal(t, int64(2500), project.CurrentFundingCents)
	assert.Equal(t, 1, project.BackerCount)

	// the same key from another backer is a different request
	other := backingInput("p1", "backer-2", 2500)
	other.IdempotencyKey = "checkout-42"
	third, err := svc.CreateBacking(ctx, other)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)

	reused := input
	reused.ProjectID = "p2"
	_, err = svc.CreateBacking(ctx, reused)
	assert.Equal(t, types.CodeConflict, types.CodeOf(err))
}

func TestCreateBackingValidation(t *testing.T) {
	store := newMemStore()
	store.putProject(liveProject("p1"))
	store.putProject(liveProject("p2"))
	store.putTier(&types.RewardTier{ID: "tier-1", ProjectID: "p1", PledgeAmountCents: 5000})
	store.putTier(&types.RewardTier{ID: "tier-ship", ProjectID: "p1", PledgeAmountCents: 1000, ShippingRequired: true})
	store.putTier(&types.RewardTier{ID: "tier-other", ProjectID: "p2", PledgeAmountCents: 1000})
	svc := mustService(t, store)

	tests := []struct {
		name   string
		modify func(*CreateBackingInput)
		field  string
	}{
		{name: "below minimum", modify: func(in *CreateBackingInput) { in.PledgeAmountCents = 99 }, field: "pledgeAmount"},
		{name: "above maximum", modify: func(in *CreateBackingInput) { in.PledgeAmountCents = types.MaxPledgeCents + 1 }, field: "pledgeAmount"},
		{name: "total above maximum", modify: func(in *CreateBackingInput) {
			in.PledgeAmountCents = types.MaxPledgeCents
			in.ExtraSupportCents = types.MaxPledgeCents
		}, field: "extraSupport"},
		{name: "negative extra support", modify: func(in *CreateBackingInput) { in.ExtraSupportCents = -1 }, field: "extraSupport"},
		{name: "bad email", modify: func(in *CreateBackingInput) { in.BackerEmail = "not-an-email" }, field: "backerEmail"},
		{name: "missing name", modify: func(in *CreateBackingInput) { in.BackerName = "" }, field: "backerName"},
		{name: "below tier minimum", modify: func(in *CreateBackingInput) { in.RewardTierID = utils.StringPtr("tier-1") }, field: "pledgeAmount"},
		{name: "tier from another project", modify: func(in *CreateBackingInput) { in.RewardTierID = utils.StringPtr("tier-other") }, field: "rewardTierId"},
		{name: "unknown tier", modify: func(in *CreateBackingInput) { in.RewardTierID = utils.StringPtr("nope") }, field: "rewardTierId"},
		{name: "shipping required", modify: func(in *CreateBackingInput) { in.RewardTierID = utils.StringPtr("tier-ship") }, field: "shippingAddress"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := backingInput("p1", "backer-1", 2500)
			tt.modify(&input)

			_, err := svc.CreateBacking(context.Background(), input)
			require.Error(t, err)
			assert.Equal(t, types.CodeValidation, types.CodeOf(err))
			assert.Equal(t, tt.field, types.FieldOf(err))
		})
	}

	assert.Zero(t, mustProject(t, store, "p1").CurrentFundingCents)
}

func TestCreateBackingEligibility(t *testing.T) {
	tests := []struct {
		name    string
		project func() *types.Project
		backer  string
	}{
		{
			name: "draft project",
			project: func() *types.Project {
				p := liveProject("p1")
				p.Status = types.ProjectStatusDraft
				return p
			},
			backer: "backer-1",
		},
		{
			name: "deadline passed",
			project: func() *types.Project {
				p := liveProject("p1")
				p.Deadline = testNow.Add(-time.Minute)
				return p
			},
			backer: "backer-1",
		},
		{
			name:    "creator backing own project",
			project: func() *types.Project { return liveProject("p1") },
			backer:  "creator-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.putProject(tt.project())
			svc := mustService(t, store)

			_, err := svc.CreateBacking(context.Background(), backingInput("p1", tt.backer, 2500))
			require.Error(t, err)
			assert.Equal(t, types.CodeEligibility, types.CodeOf(err))
		})
	}
}

func TestUpdateProjectFunding(t *testing.T) {
	store := newMemStore()
	project := liveProject("p1")
	project.CurrentFundingCents = 600
	project.BackerCount = 1
	store.putProject(project)
	svc := mustService(t, store)
	ctx := context.Background()

	updated, err := svc.UpdateProjectFunding(ctx, "p1", 500, "offline-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1100), updated.CurrentFundingCents)
	assert.Equal(t, 2, updated.BackerCount)

	again, err := svc.UpdateProjectFunding(ctx, "p1", 500, "offline-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1100), again.CurrentFundingCents)

	floored, err := svc.UpdateProjectFunding(ctx, "p1", -5000, "refund-1")
	require.NoError(t, err)
	assert.Zero(t, floored.CurrentFundingCents)
	assert.Equal(t, 1, floored.BackerCount)

	_, err = svc.UpdateProjectFunding(ctx, "p1", 100, " ")
	assert.Equal(t, types.CodeValidation, types.CodeOf(err))

	_, err = svc.UpdateProjectFunding(ctx, "missing", 100, "k")
	assert.ErrorIs(t, err, types.ErrProjectNotFound)
}

func TestPaymentIntentAttached(t *testing.T) {
	store := newMemStore()
	store.putProject(liveProject("p1"))
	gateway := &fakeGateway{}
	svc := mustService(t, store, func(cfg *ServiceConfig) { cfg.Payments = gateway })

	backing, err := svc.CreateBacking(context.Background(), backingInput("p1", "backer-1", 2500))
	require.NoError(t, err)
	require.NotNil(t, backing.PaymentIntentID)
	assert.Equal(t, "pi_"+backing.ID, *backing.PaymentIntentID)

	gateway.err = errors.New("card network down")
	second, err := svc.CreateBacking(context.Background(), backingInput("p1", "backer-2", 2500))
	require.NoError(t, err)
	assert.Nil(t, second.PaymentIntentID)
	assert.Equal(t, 2, gateway.calls)
}

func TestConfirmAndVoidBacking(t *testing.T) {
	store := newMemStore()
	store.putProject(liveProject("p1"))
	svc := mustService(t, store)
	ctx := context.Background()

	backing, err := svc.CreateBacking(ctx, backingInput("p1", "backer-1", 2500))
	require.NoError(t, err)

	confirmed, err := svc.ConfirmBacking(ctx, backing.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BackingStatusConfirmed, confirmed.Status)

	// webhooks are delivered at least once
	_, err = svc.ConfirmBacking(ctx, backing.ID)
	require.NoError(t, err)

	voided, err := svc.VoidBacking(ctx, backing.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BackingStatusCancelled, voided.Status)

	_, err = svc.ConfirmBacking(ctx, backing.ID)
	assert.Equal(t, types.CodeInvalidState, types.CodeOf(err))

	assert.Zero(t, mustProject(t, store, "p1").CurrentFundingCents)
}

func TestBackingsByProjectMasksForPublic(t *testing.T) {
	store := newMemStore()
	store.putProject(liveProject("p1"))
	svc := mustService(t, store)
	ctx := context.Background()

	anon := backingInput("p1", "backer-1", 2500)
	anon.IsAnonymous = true
	_, err := svc.CreateBacking(ctx, anon)
	require.NoError(t, err)

	cancelled, err := svc.CreateBacking(ctx, backingInput("p1", "backer-2", 2500))
	require.NoError(t, err)
	_, err = svc.CancelBacking(ctx, cancelled.ID, "backer-2")
	require.NoError(t, err)

	public, err := svc.BackingsByProject(ctx, "p1", "visitor")
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, "Anonymous", public[0].BackerName)
	assert.Empty(t, public[0].BackerID)
	assert.Empty(t, public[0].BackerEmail)

	owner, err := svc.BackingsByProject(ctx, "p1", "creator-1")
	require.NoError(t, err)
	assert.Len(t, owner, 2)
}

func TestProjectDashboard(t *testing.T) {
	store := newMemStore()
	store.putProject(liveProject("p1"))
	store.putTier(&types.RewardTier{ID: "tier-1", ProjectID: "p1", PledgeAmountCents: 1000, IsLimited: true, QuantityLimit: 2})
	svc := mustService(t, store)
	ctx := context.Background()

	input := backingInput("p1", "backer-1", 2500)
	input.RewardTierID = utils.StringPtr("tier-1")
	_, err := svc.CreateBacking(ctx, input)
	require.NoError(t, err)

	dashboard, err := svc.ProjectDashboard(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 25.0, dashboard.PercentFunded)
	assert.Equal(t, 29, dashboard.DaysLeft)
	assert.Equal(t, 1, dashboard.Stats.ActiveBackings)
	require.Len(t, dashboard.Tiers, 1)
	assert.Equal(t, 1, dashboard.Tiers[0].ClaimedCount)

	availability, err := svc.CheckTierAvailability(ctx, "tier-1")
	require.NoError(t, err)
	assert.True(t, availability.Available)
	assert.Equal(t, 1, availability.Remaining)

	_, err = svc.ProjectDashboard(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrProjectNotFound)
}
