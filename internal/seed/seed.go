package seed

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"crowdfund/internal/funding"
	"crowdfund/internal/projects"
	"crowdfund/internal/users"
	"crowdfund/internal/utils"
	"crowdfund/pkg/types"

	"github.com/sirupsen/logrus"
)

type Users interface {
	EnsureUser(ctx context.Context, userID, email, givenName, familyName string) error
	UpdateProfile(ctx context.Context, userID string, input users.ProfileInput) (*types.User, error)
}

type Projects interface {
	ListProjects(ctx context.Context, filter types.ProjectFilter, viewerID string) ([]*types.Project, error)
	CreateProject(ctx context.Context, creatorID string, input projects.ProjectInput) (*types.Project, error)
	CreateTier(ctx context.Context, projectID, actorID string, input projects.TierInput) (*types.RewardTier, error)
	SetMilestones(ctx context.Context, projectID, actorID string, inputs []projects.MilestoneInput) ([]*types.Milestone, error)
	PublishProject(ctx context.Context, projectID, actorID string) (*types.Project, error)
}

type Backings interface {
	CreateBacking(ctx context.Context, input funding.CreateBackingInput) (*types.Backing, error)
}

type Report struct {
	Users    int
	Projects int
	Tiers    int
	Backings int
	SoldOut  int
}

// Seeder fills an empty database with demo users, live projects and backings.
// Everything goes through the services so the data obeys the same rules as
// real traffic. Creators that already own projects are skipped.
type Seeder struct {
	users    Users
	projects Projects
	backings Backings
	logger   *logrus.Logger
	clock    func() time.Time
	rand     *rand.Rand
}

func NewSeeder(u Users, p Projects, b Backings, logger *logrus.Logger) *Seeder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Seeder{
		users:    u,
		projects: p,
		backings: b,
		logger:   logger,
		clock:    time.Now,
		rand:     rand.New(rand.NewPCG(42, 7)),
	}
}

func (s *Seeder) Run(ctx context.Context, backingsPerProject int) (*Report, error) {
	report := new(Report)

	for _, user := range demoUsers {
		if err := s.upsertUser(ctx, user); err != nil {
			return report, err
		}
		report.Users++
	}

	for _, demo := range demoProjects {
		existing, err := s.projects.ListProjects(ctx, types.ProjectFilter{CreatorID: demo.CreatorID, Limit: 1}, demo.CreatorID)
		if err != nil {
			return report, fmt.Errorf("failed to list projects for %s: %w", demo.CreatorID, err)
		}

		if len(existing) > 0 {
			s.logger.WithField("creator_id", demo.CreatorID).Info("creator already has projects, skipping")
			continue
		}

		project, tiers, err := s.createProject(ctx, demo)
		if err != nil {
			return report, err
		}
		report.Projects++
		report.Tiers += len(tiers)

		backed, soldOut, err := s.back(ctx, project, tiers, backingsPerProject)
		if err != nil {
			return report, err
		}
		report.Backings += backed
		report.SoldOut += soldOut
	}

	return report, nil
}

func (s *Seeder) upsertUser(ctx context.Context, user demoUser) error {
	if err := s.users.EnsureUser(ctx, user.ID, user.Email, user.GivenName, user.FamilyName); err != nil {
		return fmt.Errorf("failed to upsert demo user %s: %w", user.ID, err)
	}

	userType := user.UserType
	_, err := s.users.UpdateProfile(ctx, user.ID, users.ProfileInput{
		UserType: &userType,
		Bio:      utils.StringPtr(user.Bio),
	})
	return utils.ErrorWrapOrNil(err, fmt.Sprintf("failed to update demo user %s", user.ID))
}

func (s *Seeder) createProject(ctx context.Context, demo demoProject) (*types.Project, []*types.RewardTier, error) {
	entry := s.logger.WithField("creator_id", demo.CreatorID)

	project, err := s.projects.CreateProject(ctx, demo.CreatorID, demo.Input)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create demo project %q: %w", demo.Input.Title, err)
	}

	tiers := make([]*types.RewardTier, 0, len(demo.Tiers))
	for _, input := range demo.Tiers {
		tier, err := s.projects.CreateTier(ctx, project.ID, demo.CreatorID, input)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create tier %q: %w", input.Title, err)
		}
		tiers = append(tiers, tier)
	}

	now := s.clock()
	milestones := make([]projects.MilestoneInput, len(demo.Milestones))
	for i, m := range demo.Milestones {
		milestones[i] = projects.MilestoneInput{
			Title:             m.Title,
			Description:       m.Description,
			FundingPercentage: m.FundingPercentage,
			TargetDate:        now.AddDate(0, m.MonthsOut, 0),
			Deliverables:      m.Deliverables,
		}
	}

	if _, err := s.projects.SetMilestones(ctx, project.ID, demo.CreatorID, milestones); err != nil {
		return nil, nil, fmt.Errorf("failed to set milestones for %q: %w", demo.Input.Title, err)
	}

	project, err = s.projects.PublishProject(ctx, project.ID, demo.CreatorID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to publish %q: %w", demo.Input.Title, err)
	}

	entry.WithField("project_id", project.ID).Info("demo project published")

	return project, tiers, nil
}

// back pledges from random backers. Limited tiers are allowed to sell out.
func (s *Seeder) back(ctx context.Context, project *types.Project, tiers []*types.RewardTier, count int) (backed, soldOut int, err error) {
	backers := demoBackers()

	for i := range count {
		backer := backers[s.rand.IntN(len(backers))]
		tier := tiers[s.rand.IntN(len(tiers))]

		tip, err := utils.ParseCurrency(demoTips[s.rand.IntN(len(demoTips))])
		if err != nil {
			return backed, soldOut, err
		}

		input := funding.CreateBackingInput{
			ProjectID:         project.ID,
			BackerID:          backer.ID,
			RewardTierID:      &tier.ID,
			PledgeAmountCents: tier.PledgeAmountCents,
			ExtraSupportCents: tip,
			BackerName:        backer.GivenName + " " + backer.FamilyName,
			BackerEmail:       backer.Email,
			IsAnonymous:       s.rand.IntN(5) == 0,
			IdempotencyKey:    fmt.Sprintf("seed-%s-%d", project.ID, i),
		}
		if tier.ShippingRequired {
			input.ShippingAddress = &backer.Address
		}

		_, err = s.backings.CreateBacking(ctx, input)
		switch {
		case errors.Is(err, types.ErrTierSoldOut):
			soldOut++
		case err != nil:
			return backed, soldOut, fmt.Errorf("failed to back %s: %w", project.ID, err)
		default:
			backed++
		}
	}

	return backed, soldOut, nil
}
