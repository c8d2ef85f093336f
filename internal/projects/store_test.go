package projects

import (
	"context"
	"sort"
	"sync"
	"time"

	"crowdfund/internal/storage"
	"crowdfund/internal/utils"
	"crowdfund/pkg/types"
)

// memStore follows the version and status checks of the SQL repositories.
type memStore struct {
	mu sync.Mutex

	projects   map[string]*types.Project
	tiers      map[string]*types.RewardTier
	milestones map[string]*types.Milestone

	// conflicts makes the next n UpdateProject calls lose the version race
	conflicts int
}

func newMemStore() *memStore {
	return &memStore{
		projects:   map[string]*types.Project{},
		tiers:      map[string]*types.RewardTier{},
		milestones: map[string]*types.Milestone{},
	}
}

func (m *memStore) putProject(p *types.Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Version == 0 {
		p.Version = 1
	}
	cp := *p
	m.projects[p.ID] = &cp
}

func (m *memStore) Project(_ context.Context, projectID string) (*types.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return nil, types.ErrProjectNotFound
	}
	cp := *p
	cp.ImageKeys = append([]string{}, p.ImageKeys...)
	return &cp, nil
}

func (m *memStore) Projects(_ context.Context, filter types.ProjectFilter) ([]*types.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Project, 0)
	for _, p := range m.projects {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.CreatorID != "" && p.CreatorID != filter.CreatorID {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) LiveProjectsPastDeadline(_ context.Context, now time.Time) ([]*types.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Project, 0)
	for _, p := range m.projects {
		if p.Status == types.ProjectStatusLive && !p.Deadline.After(now) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CreateProject(_ context.Context, project *types.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if project.ID == "" {
		project.ID = utils.NanoID()
	}
	project.Version = 1
	cp := *project
	m.projects[project.ID] = &cp
	return nil
}

func (m *memStore) UpdateProject(_ context.Context, project *types.Project, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.projects[project.ID]
	if !ok || stored.Version != expectedVersion {
		return types.ErrConcurrentModification
	}

	if m.conflicts > 0 {
		m.conflicts--
		// a funding effect landed first
		stored.CurrentFundingCents += 100
		stored.BackerCount++
		stored.Version++
		return types.ErrConcurrentModification
	}

	cp := *project
	cp.CurrentFundingCents = stored.CurrentFundingCents
	cp.BackerCount = stored.BackerCount
	cp.Version = expectedVersion + 1
	m.projects[project.ID] = &cp
	project.Version = cp.Version
	return nil
}

func (m *memStore) DeleteProject(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok || p.Status != types.ProjectStatusDraft {
		return types.ErrConcurrentModification
	}
	delete(m.projects, projectID)
	return nil
}

func (m *memStore) RewardTier(_ context.Context, tierID string) (*types.RewardTier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tiers[tierID]
	if !ok {
		return nil, types.ErrRewardTierNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) TiersByProject(_ context.Context, projectID string) ([]*types.RewardTier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.RewardTier, 0)
	for _, t := range m.tiers {
		if t.ProjectID == projectID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PledgeAmountCents < out[j].PledgeAmountCents })
	return out, nil
}

func (m *memStore) CreateTier(_ context.Context, tier *types.RewardTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tier.ID == "" {
		tier.ID = utils.NanoID()
	}
	tier.ClaimedCount = 0
	tier.Version = 1
	cp := *tier
	m.tiers[tier.ID] = &cp
	return nil
}

func (m *memStore) UpdateTier(_ context.Context, tier *types.RewardTier, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tiers[tier.ID]
	if !ok || stored.Version != expectedVersion || (tier.IsLimited && stored.ClaimedCount > tier.QuantityLimit) {
		return types.ErrConcurrentModification
	}
	cp := *tier
	cp.ClaimedCount = stored.ClaimedCount
	cp.Version = expectedVersion + 1
	m.tiers[tier.ID] = &cp
	tier.Version = cp.Version
	return nil
}

func (m *memStore) DeleteTier(_ context.Context, tierID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tiers[tierID]
	if !ok || t.ClaimedCount != 0 {
		return types.ErrConcurrentModification
	}
	delete(m.tiers, tierID)
	return nil
}

func (m *memStore) Milestone(_ context.Context, milestoneID string) (*types.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.milestones[milestoneID]
	if !ok {
		return nil, types.ErrMilestoneNotFound
	}
	cp := *ms
	cp.EvidenceKeys = append([]string{}, ms.EvidenceKeys...)
	return &cp, nil
}

func (m *memStore) MilestonesByProject(_ context.Context, projectID string) ([]*types.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Milestone, 0)
	for _, ms := range m.milestones {
		if ms.ProjectID == projectID {
			cp := *ms
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (m *memStore) ReplaceMilestones(_ context.Context, projectID string, milestones []*types.Milestone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ms := range m.milestones {
		if ms.ProjectID == projectID {
			delete(m.milestones, id)
		}
	}
	for _, ms := range milestones {
		if ms.ID == "" {
			ms.ID = utils.NanoID()
		}
		ms.ProjectID = projectID
		cp := *ms
		m.milestones[ms.ID] = &cp
	}
	return nil
}

func (m *memStore) putMilestone(ms *types.Milestone) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ms
	m.milestones[ms.ID] = &cp
}

func (m *memStore) UpdateMilestone(_ context.Context, milestone *types.Milestone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.milestones[milestone.ID]
	if !ok {
		return types.ErrMilestoneNotFound
	}
	stored.Title = milestone.Title
	stored.Description = milestone.Description
	stored.TargetDate = milestone.TargetDate
	stored.Status = milestone.Status
	stored.Deliverables = milestone.Deliverables
	stored.CompletedAt = milestone.CompletedAt
	return nil
}

func (m *memStore) RecordFeedback(_ context.Context, milestoneID string, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.milestones[milestoneID]
	if !ok {
		return types.ErrMilestoneNotFound
	}
	ms.FeedbackScoreSum += int64(score)
	ms.FeedbackCount++
	return nil
}

func (m *memStore) AddEvidence(_ context.Context, milestoneID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.milestones[milestoneID]
	if !ok {
		return types.ErrMilestoneNotFound
	}
	ms.EvidenceKeys = append(ms.EvidenceKeys, key)
	return nil
}

func (m *memStore) MarkOverdueMilestones(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var marked int64
	for _, ms := range m.milestones {
		open := ms.Status == types.MilestoneStatusPending || ms.Status == types.MilestoneStatusInProgress
		if open && ms.TargetDate.Before(now) {
			ms.Status = types.MilestoneStatusOverdue
			marked++
		}
	}
	return marked, nil
}

type fakeObjects struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeObjects) Delete(_ context.Context, bucket storage.Bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, string(bucket)+"/"+key)
	return nil
}

var _ Store = (*memStore)(nil)
