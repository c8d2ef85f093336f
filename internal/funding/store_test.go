package funding

import (
	"context"
	"net"
	"sort"
	"sync"
	"syscall"
	"time"

	"crowdfund/pkg/types"
)

// memStore mirrors the conditional writes of the SQL repositories under one mutex.
type memStore struct {
	mu sync.Mutex

	projects map[string]*types.Project
	tiers    map[string]*types.RewardTier
	backings map[string]*types.Backing
	effects  map[string]*types.FundingEffect
	seq      int

	// failApply makes the next n ApplyFundingEffect calls fail with errApplyUnavailable
	failApply int
	intents   map[string]string
}

var errApplyUnavailable = &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}

func newMemStore() *memStore {
	return &memStore{
		projects: map[string]*types.Project{},
		tiers:    map[string]*types.RewardTier{},
		backings: map[string]*types.Backing{},
		effects:  map[string]*types.FundingEffect{},
		intents:  map[string]string{},
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

func (m *memStore) putTier(t *types.RewardTier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tiers[t.ID] = &cp
}

func (m *memStore) Project(_ context.Context, projectID string) (*types.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return nil, types.ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
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

func (m *memStore) Backing(_ context.Context, backingID string) (*types.Backing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.backings[backingID]
	if !ok {
		return nil, types.ErrBackingNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) BackingByIdempotencyKey(_ context.Context, key string) (*types.Backing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.backings {
		if b.IdempotencyKey == key {
			cp := *b
			return &cp, nil
		}
	}
	return nil, types.ErrBackingNotFound
}

func (m *memStore) backingsWhere(match func(*types.Backing) bool) []*types.Backing {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Backing, 0)
	for _, b := range m.backings {
		if match(b) {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) BackingsByProject(_ context.Context, projectID string) ([]*types.Backing, error) {
	return m.backingsWhere(func(b *types.Backing) bool { return b.ProjectID == projectID }), nil
}

func (m *memStore) BackingsByBacker(_ context.Context, backerID string) ([]*types.Backing, error) {
	return m.backingsWhere(func(b *types.Backing) bool { return b.BackerID == backerID }), nil
}

func (m *memStore) BackingStats(_ context.Context, projectID string) (*types.BackingStats, error) {
	stats := &types.BackingStats{}
	for _, b := range m.backingsWhere(func(b *types.Backing) bool { return b.ProjectID == projectID }) {
		stats.TotalBackings++
		if !b.Counted() {
			stats.CancelledBackings++
			continue
		}
		stats.ActiveBackings++
		stats.TotalPledgedCents += b.TotalAmountCents
	}
	if stats.ActiveBackings > 0 {
		stats.AveragePledgeCents = stats.TotalPledgedCents / int64(stats.ActiveBackings)
	}
	return stats, nil
}

func (m *memStore) insertEffectLocked(effect *types.FundingEffect) error {
	for _, e := range m.effects {
		if e.IdempotencyKey == effect.IdempotencyKey {
			return types.ErrDuplicateKey
		}
	}
	m.seq++
	effect.Status = types.EffectStatusPending
	effect.CreatedAt = time.Unix(int64(m.seq), 0)
	cp := *effect
	m.effects[effect.ID] = &cp
	return nil
}

func (m *memStore) RecordBacking(_ context.Context, backing *types.Backing, effect *types.FundingEffect) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.backings {
		if b.IdempotencyKey == backing.IdempotencyKey {
			return types.ErrDuplicateKey
		}
	}

	var tier *types.RewardTier
	if backing.RewardTierID != nil {
		tier = m.tiers[*backing.RewardTierID]
		if tier == nil || !tier.Available() {
			return types.ErrTierSoldOut
		}
	}

	if err := m.insertEffectLocked(effect); err != nil {
		return err
	}

	if tier != nil {
		tier.ClaimedCount++
	}

	cp := *backing
	m.backings[backing.ID] = &cp
	return nil
}

func (m *memStore) RecordCancellation(_ context.Context, backing *types.Backing, effect *types.FundingEffect, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.backings[backing.ID]
	if !ok || (stored.Status != types.BackingStatusPending && stored.Status != types.BackingStatusConfirmed) {
		return types.ErrConcurrentModification
	}

	if err := m.insertEffectLocked(effect); err != nil {
		return err
	}

	stored.Status = types.BackingStatusCancelled
	stored.CancelledAt = &at
	if stored.RewardTierID != nil {
		if tier := m.tiers[*stored.RewardTierID]; tier != nil && tier.ClaimedCount > 0 {
			tier.ClaimedCount--
		}
	}
	return nil
}

func (m *memStore) UpdateBackingStatus(_ context.Context, backingID string, from []types.BackingStatus, to types.BackingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.backings[backingID]
	if !ok {
		return types.ErrConcurrentModification
	}
	for _, status := range from {
		if b.Status == status {
			b.Status = to
			return nil
		}
	}
	return types.ErrConcurrentModification
}

func (m *memStore) SetPaymentIntent(_ context.Context, backingID, paymentIntentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents[backingID] = paymentIntentID
	if b, ok := m.backings[backingID]; ok {
		b.PaymentIntentID = &paymentIntentID
	}
	return nil
}

func (m *memStore) Effect(_ context.Context, effectID string) (*types.FundingEffect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.effects[effectID]
	if !ok {
		return nil, types.ErrEffectNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) EffectByIdempotencyKey(_ context.Context, key string) (*types.FundingEffect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.effects {
		if e.IdempotencyKey == key {
			cp := *e
			return &cp, nil
		}
	}
	return nil, types.ErrEffectNotFound
}

func (m *memStore) effectsWhere(match func(*types.FundingEffect) bool) []*types.FundingEffect {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.FundingEffect, 0)
	for _, e := range m.effects {
		if match(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *memStore) EffectsByBacking(_ context.Context, backingID string) ([]*types.FundingEffect, error) {
	return m.effectsWhere(func(e *types.FundingEffect) bool {
		return e.BackingID != nil && *e.BackingID == backingID
	}), nil
}

func (m *memStore) PendingEffects(_ context.Context, limit int) ([]*types.FundingEffect, error) {
	out := m.effectsWhere(func(e *types.FundingEffect) bool { return e.Status == types.EffectStatusPending })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) PendingEffectsByProject(_ context.Context, projectID string) ([]*types.FundingEffect, error) {
	return m.effectsWhere(func(e *types.FundingEffect) bool {
		return e.ProjectID == projectID && e.Status == types.EffectStatusPending
	}), nil
}

func (m *memStore) CreateEffect(_ context.Context, effect *types.FundingEffect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertEffectLocked(effect)
}

func (m *memStore) ApplyFundingEffect(_ context.Context, effect *types.FundingEffect, expectedVersion int64, totals types.FundingTotals) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failApply > 0 {
		m.failApply--
		return errApplyUnavailable
	}

	stored, ok := m.effects[effect.ID]
	if !ok || stored.Status != types.EffectStatusPending {
		return types.ErrEffectAlreadyApplied
	}

	project, ok := m.projects[effect.ProjectID]
	if !ok || project.Version != expectedVersion {
		return types.ErrConcurrentModification
	}

	now := time.Now()
	stored.Status = types.EffectStatusApplied
	stored.AppliedAt = &now
	stored.Attempts++

	project.CurrentFundingCents = totals.CurrentFundingCents
	project.BackerCount = totals.BackerCount
	project.Version++
	return nil
}

func (m *memStore) RecordEffectFailure(_ context.Context, effectID, reason string, terminal bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.effects[effectID]
	if !ok || e.Status != types.EffectStatusPending {
		return nil
	}
	e.Attempts++
	e.LastError = &reason
	if terminal {
		e.Status = types.EffectStatusFailed
	}
	return nil
}

var _ Store = (*memStore)(nil)
