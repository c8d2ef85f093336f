package store

import (
	"crowdfund/internal/funding"
	"crowdfund/internal/projects"
	"crowdfund/internal/users"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store bundles every repository behind the interfaces the services consume.
type Store struct {
	*ProjectRepository
	*RewardTierRepository
	*BackingRepository
	*EffectRepository
	*MilestoneRepository
	*UserRepository
}

var (
	_ funding.Store  = (*Store)(nil)
	_ projects.Store = (*Store)(nil)
	_ users.Store    = (*Store)(nil)
)

func New(pool *pgxpool.Pool) *Store {
	return &Store{
		ProjectRepository:    NewProjectRepository(pool),
		RewardTierRepository: NewRewardTierRepository(pool),
		BackingRepository:    NewBackingRepository(pool),
		EffectRepository:     NewEffectRepository(pool),
		MilestoneRepository:  NewMilestoneRepository(pool),
		UserRepository:       NewUserRepository(pool),
	}
}
