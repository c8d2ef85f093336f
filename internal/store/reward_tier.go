package store

import (
	"context"
	"fmt"
	"time"

	"crowdfund/internal/utils"
	"crowdfund/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

const rewardTierTableName = "crowdfund.reward_tiers"

var rewardTierColumns = utils.StructTagValues(types.RewardTier{})

var rewardTierEditableColumns = []string{
	"title",
	"description",
	"pledge_amount_cents",
	"is_limited",
	"quantity_limit",
	"estimated_delivery",
	"shipping_required",
	"updated_at",
}

type RewardTierRepository struct {
	pool *pgxpool.Pool
}

func NewRewardTierRepository(pool *pgxpool.Pool) *RewardTierRepository {
	return &RewardTierRepository{pool: pool}
}

func (r *RewardTierRepository) RewardTier(ctx context.Context, tierID string) (*types.RewardTier, error) {
	query, args, err := psql().
		Select(rewardTierColumns...).
		From(rewardTierTableName).
		Where(sq.Eq{"id": tierID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate reward tier query: %w", err)
	}

	var tier types.RewardTier
	err = pgxscan.Get(ctx, r.pool, &tier, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrRewardTierNotFound
		}
		return nil, fmt.Errorf("failed to fetch reward tier: %w", err)
	}

	return &tier, nil
}

func (r *RewardTierRepository) TiersByProject(ctx context.Context, projectID string) ([]*types.RewardTier, error) {
	query, args, err := psql().
		Select(rewardTierColumns...).
		From(rewardTierTableName).
		Where(sq.Eq{"project_id": projectID}).
		OrderBy("pledge_amount_cents asc", "created_at asc").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate reward tiers query: %w", err)
	}

	var tiers = make([]*types.RewardTier, 0)
	err = pgxscan.Select(ctx, r.pool, &tiers, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reward tiers: %w", err)
	}

	return tiers, nil
}

func (r *RewardTierRepository) CreateTier(ctx context.Context, tier *types.RewardTier) error {
	now := time.Now()
	if tier.ID == "" {
		tier.ID = utils.NanoID()
	}
	tier.ClaimedCount = 0
	tier.Version = 1
	tier.CreatedAt = now
	tier.UpdatedAt = now

	query, args, err := psql().
		Insert(rewardTierTableName).
		SetMap(utils.StructToMap(tier)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate create reward tier query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to create reward tier")
}

// UpdateTier is a version checked write that also refuses to drop a limit
// below what has already been claimed.
func (r *RewardTierRepository) UpdateTier(ctx context.Context, tier *types.RewardTier, expectedVersion int64) error {
	tier.UpdatedAt = time.Now()

	values := utils.StructToMapOnly(tier, rewardTierEditableColumns...)
	values["version"] = sq.Expr("version + 1")

	query, args, err := psql().
		Update(rewardTierTableName).
		SetMap(values).
		Where(sq.Eq{"id": tier.ID, "version": expectedVersion}).
		Where(sq.Expr("(NOT ?::boolean OR claimed_count <= ?::integer)", tier.IsLimited, tier.QuantityLimit)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate update reward tier query: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update reward tier: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return types.ErrConcurrentModification
	}

	tier.Version = expectedVersion + 1
	return nil
}

func (r *RewardTierRepository) DeleteTier(ctx context.Context, tierID string) error {
	query, args, err := psql().
		Delete(rewardTierTableName).
		Where(sq.Eq{"id": tierID, "claimed_count": 0}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate delete reward tier query: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		if isForeignKeyViolation(err) {
			return types.NewInvalidStateError("reward tier is referenced by backings")
		}
		return fmt.Errorf("failed to delete reward tier: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return types.ErrConcurrentModification
	}

	return nil
}
