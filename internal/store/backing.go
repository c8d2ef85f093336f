package store

import (
	"context"
	"fmt"
	"time"

	"crowdfund/internal/utils"
	"crowdfund/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const backingTableName = "crowdfund.backings"

var backingColumns = utils.StructTagValues(types.Backing{})

type BackingRepository struct {
	pool *pgxpool.Pool
}

func NewBackingRepository(pool *pgxpool.Pool) *BackingRepository {
	return &BackingRepository{pool: pool}
}

func (r *BackingRepository) Backing(ctx context.Context, backingID string) (*types.Backing, error) {
	return r.backingWhere(ctx, sq.Eq{"id": backingID})
}

func (r *BackingRepository) BackingByIdempotencyKey(ctx context.Context, key string) (*types.Backing, error) {
	return r.backingWhere(ctx, sq.Eq{"idempotency_key": key})
}

func (r *BackingRepository) backingWhere(ctx context.Context, pred sq.Eq) (*types.Backing, error) {
	query, args, err := psql().
		Select(backingColumns...).
		From(backingTableName).
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate backing query: %w", err)
	}

	var backing types.Backing
	err = pgxscan.Get(ctx, r.pool, &backing, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrBackingNotFound
		}
		return nil, fmt.Errorf("failed to fetch backing: %w", err)
	}

	return &backing, nil
}

func (r *BackingRepository) BackingsByProject(ctx context.Context, projectID string) ([]*types.Backing, error) {
	return r.backingsWhere(ctx, sq.Eq{"project_id": projectID})
}

func (r *BackingRepository) BackingsByBacker(ctx context.Context, backerID string) ([]*types.Backing, error) {
	return r.backingsWhere(ctx, sq.Eq{"backer_id": backerID})
}

func (r *BackingRepository) backingsWhere(ctx context.Context, pred sq.Eq) ([]*types.Backing, error) {
	query, args, err := psql().
		Select(backingColumns...).
		From(backingTableName).
		Where(pred).
		OrderBy("created_at desc").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate backings query: %w", err)
	}

	var backings = make([]*types.Backing, 0)
	err = pgxscan.Select(ctx, r.pool, &backings, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch backings: %w", err)
	}

	return backings, nil
}

func (r *BackingRepository) BackingStats(ctx context.Context, projectID string) (*types.BackingStats, error) {
	query, args, err := psql().
		Select(
			"count(*) AS total_backings",
			"count(*) FILTER (WHERE status <> 'cancelled') AS active_backings",
			"count(*) FILTER (WHERE status = 'cancelled') AS cancelled_backings",
			"coalesce(sum(total_amount_cents) FILTER (WHERE status <> 'cancelled'), 0)::bigint AS total_pledged_cents",
			"coalesce(avg(total_amount_cents) FILTER (WHERE status <> 'cancelled'), 0)::bigint AS average_pledge_cents",
		).
		From(backingTableName).
		Where(sq.Eq{"project_id": projectID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate backing stats query: %w", err)
	}

	var stats types.BackingStats
	err = pgxscan.Get(ctx, r.pool, &stats, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch backing stats: %w", err)
	}

	return &stats, nil
}

// RecordBacking claims the reward tier, inserts the backing and its pledge
// effect in one transaction. A full limited tier yields ErrTierSoldOut and
// nothing is written.
func (r *BackingRepository) RecordBacking(ctx context.Context, backing *types.Backing, effect *types.FundingEffect) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin backing transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if backing.RewardTierID != nil {
		if err := claimTier(ctx, tx, *backing.RewardTierID); err != nil {
			return err
		}
	}

	now := time.Now()
	backing.CreatedAt = now
	backing.UpdatedAt = now

	query, args, err := psql().
		Insert(backingTableName).
		SetMap(utils.StructToMap(backing)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert backing query: %w", err)
	}

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return types.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert backing: %w", err)
	}

	if err := insertEffect(ctx, tx, effect); err != nil {
		return err
	}

	return utils.ErrorWrapOrNil(tx.Commit(ctx), "failed to commit backing")
}

// RecordCancellation moves an open backing to cancelled, releases its tier
// claim and queues the reversal effect in one transaction.
func (r *BackingRepository) RecordCancellation(ctx context.Context, backing *types.Backing, effect *types.FundingEffect, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin cancellation transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query, args, err := cancelBackingQuery(backing.ID, at).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate cancel backing query: %w", err)
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to cancel backing: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return types.ErrConcurrentModification
	}

	if backing.RewardTierID != nil {
		if err := releaseTier(ctx, tx, *backing.RewardTierID); err != nil {
			return err
		}
	}

	if err := insertEffect(ctx, tx, effect); err != nil {
		return err
	}

	return utils.ErrorWrapOrNil(tx.Commit(ctx), "failed to commit cancellation")
}

func (r *BackingRepository) UpdateBackingStatus(ctx context.Context, backingID string, from []types.BackingStatus, to types.BackingStatus) error {
	query, args, err := psql().
		Update(backingTableName).
		Set("status", to).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": backingID, "status": from}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate backing status query: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update backing status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return types.ErrConcurrentModification
	}

	return nil
}

func (r *BackingRepository) SetPaymentIntent(ctx context.Context, backingID, paymentIntentID string) error {
	query, args, err := psql().
		Update(backingTableName).
		Set("payment_intent_id", paymentIntentID).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": backingID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate payment intent query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to store payment intent")
}

// cancelBackingQuery only matches backings that are still open.
func cancelBackingQuery(backingID string, at time.Time) sq.UpdateBuilder {
	return psql().
		Update(backingTableName).
		Set("status", types.BackingStatusCancelled).
		Set("cancelled_at", at).
		Set("updated_at", at).
		Where(sq.Eq{
			"id":     backingID,
			"status": []types.BackingStatus{types.BackingStatusPending, types.BackingStatusConfirmed},
		})
}

// claimTierQuery matches no row once a limited tier is full.
func claimTierQuery(tierID string, now time.Time) sq.UpdateBuilder {
	return psql().
		Update(rewardTierTableName).
		Set("claimed_count", sq.Expr("claimed_count + 1")).
		Set("updated_at", now).
		Where(sq.Eq{"id": tierID}).
		Where("(NOT is_limited OR claimed_count < quantity_limit)")
}

func releaseTierQuery(tierID string, now time.Time) sq.UpdateBuilder {
	return psql().
		Update(rewardTierTableName).
		Set("claimed_count", sq.Expr("GREATEST(claimed_count - 1, 0)")).
		Set("updated_at", now).
		Where(sq.Eq{"id": tierID})
}

func claimTier(ctx context.Context, tx pgx.Tx, tierID string) error {
	query, args, err := claimTierQuery(tierID, time.Now()).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate claim tier query: %w", err)
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to claim reward tier: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return types.ErrTierSoldOut
	}

	return nil
}

func releaseTier(ctx context.Context, tx pgx.Tx, tierID string) error {
	query, args, err := releaseTierQuery(tierID, time.Now()).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate release tier query: %w", err)
	}

	_, err = tx.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to release reward tier")
}
