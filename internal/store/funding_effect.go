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

const fundingEffectTableName = "crowdfund.funding_effects"

var fundingEffectColumns = utils.StructTagValues(types.FundingEffect{})

type EffectRepository struct {
	pool *pgxpool.Pool
}

func NewEffectRepository(pool *pgxpool.Pool) *EffectRepository {
	return &EffectRepository{pool: pool}
}

func (r *EffectRepository) Effect(ctx context.Context, effectID string) (*types.FundingEffect, error) {
	return r.effectWhere(ctx, sq.Eq{"id": effectID})
}

func (r *EffectRepository) EffectByIdempotencyKey(ctx context.Context, key string) (*types.FundingEffect, error) {
	return r.effectWhere(ctx, sq.Eq{"idempotency_key": key})
}

func (r *EffectRepository) effectWhere(ctx context.Context, pred sq.Eq) (*types.FundingEffect, error) {
	query, args, err := psql().
		Select(fundingEffectColumns...).
		From(fundingEffectTableName).
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate funding effect query: %w", err)
	}

	var effect types.FundingEffect
	err = pgxscan.Get(ctx, r.pool, &effect, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrEffectNotFound
		}
		return nil, fmt.Errorf("failed to fetch funding effect: %w", err)
	}

	return &effect, nil
}

func (r *EffectRepository) EffectsByBacking(ctx context.Context, backingID string) ([]*types.FundingEffect, error) {
	query, args, err := psql().
		Select(fundingEffectColumns...).
		From(fundingEffectTableName).
		Where(sq.Eq{"backing_id": backingID}).
		OrderBy("created_at asc").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate backing effects query: %w", err)
	}

	var effects = make([]*types.FundingEffect, 0)
	err = pgxscan.Select(ctx, r.pool, &effects, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch backing effects: %w", err)
	}

	return effects, nil
}

func pendingEffectsQuery() sq.SelectBuilder {
	return psql().
		Select(fundingEffectColumns...).
		From(fundingEffectTableName).
		Where(sq.Eq{"status": types.EffectStatusPending}).
		OrderBy("created_at asc", "id asc")
}

// PendingEffects returns the oldest pending effects first.
func (r *EffectRepository) PendingEffects(ctx context.Context, limit int) ([]*types.FundingEffect, error) {
	query, args, err := pendingEffectsQuery().Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate pending effects query: %w", err)
	}

	var effects = make([]*types.FundingEffect, 0)
	err = pgxscan.Select(ctx, r.pool, &effects, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending effects: %w", err)
	}

	return effects, nil
}

// PendingEffectsByProject returns one project's pending effects, oldest first.
func (r *EffectRepository) PendingEffectsByProject(ctx context.Context, projectID string) ([]*types.FundingEffect, error) {
	query, args, err := pendingEffectsQuery().Where(sq.Eq{"project_id": projectID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate project pending effects query: %w", err)
	}

	var effects = make([]*types.FundingEffect, 0)
	err = pgxscan.Select(ctx, r.pool, &effects, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch project pending effects: %w", err)
	}

	return effects, nil
}

func (r *EffectRepository) CreateEffect(ctx context.Context, effect *types.FundingEffect) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin effect transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertEffect(ctx, tx, effect); err != nil {
		return err
	}

	return utils.ErrorWrapOrNil(tx.Commit(ctx), "failed to commit funding effect")
}

// ApplyFundingEffect marks a pending effect applied and writes the new project
// totals in one transaction. The project write is conditional on
// expectedVersion; a stale version yields ErrConcurrentModification and an
// effect that is no longer pending yields ErrEffectAlreadyApplied.
func (r *EffectRepository) ApplyFundingEffect(ctx context.Context, effect *types.FundingEffect, expectedVersion int64, totals types.FundingTotals) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin apply transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()

	query, args, err := markEffectAppliedQuery(effect.ID, now).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate apply effect query: %w", err)
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark funding effect applied: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return types.ErrEffectAlreadyApplied
	}

	query, args, err = projectTotalsQuery(effect.ProjectID, expectedVersion, totals, now).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate project totals query: %w", err)
	}

	tag, err = tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update project totals: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return types.ErrConcurrentModification
	}

	return utils.ErrorWrapOrNil(tx.Commit(ctx), "failed to commit funding effect")
}

// markEffectAppliedQuery matches only an effect that is still pending.
func markEffectAppliedQuery(effectID string, now time.Time) sq.UpdateBuilder {
	return psql().
		Update(fundingEffectTableName).
		Set("status", types.EffectStatusApplied).
		Set("applied_at", now).
		Set("attempts", sq.Expr("attempts + 1")).
		Where(sq.Eq{"id": effectID, "status": types.EffectStatusPending})
}

// projectTotalsQuery matches only the project version the totals were computed from.
func projectTotalsQuery(projectID string, expectedVersion int64, totals types.FundingTotals, now time.Time) sq.UpdateBuilder {
	return psql().
		Update(projectTableName).
		Set("current_funding_cents", totals.CurrentFundingCents).
		Set("backer_count", totals.BackerCount).
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", now).
		Where(sq.Eq{"id": projectID, "version": expectedVersion})
}

func recordEffectFailureQuery(effectID, reason string, terminal bool) sq.UpdateBuilder {
	builder := psql().
		Update(fundingEffectTableName).
		Set("attempts", sq.Expr("attempts + 1")).
		Set("last_error", reason).
		Where(sq.Eq{"id": effectID, "status": types.EffectStatusPending})

	if terminal {
		builder = builder.Set("status", types.EffectStatusFailed)
	}

	return builder
}

// RecordEffectFailure bumps the attempt counter. Terminal failures leave the
// pending queue for good.
func (r *EffectRepository) RecordEffectFailure(ctx context.Context, effectID, reason string, terminal bool) error {
	query, args, err := recordEffectFailureQuery(effectID, reason, terminal).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate effect failure query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to record funding effect failure")
}

func insertEffect(ctx context.Context, tx pgx.Tx, effect *types.FundingEffect) error {
	effect.Status = types.EffectStatusPending
	effect.CreatedAt = time.Now()

	query, args, err := psql().
		Insert(fundingEffectTableName).
		SetMap(utils.StructToMap(effect)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert effect query: %w", err)
	}

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return types.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert funding effect: %w", err)
	}

	return nil
}
