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

const milestoneTableName = "crowdfund.milestones"

var milestoneColumns = utils.StructTagValues(types.Milestone{})

var milestoneEditableColumns = []string{
	"title",
	"description",
	"target_date",
	"status",
	"deliverables",
	"completed_at",
	"updated_at",
}

type MilestoneRepository struct {
	pool *pgxpool.Pool
}

func NewMilestoneRepository(pool *pgxpool.Pool) *MilestoneRepository {
	return &MilestoneRepository{pool: pool}
}

func (r *MilestoneRepository) Milestone(ctx context.Context, milestoneID string) (*types.Milestone, error) {
	query, args, err := psql().
		Select(milestoneColumns...).
		From(milestoneTableName).
		Where(sq.Eq{"id": milestoneID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate milestone query: %w", err)
	}

	var milestone types.Milestone
	err = pgxscan.Get(ctx, r.pool, &milestone, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrMilestoneNotFound
		}
		return nil, fmt.Errorf("failed to fetch milestone: %w", err)
	}

	return &milestone, nil
}

func (r *MilestoneRepository) MilestonesByProject(ctx context.Context, projectID string) ([]*types.Milestone, error) {
	query, args, err := psql().
		Select(milestoneColumns...).
		From(milestoneTableName).
		Where(sq.Eq{"project_id": projectID}).
		OrderBy("sort_order asc").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate milestones query: %w", err)
	}

	var milestones = make([]*types.Milestone, 0)
	err = pgxscan.Select(ctx, r.pool, &milestones, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch milestones: %w", err)
	}

	return milestones, nil
}

// ReplaceMilestones swaps a project's whole milestone set in one transaction.
func (r *MilestoneRepository) ReplaceMilestones(ctx context.Context, projectID string, milestones []*types.Milestone) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin milestones transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query, args, err := psql().Delete(milestoneTableName).Where(sq.Eq{"project_id": projectID}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate delete milestones query: %w", err)
	}

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete milestones: %w", err)
	}

	now := time.Now()
	for _, milestone := range milestones {
		if milestone.ID == "" {
			milestone.ID = utils.NanoID()
		}
		milestone.ProjectID = projectID
		milestone.Deliverables = nonNilStrings(milestone.Deliverables)
		milestone.EvidenceKeys = nonNilStrings(milestone.EvidenceKeys)
		milestone.CreatedAt = now
		milestone.UpdatedAt = now

		query, args, err := psql().Insert(milestoneTableName).SetMap(utils.StructToMap(milestone)).ToSql()
		if err != nil {
			return fmt.Errorf("failed to generate insert milestone query: %w", err)
		}

		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert milestone %d: %w", milestone.SortOrder, err)
		}
	}

	return utils.ErrorWrapOrNil(tx.Commit(ctx), "failed to commit milestones")
}

func (r *MilestoneRepository) UpdateMilestone(ctx context.Context, milestone *types.Milestone) error {
	milestone.UpdatedAt = time.Now()
	milestone.Deliverables = nonNilStrings(milestone.Deliverables)

	query, args, err := psql().
		Update(milestoneTableName).
		SetMap(utils.StructToMapOnly(milestone, milestoneEditableColumns...)).
		Where(sq.Eq{"id": milestone.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate update milestone query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to update milestone")
}

// RecordFeedback adds one score to the running (sum, count) pair.
func (r *MilestoneRepository) RecordFeedback(ctx context.Context, milestoneID string, score int) error {
	query, args, err := psql().
		Update(milestoneTableName).
		Set("feedback_score_sum", sq.Expr("feedback_score_sum + ?", score)).
		Set("feedback_count", sq.Expr("feedback_count + 1")).
		Where(sq.Eq{"id": milestoneID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate milestone feedback query: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to record milestone feedback: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return types.ErrMilestoneNotFound
	}

	return nil
}

func (r *MilestoneRepository) AddEvidence(ctx context.Context, milestoneID, key string) error {
	query, args, err := psql().
		Update(milestoneTableName).
		Set("evidence_keys", sq.Expr("evidence_keys || jsonb_build_array(?::text)", key)).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": milestoneID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate milestone evidence query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to add milestone evidence")
}

// MarkOverdueMilestones flags open milestones whose target date has passed.
func (r *MilestoneRepository) MarkOverdueMilestones(ctx context.Context, now time.Time) (int64, error) {
	query, args, err := psql().
		Update(milestoneTableName).
		Set("status", types.MilestoneStatusOverdue).
		Set("updated_at", now).
		Where(sq.Eq{"status": []types.MilestoneStatus{types.MilestoneStatusPending, types.MilestoneStatusInProgress}}).
		Where(sq.Lt{"target_date": now}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to generate overdue milestones query: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue milestones: %w", err)
	}

	return tag.RowsAffected(), nil
}
