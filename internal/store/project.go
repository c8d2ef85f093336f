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

const (
	projectTableName    = "crowdfund.projects"
	defaultProjectLimit = 50
	maxProjectLimit     = 200
)

var projectColumns = utils.StructTagValues(types.Project{})

// Funding totals are deliberately absent, they only move through ApplyFundingEffect.
var projectEditableColumns = []string{
	"title",
	"tagline",
	"description",
	"category",
	"funding_goal_cents",
	"currency",
	"status",
	"funding_duration_days",
	"deadline",
	"published_at",
	"image_keys",
	"updated_at",
}

type ProjectRepository struct {
	pool *pgxpool.Pool
}

func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{pool: pool}
}

func (r *ProjectRepository) Project(ctx context.Context, projectID string) (*types.Project, error) {

	query, args, err := psql().Select(projectColumns...).From(projectTableName).
		Where(sq.Eq{"id": projectID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate project query: %w", err)
	}

	var project = new(types.Project)
	err = pgxscan.Get(ctx, r.pool, project, query, args...)
	if err != nil && !pgxscan.NotFound(err) {
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}

	if err != nil {
		return nil, types.ErrProjectNotFound
	}

	return project, nil

}

func (r *ProjectRepository) Projects(ctx context.Context, filter types.ProjectFilter) ([]*types.Project, error) {

	limit := filter.Limit
	if limit == 0 {
		limit = defaultProjectLimit
	}
	if limit > maxProjectLimit {
		limit = maxProjectLimit
	}

	builder := psql().Select(projectColumns...).From(projectTableName).
		OrderBy("created_at desc").
		Limit(limit).
		Offset(filter.Offset)

	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}
	if filter.Category != "" {
		builder = builder.Where(sq.Eq{"category": filter.Category})
	}
	if filter.CreatorID != "" {
		builder = builder.Where(sq.Eq{"creator_id": filter.CreatorID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate projects query: %w", err)
	}

	var projects = make([]*types.Project, 0)
	err = pgxscan.Select(ctx, r.pool, &projects, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch projects: %w", err)
	}

	return projects, nil
}

func (r *ProjectRepository) LiveProjectsPastDeadline(ctx context.Context, now time.Time) ([]*types.Project, error) {

	query, args, err := psql().Select(projectColumns...).From(projectTableName).
		Where(sq.Eq{"status": types.ProjectStatusLive}).
		Where(sq.LtOrEq{"deadline": now}).
		OrderBy("deadline asc").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate expired projects query: %w", err)
	}

	var projects = make([]*types.Project, 0)
	err = pgxscan.Select(ctx, r.pool, &projects, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch expired projects: %w", err)
	}

	return projects, nil
}

func (r *ProjectRepository) CreateProject(ctx context.Context, project *types.Project) error {

	now := time.Now()
	if project.ID == "" {
		project.ID = utils.NanoID()
	}
	project.Version = 1
	project.ImageKeys = nonNilStrings(project.ImageKeys)
	project.UpdatedAt = now
	project.CreatedAt = now

	query, args, err := psql().Insert(projectTableName).SetMap(utils.StructToMap(project)).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert project query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to create project")

}

// UpdateProject writes the editable columns only if the stored version still
// matches expectedVersion.
func (r *ProjectRepository) UpdateProject(ctx context.Context, project *types.Project, expectedVersion int64) error {

	project.UpdatedAt = time.Now()
	project.ImageKeys = nonNilStrings(project.ImageKeys)

	values := utils.StructToMapOnly(project, projectEditableColumns...)
	values["version"] = sq.Expr("version + 1")

	query, args, err := psql().Update(projectTableName).SetMap(values).
		Where(sq.Eq{"id": project.ID, "version": expectedVersion}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate update project query for project %s: %w", project.ID, err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return types.ErrConcurrentModification
	}

	project.Version = expectedVersion + 1
	return nil

}

func (r *ProjectRepository) DeleteProject(ctx context.Context, projectID string) error {

	query, args, err := psql().Delete(projectTableName).
		Where(sq.Eq{"id": projectID, "status": types.ProjectStatusDraft}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate delete project query for project %s: %w", projectID, err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return types.ErrConcurrentModification
	}

	return nil

}
