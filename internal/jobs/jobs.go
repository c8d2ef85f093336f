package jobs

import (
	"context"
	"time"

	"crowdfund/internal/projects"
	"crowdfund/pkg/types"

	"github.com/sirupsen/logrus"
)

type Reconciler interface {
	ReconcilePending(ctx context.Context) (*types.ReconcileReport, error)
}

type ProjectCloser interface {
	CloseExpiredProjects(ctx context.Context) (*projects.CloseReport, error)
}

type OverdueMarker interface {
	MarkOverdueMilestones(ctx context.Context) (int64, error)
}

// ReconcileJob applies funding effects left pending by failed or interrupted
// writes.
type ReconcileJob struct {
	reconciler Reconciler
	interval   time.Duration
	logger     *logrus.Logger
}

func NewReconcileJob(reconciler Reconciler, interval time.Duration, logger *logrus.Logger) *ReconcileJob {
	return &ReconcileJob{reconciler: reconciler, interval: interval, logger: logger}
}

func (j *ReconcileJob) Name() string            { return "funding_reconcile" }
func (j *ReconcileJob) Interval() time.Duration { return j.interval }

func (j *ReconcileJob) Run(ctx context.Context) error {
	report, err := j.reconciler.ReconcilePending(ctx)
	if err != nil {
		return err
	}

	if report.Pending > 0 {
		j.logger.WithFields(logrus.Fields{
			"pending":  report.Pending,
			"applied":  report.Applied,
			"failed":   report.Failed,
			"projects": report.Projects,
		}).Info("funding effects reconciled")
	}

	return nil
}

// CloseProjectsJob settles live projects whose deadline passed.
type CloseProjectsJob struct {
	closer   ProjectCloser
	interval time.Duration
	logger   *logrus.Logger
}

func NewCloseProjectsJob(closer ProjectCloser, interval time.Duration, logger *logrus.Logger) *CloseProjectsJob {
	return &CloseProjectsJob{closer: closer, interval: interval, logger: logger}
}

func (j *CloseProjectsJob) Name() string            { return "close_expired_projects" }
func (j *CloseProjectsJob) Interval() time.Duration { return j.interval }

func (j *CloseProjectsJob) Run(ctx context.Context) error {
	report, err := j.closer.CloseExpiredProjects(ctx)
	if err != nil {
		return err
	}

	if report.Funded+report.Cancelled+report.Deferred > 0 {
		j.logger.WithFields(logrus.Fields{
			"funded":    report.Funded,
			"cancelled": report.Cancelled,
			"deferred":  report.Deferred,
			"failed":    report.Failed,
		}).Info("expired projects closed")
	}

	return nil
}

type OverdueMilestonesJob struct {
	marker   OverdueMarker
	interval time.Duration
}

func NewOverdueMilestonesJob(marker OverdueMarker, interval time.Duration) *OverdueMilestonesJob {
	return &OverdueMilestonesJob{marker: marker, interval: interval}
}

func (j *OverdueMilestonesJob) Name() string            { return "overdue_milestones" }
func (j *OverdueMilestonesJob) Interval() time.Duration { return j.interval }

func (j *OverdueMilestonesJob) Run(ctx context.Context) error {
	_, err := j.marker.MarkOverdueMilestones(ctx)
	return err
}
