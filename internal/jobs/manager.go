package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var (
	jobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crowdfund",
		Name:      "job_runs_total",
		Help:      "Background job runs by job and outcome.",
	}, []string{"job", "outcome"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "crowdfund",
		Name:      "job_duration_seconds",
		Help:      "Background job run time.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})
)

// Job is one unit of periodic maintenance.
type Job interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

type Manager struct {
	scheduler gocron.Scheduler
	logger    *logrus.Logger
	timeout   time.Duration
	jobs      []Job
}

// NewManager builds a scheduler; each run gets at most timeout to finish.
func NewManager(logger *logrus.Logger, timeout time.Duration) (*Manager, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	if logger == nil {
		logger = logrus.StandardLogger()
	}

	if timeout <= 0 {
		timeout = time.Minute
	}

	return &Manager{scheduler: s, logger: logger, timeout: timeout}, nil
}

// Register schedules the job. Overlapping runs are rescheduled rather than
// stacked.
func (m *Manager) Register(job Job) error {
	if job.Interval() <= 0 {
		return fmt.Errorf("job %s has no interval", job.Name())
	}

	_, err := m.scheduler.NewJob(
		gocron.DurationJob(job.Interval()),
		gocron.NewTask(m.execute, job),
		gocron.WithName(job.Name()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", job.Name(), err)
	}

	m.jobs = append(m.jobs, job)

	return nil
}

func (m *Manager) Start() {
	m.scheduler.Start()
	m.logger.WithField("jobs", len(m.jobs)).Info("job scheduler started")
}

func (m *Manager) Stop() error {
	if err := m.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}

	m.logger.Info("job scheduler stopped")

	return nil
}

// RunAll runs every registered job once, in registration order.
func (m *Manager) RunAll(ctx context.Context) error {
	var errs []error
	for _, job := range m.jobs {
		if err := m.run(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}

	return errors.Join(errs...)
}

func (m *Manager) execute(job Job) {
	_ = m.run(context.Background(), job)
}

func (m *Manager) run(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	entry := m.logger.WithField("job", job.Name())
	start := time.Now()

	err := job.Run(ctx)
	jobDuration.WithLabelValues(job.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		jobRunsTotal.WithLabelValues(job.Name(), "error").Inc()
		entry.WithError(err).Error("job failed")
		return err
	}

	jobRunsTotal.WithLabelValues(job.Name(), "ok").Inc()
	entry.WithField("elapsed", time.Since(start).String()).Debug("job finished")

	return nil
}
