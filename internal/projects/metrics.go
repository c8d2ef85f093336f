package projects

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	projectTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdfund_project_transitions_total",
		Help: "Project status transitions by target status.",
	}, []string{"status"})

	milestoneFeedbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crowdfund_milestone_feedback_total",
		Help: "Feedback scores recorded against milestones.",
	})

	overdueMilestonesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crowdfund_overdue_milestones_total",
		Help: "Milestones flagged overdue by the scheduler.",
	})
)
