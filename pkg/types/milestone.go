package types

import "time"

type MilestoneStatus string

const (
	MilestoneStatusPending    MilestoneStatus = "pending"
	MilestoneStatusInProgress MilestoneStatus = "in_progress"
	MilestoneStatusReview     MilestoneStatus = "review"
	MilestoneStatusCompleted  MilestoneStatus = "completed"
	MilestoneStatusOverdue    MilestoneStatus = "overdue"
)

var MilestoneStatuses = []MilestoneStatus{
	MilestoneStatusPending,
	MilestoneStatusInProgress,
	MilestoneStatusReview,
	MilestoneStatusCompleted,
	MilestoneStatusOverdue,
}

var milestoneTransitions = map[MilestoneStatus][]MilestoneStatus{
	MilestoneStatusPending:    {MilestoneStatusInProgress, MilestoneStatusOverdue},
	MilestoneStatusInProgress: {MilestoneStatusReview, MilestoneStatusOverdue},
	MilestoneStatusReview:     {MilestoneStatusCompleted, MilestoneStatusInProgress},
	MilestoneStatusOverdue:    {MilestoneStatusInProgress, MilestoneStatusReview},
	MilestoneStatusCompleted:  {},
}

func (s MilestoneStatus) Valid() bool {
	_, ok := milestoneTransitions[s]
	return ok
}

func (s MilestoneStatus) CanTransitionTo(next MilestoneStatus) bool {
	for _, allowed := range milestoneTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

const (
	MinFeedbackScore = 1
	MaxFeedbackScore = 5
)

type Milestone struct {
	ID                string          `db:"id" json:"id"`
	ProjectID         string          `db:"project_id" json:"projectId"`
	Title             string          `db:"title" json:"title"`
	Description       string          `db:"description" json:"description"`
	SortOrder         int             `db:"sort_order" json:"order"`
	FundingPercentage int             `db:"funding_percentage" json:"fundingPercentage"`
	TargetDate        time.Time       `db:"target_date" json:"targetDate"`
	Status            MilestoneStatus `db:"status" json:"milestoneStatus"`
	Deliverables      []string        `db:"deliverables" json:"deliverables"`  // jsonb array
	EvidenceKeys      []string        `db:"evidence_keys" json:"evidenceKeys"` // jsonb array
	FeedbackScoreSum  int64           `db:"feedback_score_sum" json:"-"`
	FeedbackCount     int64           `db:"feedback_count" json:"feedbackCount"`
	CompletedAt       *time.Time      `db:"completed_at" json:"completedAt,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updatedAt"`
}

func (m *Milestone) Overdue(now time.Time) bool {
	return m.Status != MilestoneStatusCompleted && now.After(m.TargetDate)
}

// FeedbackScore is the mean of every score submitted.
func (m *Milestone) FeedbackScore() float64 {
	if m.FeedbackCount == 0 {
		return 0
	}
	return float64(m.FeedbackScoreSum) / float64(m.FeedbackCount)
}

type MilestoneProgress struct {
	ProjectID              string                  `json:"projectId"`
	Total                  int                     `json:"total"`
	ByStatus               map[MilestoneStatus]int `json:"byStatus"`
	Completed              int                     `json:"completed"`
	Overdue                int                     `json:"overdue"`
	CompletionPercent      float64                 `json:"completionPercent"`
	ReleasedFundingPercent int                     `json:"releasedFundingPercent"`
	FeedbackCount          int64                   `json:"feedbackCount"`
	AverageFeedbackScore   float64                 `json:"averageFeedbackScore"`
}
