package types

import (
	"math"
	"time"
)

type ProjectStatus string

const (
	ProjectStatusDraft     ProjectStatus = "draft"
	ProjectStatusLive      ProjectStatus = "live"
	ProjectStatusFunded    ProjectStatus = "funded"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusCancelled ProjectStatus = "cancelled"
)

const (
	MaxFundingGoalCents    int64 = 1_000_000_000 // $10,000,000
	MinFundingDurationDays       = 1
	MaxFundingDurationDays       = 90

	DefaultCurrency = "USD"
)

type Project struct {
	ID                  string        `db:"id" json:"id"`
	CreatorID           string        `db:"creator_id" json:"creatorId"`
	Title               string        `db:"title" json:"title"`
	Tagline             string        `db:"tagline" json:"tagline"`
	Description         string        `db:"description" json:"description"`
	Category            string        `db:"category" json:"category"`
	FundingGoalCents    int64         `db:"funding_goal_cents" json:"fundingGoal"`
	Currency            string        `db:"currency" json:"currency"`
	CurrentFundingCents int64         `db:"current_funding_cents" json:"currentFunding"`
	BackerCount         int           `db:"backer_count" json:"backerCount"`
	Status              ProjectStatus `db:"status" json:"projectStatus"`
	FundingDurationDays int           `db:"funding_duration_days" json:"fundingDuration"`
	Deadline            time.Time     `db:"deadline" json:"deadline"`
	PublishedAt         *time.Time    `db:"published_at" json:"publishedAt,omitempty"`
	ImageKeys           []string      `db:"image_keys" json:"imageKeys"` // jsonb array
	Version             int64         `db:"version" json:"version"`
	CreatedAt           time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time     `db:"updated_at" json:"updatedAt"`
}

// FundingWindowEnd is the deadline for a funding window opened at start.
func (p *Project) FundingWindowEnd(start time.Time) time.Time {
	return start.AddDate(0, 0, p.FundingDurationDays)
}

func (p *Project) AcceptingBackings(now time.Time) bool {
	return p.Status == ProjectStatusLive && now.Before(p.Deadline)
}

func (p *Project) GoalReached() bool {
	return p.CurrentFundingCents >= p.FundingGoalCents
}

func (p *Project) PercentFunded() float64 {
	if p.FundingGoalCents <= 0 {
		return 0
	}
	return math.Round(float64(p.CurrentFundingCents)/float64(p.FundingGoalCents)*10000) / 100
}

// DaysLeft rounds partial days up and never goes below zero.
func (p *Project) DaysLeft(now time.Time) int {
	if !now.Before(p.Deadline) {
		return 0
	}
	return int(math.Ceil(p.Deadline.Sub(now).Hours() / 24))
}

func (p *Project) Totals() FundingTotals {
	return FundingTotals{CurrentFundingCents: p.CurrentFundingCents, BackerCount: p.BackerCount}
}

type ProjectFilter struct {
	Status    ProjectStatus `form:"status"`
	Category  string        `form:"category"`
	CreatorID string        `form:"creator"`
	Limit     uint64        `form:"limit"`
	Offset    uint64        `form:"offset"`
}

type ProjectDashboard struct {
	Project       *Project      `json:"project"`
	Stats         *BackingStats `json:"stats"`
	Tiers         []*RewardTier `json:"tiers"`
	PercentFunded float64       `json:"percentFunded"`
	DaysLeft      int           `json:"daysLeft"`
}
