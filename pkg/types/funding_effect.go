package types

import "time"

type EffectKind string

const (
	EffectKindPledge       EffectKind = "pledge"
	EffectKindCancellation EffectKind = "cancellation"
	EffectKindAdjustment   EffectKind = "adjustment"
)

type EffectStatus string

const (
	EffectStatusPending EffectStatus = "pending"
	EffectStatusApplied EffectStatus = "applied"
	EffectStatusFailed  EffectStatus = "failed"
)

// FundingEffect is a pending change to a project's funding totals. Effects are
// written in the same transaction as the backing change that caused them and
// applied to the project exactly once.
type FundingEffect struct {
	ID             string       `db:"id" json:"id"`
	BackingID      *string      `db:"backing_id" json:"backingId,omitempty"`
	ProjectID      string       `db:"project_id" json:"projectId"`
	Kind           EffectKind   `db:"kind" json:"kind"`
	AmountCents    int64        `db:"amount_cents" json:"amount"`
	BackerDelta    int          `db:"backer_delta" json:"backerDelta"`
	Status         EffectStatus `db:"status" json:"status"`
	Attempts       int          `db:"attempts" json:"attempts"`
	LastError      *string      `db:"last_error" json:"lastError,omitempty"`
	IdempotencyKey string       `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time    `db:"created_at" json:"createdAt"`
	AppliedAt      *time.Time   `db:"applied_at" json:"appliedAt,omitempty"`
}

type FundingTotals struct {
	CurrentFundingCents int64
	BackerCount         int
}

// Apply returns the totals after the effect, floored at zero.
func (t FundingTotals) Apply(e *FundingEffect) FundingTotals {
	out := FundingTotals{
		CurrentFundingCents: t.CurrentFundingCents + e.AmountCents,
		BackerCount:         t.BackerCount + e.BackerDelta,
	}
	if out.CurrentFundingCents < 0 {
		out.CurrentFundingCents = 0
	}
	if out.BackerCount < 0 {
		out.BackerCount = 0
	}
	return out
}

// BackerDeltaFor follows the sign of a funding change.
func BackerDeltaFor(amountCents int64) int {
	switch {
	case amountCents > 0:
		return 1
	case amountCents < 0:
		return -1
	}
	return 0
}

type ReconcileReport struct {
	Pending  int `json:"pending"`
	Applied  int `json:"applied"`
	Failed   int `json:"failed"`
	Projects int `json:"projects"`
}
