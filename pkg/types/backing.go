package types

import "time"

type BackingStatus string

const (
	BackingStatusPending   BackingStatus = "pending"
	BackingStatusConfirmed BackingStatus = "confirmed"
	BackingStatusFulfilled BackingStatus = "fulfilled"
	BackingStatusCancelled BackingStatus = "cancelled"
)

const (
	MinPledgeCents int64 = 100        // $1
	MaxPledgeCents int64 = 10_000_000 // $100,000
)

type ShippingAddress struct {
	Name       string `json:"name" validate:"required"`
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country" validate:"required,len=2"`
}

type Backing struct {
	ID                string           `db:"id" json:"id"`
	ProjectID         string           `db:"project_id" json:"projectId"`
	BackerID          string           `db:"backer_id" json:"backerId,omitempty"`
	RewardTierID      *string          `db:"reward_tier_id" json:"rewardTierId,omitempty"`
	PledgeAmountCents int64            `db:"pledge_amount_cents" json:"pledgeAmount"`
	ExtraSupportCents int64            `db:"extra_support_cents" json:"extraSupport"`
	TotalAmountCents  int64            `db:"total_amount_cents" json:"totalAmount"`
	BackerName        string           `db:"backer_name" json:"backerName"`
	BackerEmail       string           `db:"backer_email" json:"backerEmail,omitempty"`
	ShippingAddress   *ShippingAddress `db:"shipping_address" json:"shippingAddress,omitempty"` // jsonb
	IsAnonymous       bool             `db:"is_anonymous" json:"isAnonymous"`
	Status            BackingStatus    `db:"status" json:"backingStatus"`
	IdempotencyKey    string           `db:"idempotency_key" json:"-"`
	PaymentIntentID   *string          `db:"payment_intent_id" json:"paymentIntentId,omitempty"`
	CancelledAt       *time.Time       `db:"cancelled_at" json:"cancelledAt,omitempty"`
	CreatedAt         time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updatedAt"`
}

// Counted reports whether the backing contributes to project totals.
func (b *Backing) Counted() bool {
	return b.Status != BackingStatusCancelled
}

// Masked hides the backer's identity and contact details from public listings.
func (b *Backing) Masked() *Backing {
	out := *b
	out.BackerEmail = ""
	out.ShippingAddress = nil
	out.PaymentIntentID = nil
	if b.IsAnonymous {
		out.BackerID = ""
		out.BackerName = "Anonymous"
	}
	return &out
}

type BackingStats struct {
	TotalBackings      int   `db:"total_backings" json:"totalBackings"`
	ActiveBackings     int   `db:"active_backings" json:"activeBackings"`
	CancelledBackings  int   `db:"cancelled_backings" json:"cancelledBackings"`
	TotalPledgedCents  int64 `db:"total_pledged_cents" json:"totalPledged"`
	AveragePledgeCents int64 `db:"average_pledge_cents" json:"averagePledge"`
}
