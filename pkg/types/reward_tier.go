package types

import "time"

type RewardTier struct {
	ID                string     `db:"id" json:"id"`
	ProjectID         string     `db:"project_id" json:"projectId"`
	Title             string     `db:"title" json:"title"`
	Description       string     `db:"description" json:"description"`
	PledgeAmountCents int64      `db:"pledge_amount_cents" json:"pledgeAmount"`
	IsLimited         bool       `db:"is_limited" json:"isLimited"`
	QuantityLimit     int        `db:"quantity_limit" json:"quantityLimit"`
	ClaimedCount      int        `db:"claimed_count" json:"claimedCount"`
	EstimatedDelivery *time.Time `db:"estimated_delivery" json:"estimatedDelivery,omitempty"`
	ShippingRequired  bool       `db:"shipping_required" json:"shippingRequired"`
	Version           int64      `db:"version" json:"version"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
}

func (t *RewardTier) Available() bool {
	return !t.IsLimited || t.ClaimedCount < t.QuantityLimit
}

// Remaining is -1 for unlimited tiers.
func (t *RewardTier) Remaining() int {
	if !t.IsLimited {
		return -1
	}
	if t.ClaimedCount >= t.QuantityLimit {
		return 0
	}
	return t.QuantityLimit - t.ClaimedCount
}

type TierAvailability struct {
	TierID    string `json:"tierId"`
	Available bool   `json:"available"`
	Remaining int    `json:"remaining"`
	Claimed   int    `json:"claimed"`
	IsLimited bool   `json:"isLimited"`
}
