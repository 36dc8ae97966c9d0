package models

import "time"

// ReferralReward is a milestone on the rewards track. ReferralsRequired is the
// threshold that unlocks it; unlocking is informational, nothing in the
// ledger enforces delivery.
type ReferralReward struct {
	ID                string    `gorm:"primaryKey" json:"id" dynamodbav:"id"`
	Name              string    `gorm:"not null" json:"name" dynamodbav:"name"`
	Description       string    `json:"description" dynamodbav:"description"`
	ReferralsRequired int64     `gorm:"not null" json:"referrals_required" dynamodbav:"referrals_required"`
	RewardType        string    `gorm:"not null" json:"reward_type" dynamodbav:"reward_type"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at" dynamodbav:"created_at"`
}

func (ReferralReward) TableName() string {
	return "referral_rewards"
}

// DefaultRewards is the seeded rewards track (5/10/25 referrals).
func DefaultRewards() []ReferralReward {
	return []ReferralReward{
		{ID: "reward-1", Name: "Early Access", Description: "Get early access to the platform", ReferralsRequired: 5, RewardType: "access"},
		{ID: "reward-2", Name: "Exclusive Merch", Description: "Limited-run merch drop", ReferralsRequired: 10, RewardType: "merch"},
		{ID: "reward-3", Name: "VIP Status", Description: "Exclusive VIP status and benefits", ReferralsRequired: 25, RewardType: "status"},
	}
}
