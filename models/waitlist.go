package models

import "time"

// WaitlistEntry is the one persisted signup record. Both backends (SQL via
// gorm, DynamoDB via attributevalue) share this schema. The column names are
// the wire names, so PATCH bodies and update maps use the snake_case keys.
type WaitlistEntry struct {
	ID            string `gorm:"primaryKey;type:uuid" json:"id" dynamodbav:"id"`
	FirstName     string `gorm:"not null" json:"first_name" dynamodbav:"first_name"`
	LastName      string `gorm:"not null" json:"last_name" dynamodbav:"last_name"`
	Email         string `gorm:"uniqueIndex;not null" json:"email" dynamodbav:"email"`
	ReferralLink  string `gorm:"uniqueIndex;not null" json:"referral_link" dynamodbav:"referral_link"`
	DisplayHandle string `json:"display_handle" dynamodbav:"display_handle"`

	// ReferredBy is set once at creation and never changes.
	ReferredBy *string `gorm:"index" json:"referred_by" dynamodbav:"referred_by"`

	// ReferralCount and Points only move through the store's atomic
	// increment paths, never read-compute-write.
	ReferralCount  int64      `gorm:"not null;default:0" json:"referral_count" dynamodbav:"referral_count"`
	Points         int64      `gorm:"not null;default:0" json:"points" dynamodbav:"points"`
	TierLevel      int        `gorm:"not null;default:1" json:"tier_level" dynamodbav:"tier_level"`
	LastReferralAt *time.Time `json:"last_referral_at,omitempty" dynamodbav:"last_referral_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at" dynamodbav:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at" dynamodbav:"updated_at"`
}

func (WaitlistEntry) TableName() string {
	return "waitlist"
}

// Active reports whether the entry has ever been credited, through a referral
// or a points grant. Fresh signups are pending until then.
func (e *WaitlistEntry) Active() bool {
	return e.ReferralCount > 0 || e.Points > 0
}
