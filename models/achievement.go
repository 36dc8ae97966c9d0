package models

import "time"

// UserAchievement records an explicit points grant outside the referral path
// (admin corrections, campaign bonuses, social shares).
type UserAchievement struct {
	ID              string    `gorm:"primaryKey;type:uuid" json:"id" dynamodbav:"id"`
	UserID          string    `gorm:"index;not null" json:"user_id" dynamodbav:"user_id"`
	AchievementType string    `gorm:"not null" json:"achievement_type" dynamodbav:"achievement_type"`
	PointsEarned    int64     `gorm:"not null" json:"points_earned" dynamodbav:"points_earned"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at" dynamodbav:"created_at"`
}

func (UserAchievement) TableName() string {
	return "user_achievements"
}
