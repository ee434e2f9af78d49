package db

import "time"

type Response struct {
	ID           uint      `gorm:"primaryKey"`
	PromptID     uint      `gorm:"index;not null;uniqueIndex:idx_responses_prompt_player"`
	PlayerID     uint      `gorm:"index;not null;uniqueIndex:idx_responses_prompt_player"`
	Text         string    `gorm:"size:280;not null"`
	PointsEarned int       `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"not null"`
}
