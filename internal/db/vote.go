package db

import "time"

type Vote struct {
	ID         uint      `gorm:"primaryKey"`
	PromptID   uint      `gorm:"index;not null;uniqueIndex:idx_votes_prompt_voter"`
	VoterID    uint      `gorm:"index;not null;uniqueIndex:idx_votes_prompt_voter"`
	ResponseID *uint     `gorm:"index"`
	FailReason string    `gorm:"size:32;not null;default:''"`
	CreatedAt  time.Time `gorm:"not null"`
}
