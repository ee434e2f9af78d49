package db

import "time"

// AIUsage accumulates provider usage per game and model. Rows are only ever
// incremented through an upsert.
type AIUsage struct {
	GameID       uint      `gorm:"primaryKey"`
	ModelID      string    `gorm:"primaryKey;size:128"`
	InputTokens  int64     `gorm:"not null;default:0"`
	OutputTokens int64     `gorm:"not null;default:0"`
	CostMicros   int64     `gorm:"not null;default:0"`
	Calls        int64     `gorm:"not null;default:0"`
	Failures     int64     `gorm:"not null;default:0"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (AIUsage) TableName() string {
	return "ai_usage"
}
