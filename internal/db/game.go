package db

import "time"

type Game struct {
	ID                uint       `gorm:"primaryKey"`
	JoinCode          string     `gorm:"size:12;uniqueIndex;not null"`
	Status            string     `gorm:"size:32;not null"`
	Version           int64      `gorm:"not null;default:1"`
	CurrentRound      int        `gorm:"not null;default:0"`
	TotalRounds       int        `gorm:"not null;default:3"`
	PhaseDeadline     *time.Time `gorm:"index"`
	VotingPromptIndex int        `gorm:"not null;default:0"`
	VotingRevealing   bool       `gorm:"not null;default:false"`
	HostPlayerID      *uint      `gorm:"index"`
	HostTokenHash     string     `gorm:"size:72;not null;default:''"`
	TimersDisabled    bool       `gorm:"not null;default:false"`
	AIInputTokens     int64      `gorm:"not null;default:0"`
	AIOutputTokens    int64      `gorm:"not null;default:0"`
	AICostMicros      int64      `gorm:"not null;default:0"`
	AICalls           int64      `gorm:"not null;default:0"`
	AIFailures        int64      `gorm:"not null;default:0"`
	CreatedAt         time.Time  `gorm:"not null"`
	UpdatedAt         time.Time  `gorm:"not null"`
	Players           []Player
	Rounds            []Round
	Events            []Event
}
