package db

import "time"

type Player struct {
	ID            uint      `gorm:"primaryKey"`
	GameID        uint      `gorm:"index;not null;uniqueIndex:idx_players_game_name"`
	Name          string    `gorm:"size:64;not null;uniqueIndex:idx_players_game_name"`
	Type          string    `gorm:"size:16;not null"`
	Score         int       `gorm:"not null;default:0"`
	HumorRating   float64   `gorm:"not null;default:1"`
	WinStreak     int       `gorm:"not null;default:0"`
	IdleRounds    int       `gorm:"not null;default:0"`
	Participation string    `gorm:"size:16;not null;default:'ACTIVE'"`
	LastSeen      time.Time `gorm:"not null"`
	ModelID       *string   `gorm:"size:128"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}
