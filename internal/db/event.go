package db

import (
	"time"

	"gorm.io/datatypes"
)

// Event is an append-only record of phase transitions and scoring outcomes.
type Event struct {
	ID        uint           `gorm:"primaryKey"`
	GameID    uint           `gorm:"index:idx_events_game_created;not null"`
	RoundID   *uint          `gorm:"index"`
	PlayerID  *uint          `gorm:"index"`
	Type      string         `gorm:"size:64;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"index:idx_events_game_created;not null"`
}
