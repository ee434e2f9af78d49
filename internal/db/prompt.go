package db

import (
	"time"

	"gorm.io/datatypes"
)

type Prompt struct {
	ID        uint                      `gorm:"primaryKey"`
	RoundID   uint                      `gorm:"index;not null"`
	Text      string                    `gorm:"size:280;not null"`
	Assigned  datatypes.JSONSlice[uint] `gorm:"type:jsonb;not null"`
	CreatedAt time.Time                 `gorm:"not null"`
	Responses []Response
	Votes     []Vote
}
