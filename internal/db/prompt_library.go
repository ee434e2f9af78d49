package db

import "time"

// PromptLibrary is the pool new rounds draw prompt texts from.
type PromptLibrary struct {
	ID        uint      `gorm:"primaryKey"`
	Category  string    `gorm:"size:64;not null;default:'general';uniqueIndex:idx_prompt_library_category_text"`
	Text      string    `gorm:"size:280;not null;uniqueIndex:idx_prompt_library_category_text"`
	CreatedAt time.Time `gorm:"not null"`
}

func (PromptLibrary) TableName() string {
	return "prompt_library"
}
