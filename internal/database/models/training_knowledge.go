package models

import (
	"time"
)

// TrainingKnowledge stores one reply-suggestion training text together with its
// embedding vector, serialized as a JSON array of floats.
type TrainingKnowledge struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	Embedding string    `gorm:"type:text;not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
