package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation is a user's voice conversation. Rows are created upstream;
// the webhook only updates the transcript fields.
type Conversation struct {
	ID             string  `gorm:"primaryKey;size:36"`
	UserID         string  `gorm:"size:64;not null;uniqueIndex:idx_user_conversation,priority:1"`
	ConversationID string  `gorm:"size:64;not null;uniqueIndex:idx_user_conversation,priority:2"`
	Transcript     string  `gorm:"type:text"`
	Summary        *string `gorm:"type:text"`
	Mood           *string `gorm:"size:32"`
	StartedAt      *time.Time
	EndedAt        *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time `gorm:"index"`
}

// TableName keeps the table name used by the hosted backend.
func (Conversation) TableName() string { return "user_conversations" }

// BeforeCreate assigns a UUID when the caller did not set one.
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
