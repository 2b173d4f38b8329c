package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JournalEntry is the diary text generated for one conversation. The unique
// index on ConversationID backs the write-once rule in the journal store.
type JournalEntry struct {
	ID             string `gorm:"primaryKey;size:36"`
	ConversationID string `gorm:"size:64;not null;uniqueIndex"`
	Journal        string `gorm:"type:text;not null"`
	CreatedAt      time.Time
}

// TableName keeps the table name used by the hosted backend.
func (JournalEntry) TableName() string { return "journal_entries" }

// BeforeCreate assigns a UUID when the caller did not set one.
func (j *JournalEntry) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	return nil
}
