package db

import (
	"fmt"

	"github.com/JustTolerateMe/Whisperbackendtest/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the GORM models owned by whisperlog.
func AllModels() []interface{} {
	return []interface{}{
		&models.Conversation{},
		&models.JournalEntry{},
	}
}

// AutoMigrate creates or updates the conversation and journal tables,
// including the unique index on journal_entries.conversation_id.
func AutoMigrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// EnsureJournalIndex creates the unique index on journal_entries.conversation_id
// when the table exists without it. It fails if the table already holds
// duplicate journals for a conversation.
func EnsureJournalIndex(gdb *gorm.DB) error {
	m := gdb.Migrator()
	if !m.HasTable(&models.JournalEntry{}) {
		return fmt.Errorf("db: journal index: table journal_entries does not exist")
	}
	if m.HasIndex(&models.JournalEntry{}, "ConversationID") {
		return nil
	}
	if err := m.CreateIndex(&models.JournalEntry{}, "ConversationID"); err != nil {
		return fmt.Errorf("db: journal index: %w", err)
	}
	return nil
}
