package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/JustTolerateMe/Whisperbackendtest/internal/db"
	"github.com/JustTolerateMe/Whisperbackendtest/internal/metrics"
	"github.com/JustTolerateMe/Whisperbackendtest/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Outcome describes what InsertJournalOnce did.
type Outcome string

const (
	// OutcomeInserted means this call created the journal row.
	OutcomeInserted Outcome = "inserted"
	// OutcomeExists means a journal already existed; nothing was written.
	OutcomeExists Outcome = "exists"
	// OutcomeUnverified means the existence check failed, so no insert was
	// attempted.
	OutcomeUnverified Outcome = "unverified"
	// OutcomeFailed means the insert itself failed.
	OutcomeFailed Outcome = "failed"
)

// InsertJournalOnce stores text as the journal for conversationID unless one
// already exists. An existing journal is never overwritten. If the existence
// check fails the insert is skipped. The insert itself ignores conflicts on
// the unique conversation_id index, so concurrent callers for the same
// conversation produce a single row.
func (s *Store) InsertJournalOnce(ctx context.Context, conversationID, text string) (Outcome, error) {
	log := s.log.With().Str("conversation_id", conversationID).Logger()

	if s.knownJournaled(conversationID) {
		log.Info().Msg("journal already exists, skipped")
		metrics.RecordJournalWrite(string(OutcomeExists))
		return OutcomeExists, nil
	}

	exists, err := s.journalExists(ctx, conversationID)
	if err != nil {
		log.Error().Err(err).Msg("could not verify existing journal, insert skipped")
		metrics.RecordJournalWrite(string(OutcomeUnverified))
		return OutcomeUnverified, err
	}
	if exists {
		s.remember(conversationID)
		log.Info().Msg("journal already exists, skipped")
		metrics.RecordJournalWrite(string(OutcomeExists))
		return OutcomeExists, nil
	}

	if s.afterCheck != nil {
		s.afterCheck()
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	entry := models.JournalEntry{ConversationID: conversationID, Journal: text}
	res := s.insert(ctx, &entry)
	if res.Error != nil {
		if db.IsDuplicateKey(res.Error) {
			s.remember(conversationID)
			log.Info().Msg("journal written concurrently, skipped")
			metrics.RecordJournalWrite(string(OutcomeExists))
			return OutcomeExists, nil
		}
		log.Error().Err(res.Error).Msg("failed to insert journal entry")
		metrics.RecordJournalWrite(string(OutcomeFailed))
		return OutcomeFailed, fmt.Errorf("journal: insert %s: %w", conversationID, res.Error)
	}
	if res.RowsAffected == 0 {
		s.remember(conversationID)
		log.Info().Msg("journal written concurrently, skipped")
		metrics.RecordJournalWrite(string(OutcomeExists))
		return OutcomeExists, nil
	}

	s.remember(conversationID)
	log.Info().Str("journal_id", entry.ID).Msg("journal entry stored")
	metrics.RecordJournalWrite(string(OutcomeInserted))
	return OutcomeInserted, nil
}

// insert creates entry, ignoring conflicts on the unique conversation_id
// index. Schemas created without that index reject the conflict clause; the
// store then falls back to a plain insert guarded only by the existence check.
func (s *Store) insert(ctx context.Context, entry *models.JournalEntry) *gorm.DB {
	if !s.plainInsert.Load() {
		res := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "conversation_id"}},
				DoNothing: true,
			}).
			Create(entry)
		if !db.IsMissingConflictTarget(res.Error) {
			return res
		}
		s.plainInsert.Store(true)
		s.log.Warn().Err(res.Error).Msg("journal_entries.conversation_id has no unique index, concurrent deliveries may race")
		// The failed attempt may have assigned an ID.
		entry.ID = ""
	}
	return s.db.WithContext(ctx).Create(entry)
}

// journalExists looks for at most one journal row for conversationID. More
// than one row is reported as ErrMultipleJournals.
func (s *Store) journalExists(ctx context.Context, conversationID string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []models.JournalEntry
	err := s.db.WithContext(ctx).
		Select("id").
		Where("conversation_id = ?", conversationID).
		Limit(2).
		Find(&rows).Error
	if err != nil {
		return false, fmt.Errorf("journal: check %s: %w", conversationID, err)
	}
	if len(rows) > 1 {
		return false, fmt.Errorf("journal: check %s: %w", conversationID, ErrMultipleJournals)
	}
	return len(rows) == 1, nil
}

// GetJournal returns the journal entry for conversationID.
func (s *Store) GetJournal(ctx context.Context, conversationID string) (*models.JournalEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var entry models.JournalEntry
	err := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("journal: get %s: %w", conversationID, ErrJournalNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("journal: get %s: %w", conversationID, err)
	}
	return &entry, nil
}
