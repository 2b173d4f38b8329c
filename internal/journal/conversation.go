package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/JustTolerateMe/Whisperbackendtest/internal/metrics"
	"github.com/JustTolerateMe/Whisperbackendtest/internal/models"
)

// ConversationUpdate carries the transcript fields written on every webhook
// delivery. Nil fields leave the stored column untouched.
type ConversationUpdate struct {
	UserID         string
	ConversationID string
	Transcript     *string
	Summary        *string
	EndedAt        *time.Time
}

// UpdateConversation writes the transcript fields of an existing
// conversation, refreshes updated_at and clears mood. It reports whether a
// row matched; conversations are never created here.
func (s *Store) UpdateConversation(ctx context.Context, u ConversationUpdate) (bool, error) {
	log := s.log.With().
		Str("user_id", u.UserID).
		Str("conversation_id", u.ConversationID).
		Logger()

	fields := map[string]interface{}{
		"updated_at": s.now().UTC(),
		"mood":       nil,
	}
	if u.Transcript != nil {
		fields["transcript"] = *u.Transcript
	}
	if u.Summary != nil {
		fields["summary"] = *u.Summary
	}
	if u.EndedAt != nil {
		fields["ended_at"] = u.EndedAt.UTC()
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res := s.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("user_id = ? AND conversation_id = ?", u.UserID, u.ConversationID).
		Updates(fields)
	if res.Error != nil {
		log.Error().Err(res.Error).Msg("failed to update conversation")
		metrics.RecordConversationUpdate("error")
		return false, fmt.Errorf("journal: update conversation %s: %w", u.ConversationID, res.Error)
	}
	if res.RowsAffected == 0 {
		log.Warn().Msg("no conversation matched update")
		metrics.RecordConversationUpdate("not_found")
		return false, nil
	}

	log.Info().Msg("conversation updated")
	metrics.RecordConversationUpdate("updated")
	return true, nil
}

// ConversationsWithoutJournal lists conversations updated since the given
// time that have a transcript but no journal entry, newest first. IDs in
// exclude are left out.
func (s *Store) ConversationsWithoutJournal(ctx context.Context, since time.Time, limit int, exclude []string) ([]models.Conversation, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var convs []models.Conversation
	q := s.db.WithContext(ctx).
		Where("updated_at >= ?", since.UTC()).
		Where("transcript IS NOT NULL AND transcript <> ''").
		Where("NOT EXISTS (SELECT 1 FROM journal_entries j WHERE j.conversation_id = user_conversations.conversation_id)").
		Order("updated_at DESC")
	if len(exclude) > 0 {
		q = q.Where("conversation_id NOT IN ?", exclude)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("journal: list conversations without journal: %w", err)
	}
	return convs, nil
}
