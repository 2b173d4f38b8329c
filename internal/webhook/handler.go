package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/JustTolerateMe/Whisperbackendtest/internal/journal"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/rs/zerolog"
)

const (
	msgMissingIDs     = "Missing user_id or conversation_id"
	msgInvalidBody    = "Invalid request body"
	msgInternalServer = "Internal server error"
)

// JournalStore is the persistence the webhook needs.
type JournalStore interface {
	UpdateConversation(ctx context.Context, u journal.ConversationUpdate) (bool, error)
	InsertJournalOnce(ctx context.Context, conversationID, text string) (journal.Outcome, error)
}

// JournalGenerator produces journal text. ok is false when no journal could
// be generated; the failure has already been logged.
type JournalGenerator interface {
	Journal(ctx context.Context, conversationHistory, summary string) (text string, ok bool)
}

type logConversationResponse struct {
	Status              string          `json:"status"`
	JournalGenerated    bool            `json:"journal_generated"`
	JournalEntry        *string         `json:"journal_entry"`
	ConversationUpdated bool            `json:"conversation_updated"`
	JournalStatus       journal.Outcome `json:"journal_status,omitempty"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// handler serves the webhook routes.
type handler struct {
	store   JournalStore
	gen     JournalGenerator
	log     zerolog.Logger
	version string
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "ok", Service: "whisperlog", Version: h.version})
}

// logConversation generates a journal for the delivered conversation, updates
// its transcript and stores the journal unless one already exists. Generation
// and storage failures are logged and reported in the body, never as an
// error status.
func (h *handler) logConversation(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Status: "error", Message: msgInvalidBody, Error: err.Error()})
		return
	}

	var req logConversationRequest
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := binding.JSON.BindBody(raw, &req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Status: "error", Message: msgInvalidBody, Error: err.Error()})
			return
		}
	}

	if req.UserID == "" || req.ConversationID == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Status: "error", Message: msgMissingIDs})
		return
	}

	log := h.log.With().
		Str("request_id", requestIDFromContext(c)).
		Str("user_id", string(req.UserID)).
		Str("conversation_id", string(req.ConversationID)).
		Logger()

	ev := log.Info().
		Int("history_length", len(deref(req.ConversationHistory))).
		Bool("has_summary", req.SessionSummary != nil)
	if len(req.UserReadiness) > 0 && json.Valid(req.UserReadiness) {
		ev = ev.RawJSON("user_readiness", req.UserReadiness)
	}
	ev.Msg("conversation received")

	// Work continues if the caller disconnects; the deadlines live in the
	// generator and the store.
	ctx := context.WithoutCancel(c.Request.Context())

	text, generated := h.gen.Journal(ctx, deref(req.ConversationHistory), deref(req.SessionSummary))

	update := journal.ConversationUpdate{
		UserID:         string(req.UserID),
		ConversationID: string(req.ConversationID),
		Transcript:     req.ConversationHistory,
		Summary:        req.SessionSummary,
	}
	if endedAt, ok := parseTimestamp(req.Timestamp); ok {
		update.EndedAt = &endedAt
	} else {
		log.Warn().RawJSON("timestamp", rawOrNull(req.Timestamp)).Msg("missing or unparseable timestamp, ended_at left unchanged")
	}
	// Store errors are logged by the store and only surface as the flag.
	updated, _ := h.store.UpdateConversation(ctx, update)

	resp := logConversationResponse{
		Status:              "success",
		JournalGenerated:    generated,
		ConversationUpdated: updated,
	}
	if generated {
		resp.JournalEntry = &text
		resp.JournalStatus, _ = h.store.InsertJournalOnce(ctx, string(req.ConversationID), text)
	}

	log.Info().
		Bool("journal_generated", generated).
		Bool("conversation_updated", updated).
		Str("journal_status", string(resp.JournalStatus)).
		Msg("conversation processed")
	c.JSON(http.StatusOK, resp)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func rawOrNull(raw json.RawMessage) []byte {
	if len(bytes.TrimSpace(raw)) == 0 || !json.Valid(raw) {
		return []byte("null")
	}
	return raw
}
