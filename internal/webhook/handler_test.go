package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JustTolerateMe/Whisperbackendtest/internal/completion"
	"github.com/JustTolerateMe/Whisperbackendtest/internal/config"
	"github.com/JustTolerateMe/Whisperbackendtest/internal/db"
	"github.com/JustTolerateMe/Whisperbackendtest/internal/journal"
	"github.com/JustTolerateMe/Whisperbackendtest/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeStore struct {
	mu        sync.Mutex
	updates   []journal.ConversationUpdate
	inserts   []string
	updated   bool
	updateErr error
	outcome   journal.Outcome
	panicMsg  string
}

func (s *fakeStore) UpdateConversation(_ context.Context, u journal.ConversationUpdate) (bool, error) {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
	if s.updateErr != nil {
		return false, s.updateErr
	}
	return s.updated, nil
}

func (s *fakeStore) InsertJournalOnce(_ context.Context, conversationID, text string) (journal.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts = append(s.inserts, conversationID+"="+text)
	if s.outcome == "" {
		return journal.OutcomeInserted, nil
	}
	return s.outcome, nil
}

type fakeGenerator struct {
	text  string
	ok    bool
	calls int
	got   [2]string
}

func (g *fakeGenerator) Journal(_ context.Context, history, summary string) (string, bool) {
	g.calls++
	g.got = [2]string{history, summary}
	return g.text, g.ok
}

func newTestRouter(t *testing.T, store JournalStore, gen JournalGenerator) *gin.Engine {
	t.Helper()
	router, err := NewRouter(RouterOpts{
		Store:       store,
		Generator:   gen,
		Log:         zerolog.Nop(),
		Version:     "test",
		MetricsPath: "/metrics",
	})
	require.NoError(t, err)
	return router
}

func postConversation(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/log-conversation", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String())
	return body
}

func TestNewRouter_RequiresDependencies(t *testing.T) {
	_, err := NewRouter(RouterOpts{Generator: &fakeGenerator{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store is required")

	_, err = NewRouter(RouterOpts{Store: &fakeStore{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generator is required")
}

func TestStart_NilStore(t *testing.T) {
	err := Start(context.Background(), StartOpts{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store is required")
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, &fakeStore{}, &fakeGenerator{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","service":"whisperlog","version":"test"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestRequestID_Propagated(t *testing.T) {
	router := newTestRouter(t, &fakeStore{}, &fakeGenerator{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get("X-Request-Id"))
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, &fakeStore{}, &fakeGenerator{})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "whisperlog_http_requests_total")
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	router, err := NewRouter(RouterOpts{Store: &fakeStore{}, Generator: &fakeGenerator{}, Log: zerolog.Nop()})
	require.NoError(t, err)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLogConversation_MissingIdentifiers(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"empty object", `{}`},
		{"missing user_id", `{"conversation_id":"c1","conversation_history":"hi"}`},
		{"missing conversation_id", `{"user_id":"u1","conversation_history":"hi"}`},
		{"empty user_id", `{"user_id":"","conversation_id":"c1"}`},
		{"null conversation_id", `{"user_id":"u1","conversation_id":null}`},
		{"zero user_id", `{"user_id":0,"conversation_id":"c1"}`},
		{"false user_id", `{"user_id":false,"conversation_id":"c1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{updated: true}
			gen := &fakeGenerator{text: "entry", ok: true}
			w := postConversation(newTestRouter(t, store, gen), tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, `{"status":"error","message":"Missing user_id or conversation_id"}`, w.Body.String())
			assert.Zero(t, gen.calls, "generator must not be called")
			assert.Empty(t, store.updates, "store must not be called")
			assert.Empty(t, store.inserts, "store must not be called")
		})
	}
}

func TestLogConversation_InvalidJSON(t *testing.T) {
	tests := []string{
		`{"user_id":`,
		`[1,2,3]`,
		`{"user_id":{"nested":true},"conversation_id":"c1"}`,
	}
	for _, body := range tests {
		store := &fakeStore{}
		gen := &fakeGenerator{}
		w := postConversation(newTestRouter(t, store, gen), body)

		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		resp := decodeBody(t, w)
		assert.Equal(t, "error", resp["status"])
		assert.Equal(t, "Invalid request body", resp["message"])
		assert.NotEmpty(t, resp["error"])
		assert.Zero(t, gen.calls)
		assert.Empty(t, store.updates)
	}
}

func TestLogConversation_Success(t *testing.T) {
	store := &fakeStore{updated: true}
	gen := &fakeGenerator{text: "Today I talked about running.", ok: true}
	w := postConversation(newTestRouter(t, store, gen), `{
		"conversation_history": "User: I went running.",
		"session_summary": "Running",
		"timestamp": "2026-03-14T21:00:00Z",
		"user_readiness": {"score": 4},
		"user_id": "u1",
		"conversation_id": "c1"
	}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"status": "success",
		"journal_generated": true,
		"journal_entry": "Today I talked about running.",
		"conversation_updated": true,
		"journal_status": "inserted"
	}`, w.Body.String())

	assert.Equal(t, [2]string{"User: I went running.", "Running"}, gen.got)
	require.Len(t, store.updates, 1)
	u := store.updates[0]
	assert.Equal(t, "u1", u.UserID)
	assert.Equal(t, "c1", u.ConversationID)
	require.NotNil(t, u.Transcript)
	assert.Equal(t, "User: I went running.", *u.Transcript)
	require.NotNil(t, u.Summary)
	assert.Equal(t, "Running", *u.Summary)
	require.NotNil(t, u.EndedAt)
	assert.True(t, u.EndedAt.Equal(time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)))
	assert.Equal(t, []string{"c1=Today I talked about running."}, store.inserts)
}

func TestLogConversation_NumericIdentifiers(t *testing.T) {
	store := &fakeStore{updated: true}
	gen := &fakeGenerator{}
	w := postConversation(newTestRouter(t, store, gen), `{"user_id":42,"conversation_id":9001}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.updates, 1)
	assert.Equal(t, "42", store.updates[0].UserID)
	assert.Equal(t, "9001", store.updates[0].ConversationID)
}

func TestLogConversation_GenerationFailure(t *testing.T) {
	store := &fakeStore{updated: true}
	gen := &fakeGenerator{ok: false}
	w := postConversation(newTestRouter(t, store, gen), `{"user_id":"u1","conversation_id":"c1","conversation_history":"hi"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"status": "success",
		"journal_generated": false,
		"journal_entry": null,
		"conversation_updated": true
	}`, w.Body.String())
	assert.Len(t, store.updates, 1, "conversation update still attempted")
	assert.Empty(t, store.inserts, "no journal insert without a journal")
}

func TestLogConversation_UpdateFailureStillSucceeds(t *testing.T) {
	for _, store := range []*fakeStore{
		{updateErr: errors.New("connection refused")},
		{updated: false},
	} {
		gen := &fakeGenerator{text: "entry", ok: true}
		w := postConversation(newTestRouter(t, store, gen), `{"user_id":"u1","conversation_id":"c1"}`)

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody(t, w)
		assert.Equal(t, "success", resp["status"])
		assert.Equal(t, false, resp["conversation_updated"])
		assert.Equal(t, true, resp["journal_generated"])
		assert.Len(t, store.inserts, 1, "journal insert is independent of the update")
	}
}

func TestLogConversation_JournalOutcomeReported(t *testing.T) {
	for _, outcome := range []journal.Outcome{journal.OutcomeExists, journal.OutcomeUnverified, journal.OutcomeFailed} {
		store := &fakeStore{updated: true, outcome: outcome}
		gen := &fakeGenerator{text: "entry", ok: true}
		w := postConversation(newTestRouter(t, store, gen), `{"user_id":"u1","conversation_id":"c1"}`)

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody(t, w)
		assert.Equal(t, "success", resp["status"])
		assert.Equal(t, string(outcome), resp["journal_status"])
	}
}

func TestLogConversation_AbsentFieldsLeftUntouched(t *testing.T) {
	store := &fakeStore{updated: true}
	w := postConversation(newTestRouter(t, store, &fakeGenerator{}), `{"user_id":"u1","conversation_id":"c1","timestamp":"not a date"}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.updates, 1)
	u := store.updates[0]
	assert.Nil(t, u.Transcript)
	assert.Nil(t, u.Summary)
	assert.Nil(t, u.EndedAt)
}

func TestLogConversation_PanicIsInternalError(t *testing.T) {
	store := &fakeStore{panicMsg: "boom"}
	w := postConversation(newTestRouter(t, store, &fakeGenerator{}), `{"user_id":"u1","conversation_id":"c1"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"Internal server error","error":"boom"}`, w.Body.String())
}

// ---------------------------------------------------------------------------
// End to end with the journal store and a best-effort provider
// ---------------------------------------------------------------------------

func openWebhookTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Connect(config.DatabaseConfig{Driver: config.DriverSQLite, URL: ":memory:", MaxIdleConns: 1})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gdb))
	return gdb
}

func newStoreRouter(t *testing.T, gdb *gorm.DB, p completion.Provider, timeout time.Duration) *gin.Engine {
	t.Helper()
	store, err := journal.NewStore(journal.StoreOpts{DB: gdb, Log: zerolog.Nop(), CacheSize: 16})
	require.NoError(t, err)
	return newTestRouter(t, store, completion.NewBestEffort(p, timeout, zerolog.Nop()))
}

func TestLogConversation_SequentialDeliveriesKeepFirstJournal(t *testing.T) {
	gdb := openWebhookTestDB(t)
	require.NoError(t, gdb.Create(&models.Conversation{UserID: "u1", ConversationID: "c1"}).Error)

	n := 0
	router := newStoreRouter(t, gdb, completion.ProviderFunc(func(context.Context, string, string) (string, error) {
		n++
		if n == 1 {
			return "first journal", nil
		}
		return "second journal", nil
	}), time.Second)

	body := `{"user_id":"u1","conversation_id":"c1","conversation_history":"User: hello"}`
	first := decodeBody(t, postConversation(router, body))
	second := decodeBody(t, postConversation(router, body))

	assert.Equal(t, "inserted", first["journal_status"])
	assert.Equal(t, true, first["conversation_updated"])
	assert.Equal(t, "exists", second["journal_status"])
	assert.Equal(t, "second journal", second["journal_entry"], "response echoes the generated text")

	var entries []models.JournalEntry
	require.NoError(t, gdb.Where("conversation_id = ?", "c1").Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, "first journal", entries[0].Journal)

	var conv models.Conversation
	require.NoError(t, gdb.Where("conversation_id = ?", "c1").First(&conv).Error)
	assert.Equal(t, "User: hello", conv.Transcript)
}

// openLegacyWebhookTestDB mirrors a hosted schema created outside this
// service: journal_entries has no unique constraint on conversation_id.
func openLegacyWebhookTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Connect(config.DatabaseConfig{Driver: config.DriverSQLite, URL: ":memory:", MaxIdleConns: 1})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&models.Conversation{}))
	require.NoError(t, gdb.Exec(`CREATE TABLE journal_entries (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		journal TEXT NOT NULL,
		created_at DATETIME
	)`).Error)
	return gdb
}

func TestLogConversation_SequentialDeliveriesOnSchemaWithoutUniqueIndex(t *testing.T) {
	gdb := openLegacyWebhookTestDB(t)
	require.NoError(t, gdb.Create(&models.Conversation{UserID: "u1", ConversationID: "c1"}).Error)

	n := 0
	store, err := journal.NewStore(journal.StoreOpts{DB: gdb, Log: zerolog.Nop()})
	require.NoError(t, err)
	gen := completion.NewBestEffort(completion.ProviderFunc(func(context.Context, string, string) (string, error) {
		n++
		if n == 1 {
			return "first journal", nil
		}
		return "second journal", nil
	}), time.Second, zerolog.Nop())
	router := newTestRouter(t, store, gen)

	body := `{"user_id":"u1","conversation_id":"c1","conversation_history":"User: hello"}`
	first := decodeBody(t, postConversation(router, body))
	second := decodeBody(t, postConversation(router, body))

	assert.Equal(t, true, first["journal_generated"])
	assert.Equal(t, "inserted", first["journal_status"])
	assert.Equal(t, "exists", second["journal_status"])

	var entries []models.JournalEntry
	require.NoError(t, gdb.Where("conversation_id = ?", "c1").Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, "first journal", entries[0].Journal)
}

func TestLogConversation_ProviderDeadline(t *testing.T) {
	gdb := openWebhookTestDB(t)
	router := newStoreRouter(t, gdb, completion.ProviderFunc(func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), 20*time.Millisecond)

	w := postConversation(router, `{"user_id":"u1","conversation_id":"c1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, false, resp["journal_generated"])
	assert.Nil(t, resp["journal_entry"])

	var count int64
	require.NoError(t, gdb.Model(&models.JournalEntry{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestLogConversation_MissingAPIKey(t *testing.T) {
	gdb := openWebhookTestDB(t)
	router := newStoreRouter(t, gdb, completion.Disabled{}, time.Second)

	resp := decodeBody(t, postConversation(router, `{"user_id":"u1","conversation_id":"c1"}`))
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, false, resp["journal_generated"])
}
