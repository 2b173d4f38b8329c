// Package journal persists conversation transcripts and writes at most one
// generated journal entry per conversation.
package journal

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// DefaultQueryTimeout bounds each storage call when StoreOpts leaves it unset.
const DefaultQueryTimeout = 10 * time.Second

var (
	// ErrJournalNotFound is returned by GetJournal when no entry exists.
	ErrJournalNotFound = errors.New("journal: not found")
	// ErrMultipleJournals means the existence check saw more than one row
	// for a conversation, which the write-once rule forbids.
	ErrMultipleJournals = errors.New("journal: multiple entries for conversation")
)

// Store is the journal and conversation persistence layer.
type Store struct {
	db           *gorm.DB
	log          zerolog.Logger
	known        *lru.Cache
	queryTimeout time.Duration
	now          func() time.Time

	// plainInsert is set once the database rejects ON CONFLICT on
	// conversation_id because no unique index backs it.
	plainInsert atomic.Bool

	// afterCheck runs between the existence check and the insert.
	afterCheck func()
}

// StoreOpts holds parameters for creating a Store.
type StoreOpts struct {
	DB           *gorm.DB
	Log          zerolog.Logger
	CacheSize    int           // conversation IDs remembered as journaled; <= 0 disables
	QueryTimeout time.Duration // defaults to DefaultQueryTimeout
	Now          func() time.Time
}

// NewStore creates a Store.
func NewStore(opts StoreOpts) (*Store, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("journal: store: db is required")
	}
	s := &Store{
		db:           opts.DB,
		log:          opts.Log,
		queryTimeout: opts.QueryTimeout,
		now:          opts.Now,
	}
	if s.queryTimeout <= 0 {
		s.queryTimeout = DefaultQueryTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New(opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("journal: store: cache: %w", err)
		}
		s.known = cache
	}
	return s, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

// remember records that conversationID has a journal. Entries are never
// deleted by this service, so a positive entry cannot go stale.
func (s *Store) remember(conversationID string) {
	if s.known != nil {
		s.known.Add(conversationID, struct{}{})
	}
}

func (s *Store) knownJournaled(conversationID string) bool {
	return s.known != nil && s.known.Contains(conversationID)
}
