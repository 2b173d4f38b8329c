// Package backfill generates journals for conversations that were stored
// without one, for example because the completion provider was down when the
// webhook was delivered.
package backfill

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JustTolerateMe/Whisperbackendtest/internal/journal"
	"github.com/JustTolerateMe/Whisperbackendtest/internal/metrics"
	"github.com/JustTolerateMe/Whisperbackendtest/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	defaultLookback   = 24 * time.Hour
	defaultBatchSize  = 20
	defaultRetryAfter = time.Hour
)

// Store is the subset of the journal store the sweeper uses.
type Store interface {
	ConversationsWithoutJournal(ctx context.Context, since time.Time, limit int, exclude []string) ([]models.Conversation, error)
	InsertJournalOnce(ctx context.Context, conversationID, text string) (journal.Outcome, error)
}

// Generator produces journal text; ok is false when nothing was generated.
type Generator interface {
	Journal(ctx context.Context, conversationHistory, summary string) (text string, ok bool)
}

// Sweeper finds recent conversations without a journal and fills them in.
type Sweeper struct {
	store     Store
	gen       Generator
	log       zerolog.Logger
	schedule  cron.Schedule
	lookback   time.Duration
	batchSize  int
	retryAfter time.Duration
	now        func() time.Time

	mu     sync.Mutex
	failed map[string]time.Time // conversation_id -> last unsuccessful attempt
}

// SweeperOpts holds parameters for creating a Sweeper.
type SweeperOpts struct {
	Store     Store
	Generator Generator
	Log       zerolog.Logger
	Schedule  string // 5-field cron expression; required only for Run
	Lookback  time.Duration
	BatchSize int
	// RetryAfter is how long a conversation that produced no journal is left
	// out of later sweeps, so a bad one cannot hold a batch slot forever.
	RetryAfter time.Duration
	Now        func() time.Time
}

// Result summarizes one sweep.
type Result struct {
	Scanned  int
	Inserted int
	Existing int
	Skipped  int // generation produced nothing
	Failed   int
}

// NewSweeper creates a Sweeper.
func NewSweeper(opts SweeperOpts) (*Sweeper, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("backfill: store is required")
	}
	if opts.Generator == nil {
		return nil, fmt.Errorf("backfill: generator is required")
	}
	s := &Sweeper{
		store:      opts.Store,
		gen:        opts.Generator,
		log:        opts.Log,
		lookback:   opts.Lookback,
		batchSize:  opts.BatchSize,
		retryAfter: opts.RetryAfter,
		now:        opts.Now,
		failed:     make(map[string]time.Time),
	}
	if opts.Schedule != "" {
		sched, err := ParseSchedule(opts.Schedule)
		if err != nil {
			return nil, err
		}
		s.schedule = sched
	}
	if s.lookback <= 0 {
		s.lookback = defaultLookback
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.retryAfter <= 0 {
		s.retryAfter = defaultRetryAfter
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// RunOnce performs a single sweep over conversations updated within the
// lookback window. Per-conversation failures are counted, not returned.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	now := s.now()
	since := now.Add(-s.lookback)

	convs, err := s.store.ConversationsWithoutJournal(ctx, since, s.batchSize, s.recentFailures(now))
	if err != nil {
		return res, fmt.Errorf("backfill: list: %w", err)
	}

	for _, conv := range convs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Scanned++
		log := s.log.With().Str("conversation_id", conv.ConversationID).Logger()

		summary := ""
		if conv.Summary != nil {
			summary = *conv.Summary
		}
		text, ok := s.gen.Journal(ctx, conv.Transcript, summary)
		if !ok {
			res.Skipped++
			s.markFailed(conv.ConversationID, now)
			metrics.RecordBackfill("skipped")
			continue
		}

		outcome, err := s.store.InsertJournalOnce(ctx, conv.ConversationID, text)
		switch outcome {
		case journal.OutcomeInserted:
			res.Inserted++
		case journal.OutcomeExists:
			res.Existing++
		default:
			res.Failed++
			s.markFailed(conv.ConversationID, now)
			log.Warn().Err(err).Str("outcome", string(outcome)).Msg("backfill journal not stored")
		}
		metrics.RecordBackfill(string(outcome))
	}

	s.log.Info().
		Int("scanned", res.Scanned).
		Int("inserted", res.Inserted).
		Int("existing", res.Existing).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("backfill sweep complete")
	return res, nil
}

// recentFailures returns the IDs that failed within retryAfter of now and
// forgets older ones.
func (s *Sweeper) recentFailures(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, at := range s.failed {
		if now.Sub(at) >= s.retryAfter {
			delete(s.failed, id)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (s *Sweeper) markFailed(conversationID string, at time.Time) {
	s.mu.Lock()
	s.failed[conversationID] = at
	s.mu.Unlock()
}

// Run sweeps on the configured schedule until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.schedule == nil {
		return fmt.Errorf("backfill: schedule is required")
	}

	timer := time.NewTimer(nextDelay(s.schedule, s.now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.Error().Err(err).Msg("backfill sweep failed")
			}
			timer.Reset(nextDelay(s.schedule, s.now()))
		}
	}
}
