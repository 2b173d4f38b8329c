package completion

import (
	"context"
	"errors"
	"time"

	"github.com/JustTolerateMe/Whisperbackendtest/internal/metrics"
	"github.com/rs/zerolog"
)

// BestEffort wraps a Provider so that generation never fails the caller:
// each call runs under a deadline and every error is logged and reported as
// "no journal".
type BestEffort struct {
	provider Provider
	timeout  time.Duration
	log      zerolog.Logger
}

// NewBestEffort wraps p. A non-positive timeout leaves the caller's context
// deadline as the only bound.
func NewBestEffort(p Provider, timeout time.Duration, log zerolog.Logger) *BestEffort {
	if p == nil {
		p = Disabled{}
	}
	return &BestEffort{provider: p, timeout: timeout, log: log}
}

// Journal returns the generated text and true, or "" and false when the
// provider failed, timed out or produced nothing.
func (b *BestEffort) Journal(ctx context.Context, conversationHistory, summary string) (string, bool) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := b.provider.Generate(ctx, conversationHistory, summary)
	elapsed := time.Since(start)

	if err == nil && text == "" {
		err = ErrEmptyCompletion
	}
	if err != nil {
		result := classify(ctx, err)
		metrics.RecordGeneration(result, elapsed.Seconds())
		b.log.Warn().Err(err).Str("result", result).Dur("elapsed", elapsed).Msg("journal generation failed")
		return "", false
	}

	metrics.RecordGeneration("success", elapsed.Seconds())
	b.log.Debug().Dur("elapsed", elapsed).Int("length", len(text)).Msg("journal generated")
	return text, true
}

func classify(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return "disabled"
	case errors.Is(err, ErrEmptyCompletion):
		return "empty"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
