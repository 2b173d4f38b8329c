// Package completion turns a conversation into a diary entry through an
// external completion provider.
package completion

import (
	"context"
	"errors"
)

var (
	// ErrNotConfigured is returned when no provider credentials are set.
	ErrNotConfigured = errors.New("completion: provider not configured")
	// ErrEmptyCompletion is returned when the provider answers without text.
	ErrEmptyCompletion = errors.New("completion: empty completion")
)

// Provider generates journal text for a conversation. Implementations may
// fail or block; callers bound them with a context deadline.
type Provider interface {
	Generate(ctx context.Context, conversationHistory, summary string) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, conversationHistory, summary string) (string, error)

// Generate calls f.
func (f ProviderFunc) Generate(ctx context.Context, conversationHistory, summary string) (string, error) {
	return f(ctx, conversationHistory, summary)
}

// Disabled is the provider used when no API key is configured.
type Disabled struct{}

// Generate always returns ErrNotConfigured.
func (Disabled) Generate(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}
