package completion

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/JustTolerateMe/Whisperbackendtest/internal/config"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAI generates journals with the chat completions API of OpenAI or a
// compatible endpoint.
type OpenAI struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAI builds an OpenAI provider from configuration.
func NewOpenAI(cfg config.CompletionConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	temperature := config.DefaultTemperature
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	if temperature == 0 {
		// The request field is omitempty; a zero would fall back to the API default.
		temperature = math.SmallestNonzeroFloat32
	}
	return &OpenAI{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: temperature,
	}, nil
}

// Generate sends the diary prompt and returns the first choice's content.
func (p *OpenAI) Generate(ctx context.Context, conversationHistory, summary string) (string, error) {
	prompt, err := RenderPrompt(conversationHistory, summary)
	if err != nil {
		return "", err
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("completion: openai %s: %w", p.model, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
