// Package llm wraps the completion service the generation pipeline talks to.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/lucasnoah/ideaforge/internal/config"
)

// ErrNotConfigured is returned when no credentials are available.
var ErrNotConfigured = errors.New("llm: not configured")

// Request is a single completion call.
type Request struct {
	System string
	Prompt string
}

// Completer streams a completion. onChunk receives every text increment as
// it arrives; returning an error from it aborts the call. The full reply is
// returned on success.
type Completer interface {
	Stream(ctx context.Context, req Request, onChunk func(string) error) (string, error)
}

// Client is a Completer backed by a langchaingo model.
type Client struct {
	model       llms.Model
	temperature float64
}

// New builds a Client for an OpenAI-compatible provider.
func New(cfg config.LLM) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	switch cfg.Provider {
	case "", "openai", "openrouter":
	default:
		return nil, fmt.Errorf("llm: provider %q not supported", cfg.Provider)
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("llm: create client: %w", err)
	}
	return NewWithModel(model, cfg.Temperature), nil
}

// NewWithModel wraps an existing model.
func NewWithModel(model llms.Model, temperature float64) *Client {
	return &Client{model: model, temperature: temperature}
}

// Stream implements Completer.
func (c *Client) Stream(ctx context.Context, req Request, onChunk func(string) error) (string, error) {
	var messages []llms.MessageContent
	if req.System != "" {
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(req.System)},
		})
	}
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(req.Prompt)},
	})

	var streamed strings.Builder
	opts := []llms.CallOption{
		llms.WithTemperature(c.temperature),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			streamed.Write(chunk)
			if onChunk == nil {
				return nil
			}
			return onChunk(string(chunk))
		}),
	}

	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("llm: generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return streamed.String(), nil
	}
	return resp.Choices[0].Content, nil
}

// Unconfigured is the Completer used when no credentials are set. Every call
// fails with ErrNotConfigured.
type Unconfigured struct{}

// Stream implements Completer.
func (Unconfigured) Stream(context.Context, Request, func(string) error) (string, error) {
	return "", ErrNotConfigured
}
