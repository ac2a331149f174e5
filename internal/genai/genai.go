// Package genai provides the completion backend client used for non-templated
// replies, built on the OpenAI API.
//
// The base URL is configurable so the client also runs against
// OpenAI-compatible providers (e.g. Groq, which serves the default model).
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/replydesk/replydesk/internal/models"
)

// Defaults for the completion backend.
const (
	// DefaultModel is the completion model used when none is configured.
	DefaultModel = "llama-3.3-70b-versatile"
)

// chatService defines the minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration options for the completion client.
type Opts struct {
	APIKey  string // API key for the completion backend
	BaseURL string // OpenAI-compatible endpoint base URL
	Model   string // model identifier
}

// Option defines a configuration option for the completion client.
type Option func(*Opts)

// WithAPIKey sets the completion backend API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) {
		o.BaseURL = url
	}
}

// WithModel sets the completion model identifier.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// Client wraps the chat completion service for generating replies.
type Client struct {
	chat  chatService
	model openai.ChatModel
}

// NewClient initializes a completion client, falling back to the
// OPENAI_API_KEY, OPENAI_BASE_URL and OPENAI_MODEL environment variables for
// unset options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if cfg.Model == "" {
		cfg.Model = os.Getenv("OPENAI_MODEL")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)
	slog.Debug("GenAI client initialized", "model", cfg.Model, "base_url_set", cfg.BaseURL != "")
	return &Client{chat: &cli.Chat.Completions, model: openai.ChatModel(cfg.Model)}, nil
}

// GenerateReply invokes the completion backend with the system instruction
// followed by the sender's retained history in chronological order. A
// well-formed response with no choices or empty content yields an empty
// string and no error; the caller substitutes its fixed fallback phrase.
func (c *Client) GenerateReply(ctx context.Context, systemPrompt string, turns []models.ConversationTurn) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	messages = append(messages, openai.SystemMessage(systemPrompt))
	for _, turn := range turns {
		switch turn.Role {
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		default:
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}

	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("GenAI completion returned no choices")
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
