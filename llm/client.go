package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/georgedobreff/discord-llm-bot/internal/keypool"
)

const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

var (
	ErrAllProvidersExhausted = errors.New("llm: all provider keys rate limited")
	ErrTranscriptionFailed   = errors.New("llm: transcription failed")
	ErrCompletionFailed      = errors.New("llm: completion failed")
	ErrInvalidCompletion     = errors.New("llm: completion had no choices")
)

// Message is one chat turn sent to the completion endpoint.
type Message struct {
	Role    string
	Content string
}

// Client talks to an OpenAI-compatible API (Groq by default) for both chat
// completion and Whisper transcription, sharing one key pool between them.
type Client struct {
	clients  *keypool.Factory[*openai.Client]
	model    string
	sttModel string
}

func NewClient(pool *keypool.Pool, baseURL, model, sttModel string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	build := func(key string) (*openai.Client, error) {
		cfg := openai.DefaultConfig(key)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		return openai.NewClientWithConfig(cfg), nil
	}
	return &Client{
		clients:  keypool.NewFactory(pool, build),
		model:    model,
		sttModel: sttModel,
	}
}

// Complete returns the first choice's content.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{Model: c.model}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	var content string
	err := keypool.Do(ctx, c.clients, IsRateLimited, func(ctx context.Context, oc *openai.Client) error {
		resp, err := oc.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return ErrInvalidCompletion
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	switch {
	case err == nil:
		return content, nil
	case errors.Is(err, keypool.ErrAllExhausted):
		return "", fmt.Errorf("%w: %w", ErrAllProvidersExhausted, err)
	case errors.Is(err, ErrInvalidCompletion):
		return "", err
	default:
		return "", fmt.Errorf("%w: %w", ErrCompletionFailed, err)
	}
}

// Transcribe uploads the audio file at path and returns the provider's text
// verbatim, which may be empty.
func (c *Client) Transcribe(ctx context.Context, path string) (string, error) {
	req := openai.AudioRequest{Model: c.sttModel, FilePath: path}

	var text string
	err := keypool.Do(ctx, c.clients, IsRateLimited, func(ctx context.Context, oc *openai.Client) error {
		resp, err := oc.CreateTranscription(ctx, req)
		if err != nil {
			return err
		}
		text = resp.Text
		return nil
	})
	switch {
	case err == nil:
		return text, nil
	case errors.Is(err, keypool.ErrAllExhausted):
		return "", fmt.Errorf("%w: %w", ErrAllProvidersExhausted, err)
	default:
		return "", fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}
}

// IsRateLimited reports whether err is the provider saying the key is over
// quota.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}
