package tts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/georgedobreff/discord-llm-bot/internal/audio"
	"github.com/georgedobreff/discord-llm-bot/internal/keypool"
)

// Gemini speaks through a Gemini TTS model with a prebuilt voice, rotating
// API keys on quota errors.
type Gemini struct {
	clients *keypool.Factory[*genai.Client]
	model   string
	voice   string
}

func NewGemini(pool *keypool.Pool, model, voice string) *Gemini {
	build := func(key string) (*genai.Client, error) {
		return genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
	}
	return &Gemini{clients: keypool.NewFactory(pool, build), model: model, voice: voice}
}

func (g *Gemini) Name() string { return "gemini" }

// Synthesize returns a WAV wrapping the model's raw 24 kHz mono PCM.
func (g *Gemini) Synthesize(ctx context.Context, text string) ([]byte, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.voice},
			},
		},
	}

	var pcm []byte
	err := keypool.Do(ctx, g.clients, IsGeminiRateLimited, func(ctx context.Context, c *genai.Client) error {
		resp, err := c.Models.GenerateContent(ctx, g.model, genai.Text(text), cfg)
		if err != nil {
			return err
		}
		data, err := inlineAudio(resp)
		if err != nil {
			return err
		}
		pcm = data
		return nil
	})
	if errors.Is(err, keypool.ErrAllExhausted) {
		return nil, fmt.Errorf("%w: %w", ErrPrimaryExhausted, err)
	}
	if err != nil {
		return nil, fmt.Errorf("gemini tts: %w", err)
	}
	return audio.EncodeWAV(audio.Speech, pcm), nil
}

func inlineAudio(resp *genai.GenerateContentResponse) ([]byte, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("response has no candidates")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data, nil
		}
	}
	return nil, errors.New("response has no inline audio")
}

// IsGeminiRateLimited matches HTTP 429 and RESOURCE_EXHAUSTED API errors.
func IsGeminiRateLimited(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || strings.EqualFold(apiErr.Status, "RESOURCE_EXHAUSTED")
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code == http.StatusTooManyRequests || strings.EqualFold(apiErrPtr.Status, "RESOURCE_EXHAUSTED")
	}
	return false
}
