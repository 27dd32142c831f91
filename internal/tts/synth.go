// Package tts turns reply text into a playable WAV file, preferring Gemini's
// native voice and falling back to Google Cloud Text-to-Speech.
package tts

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/georgedobreff/discord-llm-bot/internal/fileio"
	"github.com/georgedobreff/discord-llm-bot/internal/logging"
)

var (
	// ErrPrimaryExhausted is returned by the primary provider when every key
	// in its pool was rate limited.
	ErrPrimaryExhausted = errors.New("tts: primary provider keys exhausted")
	// ErrSynthesisFailed means neither provider produced audio.
	ErrSynthesisFailed = errors.New("tts: synthesis failed")
)

// Provider synthesizes text into a complete WAV file image.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Recorder receives one call per provider attempt.
type Recorder interface {
	TTSRequest(provider, outcome string)
}

// Service tries the primary provider, then the fallback exactly once.
// Either may be nil.
type Service struct {
	primary  Provider
	fallback Provider
	rec      Recorder
}

func NewService(primary, fallback Provider, rec Recorder) *Service {
	return &Service{primary: primary, fallback: fallback, rec: rec}
}

// Synthesize writes the audio for text to path. The file is replaced
// atomically so a player never reads half of it.
func (s *Service) Synthesize(ctx context.Context, text, path string) error {
	audio, err := s.synthesize(ctx, text)
	if err != nil {
		return err
	}
	if err := fileio.SaveAtomic(path, audio, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrSynthesisFailed, path, err)
	}
	return nil
}

func (s *Service) synthesize(ctx context.Context, text string) ([]byte, error) {
	var primaryErr error
	if s.primary != nil {
		audio, err := s.primary.Synthesize(ctx, text)
		if err == nil {
			s.record(s.primary.Name(), "ok")
			return audio, nil
		}
		primaryErr = err
		outcome := "error"
		if errors.Is(err, ErrPrimaryExhausted) {
			outcome = "exhausted"
		}
		s.record(s.primary.Name(), outcome)
		logging.WarnwCtx(ctx, "primary tts failed, falling back", "provider", s.primary.Name(), "err", err)
	}
	if s.fallback == nil {
		if primaryErr == nil {
			primaryErr = errors.New("no provider configured")
		}
		return nil, fmt.Errorf("%w: %w", ErrSynthesisFailed, primaryErr)
	}

	audio, err := s.fallback.Synthesize(ctx, CleanForFallback(text))
	if err != nil {
		s.record(s.fallback.Name(), "error")
		return nil, fmt.Errorf("%w: %w", ErrSynthesisFailed, errors.Join(primaryErr, err))
	}
	s.record(s.fallback.Name(), "ok")
	return audio, nil
}

func (s *Service) record(provider, outcome string) {
	if s.rec != nil {
		s.rec.TTSRequest(provider, outcome)
	}
}

var (
	deliveryPrefix = regexp.MustCompile(`(?i)Say .*?:`)
	emphasis       = regexp.MustCompile(`\*.*?\*`)
)

// CleanForFallback strips delivery hints like "Say cheerfully:" that only
// Gemini understands, and any leftover *stage directions*.
func CleanForFallback(text string) string {
	text = deliveryPrefix.ReplaceAllString(text, "")
	text = emphasis.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}
