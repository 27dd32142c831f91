package tts

import (
	"context"
	"fmt"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"
)

// Google is the fallback voice. It authenticates with a single service
// account and never rotates.
type Google struct {
	client   *texttospeech.Client
	voice    *texttospeechpb.VoiceSelectionParams
	audioCfg *texttospeechpb.AudioConfig
}

// NewGoogle dials Cloud Text-to-Speech. An empty credentialsFile falls back to
// application default credentials.
func NewGoogle(ctx context.Context, credentialsFile, language, voice string) (*Google, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	c, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google tts: new client: %w", err)
	}
	return &Google{
		client: c,
		voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: language,
			Name:         voice,
		},
		audioCfg: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
			SampleRateHertz: 24000,
		},
	}, nil
}

func (g *Google) Name() string { return "google" }

// Synthesize returns LINEAR16 audio, which the API already wraps in a WAV
// header.
func (g *Google) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := g.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice:       g.voice,
		AudioConfig: g.audioCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("google tts: %w", err)
	}
	return resp.AudioContent, nil
}

func (g *Google) Close() error { return g.client.Close() }
