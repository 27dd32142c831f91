package voice

import (
	"context"
	"fmt"
	"time"

	"github.com/georgedobreff/discord-llm-bot/internal/audio"
)

// FrameDecoder turns one Opus frame into interleaved 48 kHz stereo PCM.
type FrameDecoder interface {
	Decode(frame []byte) ([]int16, error)
}

type CaptureOptions struct {
	// Silence ends the capture once no frame has arrived for this long.
	Silence time.Duration
	// MaxDuration caps the capture regardless of silence. Zero means no cap.
	MaxDuration time.Duration
}

type CaptureResult struct {
	Path     string
	Frames   int
	Duration time.Duration
	// Bytes is the size of the WAV written, header included.
	Bytes int64
}

// Capture decodes frames until the speaker goes quiet, the stream closes or
// MaxDuration passes, then writes the PCM to path as a 48 kHz stereo WAV.
// Any decode or write failure aborts the capture with ErrCaptureFailed.
func Capture(ctx context.Context, frames <-chan []byte, dec FrameDecoder, path string, opts CaptureOptions) (CaptureResult, error) {
	res := CaptureResult{Path: path}
	var pcm []int16

	silence := time.NewTimer(opts.Silence)
	defer silence.Stop()
	var deadline <-chan time.Time
	if opts.MaxDuration > 0 {
		t := time.NewTimer(opts.MaxDuration)
		defer t.Stop()
		deadline = t.C
	}

loop:
	for {
		select {
		case <-ctx.Done():
			return res, fmt.Errorf("%w: %w", ErrCaptureFailed, ctx.Err())
		case <-silence.C:
			break loop
		case <-deadline:
			break loop
		case frame, ok := <-frames:
			if !ok {
				break loop
			}
			samples, err := dec.Decode(frame)
			if err != nil {
				return res, fmt.Errorf("%w: decode frame %d: %w", ErrCaptureFailed, res.Frames, err)
			}
			pcm = append(pcm, samples...)
			res.Frames++
			if !silence.Stop() {
				select {
				case <-silence.C:
				default:
				}
			}
			silence.Reset(opts.Silence)
		}
	}

	if err := audio.WriteWAVFile(path, audio.Capture, pcm); err != nil {
		return res, fmt.Errorf("%w: write %s: %w", ErrCaptureFailed, path, err)
	}
	res.Bytes = int64(44 + len(pcm)*2)
	res.Duration = time.Duration(len(pcm)/audio.Channels) * time.Second / audio.SampleRate
	return res, nil
}
