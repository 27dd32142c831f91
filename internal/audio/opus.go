//go:build cgo

package audio

import (
	"fmt"

	"github.com/hraban/opus"
)

// Decoder turns Discord Opus frames back into interleaved 48 kHz stereo PCM.
type Decoder struct {
	dec *opus.Decoder
	buf []int16
}

func NewDecoder() (*Decoder, error) {
	d, err := opus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decoder: %w", err)
	}
	return &Decoder{dec: d, buf: make([]int16, maxFrameSamples*Channels)}, nil
}

// Decode returns a fresh slice; the internal buffer is reused between calls.
func (d *Decoder) Decode(frame []byte) ([]int16, error) {
	n, err := d.dec.Decode(frame, d.buf)
	if err != nil {
		return nil, err
	}
	out := make([]int16, n*Channels)
	copy(out, d.buf[:n*Channels])
	return out, nil
}

// Encoder packs 48 kHz stereo PCM into 20 ms Opus frames for sending.
type Encoder struct {
	enc *opus.Encoder
	buf []byte
}

func NewEncoder() (*Encoder, error) {
	e, err := opus.NewEncoder(SampleRate, Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("audio: opus encoder: %w", err)
	}
	return &Encoder{enc: e, buf: make([]byte, maxPacketBytes)}, nil
}

// EncodeFrames splits pcm into FrameSize chunks, zero padding the tail.
func (e *Encoder) EncodeFrames(pcm []int16) ([][]byte, error) {
	step := FrameSize * Channels
	var frames [][]byte
	for off := 0; off < len(pcm); off += step {
		chunk := pcm[off:min(off+step, len(pcm))]
		if len(chunk) < step {
			padded := make([]int16, step)
			copy(padded, chunk)
			chunk = padded
		}
		n, err := e.enc.Encode(chunk, e.buf)
		if err != nil {
			return frames, fmt.Errorf("audio: opus encode: %w", err)
		}
		frames = append(frames, append([]byte(nil), e.buf[:n]...))
	}
	return frames, nil
}
