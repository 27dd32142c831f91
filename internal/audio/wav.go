// Package audio holds the PCM plumbing between Discord's Opus stream and the
// WAV files exchanged with speech providers.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/georgedobreff/discord-llm-bot/internal/fileio"
)

var ErrUnsupportedWAV = errors.New("audio: unsupported wav")

// Format describes interleaved little-endian PCM.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// Capture is what Discord delivers after Opus decoding.
var Capture = Format{SampleRate: SampleRate, Channels: Channels, BitsPerSample: 16}

// Speech is the mono 24 kHz PCM both speech providers return.
var Speech = Format{SampleRate: 24000, Channels: 1, BitsPerSample: 16}

// BytesPerSecond of the raw sample data.
func (f Format) BytesPerSecond() int { return f.SampleRate * f.Channels * f.BitsPerSample / 8 }

// PCMBytes serializes samples as 16-bit little endian.
func PCMBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// EncodeWAV prefixes raw PCM with a canonical 44 byte RIFF header.
func EncodeWAV(f Format, pcm []byte) []byte {
	byteRate := uint32(f.BytesPerSecond())
	blockAlign := uint16(f.Channels * f.BitsPerSample / 8)
	dataLen := uint32(len(pcm))

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36)+dataLen)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(buf, binary.LittleEndian, uint16(f.Channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(f.SampleRate))
	_ = binary.Write(buf, binary.LittleEndian, byteRate)
	_ = binary.Write(buf, binary.LittleEndian, blockAlign)
	_ = binary.Write(buf, binary.LittleEndian, uint16(f.BitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, dataLen)
	buf.Write(pcm)
	return buf.Bytes()
}

// DecodeWAV walks the RIFF chunks and returns the 16-bit PCM samples.
// Streams that report an open-ended data length are read to EOF.
func DecodeWAV(data []byte) (Format, []int16, error) {
	var f Format
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return f, nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrUnsupportedWAV)
	}
	haveFmt := false
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return f, nil, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedWAV)
			}
			tag := binary.LittleEndian.Uint16(data[body:])
			f.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			f.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			f.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14:]))
			if (tag != 1 && tag != 0xFFFE) || f.BitsPerSample != 16 || f.Channels < 1 || f.SampleRate <= 0 {
				return f, nil, fmt.Errorf("%w: format %d, %d bit, %d channels", ErrUnsupportedWAV, tag, f.BitsPerSample, f.Channels)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return f, nil, fmt.Errorf("%w: data before fmt", ErrUnsupportedWAV)
			}
			raw := data[body : body+size]
			samples := make([]int16, len(raw)/2)
			for i := range samples {
				samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
			}
			return f, samples, nil
		}
		off = body + size + size%2
	}
	return f, nil, fmt.Errorf("%w: no data chunk", ErrUnsupportedWAV)
}

// ReadWAVFile loads and decodes a WAV from disk.
func ReadWAVFile(path string) (Format, []int16, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Format{}, nil, err
	}
	return DecodeWAV(b)
}

// WriteWAVFile atomically writes samples as a WAV file.
func WriteWAVFile(path string, f Format, samples []int16) error {
	return fileio.SaveAtomic(path, EncodeWAV(f, PCMBytes(samples)), 0o644)
}
