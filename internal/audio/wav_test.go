package audio

import (
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"
)

func TestEncodeWAVHeader(t *testing.T) {
	pcm := PCMBytes([]int16{1, -1, 2, -2})
	wav := EncodeWAV(Capture, pcm)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("unexpected length %d", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatalf("bad chunk ids")
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 48000*2*2 {
		t.Fatalf("byte rate %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Fatalf("data length %d", got)
	}
}

func TestDecodeWAVSkipsUnknownChunks(t *testing.T) {
	wav := EncodeWAV(Speech, PCMBytes([]int16{100, 200, 300}))
	// splice a LIST chunk between fmt and data, as Google's encoder does
	list := []byte("LIST\x04\x00\x00\x00abcd")
	spliced := append(append(append([]byte{}, wav[:36]...), list...), wav[36:]...)

	f, samples, err := DecodeWAV(spliced)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if f != Speech {
		t.Fatalf("unexpected format %+v", f)
	}
	if len(samples) != 3 || samples[2] != 300 {
		t.Fatalf("unexpected samples %v", samples)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("not a wav at all")); !errors.Is(err, ErrUnsupportedWAV) {
		t.Fatalf("want ErrUnsupportedWAV, got %v", err)
	}
	f := Format{SampleRate: 8000, Channels: 1, BitsPerSample: 8}
	if _, _, err := DecodeWAV(EncodeWAV(f, []byte{1, 2})); !errors.Is(err, ErrUnsupportedWAV) {
		t.Fatalf("8 bit should be rejected, got %v", err)
	}
}

func TestWAVFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speech", "u1.wav")
	in := []int16{0, 32767, -32768, 12}
	if err := WriteWAVFile(path, Capture, in); err != nil {
		t.Fatalf("WriteWAVFile: %v", err)
	}
	f, out, err := ReadWAVFile(path)
	if err != nil {
		t.Fatalf("ReadWAVFile: %v", err)
	}
	if f != Capture || len(out) != len(in) || out[1] != 32767 || out[2] != -32768 {
		t.Fatalf("round trip mismatch: %+v %v", f, out)
	}
}

func TestToStereo48k(t *testing.T) {
	mono := make([]int16, 2400) // 100 ms at 24 kHz
	for i := range mono {
		mono[i] = 1000
	}
	out := ToStereo48k(Speech, mono)
	if len(out) != 4800*2 {
		t.Fatalf("expected 4800 stereo frames, got %d samples", len(out))
	}
	if out[0] != 1000 || out[1] != 1000 || out[len(out)-1] != 1000 {
		t.Fatalf("constant signal should stay constant")
	}

	same := []int16{1, 2, 3, 4}
	if got := ToStereo48k(Capture, same); len(got) != 4 || got[3] != 4 {
		t.Fatalf("48k stereo should pass through, got %v", got)
	}
	if got := ToStereo48k(Speech, nil); got != nil {
		t.Fatalf("empty input should give nil")
	}
}
