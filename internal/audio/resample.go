package audio

// ToStereo48k converts interleaved PCM in format f to 48 kHz stereo, the only
// layout Discord's Opus sender accepts. Mono is duplicated to both channels;
// extra channels beyond two are dropped. Rate conversion is linear
// interpolation, which is plenty for speech.
func ToStereo48k(f Format, pcm []int16) []int16 {
	ch := f.Channels
	if ch < 1 || f.SampleRate <= 0 {
		return nil
	}
	frames := len(pcm) / ch
	if frames == 0 {
		return nil
	}
	if f.SampleRate == SampleRate && ch == Channels {
		return append([]int16(nil), pcm[:frames*ch]...)
	}

	outFrames := int(int64(frames) * SampleRate / int64(f.SampleRate))
	out := make([]int16, outFrames*Channels)
	step := float64(f.SampleRate) / SampleRate
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		for c := 0; c < Channels; c++ {
			src := c
			if ch == 1 {
				src = 0
			}
			a := float64(pcm[j*ch+src])
			b := a
			if j+1 < frames {
				b = float64(pcm[(j+1)*ch+src])
			}
			out[i*Channels+c] = int16(a + (b-a)*frac)
		}
	}
	return out
}
