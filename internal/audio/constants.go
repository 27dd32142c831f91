package audio

const (
	// SampleRate, Channels and FrameSize match Discord's voice transport:
	// 20 ms Opus frames of 48 kHz stereo.
	SampleRate = 48000
	Channels   = 2
	FrameSize  = 960

	maxFrameSamples = 5760 // 120 ms, the largest Opus frame
	maxPacketBytes  = 4000
)

// FrameDurationMs is the length of one FrameSize chunk.
const FrameDurationMs = FrameSize * 1000 / SampleRate
