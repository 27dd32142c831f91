package voice

import (
	"os"
	"path/filepath"
)

// Dirs are the working directories of the voice pipeline.
type Dirs struct {
	Speech  string
	History string
	TTS     string
}

// NewDirs lays the three directories out under root.
func NewDirs(root string) Dirs {
	return Dirs{
		Speech:  filepath.Join(root, "user_speech"),
		History: filepath.Join(root, "voice_history"),
		TTS:     filepath.Join(root, "tts_output"),
	}
}

// Ensure creates all directories, returning the first failure after trying
// every one.
func (d Dirs) Ensure() error {
	var first error
	for _, dir := range []string{d.Speech, d.History, d.TTS} {
		if err := os.MkdirAll(dir, 0o755); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SpeechPath is the single recording slot for userID.
func (d Dirs) SpeechPath(userID string) string {
	return filepath.Join(d.Speech, userID+".wav")
}

func (d Dirs) TTSPath(sessionID string) string {
	return filepath.Join(d.TTS, "tts_"+sessionID+".wav")
}
