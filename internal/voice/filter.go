package voice

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Whisper hallucinates these on near-silent clips. They are matched against
// the raw transcript, leading space included.
var noisePhrases = map[string]struct{}{
	" you.":       {},
	" Thank you.": {},
	" Okay.":      {},
	" you":        {},
}

// IsNoise reports whether a transcript should be treated as no speech at all.
func IsNoise(transcript string) bool {
	if _, ok := noisePhrases[transcript]; ok {
		return true
	}
	return utf8.RuneCountInString(strings.TrimSpace(transcript)) <= 3
}

var stageDirection = regexp.MustCompile(`\*.*?\*`)

// CleanReply removes *emphasis* and *stage directions* that should not be
// read aloud.
func CleanReply(text string) string {
	return strings.Join(strings.Fields(stageDirection.ReplaceAllString(text, "")), " ")
}
