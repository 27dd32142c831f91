package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Persona describes who the bot is when it speaks in voice channels.
type Persona struct {
	Name           string `toml:"name"`
	Creator        string `toml:"creator"`
	CharacterLimit int    `toml:"character_limit"`
	// VoicePrompt is the persona text for voice replies. {name}, {creator}
	// and {limit} are substituted.
	VoicePrompt string `toml:"voice_prompt"`
}

// DefaultPersona is used when no persona file exists.
func DefaultPersona() Persona {
	return Persona{
		Name:           "Lilly",
		Creator:        "George Dobreff",
		CharacterLimit: 300,
		VoicePrompt: `You are {name}, a playful and witty companion created by {creator}, hanging out in a Discord voice channel.
Everything you write is read aloud, so write the way people talk. Keep every reply under {limit} characters.
Never use emojis, markdown, lists or links.
You may start a reply with a delivery hint such as "Say cheerfully:" and it will shape how your voice sounds.`,
	}
}

// LoadPersona reads a TOML persona file on top of DefaultPersona. A missing
// file yields the defaults.
func LoadPersona(path string) (Persona, error) {
	p := DefaultPersona()
	if strings.TrimSpace(path) == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("config: read persona %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("config: parse persona %s: %w", path, err)
	}
	if p.CharacterLimit <= 0 {
		p.CharacterLimit = DefaultPersona().CharacterLimit
	}
	return p, nil
}

// VoiceSystemPrompt renders VoicePrompt with the persona's fields.
func (p Persona) VoiceSystemPrompt() string {
	r := strings.NewReplacer(
		"{name}", p.Name,
		"{creator}", p.Creator,
		"{limit}", fmt.Sprint(p.CharacterLimit),
	)
	return r.Replace(p.VoicePrompt)
}
