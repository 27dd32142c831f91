package voice

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/georgedobreff/discord-llm-bot/internal/fileio"
	"github.com/georgedobreff/discord-llm-bot/llm"
)

// BotSpeakerID marks the bot's own turns in a history file.
const BotSpeakerID = "BOT"

// Entry is one persisted line of a user's voice conversation.
type Entry struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Text        string `json:"text"`
}

// HistoryStore keeps one JSON array per user under dir.
type HistoryStore struct {
	dir string

	// serializes read-modify-write of a file across sessions
	mu sync.Mutex
}

func NewHistoryStore(dir string) *HistoryStore {
	return &HistoryStore{dir: dir}
}

func (h *HistoryStore) path(userID string) string {
	return filepath.Join(h.dir, userID+".json")
}

// Load returns the user's history, or an empty one when none was saved yet.
func (h *HistoryStore) Load(userID string) ([]Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := os.ReadFile(h.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("voice: read history %s: %w", userID, err)
	}
	var entries []Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("voice: parse history %s: %w", userID, err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Save rewrites the user's whole history.
func (h *HistoryStore) Save(userID string, entries []Entry) error {
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := fileio.SaveAtomic(h.path(userID), b, 0o644); err != nil {
		return fmt.Errorf("voice: save history %s: %w", userID, err)
	}
	return nil
}

// Turns converts entries to prompt lines. window > 0 keeps only the newest
// window entries.
func Turns(entries []Entry, window int) []llm.Turn {
	if window > 0 && len(entries) > window {
		entries = entries[len(entries)-window:]
	}
	out := make([]llm.Turn, 0, len(entries))
	for _, e := range entries {
		out = append(out, llm.Turn{Speaker: e.DisplayName, Text: e.Text})
	}
	return out
}
