package voice

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestHistoryRoundTrip(t *testing.T) {
	store := NewHistoryStore(filepath.Join(t.TempDir(), "voice_history"))

	empty, err := store.Load("u1")
	if err != nil || len(empty) != 0 {
		t.Fatalf("missing file should load empty, got %v %v", empty, err)
	}

	in := []Entry{
		{UserID: "u1", DisplayName: "Ana", Text: " Hey Lilly"},
		{UserID: BotSpeakerID, DisplayName: "Lilly", Text: "Hi Ana!"},
		{UserID: "u1", DisplayName: "Ana", Text: " How are you?"},
	}
	if err := store.Save("u1", in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := store.Load("u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}

	raw, _ := os.ReadFile(store.path("u1"))
	if !strings.Contains(string(raw), "\n  {\n    \"userId\": \"u1\"") {
		t.Fatalf("expected two-space indented JSON with userId keys:\n%s", raw)
	}
}

func TestHistoryCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store := NewHistoryStore(dir)
	if err := os.WriteFile(filepath.Join(dir, "u1.json"), []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load("u1"); err == nil {
		t.Fatalf("corrupt history should error")
	}
}

func TestTurnsWindow(t *testing.T) {
	entries := []Entry{
		{DisplayName: "Ana", Text: "one"},
		{DisplayName: "Lilly", Text: "two"},
		{DisplayName: "Ana", Text: "three"},
	}
	if got := Turns(entries, 0); len(got) != 3 || got[0].Speaker != "Ana" {
		t.Fatalf("window 0 keeps everything: %+v", got)
	}
	got := Turns(entries, 2)
	if len(got) != 2 || got[0].Text != "two" || got[1].Text != "three" {
		t.Fatalf("window keeps the newest entries: %+v", got)
	}
}
