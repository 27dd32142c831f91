package bot

import (
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/georgedobreff/discord-llm-bot/internal/logging"
)

type captureLogger struct {
	mu      sync.Mutex
	entries [][]interface{}
}

func (c *captureLogger) Infow(string, ...interface{}) {}
func (c *captureLogger) Debugw(_ string, kv ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, kv)
}
func (c *captureLogger) Warnw(string, ...interface{})  {}
func (c *captureLogger) Errorw(string, ...interface{}) {}
func (c *captureLogger) Fatalw(string, ...interface{}) {}
func (c *captureLogger) Sync() error                   { return nil }

func field(kv []interface{}, key string) (interface{}, bool) {
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i] == key {
			return kv[i+1], true
		}
	}
	return nil, false
}

func TestEventLoggerRedactsSecrets(t *testing.T) {
	logs := &captureLogger{}
	logging.SetLogger(logs)
	t.Cleanup(func() { logging.SetLogger(nil) })

	EventLogger{}.Handle(&discordgo.Event{
		Type:    "VOICE_SERVER_UPDATE",
		RawData: []byte(`{"guild_id":"g1","token":"secret-token","endpoint":"eu.discord.media","nested":{"Session_ID":"abc"}}`),
	})

	if len(logs.entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(logs.entries))
	}
	kv := logs.entries[0]
	if g, _ := field(kv, "guild_id"); g != "g1" {
		t.Fatalf("guild_id = %v", g)
	}
	p, _ := field(kv, "payload")
	payload := p.(string)
	for _, secret := range []string{"secret-token", "eu.discord.media", "abc"} {
		if strings.Contains(payload, secret) {
			t.Fatalf("payload leaked %q: %s", secret, payload)
		}
	}
}

func TestEventLoggerTruncates(t *testing.T) {
	logs := &captureLogger{}
	logging.SetLogger(logs)
	t.Cleanup(func() { logging.SetLogger(nil) })

	EventLogger{MaxPayload: 10}.Handle(&discordgo.Event{
		Type:    "GUILD_CREATE",
		RawData: []byte(`{"name":"a very long guild name indeed"}`),
	})

	p, _ := field(logs.entries[0], "payload")
	if !strings.HasPrefix(p.(string), `{"name":"a`) || !strings.Contains(p.(string), "<truncated") {
		t.Fatalf("unexpected payload %q", p)
	}
}
