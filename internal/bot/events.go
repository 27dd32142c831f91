package bot

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/georgedobreff/discord-llm-bot/internal/logging"
)

// sensitiveKeys lists JSON keys which should never be logged in plaintext.
var sensitiveKeys = map[string]struct{}{
	"token": {}, "session_id": {}, "access_token": {}, "refresh_token": {},
	"authorization": {}, "password": {}, "email": {}, "client_secret": {},
	"endpoint": {},
}

// EventLogger dumps raw gateway events at debug level with secrets redacted.
type EventLogger struct {
	// MaxPayload truncates the logged payload; 0 logs it whole.
	MaxPayload int
}

func (l EventLogger) Register(s *discordgo.Session) {
	s.AddHandler(func(_ *discordgo.Session, evt *discordgo.Event) { l.Handle(evt) })
}

func (l EventLogger) Handle(evt *discordgo.Event) {
	if evt == nil {
		return
	}
	kv := []interface{}{"type", evt.Type}
	var decoded any
	payload := "<raw data omitted>"
	if err := json.Unmarshal(evt.RawData, &decoded); err == nil {
		decoded = redact(decoded)
		if m, ok := decoded.(map[string]any); ok {
			for _, k := range []string{"guild_id", "channel_id", "user_id"} {
				if v, ok := m[k].(string); ok && v != "" {
					kv = append(kv, k, v)
				}
			}
		}
		if b, err := json.Marshal(decoded); err == nil {
			payload = truncate(string(b), l.MaxPayload)
		}
	}
	logging.Debugw("discord event", append(kv, "payload", payload)...)
}

// redact walks a decoded JSON value and replaces the values of sensitive
// keys in place.
func redact(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		for k, val := range vv {
			if _, ok := sensitiveKeys[strings.ToLower(k)]; ok {
				vv[k] = "<redacted>"
				continue
			}
			vv[k] = redact(val)
		}
		return vv
	case []any:
		for i, it := range vv {
			vv[i] = redact(it)
		}
		return vv
	default:
		return v
	}
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + fmt.Sprintf("<truncated %d bytes>", len(s)-max)
}
