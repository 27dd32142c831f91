package voice

import (
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// cacheTTL controls how long a resolved member is trusted.
var cacheTTL = 5 * time.Minute

type memberEntry struct {
	sp     Speaker
	expiry time.Time
}

// DiscordResolver resolves speakers from the gateway's member cache, falling
// back to a REST lookup, and keeps its own short-lived cache on top.
type DiscordResolver struct {
	s *discordgo.Session

	mu    sync.Mutex
	cache map[string]memberEntry
}

func NewDiscordResolver(s *discordgo.Session) *DiscordResolver {
	return &DiscordResolver{s: s, cache: make(map[string]memberEntry)}
}

func (d *DiscordResolver) Resolve(guildID, userID string) (Speaker, bool) {
	if d.s == nil || userID == "" {
		return Speaker{}, false
	}
	key := guildID + "/" + userID
	d.mu.Lock()
	if e, ok := d.cache[key]; ok {
		if time.Now().Before(e.expiry) {
			d.mu.Unlock()
			return e.sp, true
		}
		delete(d.cache, key)
	}
	d.mu.Unlock()

	m := d.member(guildID, userID)
	if m == nil || m.User == nil {
		return Speaker{}, false
	}
	sp := speakerFromMember(m)
	d.mu.Lock()
	d.cache[key] = memberEntry{sp: sp, expiry: time.Now().Add(cacheTTL)}
	d.mu.Unlock()
	return sp, true
}

func (d *DiscordResolver) member(guildID, userID string) *discordgo.Member {
	if d.s.State != nil {
		if m, err := d.s.State.Member(guildID, userID); err == nil && m != nil {
			return m
		}
	}
	if m, err := d.s.GuildMember(guildID, userID); err == nil {
		return m
	}
	return nil
}

// speakerFromMember prefers the guild nickname, then the global display
// name, then the username.
func speakerFromMember(m *discordgo.Member) Speaker {
	name := m.Nick
	if name == "" {
		name = m.User.GlobalName
	}
	if name == "" {
		name = m.User.Username
	}
	return Speaker{ID: m.User.ID, Username: m.User.Username, DisplayName: name, Bot: m.User.Bot}
}
