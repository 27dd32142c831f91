package voice

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/georgedobreff/discord-llm-bot/internal/logging"
)

// Conn is the part of a Discord voice connection a Session drives.
type Conn interface {
	GuildID() string
	ChannelID() string
	// Ready reports whether the voice websocket and UDP link are up.
	Ready() bool
	Packets() <-chan *discordgo.Packet
	OpusSend() chan<- []byte
	Speaking(bool) error
	// OnSpeaking registers a callback for SSRC announcements.
	OnSpeaking(func(userID string, ssrc uint32))
	Disconnect() error
}

// Joiner opens voice connections.
type Joiner interface {
	Join(ctx context.Context, guildID, channelID string) (Conn, error)
}

type discordConn struct {
	vc *discordgo.VoiceConnection
}

// WrapVoiceConnection adapts a discordgo voice connection to Conn.
func WrapVoiceConnection(vc *discordgo.VoiceConnection) Conn {
	return &discordConn{vc: vc}
}

func (c *discordConn) GuildID() string {
	c.vc.RLock()
	defer c.vc.RUnlock()
	return c.vc.GuildID
}

func (c *discordConn) ChannelID() string {
	c.vc.RLock()
	defer c.vc.RUnlock()
	return c.vc.ChannelID
}

func (c *discordConn) Ready() bool {
	c.vc.RLock()
	defer c.vc.RUnlock()
	return c.vc.Ready
}

func (c *discordConn) Packets() <-chan *discordgo.Packet { return c.vc.OpusRecv }
func (c *discordConn) OpusSend() chan<- []byte           { return c.vc.OpusSend }
func (c *discordConn) Speaking(b bool) error             { return c.vc.Speaking(b) }
func (c *discordConn) Disconnect() error                 { return c.vc.Disconnect() }

func (c *discordConn) OnSpeaking(fn func(userID string, ssrc uint32)) {
	c.vc.AddHandler(func(_ *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
		if su == nil || su.UserID == "" {
			return
		}
		fn(su.UserID, uint32(su.SSRC))
	})
}

// DiscordJoiner joins through the gateway session. The bot joins unmuted and
// undeafened so it can both hear and speak.
type DiscordJoiner struct {
	Session *discordgo.Session
}

func (j DiscordJoiner) Join(ctx context.Context, guildID, channelID string) (Conn, error) {
	type result struct {
		vc  *discordgo.VoiceConnection
		err error
	}
	done := make(chan result, 1)
	go func() {
		vc, err := j.Session.ChannelVoiceJoin(guildID, channelID, false, false)
		done <- result{vc, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if r.vc != nil {
				_ = r.vc.Disconnect()
			}
			return nil, fmt.Errorf("voice: join %s/%s: %w", guildID, channelID, r.err)
		}
		return WrapVoiceConnection(r.vc), nil
	case <-ctx.Done():
		// the join may still land; tear it down when it does
		go func() {
			if r := <-done; r.vc != nil {
				logging.Warnw("voice join completed after caller gave up, disconnecting", "guild_id", guildID, "channel_id", channelID)
				_ = r.vc.Disconnect()
			}
		}()
		return nil, fmt.Errorf("voice: join %s/%s: %w", guildID, channelID, ctx.Err())
	}
}
