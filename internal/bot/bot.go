// Package bot wires discordgo gateway events to the voice session manager.
package bot

import (
	"context"
	"errors"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/georgedobreff/discord-llm-bot/internal/logging"
	"github.com/georgedobreff/discord-llm-bot/internal/voice"
)

const (
	msgNotInVoice  = "You need to be in a voice channel for me to join you!"
	msgJoined      = "Joined"
	msgJoinFailed  = "I had trouble joining the channel. Please try again!"
	msgNoSession   = "I'm not in a voice channel right now."
	msgLeaving     = "Okay, I'll leave... talk to you later!"
	msgLeaveFailed = "Something went wrong while trying to leave."
	msgGuildOnly   = "This command only works inside a server."
	commandJoin    = "join"
	commandLeave   = "leave"
)

// Commands are the slash commands registered on Ready.
var Commands = []*discordgo.ApplicationCommand{
	{Name: commandJoin, Description: "Join the voice channel you are in"},
	{Name: commandLeave, Description: "Leave the current voice channel"},
}

// Voice is the part of the session manager the gateway handlers drive.
type Voice interface {
	Join(ctx context.Context, guildID, channelID string) (*voice.Session, error)
	Leave() error
	HandleBotVoiceState(guildID, channelID string)
}

// Interactions answers slash commands. *discordgo.Session implements it.
type Interactions interface {
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Bot struct {
	voice Voice
	api   Interactions
	state *discordgo.State
	// ctx bounds joins started from command handlers.
	ctx context.Context

	registerOnce sync.Once
}

func New(ctx context.Context, v Voice, api Interactions, state *discordgo.State) *Bot {
	return &Bot{voice: v, api: api, state: state, ctx: ctx}
}

// Register attaches the gateway handlers to s.
func (b *Bot) Register(s *discordgo.Session) {
	s.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) { b.onReady(s, r) })
	s.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) { b.HandleInteraction(i.Interaction) })
	s.AddHandler(func(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		if s.State.User == nil || vs.UserID != s.State.User.ID {
			return
		}
		b.HandleBotVoiceState(vs.GuildID, vs.UserID)
	})
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	logging.Infow("discord ready", "user", r.User.Username, "guilds", len(r.Guilds))
	b.registerOnce.Do(func() {
		for _, cmd := range Commands {
			if _, err := s.ApplicationCommandCreate(r.User.ID, "", cmd); err != nil {
				logging.Errorw("register slash command failed", "command", cmd.Name, "err", err)
			}
		}
	})
}

// HandleInteraction dispatches application commands; other interaction
// types are ignored.
func (b *Bot) HandleInteraction(i *discordgo.Interaction) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	switch i.ApplicationCommandData().Name {
	case commandJoin:
		b.join(i)
	case commandLeave:
		b.leave(i)
	}
}

func (b *Bot) join(i *discordgo.Interaction) {
	user := interactionUser(i)
	if i.GuildID == "" || user == nil {
		b.reply(i, msgGuildOnly, true)
		return
	}
	channelID := b.voiceChannel(i.GuildID, user.ID)
	if channelID == "" {
		b.reply(i, msgNotInVoice, true)
		return
	}

	ctx := logging.WithFields(b.ctx, append(logging.GuildFields(i.GuildID), logging.ChannelFields(channelID)...)...)
	err := b.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		logging.WarnwCtx(ctx, "defer join reply failed", "err", err)
	}

	msg := msgJoined
	if _, err := b.voice.Join(ctx, i.GuildID, channelID); err != nil {
		logging.ErrorwCtx(ctx, "voice join failed", "err", err)
		msg = msgJoinFailed
	} else {
		logging.InfowCtx(ctx, "joined voice channel", logging.UserFields(user.ID, user.Username)...)
	}
	if _, err := b.api.InteractionResponseEdit(i, &discordgo.WebhookEdit{Content: &msg}); err != nil {
		logging.WarnwCtx(ctx, "edit join reply failed", "err", err)
	}
}

func (b *Bot) leave(i *discordgo.Interaction) {
	err := b.voice.Leave()
	switch {
	case err == nil:
		logging.Infow("left voice channel", logging.GuildFields(i.GuildID)...)
		b.reply(i, msgLeaving, false)
	case errors.Is(err, voice.ErrNoSession):
		b.reply(i, msgNoSession, true)
	default:
		logging.Errorw("leave failed", "err", err)
		b.reply(i, msgLeaveFailed, true)
	}
}

func (b *Bot) reply(i *discordgo.Interaction, content string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := b.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		logging.Warnw("interaction reply failed", "err", err)
	}
}

// HandleBotVoiceState re-reads the bot's voice state from the gateway cache
// instead of trusting the event payload, so a late leave event for an old
// connection cannot end a session that was just started.
func (b *Bot) HandleBotVoiceState(guildID, botID string) {
	b.voice.HandleBotVoiceState(guildID, b.voiceChannel(guildID, botID))
}

// voiceChannel is the channel userID is connected to in guildID, or "".
func (b *Bot) voiceChannel(guildID, userID string) string {
	if b.state == nil {
		return ""
	}
	vs, err := b.state.VoiceState(guildID, userID)
	if err != nil || vs == nil {
		return ""
	}
	return vs.ChannelID
}

func interactionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}
