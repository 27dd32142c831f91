package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"

	"github.com/georgedobreff/discord-llm-bot/internal/admin"
	"github.com/georgedobreff/discord-llm-bot/internal/audio"
	"github.com/georgedobreff/discord-llm-bot/internal/bot"
	"github.com/georgedobreff/discord-llm-bot/internal/config"
	"github.com/georgedobreff/discord-llm-bot/internal/keypool"
	"github.com/georgedobreff/discord-llm-bot/internal/logging"
	"github.com/georgedobreff/discord-llm-bot/internal/mcp"
	"github.com/georgedobreff/discord-llm-bot/internal/metrics"
	"github.com/georgedobreff/discord-llm-bot/internal/tts"
	"github.com/georgedobreff/discord-llm-bot/internal/voice"
	"github.com/georgedobreff/discord-llm-bot/llm"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	logging.Init()
	defer func() { _ = logging.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logging.FatalExitf("config load failed", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New("llmbot")

	groq := newPool("groq", cfg.GroqKeys, m)
	llmClient := llm.NewClient(groq, cfg.LLMBaseURL, cfg.LLMModel, cfg.STTModel)

	synth, closeTTS := newSynthesizer(ctx, cfg, m)
	defer closeTTS()

	dirs := voice.NewDirs(cfg.DataDir)
	if err := dirs.Ensure(); err != nil {
		logging.Errorw("could not create working directories", "root", cfg.DataDir, "err", err)
	}

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		logging.FatalExitf("discordgo.New failed", "err", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates | discordgo.IntentsGuildMembers
	logging.Warnw("bot requests the privileged GUILD_MEMBERS intent; enable it in the Discord Developer Portal", "intents", dg.Identify.Intents)

	timing := voice.DefaultTiming()
	timing.JoinTimeout = cfg.JoinTimeout
	timing.RecoveryTimeout = cfg.RecoveryTimeout
	timing.Silence = cfg.Silence
	timing.MaxUtterance = cfg.MaxUtterance

	manager := voice.NewManager(voice.DiscordJoiner{Session: dg}, voice.Deps{
		BotName:     cfg.Persona.Name,
		Resolver:    voice.NewDiscordResolver(dg),
		Transcriber: llmClient,
		Decider:     llm.NewDecider(llmClient, cfg.Persona.Name),
		Replier:     llm.NewReplier(llmClient, cfg.Persona.VoiceSystemPrompt()),
		Synthesizer: synth,
		History:     voice.NewHistoryStore(dirs.History),
		Dirs:        dirs,
		NewDecoder: func() (voice.FrameDecoder, error) {
			d, err := audio.NewDecoder()
			if err != nil {
				return nil, err
			}
			return d, nil
		},
		NewPlayer:       voice.NewOpusPlayer,
		Metrics:         m,
		Timing:          timing,
		HistoryWindow:   cfg.HistoryWindow,
		MinCaptureBytes: voice.MinCaptureBytes,
	})

	bot.New(ctx, manager, dg, dg.State).Register(dg)
	if cfg.GatewayEvents {
		bot.EventLogger{MaxPayload: cfg.PayloadMaxBytes}.Register(dg)
	}

	logging.Infow("opening discord session", "version", version)
	if err := dg.Open(); err != nil {
		logging.FatalExitf("discord session open failed", "err", err)
	}
	logging.Infow("discord session opened")

	adminDone := make(chan struct{})
	if cfg.AdminAddr != "" {
		srv := admin.New(cfg.AdminAddr, cfg.AdminToken, m.Handler(), mcp.WebSocketHandler(mcp.NewServer(manager, version)))
		go func() {
			defer close(adminDone)
			logging.Infow("admin server listening", "addr", cfg.AdminAddr, "auth", cfg.AdminToken != "")
			if err := srv.Run(ctx); err != nil {
				logging.Errorw("admin server stopped", "err", err)
			}
		}()
	} else {
		close(adminDone)
	}

	<-ctx.Done()
	logging.Infow("shutting down")

	manager.Close()
	if err := dg.Close(); err != nil {
		logging.Warnw("discord session close failed", "err", err)
	}
	<-adminDone
}

func newPool(name string, keys []string, m *metrics.Metrics) *keypool.Pool {
	p := keypool.New(name, keys)
	p.OnRotate(func(name string, _ int) { m.KeyRotated(name) })
	return p
}

// newSynthesizer prefers Gemini when keys are configured and keeps Google
// Cloud TTS as the fallback. Either may be missing; with neither, every
// synthesis fails and replies are skipped.
func newSynthesizer(ctx context.Context, cfg config.Config, m *metrics.Metrics) (*tts.Service, func()) {
	var primary, fallback tts.Provider
	closeFn := func() {}

	if len(cfg.GeminiKeys) > 0 {
		primary = tts.NewGemini(newPool("gemini", cfg.GeminiKeys, m), cfg.GeminiTTSModel, cfg.GeminiVoice)
	} else {
		logging.Warnw("no GEMINI_API_KEY configured, using Google Cloud TTS only")
	}

	g, err := tts.NewGoogle(ctx, cfg.GoogleCredentialsFile, cfg.GoogleLanguage, cfg.GoogleVoice)
	if err != nil {
		logging.Warnw("google cloud tts unavailable, running without a fallback voice", "err", err)
	} else {
		fallback = g
		closeFn = func() {
			if err := g.Close(); err != nil {
				logging.Warnw("google tts close failed", "err", err)
			}
		}
	}
	return tts.NewService(primary, fallback, m), closeFn
}
