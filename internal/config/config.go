package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// maxNumberedKeys is how many FOO_API_KEY<n> slots are scanned per provider.
const maxNumberedKeys = 7

// Config holds everything the process reads from its environment.
type Config struct {
	DiscordToken string

	// Groq keys serve both chat completion and Whisper transcription.
	GroqKeys   []string
	LLMBaseURL string
	LLMModel   string
	STTModel   string

	GeminiKeys     []string
	GeminiTTSModel string
	GeminiVoice    string

	GoogleCredentialsFile string
	GoogleVoice           string
	GoogleLanguage        string

	DataDir       string
	HistoryWindow int

	Silence         time.Duration
	MaxUtterance    time.Duration
	JoinTimeout     time.Duration
	RecoveryTimeout time.Duration

	// AdminAddr defaults to loopback. AdminToken guards /metrics and
	// /mcp/ws and is required for any other bind address.
	AdminAddr   string
	AdminToken  string
	PersonaFile string
	Persona     Persona

	// GatewayEvents enables debug dumps of every gateway event, each payload
	// cut to PayloadMaxBytes.
	GatewayEvents   bool
	PayloadMaxBytes int
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Config{
		DiscordToken:          strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")),
		GroqKeys:              NumberedKeys("GROQ_API_KEY"),
		LLMBaseURL:            envOr("LLM_BASE_URL", "https://api.groq.com/openai/v1"),
		LLMModel:              envOr("LLM_MODEL", "llama-3.3-70b-versatile"),
		STTModel:              envOr("STT_MODEL", "whisper-large-v3"),
		GeminiKeys:            NumberedKeys("GEMINI_API_KEY"),
		GeminiTTSModel:        envOr("GEMINI_TTS_MODEL", "gemini-2.5-flash-preview-tts"),
		GeminiVoice:           envOr("GEMINI_TTS_VOICE", "Kore"),
		GoogleCredentialsFile: strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
		GoogleVoice:           envOr("GOOGLE_TTS_VOICE", "en-US-Chirp-HD-F"),
		GoogleLanguage:        envOr("GOOGLE_TTS_LANGUAGE", "en-US"),
		DataDir:               envOr("DATA_DIR", "."),
		HistoryWindow:         envInt("VOICE_HISTORY_WINDOW", 0),
		Silence:               envMillis("SILENCE_MS", 750),
		MaxUtterance:          envMillis("MAX_UTTERANCE_MS", 30000),
		JoinTimeout:           envMillis("JOIN_TIMEOUT_MS", 30000),
		RecoveryTimeout:       envMillis("RECOVERY_TIMEOUT_MS", 5000),
		AdminAddr:             envOr("ADMIN_ADDR", "127.0.0.1:8080"),
		AdminToken:            strings.TrimSpace(os.Getenv("ADMIN_TOKEN")),
		PersonaFile:           envOr("PERSONA_FILE", "persona.toml"),
		GatewayEvents:         envBool("LOG_GATEWAY_EVENTS"),
		PayloadMaxBytes:       envInt("PAYLOAD_MAX_BYTES", 8*1024),
	}
	if _, ok := os.LookupEnv("ADMIN_ADDR"); ok {
		cfg.AdminAddr = strings.TrimSpace(os.Getenv("ADMIN_ADDR"))
	}

	persona, err := LoadPersona(cfg.PersonaFile)
	if err != nil {
		return Config{}, err
	}
	cfg.Persona = persona

	if cfg.DiscordToken == "" {
		return cfg, errors.New("config: DISCORD_BOT_TOKEN required")
	}
	if len(cfg.GroqKeys) == 0 {
		return cfg, errors.New("config: at least one GROQ_API_KEY<n> required")
	}
	return cfg, nil
}

// NumberedKeys collects PREFIX1..PREFIX7 in order, skipping unset or blank
// values.
func NumberedKeys(prefix string) []string {
	var out []string
	for i := 1; i <= maxNumberedKeys; i++ {
		if v := strings.TrimSpace(os.Getenv(prefix + strconv.Itoa(i))); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func envBool(key string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && b
}

func envMillis(key string, def int) time.Duration {
	n := envInt(key, def)
	if n == 0 {
		n = def
	}
	return time.Duration(n) * time.Millisecond
}
