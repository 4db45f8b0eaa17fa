package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // APP_TIMEZONE must resolve on hosts without zoneinfo
)

// DefaultSystemPrompt is the persona instruction placed first in every
// prompt.
const DefaultSystemPrompt = "Eres Carola, la hermana de Guido. Responde con cariño y empatía."

// Config contains all runtime settings for the assistant service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	LogLevel         string
	Timezone         string

	StoreBackend string
	DataDir      string
	SQLitePath   string
	DatabaseURL  string

	ParticipantAName string
	ParticipantBName string
	ProfilePath      string
	SystemPrompt     string

	MoodFollowupThreshold   time.Duration
	ContextMaxFacts         int
	ContextMaxTurns         int
	ContextMaxHistoryTokens int

	LLMProvider string
	LLMHTTPURL  string
	LLMAPIKey   string
	LLMModel    string
	ArkAPIKey   string
	ArkModel    string
	ArkBaseURL  string
	ArkRegion   string
	LLMTimeout  time.Duration

	EmotionDetector string
	FallbackReply   string

	VoiceProvider             string
	ElevenLabsAPIKey          string
	ElevenLabsWSBaseURL       string
	ElevenLabsTTSVoice        string
	ElevenLabsTTSModel        string
	ElevenLabsTTSOutputFormat string
	WhisperURL                string
	WhisperAPIKey             string
	WhisperModel              string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "carobot"),
		LogLevel:         strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		Timezone:         envOrDefault("APP_TIMEZONE", "America/Argentina/Buenos_Aires"),

		StoreBackend: strings.ToLower(envOrDefault("STORE_BACKEND", "auto")),
		DataDir:      envOrDefault("DATA_DIR", "data"),
		SQLitePath:   strings.TrimSpace(os.Getenv("SQLITE_PATH")),
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),

		ParticipantAName: envOrDefault("PARTICIPANT_A_NAME", "Carola"),
		ParticipantBName: envOrDefault("PARTICIPANT_B_NAME", "Guido"),
		ProfilePath:      strings.TrimSpace(os.Getenv("PROFILE_PATH")),
		SystemPrompt:     envOrDefault("SYSTEM_PROMPT", DefaultSystemPrompt),

		LLMProvider: strings.ToLower(envOrDefault("LLM_PROVIDER", "auto")),
		LLMHTTPURL:  strings.TrimSpace(os.Getenv("LLM_HTTP_URL")),
		LLMAPIKey:   strings.TrimSpace(os.Getenv("LLM_API_KEY")),
		LLMModel:    strings.TrimSpace(os.Getenv("LLM_MODEL")),
		ArkAPIKey:   strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		ArkModel:    strings.TrimSpace(os.Getenv("ARK_MODEL")),
		ArkBaseURL:  envOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		ArkRegion:   envOrDefault("ARK_REGION", "cn-beijing"),

		EmotionDetector: strings.ToLower(envOrDefault("EMOTION_DETECTOR", "auto")),
		FallbackReply:   envOrDefault("FALLBACK_REPLY", "No pude procesar tu mensaje."),

		VoiceProvider:             strings.ToLower(envOrDefault("VOICE_PROVIDER", "auto")),
		ElevenLabsAPIKey:          strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
		ElevenLabsWSBaseURL:       envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		ElevenLabsTTSVoice:        strings.TrimSpace(os.Getenv("ELEVENLABS_TTS_VOICE_ID")),
		ElevenLabsTTSModel:        envOrDefault("ELEVENLABS_TTS_MODEL_ID", "eleven_multilingual_v2"),
		ElevenLabsTTSOutputFormat: envOrDefault("ELEVENLABS_TTS_OUTPUT_FORMAT", "mp3_44100_128"),
		WhisperURL:                strings.TrimSpace(os.Getenv("WHISPER_URL")),
		WhisperAPIKey:             strings.TrimSpace(os.Getenv("WHISPER_API_KEY")),
		WhisperModel:              envOrDefault("WHISPER_MODEL", "whisper-1"),
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.MoodFollowupThreshold, err = durationFromEnv("MOOD_FOLLOWUP_THRESHOLD", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.LLMTimeout, err = durationFromEnv("LLM_TIMEOUT", 60*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ContextMaxFacts, err = intFromEnv("CONTEXT_MAX_FACTS", 20); err != nil {
		return Config{}, err
	}
	if cfg.ContextMaxTurns, err = intFromEnv("CONTEXT_MAX_TURNS", 20); err != nil {
		return Config{}, err
	}
	if cfg.ContextMaxHistoryTokens, err = intFromEnv("CONTEXT_MAX_HISTORY_TOKENS", 2000); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	var errs []error

	if c.MoodFollowupThreshold <= 0 {
		errs = append(errs, errors.New("MOOD_FOLLOWUP_THRESHOLD must be positive"))
	}
	if c.LLMTimeout <= 0 {
		errs = append(errs, errors.New("LLM_TIMEOUT must be positive"))
	}
	if strings.EqualFold(strings.TrimSpace(c.ParticipantAName), strings.TrimSpace(c.ParticipantBName)) {
		errs = append(errs, errors.New("PARTICIPANT_A_NAME and PARTICIPANT_B_NAME must differ"))
	}

	switch c.StoreBackend {
	case "auto", "memory", "file":
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required when STORE_BACKEND=sqlite"))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE_BACKEND=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND %q is not supported", c.StoreBackend))
	}

	switch c.LLMProvider {
	case "auto", "mock":
	case "http":
		if c.LLMHTTPURL == "" {
			errs = append(errs, errors.New("LLM_HTTP_URL is required when LLM_PROVIDER=http"))
		}
	case "ark":
		if c.ArkAPIKey == "" || c.ArkModel == "" {
			errs = append(errs, errors.New("ARK_API_KEY and ARK_MODEL are required when LLM_PROVIDER=ark"))
		}
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER %q is not supported", c.LLMProvider))
	}

	switch c.EmotionDetector {
	case "auto", "llm", "keyword", "off":
	default:
		errs = append(errs, fmt.Errorf("EMOTION_DETECTOR %q is not supported", c.EmotionDetector))
	}

	switch c.VoiceProvider {
	case "auto", "mock", "off":
	case "cloud":
		if c.WhisperAPIKey == "" && c.WhisperURL == "" {
			errs = append(errs, errors.New("WHISPER_API_KEY or WHISPER_URL is required when VOICE_PROVIDER=cloud"))
		}
	default:
		errs = append(errs, fmt.Errorf("VOICE_PROVIDER %q is not supported", c.VoiceProvider))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("APP_TIMEZONE: %w", err))
	}

	return errors.Join(errs...)
}

// Location returns the configured timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
