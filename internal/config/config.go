package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the conversation service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	SessionIdleTTL  time.Duration
	SessionCapacity int
	SessionLockWait time.Duration
	JanitorInterval time.Duration
	ProviderTimeout time.Duration

	ContextWindowTurns  int
	RepetitionWindow    int
	RepetitionThreshold float64
	EmbeddingDim        int

	MemoryBackend string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration
	DatabaseURL   string

	HostedLLMBaseURL string
	HostedLLMAPIKey  string
	HostedLLMModel   string
	OllamaHost       string
	OllamaModel      string

	SpeechAPIKey string
	SpeechRegion string
	SpeechVoice  string

	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	ElevenLabsWSURL   string
	ElevenLabsModelID string

	PiperPath      string
	PiperModelPath string

	WhisperCLI       string
	WhisperModelPath string
	WhisperLanguage  string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "conversavoice"),
		ShutdownTimeout:     15 * time.Second,
		SessionIdleTTL:      30 * time.Minute,
		SessionCapacity:     256,
		SessionLockWait:     10 * time.Second,
		JanitorInterval:     time.Minute,
		ProviderTimeout:     60 * time.Second,
		ContextWindowTurns:  6,
		RepetitionWindow:    5,
		RepetitionThreshold: 0.85,
		EmbeddingDim:        256,
		MemoryBackend:       envOrDefault("MEMORY_BACKEND", "auto"),
		RedisAddr:           trimmedEnv("REDIS_ADDR"),
		RedisPassword:       trimmedEnv("REDIS_PASSWORD"),
		SessionTTL:          24 * time.Hour,
		DatabaseURL:         trimmedEnv("DATABASE_URL"),
		HostedLLMBaseURL:    trimmedEnv("HOSTED_LLM_BASE_URL"),
		HostedLLMAPIKey:     trimmedEnv("HOSTED_LLM_API_KEY"),
		HostedLLMModel:      trimmedEnv("HOSTED_LLM_MODEL"),
		OllamaHost:          envOrDefault("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel:         envOrDefault("OLLAMA_MODEL", "llama3.2"),
		SpeechAPIKey:        trimmedEnv("SPEECH_API_KEY"),
		SpeechRegion:        trimmedEnv("SPEECH_REGION"),
		SpeechVoice:         envOrDefault("SPEECH_VOICE", "en-US-JennyNeural"),
		ElevenLabsAPIKey:    trimmedEnv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID:   trimmedEnv("ELEVENLABS_VOICE_ID"),
		ElevenLabsWSURL:     trimmedEnv("ELEVENLABS_WS_URL"),
		ElevenLabsModelID:   trimmedEnv("ELEVENLABS_MODEL_ID"),
		PiperPath:           envOrDefault("PIPER_PATH", "piper"),
		PiperModelPath:      trimmedEnv("PIPER_MODEL_PATH"),
		WhisperCLI:          envOrDefault("WHISPER_CLI", "whisper-cli"),
		WhisperModelPath:    envOrDefault("WHISPER_MODEL_PATH", ".models/whisper/ggml-base.bin"),
		WhisperLanguage:     envOrDefault("WHISPER_LANGUAGE", "en"),
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", false); err != nil {
		return Config{}, err
	}
	if cfg.SessionIdleTTL, err = durationFromEnv("SESSION_IDLE_TTL", cfg.SessionIdleTTL); err != nil {
		return Config{}, err
	}
	if cfg.SessionCapacity, err = intFromEnv("SESSION_CAPACITY", cfg.SessionCapacity); err != nil {
		return Config{}, err
	}
	if cfg.SessionLockWait, err = durationFromEnv("SESSION_LOCK_WAIT", cfg.SessionLockWait); err != nil {
		return Config{}, err
	}
	if cfg.JanitorInterval, err = durationFromEnv("SESSION_JANITOR_INTERVAL", cfg.JanitorInterval); err != nil {
		return Config{}, err
	}
	if cfg.ProviderTimeout, err = durationFromEnv("PROVIDER_TIMEOUT", cfg.ProviderTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ContextWindowTurns, err = intFromEnv("CONTEXT_WINDOW_TURNS", cfg.ContextWindowTurns); err != nil {
		return Config{}, err
	}
	if cfg.RepetitionWindow, err = intFromEnv("REPETITION_WINDOW", cfg.RepetitionWindow); err != nil {
		return Config{}, err
	}
	if cfg.RepetitionThreshold, err = floatFromEnv("REPETITION_THRESHOLD", cfg.RepetitionThreshold); err != nil {
		return Config{}, err
	}
	if cfg.EmbeddingDim, err = intFromEnv("EMBEDDING_DIM", cfg.EmbeddingDim); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = intFromEnv("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.SessionTTL, err = durationFromEnv("SESSION_TTL", cfg.SessionTTL); err != nil {
		return Config{}, err
	}

	if cfg.SessionIdleTTL < 5*time.Second {
		return Config{}, fmt.Errorf("SESSION_IDLE_TTL must be at least 5s")
	}
	if cfg.SessionCapacity <= 0 {
		return Config{}, fmt.Errorf("SESSION_CAPACITY must be positive")
	}
	if cfg.RepetitionThreshold <= 0 || cfg.RepetitionThreshold > 1 {
		return Config{}, fmt.Errorf("REPETITION_THRESHOLD must be in (0, 1]")
	}
	if cfg.EmbeddingDim <= 0 {
		return Config{}, fmt.Errorf("EMBEDDING_DIM must be positive")
	}
	switch cfg.MemoryBackend {
	case "auto", "memory", "redis", "postgres":
	default:
		return Config{}, fmt.Errorf("MEMORY_BACKEND must be auto, memory, redis or postgres")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
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
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
