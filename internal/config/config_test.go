package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.MetricsNamespace != "conversavoice" {
		t.Fatalf("MetricsNamespace = %q", cfg.MetricsNamespace)
	}
	if cfg.RepetitionThreshold != 0.85 {
		t.Fatalf("RepetitionThreshold = %v, want 0.85", cfg.RepetitionThreshold)
	}
	if cfg.ContextWindowTurns != 6 || cfg.RepetitionWindow != 5 {
		t.Fatalf("windows = (%d, %d), want (6, 5)", cfg.ContextWindowTurns, cfg.RepetitionWindow)
	}
	if cfg.MemoryBackend != "auto" {
		t.Fatalf("MemoryBackend = %q, want auto", cfg.MemoryBackend)
	}
	if cfg.SessionLockWait != 10*time.Second {
		t.Fatalf("SessionLockWait = %v", cfg.SessionLockWait)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")
	t.Setenv("REPETITION_THRESHOLD", "0.7")
	t.Setenv("SESSION_IDLE_TTL", "90s")
	t.Setenv("MEMORY_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.RepetitionThreshold != 0.7 {
		t.Fatalf("RepetitionThreshold = %v", cfg.RepetitionThreshold)
	}
	if cfg.SessionIdleTTL != 90*time.Second {
		t.Fatalf("SessionIdleTTL = %v", cfg.SessionIdleTTL)
	}
	if cfg.MemoryBackend != "redis" || cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("redis settings = (%q, %q)", cfg.MemoryBackend, cfg.RedisAddr)
	}
}

func TestLoadRejectsBadThreshold(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("REPETITION_THRESHOLD", "1.5")

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted threshold > 1")
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("MEMORY_BACKEND", "cassandra")

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted unknown memory backend")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("SESSION_LOCK_WAIT", "soonish")

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted malformed duration")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"SESSION_IDLE_TTL",
		"SESSION_CAPACITY",
		"SESSION_LOCK_WAIT",
		"SESSION_JANITOR_INTERVAL",
		"PROVIDER_TIMEOUT",
		"CONTEXT_WINDOW_TURNS",
		"REPETITION_WINDOW",
		"REPETITION_THRESHOLD",
		"EMBEDDING_DIM",
		"MEMORY_BACKEND",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"SESSION_TTL",
		"DATABASE_URL",
		"HOSTED_LLM_BASE_URL",
		"HOSTED_LLM_API_KEY",
		"HOSTED_LLM_MODEL",
		"OLLAMA_HOST",
		"OLLAMA_MODEL",
		"SPEECH_API_KEY",
		"SPEECH_REGION",
		"SPEECH_VOICE",
		"ELEVENLABS_API_KEY",
		"ELEVENLABS_VOICE_ID",
		"ELEVENLABS_WS_URL",
		"ELEVENLABS_MODEL_ID",
		"PIPER_PATH",
		"PIPER_MODEL_PATH",
		"WHISPER_CLI",
		"WHISPER_MODEL_PATH",
		"WHISPER_LANGUAGE",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
