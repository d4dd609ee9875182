package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/conversavoice/conversavoice/internal/config"
	"github.com/conversavoice/conversavoice/internal/httpapi"
	"github.com/conversavoice/conversavoice/internal/memory"
	"github.com/conversavoice/conversavoice/internal/observability"
	"github.com/conversavoice/conversavoice/internal/pipeline"
	"github.com/conversavoice/conversavoice/internal/prosody"
	"github.com/conversavoice/conversavoice/internal/providers"
)

func main() {
	// .env is optional; explicit environment always wins.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	window := observability.NewStageWindow(256)

	ctx := context.Background()
	store, index, err := memory.NewBackends(ctx, memory.BackendConfig{
		Backend:       cfg.MemoryBackend,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		SessionTTL:    cfg.SessionTTL,
		DatabaseURL:   cfg.DatabaseURL,
		EmbeddingDim:  cfg.EmbeddingDim,
	})
	if err != nil {
		logger.Fatal("memory backend init failed", zap.Error(err))
	}

	conv := memory.NewConversation(store, index, memory.Config{
		ContextWindow:       cfg.ContextWindowTurns,
		RepetitionWindow:    cfg.RepetitionWindow,
		RepetitionThreshold: cfg.RepetitionThreshold,
	}, logger)
	defer conv.Close()

	router := pipeline.NewRouter(pipeline.RouterConfig{
		PrimaryResponder:     primaryResponder(cfg, logger),
		SecondaryResponder:   secondaryResponder(cfg),
		PrimarySynthesizer:   primarySynthesizer(cfg, logger),
		SecondarySynthesizer: secondarySynthesizer(cfg),
		CallTimeout:          cfg.ProviderTimeout,
		Logger:               logger,
	})
	router.SetFallbackHook(func(kind pipeline.Kind) {
		metrics.FallbackActivated(string(kind))
	})

	bus := pipeline.NewBus(0)

	registry := pipeline.NewRegistry(pipeline.RegistryConfig{
		Conversation: conv,
		Router:       router,
		Mapper:       prosody.NewMapper(cfg.SpeechVoice),
		Transcriber:  newTranscriber(cfg, logger),
		Bus:          bus,
		Metrics:      metrics,
		StageWindow:  window,
		LockWait:     cfg.SessionLockWait,
		Capacity:     cfg.SessionCapacity,
		IdleTTL:      cfg.SessionIdleTTL,
		Logger:       logger,
	})

	api := httpapi.New(cfg, registry, router, bus, window, logger)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	registry.StartJanitor(runCtx, cfg.JanitorInterval)

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}

// primaryResponder prefers the hosted LLM when a key is configured; the
// router probes lazily, so an unreachable backend fails over at first use.
func primaryResponder(cfg config.Config, logger *zap.Logger) pipeline.Responder {
	if strings.TrimSpace(cfg.HostedLLMAPIKey) != "" {
		logger.Info("responder: hosted llm primary, ollama fallback")
		return providers.NewHostedResponder(providers.HostedResponderConfig{
			BaseURL: cfg.HostedLLMBaseURL,
			APIKey:  cfg.HostedLLMAPIKey,
			Model:   cfg.HostedLLMModel,
		})
	}
	logger.Info("responder: ollama primary (no hosted llm key)")
	return providers.NewLocalResponder(providers.LocalResponderConfig{
		Host:  cfg.OllamaHost,
		Model: cfg.OllamaModel,
	})
}

func secondaryResponder(cfg config.Config) pipeline.Responder {
	if strings.TrimSpace(cfg.HostedLLMAPIKey) != "" {
		return providers.NewLocalResponder(providers.LocalResponderConfig{
			Host:  cfg.OllamaHost,
			Model: cfg.OllamaModel,
		})
	}
	return providers.NewMockResponder()
}

// primarySynthesizer prefers the streaming engine, then the SSML REST one,
// then the local binary. The lazy probe covers a misconfigured key here too.
func primarySynthesizer(cfg config.Config, logger *zap.Logger) pipeline.Synthesizer {
	if elevenLabsConfigured(cfg) {
		logger.Info("synthesizer: elevenlabs stream primary")
		return providers.NewStreamingSynthesizer(providers.StreamingSynthesizerConfig{
			APIKey:    cfg.ElevenLabsAPIKey,
			VoiceID:   cfg.ElevenLabsVoiceID,
			WSBaseURL: cfg.ElevenLabsWSURL,
			ModelID:   cfg.ElevenLabsModelID,
		})
	}
	if azureConfigured(cfg) {
		logger.Info("synthesizer: azure speech primary, piper fallback")
		return providers.NewHostedSynthesizer(providers.HostedSynthesizerConfig{
			APIKey: cfg.SpeechAPIKey,
			Region: cfg.SpeechRegion,
		})
	}
	logger.Info("synthesizer: piper primary (no speech key)")
	return providers.NewLocalSynthesizer(providers.LocalSynthesizerConfig{
		PiperPath: cfg.PiperPath,
		ModelPath: cfg.PiperModelPath,
	})
}

func secondarySynthesizer(cfg config.Config) pipeline.Synthesizer {
	if elevenLabsConfigured(cfg) {
		if azureConfigured(cfg) {
			return providers.NewHostedSynthesizer(providers.HostedSynthesizerConfig{
				APIKey: cfg.SpeechAPIKey,
				Region: cfg.SpeechRegion,
			})
		}
		return providers.NewLocalSynthesizer(providers.LocalSynthesizerConfig{
			PiperPath: cfg.PiperPath,
			ModelPath: cfg.PiperModelPath,
		})
	}
	if azureConfigured(cfg) {
		return providers.NewLocalSynthesizer(providers.LocalSynthesizerConfig{
			PiperPath: cfg.PiperPath,
			ModelPath: cfg.PiperModelPath,
		})
	}
	return providers.NewMockSynthesizer()
}

func elevenLabsConfigured(cfg config.Config) bool {
	return strings.TrimSpace(cfg.ElevenLabsAPIKey) != "" && strings.TrimSpace(cfg.ElevenLabsVoiceID) != ""
}

func azureConfigured(cfg config.Config) bool {
	return strings.TrimSpace(cfg.SpeechAPIKey) != "" && strings.TrimSpace(cfg.SpeechRegion) != ""
}

func newTranscriber(cfg config.Config, logger *zap.Logger) pipeline.Transcriber {
	if _, err := exec.LookPath(cfg.WhisperCLI); err != nil {
		logger.Warn("whisper cli not found, using mock transcriber",
			zap.String("cli", cfg.WhisperCLI))
		return providers.NewMockTranscriber()
	}
	logger.Info("transcriber: whisper.cpp", zap.String("model", cfg.WhisperModelPath))
	return providers.NewWhisperTranscriber(providers.WhisperTranscriberConfig{
		CLIPath:   cfg.WhisperCLI,
		ModelPath: cfg.WhisperModelPath,
		Language:  cfg.WhisperLanguage,
	})
}
