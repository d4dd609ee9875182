package memory

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// BackendConfig selects and configures the persistence backends.
type BackendConfig struct {
	// Backend is one of auto|memory|redis|postgres. Auto prefers Redis,
	// then Postgres, then in-process memory.
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration
	DatabaseURL   string
	EmbeddingDim  int
}

// NewBackends builds a conversation store and vector index pair. The vector
// index is Redis-backed only when the conversation store is; Postgres keeps
// the message log durable while vectors stay in process.
func NewBackends(ctx context.Context, cfg BackendConfig) (ConversationStore, VectorIndex, error) {
	embedder := NewHashingEmbedder(cfg.EmbeddingDim)

	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" || backend == "auto" {
		switch {
		case strings.TrimSpace(cfg.RedisAddr) != "":
			backend = "redis"
		case strings.TrimSpace(cfg.DatabaseURL) != "":
			backend = "postgres"
		default:
			backend = "memory"
		}
	}

	switch backend {
	case "memory":
		return NewInMemoryStore(), NewInMemoryIndex(embedder), nil
	case "redis":
		store, err := NewRedisStore(ctx, RedisConfig{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			SessionTTL: cfg.SessionTTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, NewRedisIndex(store.Client(), embedder, cfg.SessionTTL), nil
	case "postgres":
		store, err := NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, NewInMemoryIndex(embedder), nil
	default:
		return nil, nil, fmt.Errorf("unsupported memory backend %q (expected auto|memory|redis|postgres)", cfg.Backend)
	}
}
