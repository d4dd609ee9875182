package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultSessionTTL = 24 * time.Hour

// RedisStore persists conversation logs as per-session Redis lists.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// SessionTTL bounds how long an inactive session's data is retained.
	SessionTTL time.Duration
}

func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisStore{client: client, ttl: cfg.SessionTTL}, nil
}

// Client exposes the underlying connection so the vector index can share it.
func (s *RedisStore) Client() *redis.Client { return s.client }

func messagesKey(sessionID string) string {
	return "conversa:session:" + sessionID + ":messages"
}

func vectorsKey(sessionID string) string {
	return "conversa:session:" + sessionID + ":vectors"
}

func (s *RedisStore) CreateSession(ctx context.Context, sessionID string) error {
	key := "conversa:session:" + sessionID + ":created"
	if err := s.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), s.ttl).Err(); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *RedisStore) AppendMessage(ctx context.Context, sessionID string, role Role, text string, repetition bool) (Message, error) {
	msg := Message{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Role:       role,
		Text:       text,
		Repetition: repetition,
		CreatedAt:  time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("marshal message: %w", err)
	}
	key := messagesKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

func (s *RedisStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := s.client.LRange(ctx, messagesKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("range messages: %w", err)
	}
	out := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	keys := []string{
		messagesKey(sessionID),
		vectorsKey(sessionID),
		"conversa:session:" + sessionID + ":created",
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// RedisIndex stores embedding records as per-session Redis lists and scores
// similarity client-side with cosine distance.
type RedisIndex struct {
	client   *redis.Client
	embedder Embedder
	ttl      time.Duration
}

func NewRedisIndex(client *redis.Client, embedder Embedder, ttl time.Duration) *RedisIndex {
	if embedder == nil {
		embedder = NewHashingEmbedder(0)
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisIndex{client: client, embedder: embedder, ttl: ttl}
}

func (i *RedisIndex) StoreVector(ctx context.Context, sessionID, text string) error {
	rec := EmbeddingRecord{
		SessionID: sessionID,
		Text:      text,
		Vector:    i.embedder.Embed(text),
		CreatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	key := vectorsKey(sessionID)
	pipe := i.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, i.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store vector: %w", err)
	}
	return nil
}

func (i *RedisIndex) QueryNearest(ctx context.Context, sessionID, text string, window int) (float64, bool, error) {
	start := int64(0)
	if window > 0 {
		start = int64(-window)
	}
	raw, err := i.client.LRange(ctx, vectorsKey(sessionID), start, -1).Result()
	if err != nil {
		return 0, false, fmt.Errorf("range vectors: %w", err)
	}
	if len(raw) == 0 {
		return 0, false, nil
	}

	query := i.embedder.Embed(text)
	best := -1.0
	for _, item := range raw {
		var rec EmbeddingRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return 0, false, fmt.Errorf("decode embedding: %w", err)
		}
		if sim := Cosine(query, rec.Vector); sim > best {
			best = sim
		}
	}
	return best, true, nil
}

func (i *RedisIndex) DeleteSession(ctx context.Context, sessionID string) error {
	if err := i.client.Del(ctx, vectorsKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	return nil
}
