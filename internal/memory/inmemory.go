package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps conversation logs in process memory. Default backend
// for local/dev use.
type InMemoryStore struct {
	mu   sync.RWMutex
	logs map[string][]Message
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{logs: make(map[string][]Message)}
}

func (s *InMemoryStore) CreateSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[sessionID]; !ok {
		s.logs[sessionID] = nil
	}
	return nil
}

func (s *InMemoryStore) AppendMessage(_ context.Context, sessionID string, role Role, text string, repetition bool) (Message, error) {
	msg := Message{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Role:       role,
		Text:       text,
		Repetition: repetition,
		CreatedAt:  time.Now().UTC(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[sessionID] = append(s.logs[sessionID], msg)
	return msg, nil
}

func (s *InMemoryStore) RecentMessages(_ context.Context, sessionID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.logs[sessionID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Message, limit)
	copy(out, arr[len(arr)-limit:])
	return out, nil
}

func (s *InMemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, sessionID)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

// InMemoryIndex keeps embedding records in process memory, one append-only
// slice per session.
type InMemoryIndex struct {
	mu       sync.RWMutex
	embedder Embedder
	records  map[string][]EmbeddingRecord
}

func NewInMemoryIndex(embedder Embedder) *InMemoryIndex {
	if embedder == nil {
		embedder = NewHashingEmbedder(0)
	}
	return &InMemoryIndex{
		embedder: embedder,
		records:  make(map[string][]EmbeddingRecord),
	}
}

func (i *InMemoryIndex) StoreVector(_ context.Context, sessionID, text string) error {
	rec := EmbeddingRecord{
		SessionID: sessionID,
		Text:      text,
		Vector:    i.embedder.Embed(text),
		CreatedAt: time.Now().UTC(),
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.records[sessionID] = append(i.records[sessionID], rec)
	return nil
}

func (i *InMemoryIndex) QueryNearest(_ context.Context, sessionID, text string, window int) (float64, bool, error) {
	query := i.embedder.Embed(text)

	i.mu.RLock()
	defer i.mu.RUnlock()
	arr := i.records[sessionID]
	if len(arr) == 0 {
		return 0, false, nil
	}
	if window > 0 && window < len(arr) {
		arr = arr[len(arr)-window:]
	}

	best := -1.0
	for _, rec := range arr {
		if sim := Cosine(query, rec.Vector); sim > best {
			best = sim
		}
	}
	return best, true, nil
}

func (i *InMemoryIndex) DeleteSession(_ context.Context, sessionID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.records, sessionID)
	return nil
}
