package memory

import (
	"context"
	"time"
)

// Role identifies which side of the conversation produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one immutable conversational turn. Insertion order per session
// defines the context window.
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	// Repetition records the classification computed when the user turn was
	// appended. It is stored with the message so the decision is auditable
	// later; assistant turns are never flagged.
	Repetition bool      `json:"repetition,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// EmbeddingRecord pairs a stored user utterance with its vector. Records are
// append-only and queried within their own session only.
type EmbeddingRecord struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Vector    []float64 `json:"vector"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationStore persists the ordered per-session message log.
type ConversationStore interface {
	CreateSession(ctx context.Context, sessionID string) error
	AppendMessage(ctx context.Context, sessionID string, role Role, text string, repetition bool) (Message, error)
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Close() error
}

// VectorIndex stores utterance vectors per session and answers
// nearest-neighbor queries restricted to that session's recent records.
type VectorIndex interface {
	StoreVector(ctx context.Context, sessionID, text string) error
	// QueryNearest returns the best cosine similarity against the last
	// window records for the session, and whether any record existed.
	QueryNearest(ctx context.Context, sessionID, text string, window int) (float64, bool, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Embedder converts text into a fixed-dimension vector.
type Embedder interface {
	Embed(text string) []float64
}
