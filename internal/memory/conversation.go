package memory

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	defaultContextWindow       = 6
	defaultRepetitionWindow    = 5
	defaultRepetitionThreshold = 0.85
)

// Config bounds the working context and the repetition detector.
type Config struct {
	// ContextWindow is the number of recent turns included in the
	// responder context. Older turns stay in the log for audit only.
	ContextWindow int
	// RepetitionWindow is the number of recent user turns compared
	// against a new utterance.
	RepetitionWindow int
	// RepetitionThreshold is the cosine similarity at or above which an
	// utterance counts as a repetition (inclusive).
	RepetitionThreshold float64
}

func (c Config) withDefaults() Config {
	if c.ContextWindow <= 0 {
		c.ContextWindow = defaultContextWindow
	}
	if c.RepetitionWindow <= 0 {
		c.RepetitionWindow = defaultRepetitionWindow
	}
	if c.RepetitionThreshold <= 0 {
		c.RepetitionThreshold = defaultRepetitionThreshold
	}
	return c
}

// RepetitionResult classifies a user utterance against recent session history.
type RepetitionResult struct {
	IsRepetition bool
	Similarity   float64
}

// Conversation owns per-session message history and semantic repetition
// detection. Mutations happen only under the owning session's pipeline cycle.
type Conversation struct {
	store  ConversationStore
	index  VectorIndex
	cfg    Config
	logger *zap.Logger
}

func NewConversation(store ConversationStore, index VectorIndex, cfg Config, logger *zap.Logger) *Conversation {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conversation{
		store:  store,
		index:  index,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

func (c *Conversation) StartSession(ctx context.Context, sessionID string) error {
	if err := c.store.CreateSession(ctx, sessionID); err != nil {
		return fmt.Errorf("create session %s: %w", sessionID, err)
	}
	return nil
}

// CheckRepetition classifies text against the session's stored embeddings.
// It must run before AppendUser so the utterance never matches itself; empty
// history is never an error.
func (c *Conversation) CheckRepetition(ctx context.Context, sessionID, text string) (RepetitionResult, error) {
	sim, found, err := c.index.QueryNearest(ctx, sessionID, text, c.cfg.RepetitionWindow)
	if err != nil {
		return RepetitionResult{}, fmt.Errorf("query nearest: %w", err)
	}
	if !found {
		return RepetitionResult{}, nil
	}
	return RepetitionResult{
		IsRepetition: sim >= c.cfg.RepetitionThreshold,
		Similarity:   sim,
	}, nil
}

// AppendUser appends the user message and stores its embedding, in that
// order, after any repetition check for the same turn. The classification is
// persisted with the message so a replayed log carries the decision that was
// actually made, not a recomputation against later history.
func (c *Conversation) AppendUser(ctx context.Context, sessionID, text string, repetition bool) (Message, error) {
	msg, err := c.store.AppendMessage(ctx, sessionID, RoleUser, text, repetition)
	if err != nil {
		return Message{}, fmt.Errorf("append user message: %w", err)
	}
	if err := c.index.StoreVector(ctx, sessionID, text); err != nil {
		// The message log is authoritative; a missed vector only weakens
		// future repetition checks.
		c.logger.Warn("store vector failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
	return msg, nil
}

func (c *Conversation) AppendAssistant(ctx context.Context, sessionID, text string) (Message, error) {
	msg, err := c.store.AppendMessage(ctx, sessionID, RoleAssistant, text, false)
	if err != nil {
		return Message{}, fmt.Errorf("append assistant message: %w", err)
	}
	return msg, nil
}

// ContextString joins the bounded recent-message window into a single prompt
// context block.
func (c *Conversation) ContextString(ctx context.Context, sessionID string) (string, error) {
	msgs, err := c.store.RecentMessages(ctx, sessionID, c.cfg.ContextWindow)
	if err != nil {
		return "", fmt.Errorf("recent messages: %w", err)
	}
	if len(msgs) == 0 {
		return "", nil
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, string(m.Role)+": "+m.Text)
	}
	return strings.Join(lines, "\n"), nil
}

// EndSession removes the session's log and embeddings.
func (c *Conversation) EndSession(ctx context.Context, sessionID string) error {
	if err := c.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session log: %w", err)
	}
	if err := c.index.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session vectors: %w", err)
	}
	return nil
}

func (c *Conversation) Close() error {
	return c.store.Close()
}
