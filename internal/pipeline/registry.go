package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conversavoice/conversavoice/internal/memory"
	"github.com/conversavoice/conversavoice/internal/observability"
	"github.com/conversavoice/conversavoice/internal/prosody"
)

// ErrSessionCapacity reports that no new session can be admitted until one
// is evicted.
var ErrSessionCapacity = errors.New("session capacity reached")

const (
	defaultSessionCapacity = 256
	defaultIdleTTL         = 30 * time.Minute
)

// RegistryConfig carries the shared pipeline dependencies every orchestrator
// is built from.
type RegistryConfig struct {
	Conversation *memory.Conversation
	Router       *Router
	Mapper       *prosody.Mapper
	Transcriber  Transcriber
	Bus          *Bus
	Metrics      *observability.Metrics
	StageWindow  *observability.StageWindow
	LockWait     time.Duration
	// Capacity caps live sessions; IdleTTL is the janitor's eviction bound.
	Capacity int
	IdleTTL  time.Duration
	Logger   *zap.Logger
}

// Registry owns the one-orchestrator-per-session map. Its lock covers only
// creation and deletion; pipeline cycles run under the per-session slot, so
// distinct sessions never serialize against each other here.
type Registry struct {
	cfg    RegistryConfig
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Orchestrator
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultSessionCapacity
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*Orchestrator),
	}
}

// NewSessionID builds a short human-pasteable session identifier.
func NewSessionID() string {
	return "session-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Get returns the live orchestrator for id, or ErrSessionNotFound.
func (r *Registry) Get(id string) (*Orchestrator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return o, nil
}

// GetOrCreate returns the existing orchestrator for id, creating one when
// absent. An empty id gets a generated identifier. Creation starts the
// session's conversation log before the orchestrator becomes visible; the
// registry lock covers only the map bookkeeping, never the store call, so a
// slow backend cannot stall lookups of other sessions.
func (r *Registry) GetOrCreate(ctx context.Context, id string) (*Orchestrator, error) {
	if id == "" {
		id = NewSessionID()
	}

	r.mu.RLock()
	o, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return o, nil
	}

	r.mu.Lock()
	if o, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return o, nil
	}
	if len(r.sessions) >= r.cfg.Capacity {
		r.mu.Unlock()
		return nil, ErrSessionCapacity
	}
	r.mu.Unlock()

	// CreateSession is idempotent across backends, so racing creators for
	// the same id are harmless: the loser finds the winner's entry below.
	if err := r.cfg.Conversation.StartSession(ctx, id); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.sessions[id]; ok {
		return o, nil
	}
	if len(r.sessions) >= r.cfg.Capacity {
		return nil, ErrSessionCapacity
	}

	o = NewOrchestrator(OrchestratorConfig{
		SessionID:    id,
		Conversation: r.cfg.Conversation,
		Router:       r.cfg.Router,
		Mapper:       r.cfg.Mapper,
		Transcriber:  r.cfg.Transcriber,
		Bus:          r.cfg.Bus,
		Metrics:      r.cfg.Metrics,
		StageWindow:  r.cfg.StageWindow,
		LockWait:     r.cfg.LockWait,
		Logger:       r.logger,
	})
	r.sessions[id] = o
	r.cfg.Metrics.SessionStarted()
	r.logger.Info("session created", zap.String("session_id", id))
	return o, nil
}

// Evict removes a session and deletes its conversation state. It waits for
// any in-flight cycle to finish by taking the session slot before tearing
// down, so a running cycle never races its own memory deletion.
func (r *Registry) Evict(ctx context.Context, id string) error {
	r.mu.Lock()
	o, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	// The session left the map above, so the gauge drops now even if the
	// store cleanup below fails.
	r.cfg.Metrics.SessionEnded()

	if err := o.acquire(ctx); err != nil {
		// The slot never frees only if a cycle is wedged past the lock
		// wait; tear down anyway rather than leak the session state.
		r.logger.Warn("evicting session with busy slot",
			zap.String("session_id", id),
			zap.Error(err))
	} else {
		defer o.release()
	}

	if err := r.cfg.Conversation.EndSession(ctx, id); err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}
	r.logger.Info("session evicted", zap.String("session_id", id))
	return nil
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the live session ids in no particular order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// StartJanitor evicts sessions idle past the TTL until ctx is cancelled.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.evictIdle(ctx)
			}
		}
	}()
}

func (r *Registry) evictIdle(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.cfg.IdleTTL)

	r.mu.RLock()
	var idle []string
	for id, o := range r.sessions {
		if !o.LastActive().Before(cutoff) {
			continue
		}
		// A stale error state counts as idle: the failed cycle is long
		// over and Evict still waits on the session slot.
		if s := o.State(); s == StateIdle || s == StateError {
			idle = append(idle, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range idle {
		if err := r.Evict(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			r.logger.Warn("janitor eviction failed",
				zap.String("session_id", id),
				zap.Error(err))
		}
	}
}
