package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/conversavoice/conversavoice/internal/prosody"
)

// ProviderHealth is the cached availability of one concrete provider.
type ProviderHealth string

const (
	HealthNotProbed   ProviderHealth = "not_probed"
	HealthHealthy     ProviderHealth = "healthy"
	HealthUnavailable ProviderHealth = "unavailable"
)

// ProviderStatus pairs a provider identity with its cached health.
type ProviderStatus struct {
	Provider string         `json:"provider"`
	Health   ProviderHealth `json:"health"`
}

const defaultCallTimeout = 30 * time.Second

// RouterConfig wires the primary/secondary pair for each capability kind.
// A nil secondary disables fallback for that capability.
type RouterConfig struct {
	PrimaryResponder     Responder
	SecondaryResponder   Responder
	PrimarySynthesizer   Synthesizer
	SecondarySynthesizer Synthesizer
	// CallTimeout bounds every outbound provider call, probe included.
	CallTimeout time.Duration
	Logger      *zap.Logger
}

// Router invokes a capability against the primary provider and fails over to
// the secondary exactly once on unavailability or call failure. Provider
// health is probed lazily and cached for the process lifetime; Reset clears
// the cache.
type Router struct {
	mu     sync.Mutex
	health map[string]ProviderHealth

	responders   [2]Responder
	synthesizers [2]Synthesizer

	timeout time.Duration
	logger  *zap.Logger

	// onFallback is invoked when a secondary provider serves a call.
	onFallback func(kind Kind)
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		health:       make(map[string]ProviderHealth),
		responders:   [2]Responder{cfg.PrimaryResponder, cfg.SecondaryResponder},
		synthesizers: [2]Synthesizer{cfg.PrimarySynthesizer, cfg.SecondarySynthesizer},
		timeout:      cfg.CallTimeout,
		logger:       logger,
	}
}

// SetFallbackHook registers a callback fired whenever a non-primary provider
// serves a call. Used for metrics; must not block.
func (r *Router) SetFallbackHook(hook func(kind Kind)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFallback = hook
}

// Respond routes a responder call through the fallback chain.
func (r *Router) Respond(ctx context.Context, text, contextHint string) (EmotionalResponse, error) {
	var out EmotionalResponse
	providers := make([]routedProvider, 0, 2)
	for i, p := range r.responders {
		if p == nil {
			continue
		}
		p := p
		providers = append(providers, routedProvider{
			name:     p.Name(),
			fallback: i > 0,
			probe:    p.Probe,
			call: func(cctx context.Context) error {
				resp, err := p.Respond(cctx, text, contextHint)
				if err != nil {
					return err
				}
				out = resp
				return nil
			},
		})
	}
	if err := r.invoke(ctx, KindResponder, "respond", providers); err != nil {
		return EmotionalResponse{}, err
	}
	return out, nil
}

// Synthesize routes a synthesizer call through the fallback chain.
func (r *Router) Synthesize(ctx context.Context, d prosody.Directives) (Audio, error) {
	var out Audio
	providers := make([]routedProvider, 0, 2)
	for i, p := range r.synthesizers {
		if p == nil {
			continue
		}
		p := p
		providers = append(providers, routedProvider{
			name:     p.Name(),
			fallback: i > 0,
			probe:    p.Probe,
			call: func(cctx context.Context) error {
				audio, err := p.Synthesize(cctx, d)
				if err != nil {
					return err
				}
				out = audio
				return nil
			},
		})
	}
	if err := r.invoke(ctx, KindSynthesizer, "synthesize", providers); err != nil {
		return Audio{}, err
	}
	return out, nil
}

type routedProvider struct {
	name     string
	fallback bool
	probe    func(ctx context.Context) error
	call     func(ctx context.Context) error
}

func (r *Router) invoke(ctx context.Context, kind Kind, stage string, providers []routedProvider) error {
	var attempted []string
	var failures []error

	for _, p := range providers {
		key := string(kind) + "/" + p.name

		switch r.healthOf(key) {
		case HealthUnavailable:
			// Cached from an earlier probe or call failure; skip straight
			// to the next provider.
			continue
		case HealthNotProbed:
			attempted = append(attempted, p.name)
			probeCtx, cancel := context.WithTimeout(ctx, r.timeout)
			err := p.probe(probeCtx)
			cancel()
			if err != nil {
				r.setHealth(key, HealthUnavailable)
				r.logger.Warn("provider probe failed",
					zap.String("kind", string(kind)),
					zap.String("provider", p.name),
					zap.Error(err))
				failures = append(failures, &ProviderError{Kind: kind, Provider: p.name, Err: err})
				continue
			}
			r.setHealth(key, HealthHealthy)
		default:
			attempted = append(attempted, p.name)
		}

		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := p.call(callCtx)
		cancel()
		if err == nil {
			if p.fallback {
				r.notifyFallback(kind)
			}
			return nil
		}

		// A timeout is a provider failure, not a fatal error: mark the
		// provider down and fail over.
		r.setHealth(key, HealthUnavailable)
		r.logger.Warn("provider call failed, failing over",
			zap.String("kind", string(kind)),
			zap.String("provider", p.name),
			zap.Error(err))
		failures = append(failures, &ProviderError{Kind: kind, Provider: p.name, Err: err})
	}

	return &PipelineError{
		Kind:      kind,
		Stage:     stage,
		Attempted: attempted,
		Err:       errors.Join(failures...),
	}
}

func (r *Router) healthOf(key string) ProviderHealth {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.health[key]; ok {
		return h
	}
	return HealthNotProbed
}

func (r *Router) setHealth(key string, h ProviderHealth) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health[key] = h
}

func (r *Router) notifyFallback(kind Kind) {
	r.mu.Lock()
	hook := r.onFallback
	r.mu.Unlock()
	if hook != nil {
		hook(kind)
	}
}

// Reset clears the whole health cache so every provider is probed again on
// next use. It exists for tests and for recovering from a transient primary
// outage without a restart.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health = make(map[string]ProviderHealth)
}

// ResetKind clears cached health for one capability kind only.
func (r *Router) ResetKind(kind Kind) {
	prefix := string(kind) + "/"
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.health {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(r.health, key)
		}
	}
}

// Status reports cached health per capability kind without probing anything.
func (r *Router) Status() map[Kind][]ProviderStatus {
	out := make(map[Kind][]ProviderStatus, 2)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.responders {
		if p == nil {
			continue
		}
		key := string(KindResponder) + "/" + p.Name()
		h, ok := r.health[key]
		if !ok {
			h = HealthNotProbed
		}
		out[KindResponder] = append(out[KindResponder], ProviderStatus{Provider: p.Name(), Health: h})
	}
	for _, p := range r.synthesizers {
		if p == nil {
			continue
		}
		key := string(KindSynthesizer) + "/" + p.Name()
		h, ok := r.health[key]
		if !ok {
			h = HealthNotProbed
		}
		out[KindSynthesizer] = append(out[KindSynthesizer], ProviderStatus{Provider: p.Name(), Health: h})
	}
	return out
}
