package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/conversavoice/conversavoice/internal/memory"
	"github.com/conversavoice/conversavoice/internal/observability"
	"github.com/conversavoice/conversavoice/internal/prosody"
)

const (
	// repetitionHint is appended to the responder context when the user
	// repeats themselves, steering the reply toward patience.
	repetitionHint = "The user seems to be repeating themselves - respond with extra patience."

	// degradedReply is spoken when every responder is exhausted. It is
	// never appended to the conversation log.
	degradedReply = "I'm sorry, I encountered an issue. Could you please repeat that?"

	defaultLockWait = 10 * time.Second
)

// OrchestratorConfig assembles one session's pipeline.
type OrchestratorConfig struct {
	SessionID    string
	Conversation *memory.Conversation
	Router       *Router
	Mapper       *prosody.Mapper
	Transcriber  Transcriber
	Bus          *Bus
	Metrics      *observability.Metrics
	StageWindow  *observability.StageWindow
	// LockWait bounds how long a cycle waits for the session slot before
	// being rejected as queued.
	LockWait time.Duration
	Logger   *zap.Logger
}

// Orchestrator runs the transcribe -> respond -> synthesize cycle for one
// session. Cycles are serialized by a single-slot semaphore with a bounded
// wait; a cycle that cannot be admitted in time fails with a queued
// PipelineError and touches nothing.
type Orchestrator struct {
	id          string
	conv        *memory.Conversation
	router      *Router
	mapper      *prosody.Mapper
	transcriber Transcriber
	bus         *Bus
	metrics     *observability.Metrics
	window      *observability.StageWindow
	lockWait    time.Duration
	logger      *zap.Logger

	// slot admits at most one cycle at a time.
	slot chan struct{}

	mu         sync.Mutex
	state      State
	lastActive time.Time
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.LockWait <= 0 {
		cfg.LockWait = defaultLockWait
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		id:          cfg.SessionID,
		conv:        cfg.Conversation,
		router:      cfg.Router,
		mapper:      cfg.Mapper,
		transcriber: cfg.Transcriber,
		bus:         cfg.Bus,
		metrics:     cfg.Metrics,
		window:      cfg.StageWindow,
		lockWait:    cfg.LockWait,
		logger:      logger.With(zap.String("session_id", cfg.SessionID)),
		slot:        make(chan struct{}, 1),
		state:       StateIdle,
		lastActive:  time.Now().UTC(),
	}
}

func (o *Orchestrator) ID() string { return o.id }

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastActive reports when the session last completed admission, for idle
// eviction.
func (o *Orchestrator) LastActive() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastActive
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	if o.bus != nil {
		o.bus.Publish(Event{Type: EventStateChanged, SessionID: o.id, State: s})
	}
}

// acquire admits a cycle or fails after the lock wait bound. A rejected
// cycle has no side effects.
func (o *Orchestrator) acquire(ctx context.Context) error {
	timer := time.NewTimer(o.lockWait)
	defer timer.Stop()
	select {
	case o.slot <- struct{}{}:
		o.mu.Lock()
		o.lastActive = time.Now().UTC()
		o.mu.Unlock()
		return nil
	case <-timer.C:
		o.metrics.QueueTimeout()
		return &PipelineError{Stage: "queued", Err: errors.New("session busy: lock wait exceeded")}
	case <-ctx.Done():
		return &PipelineError{Stage: "queued", Err: ctx.Err()}
	}
}

func (o *Orchestrator) release() {
	<-o.slot
}

// ProcessText runs one cycle on typed input. With speak set, the reply is
// synthesized and attached to the result.
func (o *Orchestrator) ProcessText(ctx context.Context, text string, speak bool) (Result, error) {
	if err := o.acquire(ctx); err != nil {
		return Result{}, err
	}
	defer o.release()
	return o.runCycle(ctx, text, speak)
}

// ProcessAudio transcribes audio and runs one cycle on the transcript.
// Transcription failure short-circuits before any memory mutation.
func (o *Orchestrator) ProcessAudio(ctx context.Context, audio []byte, speak bool) (Result, error) {
	if err := o.acquire(ctx); err != nil {
		return Result{}, err
	}
	defer o.release()

	if o.transcriber == nil {
		return Result{}, &TranscriptionError{Reason: "no transcriber configured"}
	}
	if len(audio) == 0 {
		return Result{}, &TranscriptionError{Reason: "empty audio input"}
	}

	o.setState(StateProcessing)
	start := time.Now()
	text, err := o.transcriber.Transcribe(ctx, audio)
	o.observeStage("transcribe", time.Since(start))
	if err != nil {
		o.fail(err)
		var te *TranscriptionError
		if errors.As(err, &te) {
			return Result{}, te
		}
		return Result{}, &TranscriptionError{Reason: "speech recognition failed", Err: err}
	}
	if o.bus != nil {
		o.bus.Publish(Event{Type: EventTranscription, SessionID: o.id, Text: text})
	}
	return o.runCycle(ctx, text, speak)
}

// Synthesize renders text to speech outside a conversation cycle. Memory is
// untouched; the style table, per-dimension overrides and fallback chain
// still apply.
func (o *Orchestrator) Synthesize(ctx context.Context, text string, style prosody.Style, pitch, rate string) (Audio, error) {
	if err := o.acquire(ctx); err != nil {
		return Audio{}, err
	}
	defer o.release()

	o.setState(StateSpeaking)
	start := time.Now()
	d := o.mapper.Build(prosody.Speakable(text), style, pitch, rate, nil)
	audio, err := o.router.Synthesize(ctx, d)
	o.observeStage("synthesize", time.Since(start))
	if err != nil {
		o.countPipelineError(err)
		o.fail(err)
		return Audio{}, err
	}
	o.setState(StateIdle)
	return audio, nil
}

// runCycle executes the repetition check, memory writes, responder call and
// optional synthesis for one admitted utterance. Caller holds the slot.
func (o *Orchestrator) runCycle(ctx context.Context, text string, speak bool) (Result, error) {
	cycleStart := time.Now()
	o.setState(StateProcessing)

	rep, err := o.conv.CheckRepetition(ctx, o.id, text)
	if err != nil {
		o.fail(err)
		return Result{}, err
	}
	if rep.IsRepetition {
		o.metrics.RepetitionDetected()
		o.logger.Info("repetition detected", zap.Float64("similarity", rep.Similarity))
	}

	if _, err := o.conv.AppendUser(ctx, o.id, text, rep.IsRepetition); err != nil {
		o.fail(err)
		return Result{}, err
	}

	contextHint, err := o.conv.ContextString(ctx, o.id)
	if err != nil {
		o.fail(err)
		return Result{}, err
	}
	if rep.IsRepetition {
		if contextHint != "" {
			contextHint += "\n"
		}
		contextHint += repetitionHint
	}

	respStart := time.Now()
	resp, err := o.router.Respond(ctx, text, contextHint)
	o.observeStage("respond", time.Since(respStart))
	if err != nil {
		// Every responder is down: pass through the error state, then
		// speak a canned apology instead of failing the turn. The apology
		// is not logged as an assistant message so the conversation
		// record stays truthful.
		o.setState(StateError)
		o.countPipelineError(err)
		o.publishError(err)
		o.logger.Warn("responders exhausted, serving degraded reply", zap.Error(err))
		resp = EmotionalResponse{Reply: degradedReply, Style: prosody.StyleEmpathetic}
	} else {
		if _, err := o.conv.AppendAssistant(ctx, o.id, resp.Reply); err != nil {
			o.fail(err)
			return Result{}, err
		}
	}

	if o.bus != nil {
		o.bus.Publish(Event{Type: EventResponse, SessionID: o.id, Text: resp.Reply})
	}

	result := Result{
		UserInput:         text,
		AssistantResponse: resp.Reply,
		Style:             resp.Style,
		Pitch:             resp.Pitch,
		Rate:              resp.Rate,
		IsRepetition:      rep.IsRepetition,
	}

	if speak {
		o.setState(StateSpeaking)
		d := o.mapper.Build(prosody.Speakable(resp.Reply), resp.Style, resp.Pitch, resp.Rate, resp.EmphasisWords)
		synthStart := time.Now()
		audio, synthErr := o.router.Synthesize(ctx, d)
		o.observeStage("synthesize", time.Since(synthStart))
		if synthErr != nil {
			// The text reply still stands; the turn degrades to silent.
			o.countPipelineError(synthErr)
			o.publishError(synthErr)
			o.logger.Warn("synthesis failed, returning text only", zap.Error(synthErr))
		} else {
			result.Audio = &audio
		}
	}

	elapsed := time.Since(cycleStart)
	o.observeStage("cycle", elapsed)
	result.LatencyMS = float64(elapsed.Microseconds()) / 1000.0

	o.setState(StateIdle)
	return result, nil
}

// fail publishes the error transition and returns the machine to idle, so a
// failed cycle never strands the session in the error state where the
// janitor would skip it.
func (o *Orchestrator) fail(err error) {
	o.setState(StateError)
	o.publishError(err)
	o.setState(StateIdle)
}

func (o *Orchestrator) observeStage(stage string, d time.Duration) {
	o.metrics.ObserveCycleStage(stage, d)
	o.window.Observe(stage, d)
}

func (o *Orchestrator) publishError(err error) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(Event{Type: EventError, SessionID: o.id, Text: err.Error()})
}

func (o *Orchestrator) countPipelineError(err error) {
	var pe *PipelineError
	if !errors.As(err, &pe) {
		return
	}
	for _, provider := range pe.Attempted {
		o.metrics.ProviderError(string(pe.Kind), provider)
	}
}
