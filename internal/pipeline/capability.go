package pipeline

import (
	"context"

	"github.com/conversavoice/conversavoice/internal/prosody"
)

// EmotionalResponse is a responder's styled reply. Pitch and rate are
// optional per-reply prosody overrides; EmphasisWords carries up to three
// words the synthesizer should stress.
type EmotionalResponse struct {
	Reply         string
	Style         prosody.Style
	Pitch         string
	Rate          string
	EmphasisWords []string
	// Raw keeps the provider's unparsed output for diagnostics.
	Raw string
}

// Audio is synthesized speech: inline bytes, or a file reference for engines
// that render to disk.
type Audio struct {
	Data   []byte
	Format string
	Path   string
}

// Responder generates an emotionally-aware reply. Two interchangeable
// concrete providers exist (hosted and local); the router picks one.
type Responder interface {
	Name() string
	Probe(ctx context.Context) error
	Respond(ctx context.Context, text, contextHint string) (EmotionalResponse, error)
}

// Synthesizer renders prosody directives to speech. Engines that cannot
// honor a directive field accept it structurally and no-op it.
type Synthesizer interface {
	Name() string
	Probe(ctx context.Context) error
	Synthesize(ctx context.Context, d prosody.Directives) (Audio, error)
}

// Transcriber converts audio bytes to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Result is the immutable outcome of one pipeline cycle.
type Result struct {
	UserInput         string        `json:"user_input"`
	AssistantResponse string        `json:"assistant_response"`
	Style             prosody.Style `json:"style"`
	Pitch             string        `json:"pitch,omitempty"`
	Rate              string        `json:"rate,omitempty"`
	IsRepetition      bool          `json:"is_repetition"`
	LatencyMS         float64       `json:"latency_ms"`
	Audio             *Audio        `json:"-"`
}
