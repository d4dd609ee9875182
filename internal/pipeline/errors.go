package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a pipeline capability.
type Kind string

const (
	KindTranscriber Kind = "transcriber"
	KindResponder   Kind = "responder"
	KindSynthesizer Kind = "synthesizer"
)

// ErrSessionNotFound reports an operation referencing an unknown or evicted
// session where creation was not requested.
var ErrSessionNotFound = errors.New("session not found")

// TranscriptionError reports unusable audio input or an unavailable STT
// backend. It short-circuits a cycle before any memory mutation.
type TranscriptionError struct {
	Reason string
	Err    error
}

func (e *TranscriptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transcription failed: %s: %v", e.Reason, e.Err)
	}
	return "transcription failed: " + e.Reason
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// ProviderError reports a single capability call failure against one
// concrete provider. The router catches these and fails over.
type ProviderError struct {
	Kind     Kind
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider %s failed: %v", e.Kind, e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// PipelineError reports total exhaustion of a capability's fallback chain,
// or a cycle that could not be admitted within the lock wait bound.
type PipelineError struct {
	Kind      Kind
	Stage     string
	Attempted []string
	Err       error
}

func (e *PipelineError) Error() string {
	attempted := "none"
	if len(e.Attempted) > 0 {
		attempted = strings.Join(e.Attempted, ", ")
	}
	if e.Err != nil {
		return fmt.Sprintf("pipeline %s stage failed (attempted: %s): %v", e.Stage, attempted, e.Err)
	}
	return fmt.Sprintf("pipeline %s stage failed (attempted: %s)", e.Stage, attempted)
}

func (e *PipelineError) Unwrap() error { return e.Err }
