package providers

import (
	"context"
	"strings"

	"github.com/conversavoice/conversavoice/internal/pipeline"
	"github.com/conversavoice/conversavoice/internal/prosody"
)

// MockResponder is the zero-dependency fallback used when no LLM backend is
// configured. It picks a style from surface cues so the prosody path still
// gets exercised end to end.
type MockResponder struct{}

func NewMockResponder() *MockResponder { return &MockResponder{} }

func (m *MockResponder) Name() string { return "mock-llm" }

func (m *MockResponder) Probe(context.Context) error { return nil }

func (m *MockResponder) Respond(_ context.Context, text, contextHint string) (pipeline.EmotionalResponse, error) {
	style := prosody.StyleNeutral
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(contextHint, "repeating themselves"):
		style = prosody.StyleEmpathetic
	case strings.Contains(lower, "thank") || strings.Contains(lower, "great"):
		style = prosody.StyleCheerful
	case strings.Contains(lower, "angry") || strings.Contains(lower, "terrible"):
		style = prosody.StyleDeEscalate
	case strings.Contains(lower, "confus") || strings.Contains(lower, "explain"):
		style = prosody.StylePatient
	}
	return pipeline.EmotionalResponse{
		Reply: "I heard you say: " + strings.TrimSpace(text),
		Style: style,
	}, nil
}

// MockSynthesizer returns the directive text as bytes so callers downstream
// of the router see a non-empty audio payload.
type MockSynthesizer struct{}

func NewMockSynthesizer() *MockSynthesizer { return &MockSynthesizer{} }

func (m *MockSynthesizer) Name() string { return "mock-tts" }

func (m *MockSynthesizer) Probe(context.Context) error { return nil }

func (m *MockSynthesizer) Synthesize(_ context.Context, d prosody.Directives) (pipeline.Audio, error) {
	return pipeline.Audio{
		Data:   []byte(d.Text),
		Format: "mock_text_bytes",
	}, nil
}

// MockTranscriber returns a fixed transcript for any non-empty payload.
type MockTranscriber struct{}

func NewMockTranscriber() *MockTranscriber { return &MockTranscriber{} }

func (m *MockTranscriber) Transcribe(_ context.Context, input []byte) (string, error) {
	if len(input) == 0 {
		return "", &pipeline.TranscriptionError{Reason: "empty audio input"}
	}
	return "simulated voice input", nil
}
