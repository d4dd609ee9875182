package providers

import (
	"testing"

	"github.com/conversavoice/conversavoice/internal/prosody"
)

func TestParseEmotionalResponse(t *testing.T) {
	raw := `{"reply": "Try the RTX 4060.", "style": "cheerful", "emphasis_words": ["RTX 4060"]}`
	got := ParseEmotionalResponse(raw)
	if got.Reply != "Try the RTX 4060." {
		t.Fatalf("Reply = %q", got.Reply)
	}
	if got.Style != prosody.StyleCheerful {
		t.Fatalf("Style = %q, want cheerful", got.Style)
	}
	if len(got.EmphasisWords) != 1 || got.EmphasisWords[0] != "RTX 4060" {
		t.Fatalf("EmphasisWords = %v", got.EmphasisWords)
	}
}

func TestParseEmotionalResponseWrappedInProse(t *testing.T) {
	raw := "Sure, here is the JSON:\n```json\n{\"reply\": \"Hello!\", \"style\": \"neutral\"}\n```"
	got := ParseEmotionalResponse(raw)
	if got.Reply != "Hello!" {
		t.Fatalf("Reply = %q, want extracted reply", got.Reply)
	}
	if got.Raw != raw {
		t.Fatal("Raw not preserved")
	}
}

func TestParseEmotionalResponseUnknownStyle(t *testing.T) {
	got := ParseEmotionalResponse(`{"reply": "hi", "style": "sarcastic"}`)
	if got.Style != prosody.StyleNeutral {
		t.Fatalf("Style = %q, want neutral for unknown label", got.Style)
	}
}

func TestParseEmotionalResponseMalformed(t *testing.T) {
	raw := "I cannot produce JSON right now, sorry."
	got := ParseEmotionalResponse(raw)
	if got.Reply != raw {
		t.Fatalf("Reply = %q, want raw text passthrough", got.Reply)
	}
	if got.Style != prosody.StyleNeutral {
		t.Fatalf("Style = %q, want neutral", got.Style)
	}
	if len(got.EmphasisWords) != 0 {
		t.Fatalf("EmphasisWords = %v, want none", got.EmphasisWords)
	}
}

func TestParseEmotionalResponsePitchRateOverrides(t *testing.T) {
	got := ParseEmotionalResponse(`{"reply": "slowly now", "style": "de_escalate", "pitch": "-12%", "rate": "-25%"}`)
	if got.Pitch != "-12%" || got.Rate != "-25%" {
		t.Fatalf("overrides = (%q, %q)", got.Pitch, got.Rate)
	}
	if got.Style != prosody.StyleDeEscalate {
		t.Fatalf("Style = %q, want de_escalate", got.Style)
	}
}
