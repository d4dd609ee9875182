package providers

import (
	"encoding/json"
	"strings"

	"github.com/conversavoice/conversavoice/internal/pipeline"
	"github.com/conversavoice/conversavoice/internal/prosody"
)

type emotionalPayload struct {
	Reply         string   `json:"reply"`
	Style         string   `json:"style"`
	Pitch         string   `json:"pitch"`
	Rate          string   `json:"rate"`
	EmphasisWords []string `json:"emphasis_words"`
}

// ParseEmotionalResponse extracts the JSON object a responder was prompted to
// emit. Models often wrap the object in prose or code fences, so the parser
// takes the outermost brace span. Unparseable output degrades to the raw text
// spoken neutrally rather than failing the turn.
func ParseEmotionalResponse(raw string) pipeline.EmotionalResponse {
	text := strings.TrimSpace(raw)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	var payload emotionalPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil || strings.TrimSpace(payload.Reply) == "" {
		return pipeline.EmotionalResponse{
			Reply: strings.TrimSpace(raw),
			Style: prosody.StyleNeutral,
			Raw:   raw,
		}
	}

	return pipeline.EmotionalResponse{
		Reply:         strings.TrimSpace(payload.Reply),
		Style:         prosody.ParseStyle(payload.Style),
		Pitch:         strings.TrimSpace(payload.Pitch),
		Rate:          strings.TrimSpace(payload.Rate),
		EmphasisWords: payload.EmphasisWords,
		Raw:           raw,
	}
}
