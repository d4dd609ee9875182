package prosody

import (
	"fmt"
	"strings"
)

const (
	defaultVoice     = "en-US-JennyNeural"
	maxEmphasisWords = 3
)

// Directives is what a synthesizer capability consumes. Engines that cannot
// honor a field (style, pitch, emphasis) accept it structurally and no-op it.
type Directives struct {
	// Text is the speakable reply, for engines without markup support.
	Text string
	// SSML is the fully rendered markup for style-capable engines.
	SSML string

	Style  Style
	Rate   string
	Pitch  string
	Volume string
	// Emphasis holds the words that were actually located in Text.
	Emphasis []string
}

// RateScale returns the numeric speed multiplier for the rate directive.
func (d Directives) RateScale() float64 {
	return RateScale(d.Rate)
}

// Mapper translates a style label plus optional per-dimension overrides into
// synthesis directives. The style table lives in one place; callers never
// hand-assemble prosody.
type Mapper struct {
	voice string
}

func NewMapper(voice string) *Mapper {
	if strings.TrimSpace(voice) == "" {
		voice = defaultVoice
	}
	return &Mapper{voice: voice}
}

// Build maps (style, overrides, emphasis words) onto the style's baseline
// profile. An explicit pitch or rate replaces only that dimension. Emphasis
// words are matched case-insensitively on first occurrence; words absent from
// the text are dropped silently.
func (m *Mapper) Build(text string, style Style, pitchOverride, rateOverride string, emphasisWords []string) Directives {
	profile := BaselineProfile(style)

	rate := profile.Rate
	if strings.TrimSpace(rateOverride) != "" {
		rate = strings.TrimSpace(rateOverride)
	}
	pitch := profile.Pitch
	if strings.TrimSpace(pitchOverride) != "" {
		pitch = strings.TrimSpace(pitchOverride)
	}

	spans, matched := locateEmphasis(text, emphasisWords)

	return Directives{
		Text:     text,
		SSML:     m.renderSSML(text, style, rate, pitch, profile.Volume, spans),
		Style:    style,
		Rate:     rate,
		Pitch:    pitch,
		Volume:   profile.Volume,
		Emphasis: matched,
	}
}

type span struct {
	start int
	end   int
}

// locateEmphasis finds the first case-insensitive occurrence of each word.
// At most maxEmphasisWords are honored; overlapping matches keep the earlier word.
func locateEmphasis(text string, words []string) ([]span, []string) {
	if len(words) > maxEmphasisWords {
		words = words[:maxEmphasisWords]
	}
	lower := strings.ToLower(text)
	if len(lower) != len(text) {
		// Case folding shifted byte offsets; match exactly instead.
		lower = text
	}

	var spans []span
	var matched []string
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		idx := strings.Index(lower, strings.ToLower(w))
		if idx < 0 {
			continue
		}
		candidate := span{start: idx, end: idx + len(w)}
		if overlapsAny(candidate, spans) {
			continue
		}
		spans = append(spans, candidate)
		matched = append(matched, w)
	}
	sortSpans(spans)
	return spans, matched
}

func overlapsAny(c span, spans []span) bool {
	for _, s := range spans {
		if c.start < s.end && s.start < c.end {
			return true
		}
	}
	return false
}

func sortSpans(spans []span) {
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j].start < spans[j-1].start; j-- {
			spans[j], spans[j-1] = spans[j-1], spans[j]
		}
	}
}

func (m *Mapper) renderSSML(text string, style Style, rate, pitch, volume string, spans []span) string {
	var body strings.Builder
	pos := 0
	for _, s := range spans {
		body.WriteString(escapeXML(text[pos:s.start]))
		body.WriteString(`<emphasis level="moderate">`)
		body.WriteString(escapeXML(text[s.start:s.end]))
		body.WriteString(`</emphasis>`)
		pos = s.end
	}
	body.WriteString(escapeXML(text[pos:]))

	return fmt.Sprintf(
		`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xmlns:mstts="https://www.w3.org/2001/mstts" xml:lang="en-US">`+
			`<voice name="%s"><mstts:express-as style="%s"><prosody rate="%s" pitch="%s" volume="%s">%s</prosody></mstts:express-as></voice>`+
			`</speak>`,
		m.voice, style, rate, pitch, volume, body.String(),
	)
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}
