package prosody

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	speakableURLPattern          = regexp.MustCompile(`https?://\S+`)
	speakableFencedCodePattern   = regexp.MustCompile("(?s)```.*?```")
	speakableInlineCodePattern   = regexp.MustCompile("`[^`]*`")
	speakableMarkdownLinkPattern = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
)

// Speakable strips markup and symbol noise from model text so synthesized
// speech sounds conversational.
func Speakable(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	raw = speakableFencedCodePattern.ReplaceAllString(raw, " ")
	raw = speakableInlineCodePattern.ReplaceAllString(raw, " ")
	raw = speakableMarkdownLinkPattern.ReplaceAllString(raw, "$1")
	raw = speakableURLPattern.ReplaceAllString(raw, " ")

	raw = strings.NewReplacer(
		"*", " ",
		"_", " ",
		"\\", " ",
		"|", " ",
		"#", " ",
		"~", " ",
	).Replace(raw)

	var b strings.Builder
	b.Grow(len(raw))
	prevSpace := true

	for _, r := range raw {
		switch {
		case r == '‍' || r == '️' || r == '⃣':
			continue
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsControl(r):
			continue
		case unicode.In(r, unicode.So, unicode.Sm, unicode.Sk):
			// Emoji and symbol glyphs sound unnatural when spoken.
			continue
		case isSpeakablePunctuation(r):
			b.WriteRune(r)
			prevSpace = false
		case unicode.IsPunct(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}

	return strings.TrimSpace(b.String())
}

func isSpeakablePunctuation(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ':', ';', '\'', '"', '-', '(', ')':
		return true
	default:
		return false
	}
}
