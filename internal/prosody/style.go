package prosody

import (
	"strconv"
	"strings"
)

// Style labels the emotional register a responder selected for a reply.
type Style string

const (
	StyleNeutral    Style = "neutral"
	StyleCheerful   Style = "cheerful"
	StylePatient    Style = "patient"
	StyleEmpathetic Style = "empathetic"
	StyleDeEscalate Style = "de_escalate"
)

// ParseStyle normalizes a raw style label. Unknown labels degrade to neutral
// so a misbehaving provider can never break synthesis.
func ParseStyle(raw string) Style {
	switch Style(strings.ToLower(strings.TrimSpace(raw))) {
	case StyleNeutral:
		return StyleNeutral
	case StyleCheerful:
		return StyleCheerful
	case StylePatient:
		return StylePatient
	case StyleEmpathetic:
		return StyleEmpathetic
	case StyleDeEscalate:
		return StyleDeEscalate
	default:
		return StyleNeutral
	}
}

// Profile is the baseline prosody for a style: relative rate, pitch and volume.
type Profile struct {
	Rate   string
	Pitch  string
	Volume string
}

// The single source of truth for style prosody. Callers never adjust
// prosody per-style on their own; they override individual dimensions
// through Mapper.Build.
var profiles = map[Style]Profile{
	StyleNeutral:    {Rate: "medium", Pitch: "default", Volume: "medium"},
	StyleCheerful:   {Rate: "+10%", Pitch: "+5%", Volume: "medium"},
	StylePatient:    {Rate: "-15%", Pitch: "-2%", Volume: "medium"},
	StyleEmpathetic: {Rate: "-10%", Pitch: "-5%", Volume: "soft"},
	StyleDeEscalate: {Rate: "-20%", Pitch: "-10%", Volume: "soft"},
}

// BaselineProfile returns the baseline prosody for a style.
func BaselineProfile(style Style) Profile {
	if p, ok := profiles[style]; ok {
		return p
	}
	return profiles[StyleNeutral]
}

var namedRateScales = map[string]float64{
	"x-slow":  0.6,
	"slow":    0.85,
	"medium":  1.0,
	"default": 1.0,
	"fast":    1.15,
	"x-fast":  1.3,
}

// RateScale converts a rate directive ("+10%", "-15%", "medium", "1.2") into a
// multiplier for engines that only understand numeric speed.
func RateScale(rate string) float64 {
	rate = strings.ToLower(strings.TrimSpace(rate))
	if rate == "" {
		return 1.0
	}
	if s, ok := namedRateScales[rate]; ok {
		return s
	}
	if strings.HasSuffix(rate, "%") {
		pct := strings.TrimPrefix(strings.TrimSuffix(rate, "%"), "+")
		if v, err := strconv.ParseFloat(pct, 64); err == nil {
			return clampScale(1.0 + v/100.0)
		}
		return 1.0
	}
	if v, err := strconv.ParseFloat(rate, 64); err == nil {
		return clampScale(v)
	}
	return 1.0
}

func clampScale(v float64) float64 {
	if v < 0.5 {
		return 0.5
	}
	if v > 2.0 {
		return 2.0
	}
	return v
}
