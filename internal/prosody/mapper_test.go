package prosody

import (
	"strings"
	"testing"
)

func TestBuildUsesStyleBaseline(t *testing.T) {
	m := NewMapper("")
	d := m.Build("Great news, it worked!", StyleCheerful, "", "", nil)

	baseline := BaselineProfile(StyleCheerful)
	if d.Rate != baseline.Rate {
		t.Fatalf("Rate = %q, want baseline %q", d.Rate, baseline.Rate)
	}
	if d.Pitch != baseline.Pitch {
		t.Fatalf("Pitch = %q, want baseline %q", d.Pitch, baseline.Pitch)
	}
	if d.Volume != baseline.Volume {
		t.Fatalf("Volume = %q, want baseline %q", d.Volume, baseline.Volume)
	}
	if d.Style != StyleCheerful {
		t.Fatalf("Style = %q, want %q", d.Style, StyleCheerful)
	}
}

func TestBuildOverrideReplacesOnlyThatDimension(t *testing.T) {
	m := NewMapper("")
	d := m.Build("Great news!", StyleCheerful, "", "-20%", nil)

	baseline := BaselineProfile(StyleCheerful)
	if d.Rate != "-20%" {
		t.Fatalf("Rate = %q, want override %q", d.Rate, "-20%")
	}
	if d.Pitch != baseline.Pitch {
		t.Fatalf("Pitch = %q, want baseline %q", d.Pitch, baseline.Pitch)
	}
	if d.Volume != baseline.Volume {
		t.Fatalf("Volume = %q, want baseline %q", d.Volume, baseline.Volume)
	}
}

func TestBuildEmphasisWrapsFirstOccurrence(t *testing.T) {
	m := NewMapper("")
	d := m.Build("I recommend the NVIDIA RTX 4060.", StyleNeutral, "", "", []string{"nvidia"})

	if len(d.Emphasis) != 1 || d.Emphasis[0] != "nvidia" {
		t.Fatalf("Emphasis = %v, want [nvidia]", d.Emphasis)
	}
	if !strings.Contains(d.SSML, `<emphasis level="moderate">NVIDIA</emphasis>`) {
		t.Fatalf("SSML missing emphasis wrap: %s", d.SSML)
	}
}

func TestBuildEmphasisAbsentWordIgnored(t *testing.T) {
	m := NewMapper("")
	d := m.Build("Hello there.", StyleNeutral, "", "", []string{"laptop"})

	if len(d.Emphasis) != 0 {
		t.Fatalf("Emphasis = %v, want empty", d.Emphasis)
	}
	if strings.Contains(d.SSML, "<emphasis") {
		t.Fatalf("SSML should not contain emphasis: %s", d.SSML)
	}
}

func TestBuildEmphasisCapsAtThree(t *testing.T) {
	m := NewMapper("")
	d := m.Build("one two three four", StyleNeutral, "", "", []string{"one", "two", "three", "four"})
	if len(d.Emphasis) != 3 {
		t.Fatalf("Emphasis count = %d, want 3", len(d.Emphasis))
	}
}

func TestBuildEscapesMarkup(t *testing.T) {
	m := NewMapper("")
	d := m.Build("Use <b> & friends", StyleNeutral, "", "", nil)
	if strings.Contains(d.SSML, "<b>") {
		t.Fatalf("SSML contains unescaped markup: %s", d.SSML)
	}
	if !strings.Contains(d.SSML, "&lt;b&gt; &amp; friends") {
		t.Fatalf("SSML missing escaped text: %s", d.SSML)
	}
}

func TestParseStyleUnknownDegradesToNeutral(t *testing.T) {
	if got := ParseStyle("sarcastic"); got != StyleNeutral {
		t.Fatalf("ParseStyle() = %q, want %q", got, StyleNeutral)
	}
	if got := ParseStyle(" De_Escalate "); got != StyleDeEscalate {
		t.Fatalf("ParseStyle() = %q, want %q", got, StyleDeEscalate)
	}
}

func TestRateScale(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"", 1.0},
		{"medium", 1.0},
		{"+10%", 1.1},
		{"-15%", 0.85},
		{"1.2", 1.2},
		{"x-slow", 0.6},
		{"bogus", 1.0},
	}
	for _, c := range cases {
		got := RateScale(c.in)
		if diff := got - c.want; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("RateScale(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestSpeakableStripsMarkupAndEmoji(t *testing.T) {
	in := "**Great!** Check `code` and https://example.com [docs](https://x) 🎉"
	out := Speakable(in)
	if strings.ContainsAny(out, "*`") || strings.Contains(out, "http") {
		t.Fatalf("Speakable() left markup: %q", out)
	}
	if strings.Contains(out, "🎉") {
		t.Fatalf("Speakable() left emoji: %q", out)
	}
	if !strings.Contains(out, "Great!") {
		t.Fatalf("Speakable() dropped text: %q", out)
	}
}
