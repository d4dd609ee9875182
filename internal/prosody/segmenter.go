package prosody

import "strings"

const (
	segmentFirstMin  = 24
	segmentNextMin   = 42
	segmentCutWindow = 44
)

// Segmenter splits reply text into clause-sized chunks for streaming
// synthesis engines. The first chunk may be shorter than the rest so audio
// starts early; later cuts prefer sentence punctuation, then commas, then
// whitespace within a bounded window.
type Segmenter struct {
	buffer  string
	emitted bool
}

func NewSegmenter() *Segmenter {
	return &Segmenter{}
}

// Push appends incoming text and returns any chunks that became cuttable.
func (s *Segmenter) Push(delta string) []string {
	if strings.TrimSpace(delta) == "" {
		return nil
	}
	s.buffer += delta
	return s.drain(false)
}

// Flush returns whatever remains buffered, regardless of length.
func (s *Segmenter) Flush() []string {
	return s.drain(true)
}

func (s *Segmenter) drain(force bool) []string {
	var out []string
	for {
		minChars := segmentNextMin
		if !s.emitted {
			minChars = segmentFirstMin
		}
		segment, rest, ok := nextSegment(s.buffer, minChars, force)
		if !ok {
			break
		}
		s.buffer = rest
		segment = normalizeSegment(segment)
		if segment == "" {
			continue
		}
		s.emitted = true
		out = append(out, segment)
	}
	return out
}

func nextSegment(input string, minChars int, force bool) (segment, rest string, ok bool) {
	if input == "" {
		return "", "", false
	}
	if force {
		return input, "", true
	}
	if len(input) < minChars {
		return "", input, false
	}

	if idx := clauseBoundary(input, minChars, ","); idx >= 0 {
		return input[:idx+1], input[idx+1:], true
	}
	if idx := clauseBoundary(input, minChars, ".!?;:\n"); idx >= 0 {
		return input[:idx+1], input[idx+1:], true
	}

	cut := whitespaceCut(input, minChars, segmentCutWindow)
	if cut <= 0 {
		return "", input, false
	}
	return input[:cut], input[cut:], true
}

func clauseBoundary(input string, minChars int, cutset string) int {
	for i := minChars - 1; i < len(input); i++ {
		if strings.IndexByte(cutset, input[i]) >= 0 {
			return i
		}
	}
	return -1
}

func whitespaceCut(input string, minChars, window int) int {
	if len(input) <= minChars {
		return len(input)
	}
	limit := minChars + window
	if limit > len(input) {
		limit = len(input)
	}
	for i := minChars; i < limit; i++ {
		switch input[i] {
		case ' ', '\t', '\n', '\r':
			return i
		}
	}
	return minChars
}

func normalizeSegment(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
