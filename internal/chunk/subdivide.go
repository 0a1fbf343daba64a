package chunk

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var sentenceBoundaryRe = regexp.MustCompile(`[.!?]\s+`)

// subdivide splits a single atomic segment that exceeds maxTokens, first
// trying sentence boundaries and falling back to hard word boundaries when
// a "sentence" is itself still oversized (§4.2 step 4).
func subdivide(text string, maxTokens int) []string {
	maxChars := maxTokens * 4
	if maxChars <= 0 {
		maxChars = 1
	}

	var out []string
	for _, sentence := range splitSentences(text) {
		if EstimateTokens(sentence) <= maxTokens {
			out = appendPacked(out, sentence, maxChars)
			continue
		}
		for _, word := range splitWords(sentence, maxChars) {
			out = appendPacked(out, word, maxChars)
		}
	}
	if len(out) == 0 {
		return []string{text}
	}
	return out
}

// splitSentences breaks text at ". ", "! ", "? " boundaries, keeping the
// punctuation with the preceding sentence.
func splitSentences(text string) []string {
	idx := sentenceBoundaryRe.FindAllStringIndex(text, -1)
	if len(idx) == 0 {
		return []string{text}
	}
	var out []string
	pos := 0
	for _, m := range idx {
		out = append(out, text[pos:m[1]])
		pos = m[1]
	}
	if pos < len(text) {
		out = append(out, text[pos:])
	}
	return out
}

// splitWords breaks text on whitespace runs, packing words back together
// up to maxChars so the hard-word-boundary fallback still produces
// reasonably sized pieces rather than one piece per word.
func splitWords(text string, maxChars int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{text}
	}
	var out []string
	var buf strings.Builder
	for _, w := range words {
		if buf.Len() > 0 && buf.Len()+1+len(w) > maxChars {
			out = append(out, buf.String())
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		// A single word longer than maxChars is sliced on rune boundaries as
		// a last resort; this never occurs for natural-language content.
		if len(w) > maxChars {
			for _, piece := range sliceRunes(w, maxChars) {
				if buf.Len() > 0 {
					out = append(out, buf.String())
					buf.Reset()
				}
				out = append(out, piece)
			}
			continue
		}
		buf.WriteString(w)
	}
	if buf.Len() > 0 {
		out = append(out, buf.String())
	}
	return out
}

func sliceRunes(s string, maxChars int) []string {
	var out []string
	for len(s) > 0 {
		end := maxChars
		if end > len(s) {
			end = len(s)
		}
		for end > 0 && !utf8.RuneStart(s[end-1]) {
			end--
		}
		if end == 0 {
			end = len(s)
		}
		out = append(out, s[:end])
		s = s[end:]
	}
	return out
}

func appendPacked(out []string, piece string, maxChars int) []string {
	piece = strings.TrimSpace(piece)
	if piece == "" {
		return out
	}
	if len(out) == 0 {
		return append(out, piece)
	}
	last := out[len(out)-1]
	if len(last)+1+len(piece) <= maxChars {
		out[len(out)-1] = last + " " + piece
		return out
	}
	return append(out, piece)
}
