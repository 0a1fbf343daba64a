package chunk

import (
	"regexp"
	"strings"

	"github.com/arkoroy05/contextmemory/internal/model"
)

// region is a detected structural span of the input, identified in a
// single pass over the normalized content (§4.2 step 1).
type region struct {
	start, end int // byte offsets into the normalized content
	kind       model.ChunkType
	heading    string // nearest enclosing heading path, set by detectRegions
}

var (
	fenceRe   = regexp.MustCompile("(?m)^```")
	headingRe = regexp.MustCompile(`(?m)^(#{1,6})\s+(.*)$`)
	listRe    = regexp.MustCompile(`(?m)^\s*([-*+]|\d+[.)])\s+`)
	tableRe   = regexp.MustCompile(`(?m)^\s*\|.*\|\s*$`)
)

// detectRegions performs the structure-detection pass: fenced code blocks
// and tables are atomic; headings and list runs are recorded; everything
// else is left as paragraph text and filled in by fillGaps.
func detectRegions(content string) []region {
	var regions []region

	// Fenced code blocks are atomic and take priority over everything inside them.
	fenceIdx := fenceRe.FindAllStringIndex(content, -1)
	var codeSpans [][2]int
	for i := 0; i+1 < len(fenceIdx); i += 2 {
		start := fenceIdx[i][0]
		end := lineEnd(content, fenceIdx[i+1][1])
		codeSpans = append(codeSpans, [2]int{start, end})
		regions = append(regions, region{start: start, end: end, kind: model.ChunkCode})
	}

	inCode := func(pos int) bool {
		for _, s := range codeSpans {
			if pos >= s[0] && pos < s[1] {
				return true
			}
		}
		return false
	}

	var heading string
	for _, m := range headingRe.FindAllStringSubmatchIndex(content, -1) {
		start, end := m[0], lineEnd(content, m[1])
		if inCode(start) {
			continue
		}
		heading = strings.TrimSpace(content[m[4]:m[5]])
		regions = append(regions, region{start: start, end: end, kind: model.ChunkHeading, heading: heading})
	}

	for _, span := range mergeAdjacent(tableRe.FindAllStringIndex(content, -1)) {
		if inCode(span[0]) {
			continue
		}
		regions = append(regions, region{start: span[0], end: lineEnd(content, span[1]), kind: model.ChunkTable})
	}

	// each list item spans from its marker to the end of its line, so that
	// items on consecutive lines merge into one list run
	var listLines [][]int
	for _, m := range listRe.FindAllStringIndex(content, -1) {
		listLines = append(listLines, []int{m[0], lineEndPos(content, m[1])})
	}
	for _, span := range mergeAdjacent(listLines) {
		if inCode(span[0]) {
			continue
		}
		regions = append(regions, region{start: span[0], end: lineEnd(content, span[1]), kind: model.ChunkList})
	}

	regions = fillGaps(content, regions)
	return regions
}

// mergeAdjacent coalesces line-match spans that are on consecutive lines
// into a single run, so e.g. a five-line list is one region, not five.
func mergeAdjacent(spans [][]int) [][2]int {
	if len(spans) == 0 {
		return nil
	}
	out := [][2]int{{spans[0][0], spans[0][1]}}
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s[0]-last[1] <= 1 {
			last[1] = s[1]
		} else {
			out = append(out, [2]int{s[0], s[1]})
		}
	}
	return out
}

func lineEndPos(s string, pos int) int {
	if i := strings.IndexByte(s[pos:], '\n'); i >= 0 {
		return pos + i
	}
	return len(s)
}

func lineEnd(s string, pos int) int {
	if pos < len(s) && s[pos] == '\n' {
		return pos + 1
	}
	return pos
}

// fillGaps sorts the detected atomic/heading/list/table regions and fills
// the remaining byte ranges with paragraph regions, producing a fully
// covering, ordered, non-overlapping region list.
func fillGaps(content string, regions []region) []region {
	sortRegions(regions)
	regions = dedupeOverlaps(regions)

	var out []region
	var heading string
	pos := 0
	for _, r := range regions {
		if r.start > pos {
			out = append(out, splitParagraphs(content[pos:r.start], pos, heading)...)
		}
		if r.kind == model.ChunkHeading {
			heading = r.heading
		} else if r.heading == "" {
			r.heading = heading
		}
		out = append(out, r)
		pos = r.end
	}
	if pos < len(content) {
		out = append(out, splitParagraphs(content[pos:], pos, heading)...)
	}
	return out
}

func sortRegions(r []region) {
	for i := 1; i < len(r); i++ {
		for j := i; j > 0 && r[j-1].start > r[j].start; j-- {
			r[j-1], r[j] = r[j], r[j-1]
		}
	}
}

// dedupeOverlaps drops any region whose start falls inside a previously
// accepted region (atomic spans, e.g. code fences, win over later matches).
func dedupeOverlaps(regions []region) []region {
	var out []region
	end := -1
	for _, r := range regions {
		if r.start < end {
			continue
		}
		out = append(out, r)
		end = r.end
	}
	return out
}

// splitParagraphs breaks a prose span on blank-line boundaries into
// paragraph regions, dropping whitespace-only paragraphs.
func splitParagraphs(s string, base int, heading string) []region {
	var out []region
	parts := strings.Split(s, "\n\n")
	pos := base
	for i, p := range parts {
		start := pos
		end := pos + len(p)
		if i < len(parts)-1 {
			end += 2
		}
		if strings.TrimSpace(p) != "" {
			out = append(out, region{start: start, end: end, kind: model.ChunkParagraph, heading: heading})
		}
		pos = end
	}
	return out
}
