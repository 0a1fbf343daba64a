// Package chunk implements the Smart Chunker (C2, §4.2): it decomposes a
// context's content into an ordered sequence of bounded, semantically
// grouped chunks.
package chunk

import (
	"strings"
	"unicode/utf8"

	"github.com/arkoroy05/contextmemory/internal/model"
)

// Options configures a chunking pass. Zero values take the §4.2/§6 defaults.
type Options struct {
	MaxTokens    int // MAX_CHUNK_TOKENS, default 4000
	TargetTokens int // TARGET_CHUNK_TOKENS, default 0.75 * MaxTokens
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 4000
	}
	if o.TargetTokens <= 0 {
		o.TargetTokens = int(0.75 * float64(o.MaxTokens))
	}
	return o
}

// Chunk is one candidate output of the chunker, in 1:1 correspondence with
// a ContextNode once persisted by internal/ctxstore.
type Chunk struct {
	Content     string
	TokenCount  int
	ChunkType   model.ChunkType
	Importance  float64
	HeadingPath string
}

// EstimateTokens implements the deterministic, monotone token estimator of
// §4.2 step 2: ceil(chars/4).
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

// Chunker decomposes content into chunks honoring MaxTokens and preserving
// detected structure. The chunker never fails: on unexpected input it
// degrades to fixed-width token splitting (§4.2 Failure).
type Chunker struct{}

// New constructs a Chunker.
func New() *Chunker { return &Chunker{} }

// Chunk runs the full §4.2 algorithm: detect structure, estimate tokens,
// segment into atomic runs, greedily pack, semantically merge adjacent
// small chunks, and propagate headings.
func (c *Chunker) Chunk(content string, opt Options) []Chunk {
	opt = opt.withDefaults()
	content = normalizeNewlines(content)

	if strings.TrimSpace(content) == "" {
		return nil // §4.2 edge case: empty content -> zero chunks
	}

	regions := detectRegions(content)
	if len(regions) == 0 {
		regions = []region{{start: 0, end: len(content), kind: model.ChunkParagraph}}
	}

	packed := pack(content, regions, opt)
	merged := mergeAdjacentChunks(packed, opt)
	return merged
}

// pack implements §4.2 step 4: greedy packing of atomic regions into
// chunks bounded by MaxTokens, subdividing any region that alone exceeds
// the budget. A fenced code region is never packed with other regions: it
// becomes a code chunk of its own.
func pack(content string, regions []region, opt Options) []Chunk {
	var chunks []Chunk
	var buf strings.Builder
	bufKind := model.ChunkParagraph
	bufHeading := ""
	bufTokens := 0

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Content:     strings.TrimSpace(buf.String()),
			TokenCount:  EstimateTokens(buf.String()),
			ChunkType:   bufKind,
			Importance:  heuristicImportance(bufKind),
			HeadingPath: bufHeading,
		})
		buf.Reset()
		bufTokens = 0
	}

	for _, r := range regions {
		text := content[r.start:r.end]
		tokens := EstimateTokens(text)

		if tokens > opt.MaxTokens {
			flush()
			for _, sub := range subdivide(text, opt.MaxTokens) {
				chunks = append(chunks, Chunk{
					Content:     strings.TrimSpace(sub),
					TokenCount:  EstimateTokens(sub),
					ChunkType:   r.kind,
					Importance:  heuristicImportance(r.kind),
					HeadingPath: r.heading,
				})
			}
			continue
		}

		if r.kind == model.ChunkCode {
			flush()
			chunks = append(chunks, Chunk{
				Content:     strings.TrimSpace(text),
				TokenCount:  tokens,
				ChunkType:   model.ChunkCode,
				Importance:  heuristicImportance(model.ChunkCode),
				HeadingPath: r.heading,
			})
			continue
		}

		if bufTokens+tokens > opt.MaxTokens {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(text)
		bufTokens += tokens
		bufKind = combineKind(bufKind, r.kind, buf.Len() == len(text))
		if bufHeading == "" {
			bufHeading = r.heading
		}
	}
	flush()
	return chunks
}

func combineKind(acc, next model.ChunkType, first bool) model.ChunkType {
	if first {
		return next
	}
	if acc == next {
		return acc
	}
	return model.ChunkMixed
}

// mergeAdjacentChunks implements §4.2 step 5: merge adjacent chunks whose
// combined length is <= TargetTokens and whose kinds are compatible (both
// prose, or both list items sharing a heading).
func mergeAdjacentChunks(chunks []Chunk, opt Options) []Chunk {
	if len(chunks) < 2 {
		return chunks
	}
	var out []Chunk
	cur := chunks[0]
	for _, next := range chunks[1:] {
		combinedTokens := cur.TokenCount + next.TokenCount
		if combinedTokens <= opt.TargetTokens && compatible(cur, next) {
			cur = Chunk{
				Content:     cur.Content + "\n\n" + next.Content,
				TokenCount:  combinedTokens,
				ChunkType:   combineKind(cur.ChunkType, next.ChunkType, false),
				Importance:  (cur.Importance + next.Importance) / 2,
				HeadingPath: firstNonEmpty(cur.HeadingPath, next.HeadingPath),
			}
			continue
		}
		out = append(out, cur)
		cur = next
	}
	out = append(out, cur)
	return out
}

func compatible(a, b Chunk) bool {
	prose := func(k model.ChunkType) bool { return k == model.ChunkParagraph }
	list := func(k model.ChunkType) bool { return k == model.ChunkList }
	if prose(a.ChunkType) && prose(b.ChunkType) {
		return true
	}
	if list(a.ChunkType) && list(b.ChunkType) && a.HeadingPath == b.HeadingPath {
		return true
	}
	return false
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// heuristicImportance seeds node importance pending AI refinement (§4.2
// step 7).
func heuristicImportance(kind model.ChunkType) float64 {
	switch kind {
	case model.ChunkHeading:
		return 0.8
	case model.ChunkCode:
		return 0.7
	case model.ChunkList:
		return 0.5
	case model.ChunkTable:
		return 0.5
	default:
		return 0.6
	}
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}
