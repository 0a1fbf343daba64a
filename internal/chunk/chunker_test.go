package chunk

import (
	"strings"
	"testing"

	"github.com/arkoroy05/contextmemory/internal/model"
)

func TestChunk_EmptyContent(t *testing.T) {
	chunks := New().Chunk("", Options{})
	if len(chunks) != 0 {
		t.Fatalf("expected zero chunks for empty content, got %d", len(chunks))
	}
}

func TestChunk_SmallContentSingleChunk(t *testing.T) {
	chunks := New().Chunk("A single short line.", Options{})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].ChunkType != model.ChunkParagraph {
		t.Fatalf("expected paragraph chunk, got %s", chunks[0].ChunkType)
	}
}

func genParagraphs(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.Repeat("word ", 80))
	}
	return b.String()
}

func TestChunk_LargeMixedContentRespectsMaxTokens(t *testing.T) {
	var b strings.Builder
	b.WriteString("# Heading one\n\n")
	b.WriteString(genParagraphs(20))
	b.WriteString("\n\n```go\nfunc main() {\n\tprintln(\"hi\")\n}\n```\n\n")
	b.WriteString("## Heading two\n\n")
	b.WriteString(genParagraphs(20))

	chunks := New().Chunk(b.String(), Options{MaxTokens: 200})
	if len(chunks) < 3 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	var sawCode bool
	for i, c := range chunks {
		if c.TokenCount > 200 {
			t.Fatalf("chunk %d exceeds max tokens: %d", i, c.TokenCount)
		}
		if c.ChunkType == model.ChunkCode {
			sawCode = true
			if !strings.Contains(c.Content, "```") {
				t.Fatalf("code chunk missing fence markers: %q", c.Content)
			}
		}
	}
	if !sawCode {
		t.Fatalf("expected at least one code chunk")
	}
}

func TestChunk_OversizedAtomicSegmentSubdivides(t *testing.T) {
	content := genParagraphs(1) + strings.Repeat("more ", 2000)
	chunks := New().Chunk(content, Options{MaxTokens: 50})
	if len(chunks) < 2 {
		t.Fatalf("expected subdivision into multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.TokenCount > 50 {
			t.Fatalf("chunk %d exceeds max tokens: %d", i, c.TokenCount)
		}
	}
}

func TestChunk_NormalizesCRLF(t *testing.T) {
	chunks := New().Chunk("line one\r\nline two\r\n", Options{})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if strings.Contains(chunks[0].Content, "\r") {
		t.Fatalf("expected CR stripped: %q", chunks[0].Content)
	}
}

func TestEstimateTokens_Monotone(t *testing.T) {
	short := EstimateTokens("abcd")
	long := EstimateTokens("abcdabcdabcdabcd")
	if long <= short {
		t.Fatalf("expected monotone token estimate, got short=%d long=%d", short, long)
	}
}
