package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"askmydocs/internal/domain"
)

// TextChunker splits extracted text into chunks bounded by a character
// (rune) count, with a trailing overlap carried into the next chunk.
// Splitting prefers sentence boundaries; a single sentence longer than the
// chunk size is hard-split.
type TextChunker struct {
	chunkSize int
	overlap   int
	splitter  *regexp.Regexp
}

// NewTextChunker creates a chunker producing chunks of at most chunkSize
// characters, with overlap characters duplicated across boundaries.
func NewTextChunker(chunkSize, overlap int) *TextChunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &TextChunker{
		chunkSize: chunkSize,
		overlap:   overlap,
		splitter:  regexp.MustCompile(`(?m)(?U)([^.!?\n]+[.!?\n])`),
	}
}

// Chunk splits text into an ordered sequence of chunk texts. Identical input
// always yields an identical sequence. Whitespace-only input fails with
// domain.ErrEmptyDocument; no chunk in the result is ever empty.
func (c *TextChunker) Chunk(text string) ([]string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, domain.ErrEmptyDocument
	}

	parts := c.split(trimmed)

	var chunks []string
	current := ""
	for _, part := range parts {
		if current == "" {
			current = part
			continue
		}
		if utf8.RuneCountInString(current)+1+utf8.RuneCountInString(part) <= c.chunkSize {
			current += " " + part
			continue
		}
		chunks = append(chunks, current)
		// Seed the next chunk with the previous tail, but never past the
		// size bound; the incoming sentence wins over the overlap.
		ov := tailOverlap(current, c.overlap)
		if ov != "" && utf8.RuneCountInString(ov)+1+utf8.RuneCountInString(part) <= c.chunkSize {
			current = ov + " " + part
		} else {
			current = part
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks, nil
}

// split breaks text into sentence-sized parts, hard-splitting any sentence
// that alone exceeds the chunk size. Text between and after sentence
// matches is kept, so the chunks always cover the whole input.
func (c *TextChunker) split(text string) []string {
	var sentences []string
	last := 0
	for _, loc := range c.splitter.FindAllStringIndex(text, -1) {
		if gap := strings.TrimSpace(text[last:loc[0]]); gap != "" {
			sentences = append(sentences, gap)
		}
		sentences = append(sentences, strings.TrimSpace(text[loc[0]:loc[1]]))
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		sentences = append(sentences, rest)
	}
	if len(sentences) == 0 {
		sentences = []string{text}
	}
	var parts []string
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		for utf8.RuneCountInString(s) > c.chunkSize {
			runes := []rune(s)
			parts = append(parts, string(runes[:c.chunkSize]))
			s = strings.TrimSpace(string(runes[c.chunkSize:]))
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		parts = []string{text}
	}
	return parts
}

// tailOverlap returns the last n runes of text, shortened to the nearest
// word boundary so the overlap does not begin mid-word.
func tailOverlap(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	tail := string(runes[len(runes)-n:])
	if idx := strings.IndexAny(tail, " \t"); idx >= 0 {
		return strings.TrimSpace(tail[idx:])
	}
	return strings.TrimSpace(tail)
}
