// Package chunking splits resource content into token-bounded,
// overlapping windows ready for embedding. Markdown input is split on
// heading boundaries first so windows do not straddle sections.
package chunking

import (
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/unicode/norm"

	"ltmc/internal/config"
)

// Chunk is one window of the source content.
type Chunk struct {
	Text     string
	Position int
	Tokens   int
}

// Chunker splits content by approximate token count with a fixed
// overlap between consecutive windows.
type Chunker struct {
	maxTokens int
	overlap   int
}

// NewChunker builds a chunker from the validated configuration.
func NewChunker(cfg config.ChunkingConfig) *Chunker {
	return &Chunker{maxTokens: cfg.MaxChunkSize, overlap: cfg.OverlapSize}
}

// Split normalizes the content to NFC, segments markdown files on
// heading boundaries, and windows each segment. Positions are 0-based
// and contiguous across segments.
func (c *Chunker) Split(content, fileName string) []Chunk {
	content = norm.NFC.String(content)
	if strings.TrimSpace(content) == "" {
		return nil
	}

	var segments []string
	if isMarkdown(fileName) {
		segments = splitMarkdownSections(content)
	} else {
		segments = []string{content}
	}

	var chunks []Chunk
	position := 0
	for _, segment := range segments {
		for _, window := range c.window(segment) {
			chunks = append(chunks, Chunk{
				Text:     window,
				Position: position,
				Tokens:   len(tokenize(window)),
			})
			position++
		}
	}
	return chunks
}

// window slices one segment into overlapping token windows.
func (c *Chunker) window(segment string) []string {
	tokens := tokenize(segment)
	if len(tokens) == 0 {
		return nil
	}
	if len(tokens) <= c.maxTokens {
		return []string{strings.TrimSpace(segment)}
	}

	step := c.maxTokens - c.overlap
	var windows []string
	for start := 0; start < len(tokens); start += step {
		end := start + c.maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		windows = append(windows, strings.Join(tokens[start:end], " "))
		if end == len(tokens) {
			break
		}
	}
	return windows
}

// tokenize is a whitespace approximation of token count. It
// intentionally overestimates nothing: a word is one token.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, unicode.IsSpace)
}

func isMarkdown(fileName string) bool {
	lower := strings.ToLower(fileName)
	return strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown")
}

// splitMarkdownSections walks the goldmark AST and cuts the source at
// top-of-section headings. Content before the first heading forms its
// own segment.
func splitMarkdownSections(content string) []string {
	source := []byte(content)
	parser := goldmark.DefaultParser()
	root := parser.Parse(text.NewReader(source))

	var offsets []int
	for node := root.FirstChild(); node != nil; node = node.NextSibling() {
		heading, ok := node.(*ast.Heading)
		if !ok {
			continue
		}
		lines := heading.Lines()
		if lines.Len() == 0 {
			continue
		}
		start := lines.At(0).Start
		// Back up over the heading markers to the line start.
		for start > 0 && source[start-1] != '\n' {
			start--
		}
		offsets = append(offsets, start)
	}
	if len(offsets) == 0 {
		return []string{content}
	}

	var segments []string
	prev := 0
	for _, off := range offsets {
		if off > prev {
			if seg := strings.TrimSpace(content[prev:off]); seg != "" {
				segments = append(segments, seg)
			}
		}
		prev = off
	}
	if seg := strings.TrimSpace(content[prev:]); seg != "" {
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return []string{content}
	}
	return segments
}
