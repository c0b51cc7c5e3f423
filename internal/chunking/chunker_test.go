package chunking

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltmc/internal/config"
)

func newChunker(maxTokens, overlap int) *Chunker {
	return NewChunker(config.ChunkingConfig{MaxChunkSize: maxTokens, OverlapSize: overlap})
}

func words(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "w%d ", i)
	}
	return b.String()
}

func TestShortContentIsOneChunk(t *testing.T) {
	c := newChunker(10, 2)
	chunks := c.Split("the quick brown fox", "notes.txt")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Position)
	assert.Equal(t, 4, chunks[0].Tokens)
}

func TestEmptyContentYieldsNothing(t *testing.T) {
	c := newChunker(10, 2)
	assert.Nil(t, c.Split("   \n\t ", "empty.txt"))
}

func TestWindowsOverlap(t *testing.T) {
	c := newChunker(10, 3)
	chunks := c.Split(words(25), "long.txt")
	require.Len(t, chunks, 4)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Position)
		assert.LessOrEqual(t, ch.Tokens, 10)
	}
	// The last 3 tokens of one window open the next.
	first := strings.Fields(chunks[0].Text)
	second := strings.Fields(chunks[1].Text)
	assert.Equal(t, first[len(first)-3:], second[:3])
}

func TestEveryTokenIsCovered(t *testing.T) {
	c := newChunker(8, 2)
	content := words(50)
	chunks := c.Split(content, "big.txt")

	seen := map[string]bool{}
	for _, ch := range chunks {
		for _, tok := range strings.Fields(ch.Text) {
			seen[tok] = true
		}
	}
	for _, tok := range strings.Fields(content) {
		assert.True(t, seen[tok], "token %s lost in chunking", tok)
	}
}

func TestMarkdownSplitsOnHeadings(t *testing.T) {
	c := newChunker(100, 10)
	content := "intro text before any heading\n\n# Setup\n\ninstall the thing\n\n# Usage\n\nrun the thing\n"
	chunks := c.Split(content, "README.md")
	require.Len(t, chunks, 3)
	assert.Contains(t, chunks[0].Text, "intro text")
	assert.True(t, strings.HasPrefix(chunks[1].Text, "# Setup"))
	assert.True(t, strings.HasPrefix(chunks[2].Text, "# Usage"))
	assert.Equal(t, []int{0, 1, 2}, []int{chunks[0].Position, chunks[1].Position, chunks[2].Position})
}

func TestNonMarkdownIgnoresHeadings(t *testing.T) {
	c := newChunker(100, 10)
	content := "# not a heading here\nplain text file\n"
	chunks := c.Split(content, "notes.txt")
	require.Len(t, chunks, 1)
}

func TestNFCNormalization(t *testing.T) {
	c := newChunker(10, 2)
	// "é" as e + combining acute vs precomposed.
	decomposed := "café"
	precomposed := "café"
	a := c.Split(decomposed, "a.txt")
	b := c.Split(precomposed, "b.txt")
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, b[0].Text, a[0].Text)
	assert.Equal(t, ContentHash(b[0].Text), ContentHash(a[0].Text))
}

func TestContentHashIsStable(t *testing.T) {
	h1 := ContentHash("same content")
	h2 := ContentHash("same content")
	h3 := ContentHash("other content")
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}
