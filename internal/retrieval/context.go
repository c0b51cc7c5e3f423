package retrieval

import (
	"context"
	"fmt"
	"strings"
)

const defaultContextTokens = 4000

// ContextOptions tune one build_context call.
type ContextOptions struct {
	TopK       int
	TypeFilter string
	MaxTokens  int
}

// ContextSource names one resource that contributed to the context.
type ContextSource struct {
	ResourceID int64  `json:"resource_id"`
	FileName   string `json:"file_name"`
	Chunks     int    `json:"chunks"`
}

// ContextResult is an assembled context window ready to hand to a model.
type ContextResult struct {
	Query      string          `json:"query"`
	Context    string          `json:"context"`
	Sources    []ContextSource `json:"sources"`
	TokenCount int             `json:"token_count"`
	Truncated  bool            `json:"truncated"`
}

// BuildContext retrieves chunks for the query and joins them, in rank
// order, into a single document that fits the token budget. Chunks
// that would overflow the budget are dropped whole.
func (p *Pipeline) BuildContext(ctx context.Context, query string, opts ContextOptions) (*ContextResult, error) {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}
	res, err := p.Retrieve(ctx, query, Options{TopK: opts.TopK, TypeFilter: opts.TypeFilter})
	if err != nil {
		return nil, err
	}
	out := assembleContext(res.Chunks, opts.MaxTokens)
	out.Query = query
	return out, nil
}

// assembleContext concatenates chunks under a whitespace-token budget.
// maxTokens <= 0 applies the default budget.
func assembleContext(chunks []RankedChunk, maxTokens int) *ContextResult {
	if maxTokens <= 0 {
		maxTokens = defaultContextTokens
	}

	var b strings.Builder
	sources := make(map[int64]*ContextSource)
	order := make([]int64, 0, len(chunks))
	tokens := 0
	truncated := false

	for _, ch := range chunks {
		header := fmt.Sprintf("### %s (chunk %d)", ch.FileName, ch.Position)
		cost := len(strings.Fields(header)) + len(strings.Fields(ch.Text))
		if tokens+cost > maxTokens {
			truncated = true
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(header)
		b.WriteString("\n")
		b.WriteString(ch.Text)
		tokens += cost

		src, ok := sources[ch.ResourceID]
		if !ok {
			src = &ContextSource{ResourceID: ch.ResourceID, FileName: ch.FileName}
			sources[ch.ResourceID] = src
			order = append(order, ch.ResourceID)
		}
		src.Chunks++
	}

	result := &ContextResult{
		Context:    b.String(),
		TokenCount: tokens,
		Truncated:  truncated,
		Sources:    make([]ContextSource, 0, len(order)),
	}
	for _, id := range order {
		result.Sources = append(result.Sources, *sources[id])
	}
	return result
}
