package retrieval

import (
	"context"
	"fmt"
	"strings"

	"ltmc/internal/apperrors"
)

// AskResult extends a retrieval result with the recorded assistant turn.
type AskResult struct {
	Result
	MessageID    int64 `json:"message_id"`
	LinkedChunks int   `json:"linked_chunks"`
}

// AskWithContext retrieves chunks for the query, records an assistant
// turn in the conversation, and binds the message to each returned
// chunk through ContextLinks. The three writes are not atomic: a chat
// failure leaves no links behind, and link rows are additive, so a
// partial link insert keeps the message.
func (p *Pipeline) AskWithContext(ctx context.Context, query, conversationID string, topK int) (*AskResult, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, apperrors.NewRequiredFieldError("conversation_id")
	}
	if topK <= 0 {
		topK = 10
	}

	res, err := p.Retrieve(ctx, query, Options{TopK: topK})
	if err != nil {
		return nil, err
	}

	content := assembleContext(res.Chunks, 0).Context
	if content == "" {
		content = fmt.Sprintf("no stored context matched %q", query)
	}
	chat, err := p.coord.LogChat(ctx, conversationID, "assistant", content, "ltmc")
	if err != nil {
		return nil, err
	}

	chunkIDs := make([]int64, len(res.Chunks))
	for i, ch := range res.Chunks {
		chunkIDs[i] = ch.ChunkID
	}
	linked, err := p.coord.Relational().InsertContextLinks(ctx, chat.MessageID, chunkIDs)
	if err != nil {
		p.logger.WarnContext(ctx, "context links partially written",
			"message_id", chat.MessageID, "linked", linked, "error", err.Error())
	}

	return &AskResult{Result: *res, MessageID: chat.MessageID, LinkedChunks: linked}, nil
}
