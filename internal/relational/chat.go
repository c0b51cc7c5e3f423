package relational

import (
	"context"
	"database/sql"

	"ltmc/internal/apperrors"
)

// InsertChatMessage appends a conversation turn and returns its id.
func (s *Store) InsertChatMessage(ctx context.Context, conversationID, role, content, sourceTool string) (int64, error) {
	if conversationID == "" {
		return 0, apperrors.NewRequiredFieldError("conversation_id")
	}
	if role == "" {
		return 0, apperrors.NewRequiredFieldError("role")
	}
	tool := sql.NullString{String: sourceTool, Valid: sourceTool != ""}
	id, err := s.insertReturningID(ctx, s.db,
		`INSERT INTO ChatHistory (conversation_id, role, content, source_tool) VALUES (?, ?, ?, ?)`,
		conversationID, role, content, tool)
	if err != nil {
		return 0, storageErr("inserting chat message", "chat message", conversationID, err)
	}
	return id, nil
}

// ChatsByConversation returns a conversation's turns in order.
func (s *Store) ChatsByConversation(ctx context.Context, conversationID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []ChatMessage
	if err := s.db.SelectContext(ctx, &out, s.rebind(
		`SELECT id, conversation_id, role, content, timestamp, source_tool
		 FROM ChatHistory WHERE conversation_id = ? ORDER BY id LIMIT ?`),
		conversationID, limit); err != nil {
		return nil, storageErr("loading conversation", "conversation", conversationID, err)
	}
	return out, nil
}

// ChatsBySourceTool returns messages attributed to a given tool,
// newest first.
func (s *Store) ChatsBySourceTool(ctx context.Context, sourceTool string, limit int) ([]ChatMessage, error) {
	if sourceTool == "" {
		return nil, apperrors.NewRequiredFieldError("source_tool")
	}
	if limit <= 0 {
		limit = 100
	}
	var out []ChatMessage
	if err := s.db.SelectContext(ctx, &out, s.rebind(
		`SELECT id, conversation_id, role, content, timestamp, source_tool
		 FROM ChatHistory WHERE source_tool = ? ORDER BY id DESC LIMIT ?`),
		sourceTool, limit); err != nil {
		return nil, storageErr("loading chats by tool", "source_tool", sourceTool, err)
	}
	return out, nil
}

// InsertContextLinks binds a message to the chunks that informed it.
// Links are additive; a partial failure leaves the inserted rows in
// place.
func (s *Store) InsertContextLinks(ctx context.Context, messageID int64, chunkIDs []int64) (int, error) {
	inserted := 0
	for _, chunkID := range chunkIDs {
		if _, err := s.db.ExecContext(ctx, s.rebind(
			`INSERT INTO ContextLinks (message_id, chunk_id) VALUES (?, ?)`),
			messageID, chunkID); err != nil {
			return inserted, storageErr("inserting context link", "context link", chunkID, err)
		}
		inserted++
	}
	return inserted, nil
}

// ContextLinksByMessage returns the chunks a message was grounded on.
func (s *Store) ContextLinksByMessage(ctx context.Context, messageID int64) ([]ContextLink, error) {
	var out []ContextLink
	if err := s.db.SelectContext(ctx, &out, s.rebind(
		`SELECT id, message_id, chunk_id FROM ContextLinks WHERE message_id = ? ORDER BY id`),
		messageID); err != nil {
		return nil, storageErr("loading context links", "message", messageID, err)
	}
	return out, nil
}
