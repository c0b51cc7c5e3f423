package cache

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Key scopes. Invalidation and stats group keys by these prefixes.
const (
	ScopeRetrieve = "retrieve"
	ScopeChat     = "chat"
	ScopeTodo     = "todo"
	ScopeGraph    = "graph"
)

// hashKeyPart collapses free-form text into a fixed-width key segment.
func hashKeyPart(s string) string {
	sum := blake2b.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// RetrieveKey caches a retrieval result set.
func RetrieveKey(query string, topK int, filters string) string {
	return fmt.Sprintf("%s:%s:%d:%s", ScopeRetrieve, hashKeyPart(query), topK, hashKeyPart(filters))
}

// ChatKey caches a conversation page.
func ChatKey(conversationID, sourceTool string, limit int) string {
	return fmt.Sprintf("%s:%s:%s:%d", ScopeChat, conversationID, sourceTool, limit)
}

// TodoKey caches a todo listing.
func TodoKey(status, priority string, limit int) string {
	return fmt.Sprintf("%s:%s:%s:%d", ScopeTodo, status, priority, limit)
}

// GraphKey caches a neighborhood query.
func GraphKey(entity int64, relationType string) string {
	return fmt.Sprintf("%s:%d:%s", ScopeGraph, entity, relationType)
}

// GraphEntityPattern matches every cached graph entry for an entity.
func GraphEntityPattern(entity int64) string {
	return fmt.Sprintf("%s:%d:*", ScopeGraph, entity)
}

// ChatConversationPattern matches every cached page of a conversation.
func ChatConversationPattern(conversationID string) string {
	return fmt.Sprintf("%s:%s:*", ScopeChat, conversationID)
}

// ChatToolPattern matches the cross-conversation pages of one source
// tool, keyed with an empty conversation segment.
func ChatToolPattern(sourceTool string) string {
	return fmt.Sprintf("%s::%s:*", ScopeChat, sourceTool)
}
