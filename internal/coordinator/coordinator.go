// Package coordinator orchestrates the four stores as one logical
// transaction. The write protocol commits relational state only after
// vectors are durable, treats the graph as best effort, and never
// lets the cache fail an operation.
package coordinator

import (
	"context"
	"fmt"
	"strings"

	"ltmc/internal/apperrors"
	"ltmc/internal/cache"
	"ltmc/internal/chunking"
	"ltmc/internal/embeddings"
	"ltmc/internal/graph"
	"ltmc/internal/logging"
	"ltmc/internal/relational"
	"ltmc/internal/vector"
)

// reloader is implemented by indexes that can unwind in-memory
// additions by re-reading the last durable snapshot.
type reloader interface {
	Reload(ctx context.Context) error
}

// Coordinator owns the multi-store write protocol.
type Coordinator struct {
	rel      *relational.Store
	vec      vector.Index
	graph    *graph.Store
	cache    *cache.Cache
	embedder embeddings.Embedder
	chunker  *chunking.Chunker
	locks    *keyLocks
	logger   logging.Logger
}

// New wires the coordinator.
func New(rel *relational.Store, vec vector.Index, gr *graph.Store, ca *cache.Cache,
	embedder embeddings.Embedder, chunker *chunking.Chunker, logger logging.Logger) *Coordinator {
	return &Coordinator{
		rel:      rel,
		vec:      vec,
		graph:    gr,
		cache:    ca,
		embedder: embedder,
		chunker:  chunker,
		locks:    newKeyLocks(),
		logger:   logger.WithComponent("coordinator"),
	}
}

// Relational exposes the primary store for read paths.
func (c *Coordinator) Relational() *relational.Store { return c.rel }

// Vector exposes the index for read paths.
func (c *Coordinator) Vector() vector.Index { return c.vec }

// Graph exposes the graph store for read paths and health.
func (c *Coordinator) Graph() *graph.Store { return c.graph }

// Cache exposes the cache for read paths and health.
func (c *Coordinator) Cache() *cache.Cache { return c.cache }

// Embedder exposes the embedder for the retrieval pipeline.
func (c *Coordinator) Embedder() embeddings.Embedder { return c.embedder }

// StoreResult reports a completed store_resource call.
type StoreResult struct {
	ResourceID int64 `json:"resource_id"`
	ChunkCount int   `json:"chunk_count"`
}

// StoreResource runs the atomic write protocol: chunk and embed,
// insert relational rows without committing, persist vectors, upsert
// the graph node best-effort, commit, then invalidate the cache.
func (c *Coordinator) StoreResource(ctx context.Context, fileName, resourceType, content string) (*StoreResult, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, apperrors.ErrFileNameRequired
	}
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.ErrContentRequired
	}
	if !relational.ValidResourceType(resourceType) {
		return nil, apperrors.NewValidationError("resource_type",
			"must be one of document, code, chat, pattern, blueprint", resourceType)
	}

	unlock := c.locks.Lock("file:" + fileName)
	defer unlock()

	// Prepare: chunk and embed before touching any store.
	chunks := c.chunker.Split(content, fileName)
	if len(chunks) == 0 {
		return nil, apperrors.ErrContentRequired
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	// Phase A: relational rows under an open transaction.
	tx, err := c.rel.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	firstID, err := c.rel.AllocateVectorIDs(ctx, tx, len(chunks))
	if err != nil {
		return nil, err
	}
	resourceID, err := c.rel.CreateResource(ctx, tx, fileName, resourceType)
	if err != nil {
		return nil, err
	}
	inserts := make([]relational.ChunkInsert, len(chunks))
	vectorIDs := make([]int64, len(chunks))
	for i, ch := range chunks {
		vectorIDs[i] = firstID + int64(i)
		inserts[i] = relational.ChunkInsert{Text: ch.Text, VectorID: vectorIDs[i], Position: ch.Position}
	}
	if _, err := c.rel.InsertChunks(ctx, tx, resourceID, inserts); err != nil {
		return nil, err
	}

	// Phase B: vectors become durable before the relational commit.
	for i, id := range vectorIDs {
		if err := c.vec.Add(ctx, id, vectors[i]); err != nil {
			c.unwindVectors(ctx, vectorIDs)
			return nil, err
		}
	}
	if err := c.vec.Save(ctx); err != nil {
		c.unwindVectors(ctx, vectorIDs)
		return nil, err
	}

	// Phase C: graph is best effort.
	if err := c.graph.UpsertResourceNode(ctx, resourceID, map[string]interface{}{
		"file_name":     fileName,
		"resource_type": resourceType,
	}); err != nil && !apperrors.IsValidationError(err) {
		c.logger.WarnContext(ctx, "graph upsert failed, continuing degraded",
			"resource_id", resourceID, "error", err.Error())
	}

	// Phase D: commit.
	if err := tx.Commit(); err != nil {
		c.unwindVectors(ctx, vectorIDs)
		return nil, apperrors.Wrap(apperrors.ErrorCodeRelational, "committing resource", err)
	}

	// Phase E: cache.
	c.cache.Invalidate(ctx, cache.ScopeRetrieve+":*")

	c.logger.InfoContext(ctx, "stored resource",
		"resource_id", resourceID, "file_name", fileName, "chunks", len(chunks))
	return &StoreResult{ResourceID: resourceID, ChunkCount: len(chunks)}, nil
}

// unwindVectors discards in-memory additions after an abort. Indexes
// that snapshot to disk reload the last durable state; remote indexes
// fall back to point deletes.
func (c *Coordinator) unwindVectors(ctx context.Context, vectorIDs []int64) {
	if r, ok := c.vec.(reloader); ok {
		if err := r.Reload(ctx); err == nil {
			return
		}
	}
	for _, id := range vectorIDs {
		_ = c.vec.Remove(ctx, id)
	}
}

// LinkResult reports a created resource link.
type LinkResult struct {
	LinkID int64 `json:"link_id"`
}

// CreateResourceLink creates a typed edge in the relational store and
// mirrors it into the graph. The link type is free-form; the graph
// layer sanitizes its own relationship label. Missing endpoints are
// NotFound; a taken (source, target, type) triple is AlreadyExists.
func (c *Coordinator) CreateResourceLink(ctx context.Context, sourceID, targetID int64, linkType string, weight float64, metadata string) (*LinkResult, error) {
	if strings.TrimSpace(linkType) == "" {
		return nil, apperrors.NewRequiredFieldError("link_type")
	}
	if _, err := c.rel.GetResource(ctx, sourceID); err != nil {
		return nil, err
	}
	if _, err := c.rel.GetResource(ctx, targetID); err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(fmt.Sprintf("resource:%d", sourceID))
	defer unlock()

	linkID, err := c.rel.InsertResourceLink(ctx, sourceID, targetID, linkType, weight, metadata)
	if err != nil {
		return nil, err
	}

	if err := c.graph.CreateEdge(ctx, sourceID, targetID, linkType,
		map[string]interface{}{"weight": weight}); err != nil {
		c.logger.WarnContext(ctx, "graph edge mirror failed, sweep will repair",
			"link_id", linkID, "error", err.Error())
	}

	c.cache.Invalidate(ctx, cache.GraphEntityPattern(sourceID))
	c.cache.Invalidate(ctx, cache.GraphEntityPattern(targetID))
	return &LinkResult{LinkID: linkID}, nil
}

// UpsertResourceLink creates or refreshes a typed edge, updating
// weight and metadata in place when the triple already exists.
func (c *Coordinator) UpsertResourceLink(ctx context.Context, sourceID, targetID int64, linkType string, weight float64, metadata string) (*LinkResult, error) {
	if strings.TrimSpace(linkType) == "" {
		return nil, apperrors.NewRequiredFieldError("link_type")
	}
	if _, err := c.rel.GetResource(ctx, sourceID); err != nil {
		return nil, err
	}
	if _, err := c.rel.GetResource(ctx, targetID); err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(fmt.Sprintf("resource:%d", sourceID))
	defer unlock()

	linkID, err := c.rel.UpsertResourceLink(ctx, sourceID, targetID, linkType, weight, metadata)
	if err != nil {
		return nil, err
	}

	if err := c.graph.CreateEdge(ctx, sourceID, targetID, linkType,
		map[string]interface{}{"weight": weight}); err != nil {
		c.logger.WarnContext(ctx, "graph edge mirror failed, sweep will repair",
			"link_id", linkID, "error", err.Error())
	}

	c.cache.Invalidate(ctx, cache.GraphEntityPattern(sourceID))
	c.cache.Invalidate(ctx, cache.GraphEntityPattern(targetID))
	return &LinkResult{LinkID: linkID}, nil
}

// DeleteResourceLink removes an edge by id along with its graph
// mirror.
func (c *Coordinator) DeleteResourceLink(ctx context.Context, linkID int64) error {
	link, err := c.rel.DeleteResourceLink(ctx, linkID)
	if err != nil {
		return err
	}

	if err := c.graph.DeleteEdge(ctx, link.SourceResourceID, link.TargetResourceID, link.LinkType); err != nil {
		c.logger.WarnContext(ctx, "graph edge delete failed, sweep will repair",
			"link_id", linkID, "error", err.Error())
	}

	c.cache.Invalidate(ctx, cache.GraphEntityPattern(link.SourceResourceID))
	c.cache.Invalidate(ctx, cache.GraphEntityPattern(link.TargetResourceID))
	return nil
}

// QueryGraph lists edges touching a resource, read through the cache.
func (c *Coordinator) QueryGraph(ctx context.Context, resourceID int64, relationType string) ([]graph.Edge, error) {
	key := cache.GraphKey(resourceID, relationType)
	var cached []graph.Edge
	if err := c.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}
	edges, err := c.graph.Query(ctx, resourceID, relationType)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, key, edges)
	return edges, nil
}

// PatternResult reports a logged code pattern.
type PatternResult struct {
	PatternID int64 `json:"pattern_id"`
	VectorID  int64 `json:"vector_id"`
}

// LogCodePattern embeds the prompt and generated code together and
// stores the pattern under the same vector-before-commit discipline.
func (c *Coordinator) LogCodePattern(ctx context.Context, p relational.PatternInsert) (*PatternResult, error) {
	if p.InputPrompt == "" {
		return nil, apperrors.NewRequiredFieldError("input_prompt")
	}
	if p.GeneratedCode == "" {
		return nil, apperrors.NewRequiredFieldError("generated_code")
	}
	if !relational.ValidResult(p.Result) {
		return nil, apperrors.NewValidationError("result", "must be one of pass, fail, partial", p.Result)
	}

	vec, err := c.embedder.Embed(ctx, p.InputPrompt+"\n"+p.GeneratedCode)
	if err != nil {
		return nil, err
	}

	vectorID, err := c.rel.AllocateVectorID(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.vec.Add(ctx, vectorID, vec); err != nil {
		return nil, err
	}
	if err := c.vec.Save(ctx); err != nil {
		c.unwindVectors(ctx, []int64{vectorID})
		return nil, err
	}

	p.VectorID = vectorID
	patternID, err := c.rel.InsertCodePattern(ctx, p)
	if err != nil {
		// The vector is already durable; the sweep collects it as garbage.
		_ = c.vec.Remove(ctx, vectorID)
		_ = c.vec.Save(ctx)
		return nil, err
	}
	return &PatternResult{PatternID: patternID, VectorID: vectorID}, nil
}

// ChatResult reports a logged chat message.
type ChatResult struct {
	MessageID int64 `json:"message_id"`
}

// LogChat appends a conversation turn and invalidates the cached
// pages of that conversation and of the writing tool.
func (c *Coordinator) LogChat(ctx context.Context, conversationID, role, content, sourceTool string) (*ChatResult, error) {
	msgID, err := c.rel.InsertChatMessage(ctx, conversationID, role, content, sourceTool)
	if err != nil {
		return nil, err
	}
	c.cache.Invalidate(ctx, cache.ChatConversationPattern(conversationID))
	c.cache.Invalidate(ctx, cache.ChatToolPattern(sourceTool))
	return &ChatResult{MessageID: msgID}, nil
}

// ChatsByConversation pages a conversation, read through the cache.
func (c *Coordinator) ChatsByConversation(ctx context.Context, conversationID string, limit int) ([]relational.ChatMessage, error) {
	key := cache.ChatKey(conversationID, "", limit)
	var cached []relational.ChatMessage
	if err := c.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}
	msgs, err := c.rel.ChatsByConversation(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, key, msgs)
	return msgs, nil
}

// ChatsBySourceTool lists a tool's turns across conversations, read
// through the cache.
func (c *Coordinator) ChatsBySourceTool(ctx context.Context, sourceTool string, limit int) ([]relational.ChatMessage, error) {
	key := cache.ChatKey("", sourceTool, limit)
	var cached []relational.ChatMessage
	if err := c.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}
	msgs, err := c.rel.ChatsBySourceTool(ctx, sourceTool, limit)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, key, msgs)
	return msgs, nil
}

// AddTodo creates a task and invalidates todo listings.
func (c *Coordinator) AddTodo(ctx context.Context, title, description, priority string) (int64, error) {
	id, err := c.rel.CreateTodo(ctx, title, description, priority)
	if err != nil {
		return 0, err
	}
	c.cache.Invalidate(ctx, cache.ScopeTodo+":*")
	return id, nil
}

// ListTodos filters tasks by status and priority, read through the
// cache.
func (c *Coordinator) ListTodos(ctx context.Context, status, priority string, limit int) ([]relational.Todo, error) {
	key := cache.TodoKey(status, priority, limit)
	var cached []relational.Todo
	if err := c.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}
	todos, err := c.rel.ListTodos(ctx, status, priority, limit)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, key, todos)
	return todos, nil
}

// CompleteTodo marks a task done and invalidates todo listings.
func (c *Coordinator) CompleteTodo(ctx context.Context, id int64) error {
	if err := c.rel.CompleteTodo(ctx, id); err != nil {
		return err
	}
	c.cache.Invalidate(ctx, cache.ScopeTodo+":*")
	return nil
}

// DeleteTodo removes a task and invalidates todo listings.
func (c *Coordinator) DeleteTodo(ctx context.Context, id int64) error {
	if err := c.rel.DeleteTodo(ctx, id); err != nil {
		return err
	}
	c.cache.Invalidate(ctx, cache.ScopeTodo+":*")
	return nil
}

// DeleteResource removes a resource everywhere. Cache invalidation
// precedes the deletion ack so stale entries cannot outlive the rows.
func (c *Coordinator) DeleteResource(ctx context.Context, resourceID int64) error {
	unlock := c.locks.Lock(fmt.Sprintf("resource:%d", resourceID))
	defer unlock()

	c.cache.Invalidate(ctx, cache.ScopeRetrieve+":*")
	c.cache.Invalidate(ctx, cache.GraphEntityPattern(resourceID))

	vectorIDs, err := c.rel.DeleteResource(ctx, resourceID)
	if err != nil {
		return err
	}
	for _, id := range vectorIDs {
		_ = c.vec.Remove(ctx, id)
	}
	if err := c.vec.Save(ctx); err != nil {
		// Rows are gone; leftover vectors are garbage for the sweep.
		c.logger.WarnContext(ctx, "vector purge save failed, sweep will collect",
			"resource_id", resourceID, "error", err.Error())
	}
	if err := c.graph.DeleteResourceNode(ctx, resourceID); err != nil {
		c.logger.WarnContext(ctx, "graph node delete failed, sweep will repair",
			"resource_id", resourceID, "error", err.Error())
	}
	return nil
}
