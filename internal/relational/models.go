package relational

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Resource is a logical document owning an ordered set of chunks.
type Resource struct {
	ID           int64     `db:"id" json:"id"`
	FileName     string    `db:"file_name" json:"file_name"`
	ResourceType string    `db:"resource_type" json:"resource_type"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// ResourceType values accepted by the store operation.
const (
	TypeDocument  = "document"
	TypeCode      = "code"
	TypeChat      = "chat"
	TypePattern   = "pattern"
	TypeBlueprint = "blueprint"
)

// ValidResourceType reports whether t is one of the accepted types.
func ValidResourceType(t string) bool {
	switch t {
	case TypeDocument, TypeCode, TypeChat, TypePattern, TypeBlueprint:
		return true
	}
	return false
}

// GenerationMethod values for ResourceChunk rows. The consistency
// sweep flips sequential chunks to orphaned when their vector is gone.
const (
	GenSequential = "sequential"
	GenOrphaned   = "orphaned_chunk"
)

// ResourceChunk is a token-bounded slice of a resource, paired with
// its entry in the vector index.
type ResourceChunk struct {
	ID               int64  `db:"id" json:"id"`
	ResourceID       int64  `db:"resource_id" json:"resource_id"`
	ChunkText        string `db:"chunk_text" json:"chunk_text"`
	VectorID         int64  `db:"vector_id" json:"vector_id"`
	Position         int    `db:"position" json:"position"`
	GenerationMethod string `db:"generation_method" json:"generation_method"`
}

// HydratedChunk is a chunk joined with its parent resource, as the
// retrieval pipeline consumes it.
type HydratedChunk struct {
	ResourceChunk
	FileName          string    `db:"file_name" json:"file_name"`
	ResourceType      string    `db:"resource_type" json:"resource_type"`
	ResourceCreatedAt time.Time `db:"resource_created_at" json:"resource_created_at"`
}

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	ID             int64          `db:"id" json:"id"`
	ConversationID string         `db:"conversation_id" json:"conversation_id"`
	Role           string         `db:"role" json:"role"`
	Content        string         `db:"content" json:"content"`
	Timestamp      time.Time      `db:"timestamp" json:"timestamp"`
	SourceTool     sql.NullString `db:"source_tool" json:"source_tool,omitempty"`
}

// ContextLink binds a chat message to a chunk that informed it.
type ContextLink struct {
	ID        int64 `db:"id" json:"id"`
	MessageID int64 `db:"message_id" json:"message_id"`
	ChunkID   int64 `db:"chunk_id" json:"chunk_id"`
}

// Todo is a structured task.
type Todo struct {
	ID          int64        `db:"id" json:"id"`
	Title       string       `db:"title" json:"title"`
	Description string       `db:"description" json:"description"`
	Priority    string       `db:"priority" json:"priority"`
	Status      string       `db:"status" json:"status"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	CompletedAt sql.NullTime `db:"completed_at" json:"completed_at,omitempty"`
}

// Todo status and priority values.
const (
	TodoPending   = "pending"
	TodoCompleted = "completed"

	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// CodePattern records one code generation experience.
type CodePattern struct {
	ID              int64          `db:"id" json:"id"`
	FunctionName    sql.NullString `db:"function_name" json:"function_name,omitempty"`
	FileName        sql.NullString `db:"file_name" json:"file_name,omitempty"`
	ModuleName      sql.NullString `db:"module_name" json:"module_name,omitempty"`
	InputPrompt     string         `db:"input_prompt" json:"input_prompt"`
	GeneratedCode   string         `db:"generated_code" json:"generated_code"`
	Result          string         `db:"result" json:"result"`
	ExecutionTimeMs sql.NullInt64  `db:"execution_time_ms" json:"execution_time_ms,omitempty"`
	ErrorMessage    sql.NullString `db:"error_message" json:"error_message,omitempty"`
	Tags            string         `db:"tags" json:"-"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	VectorID        int64          `db:"vector_id" json:"vector_id"`
}

// Pattern result values.
const (
	ResultPass    = "pass"
	ResultFail    = "fail"
	ResultPartial = "partial"
)

// ValidResult reports whether r is an accepted pattern result.
func ValidResult(r string) bool {
	return r == ResultPass || r == ResultFail || r == ResultPartial
}

// TagList decodes the JSON tags column.
func (p *CodePattern) TagList() []string {
	if p.Tags == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(p.Tags), &tags); err != nil {
		return nil
	}
	return tags
}

// ResourceLink is a typed, weighted edge between two resources,
// mirrored by a graph edge with the same type label.
type ResourceLink struct {
	ID               int64          `db:"id" json:"id"`
	SourceResourceID int64          `db:"source_resource_id" json:"source_resource_id"`
	TargetResourceID int64          `db:"target_resource_id" json:"target_resource_id"`
	LinkType         string         `db:"link_type" json:"link_type"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	Metadata         sql.NullString `db:"metadata" json:"metadata,omitempty"`
	Weight           float64        `db:"weight" json:"weight"`
}

// Stats summarizes row counts per table for the stats operation.
type Stats struct {
	Resources     int64 `json:"resources"`
	Chunks        int64 `json:"chunks"`
	ChatMessages  int64 `json:"chat_messages"`
	ContextLinks  int64 `json:"context_links"`
	Todos         int64 `json:"todos"`
	CodePatterns  int64 `json:"code_patterns"`
	ResourceLinks int64 `json:"resource_links"`
	LastVectorID  int64 `json:"last_vector_id"`
}
