package mcp

import (
	"github.com/go-viper/mapstructure/v2"

	"ltmc/internal/apperrors"
)

// Tool calls arrive as {"action": "...", "payload": {...}}. Each
// action decodes its payload into one of these typed variants before
// dispatch; unknown fields are rejected at the boundary.

type storePayload struct {
	FileName     string `json:"file_name"`
	ResourceType string `json:"resource_type"`
	Content      string `json:"content"`
}

type retrievePayload struct {
	Query      string `json:"query"`
	TopK       *int   `json:"top_k"`
	TypeFilter string `json:"type_filter"`
	WithGraph  bool   `json:"with_graph"`
}

type buildContextPayload struct {
	Query      string `json:"query"`
	TopK       int    `json:"top_k"`
	TypeFilter string `json:"type_filter"`
	MaxTokens  int    `json:"max_tokens"`
}

type deleteResourcePayload struct {
	ResourceID int64 `json:"resource_id"`
}

type getResourcePayload struct {
	ResourceID int64  `json:"resource_id"`
	FileName   string `json:"file_name"`
}

type chatLogPayload struct {
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	SourceTool     string `json:"source_tool"`
}

type chatContextPayload struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id"`
	TopK           int    `json:"top_k"`
}

type chatByToolPayload struct {
	SourceTool string `json:"source_tool"`
	Limit      int    `json:"limit"`
}

type todoAddPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

type todoListPayload struct {
	Status   string `json:"status"`
	Priority string `json:"priority"`
	Limit    int    `json:"limit"`
}

type todoIDPayload struct {
	TodoID int64 `json:"todo_id"`
}

type todoSearchPayload struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type patternLogPayload struct {
	FunctionName    string   `json:"function_name"`
	FileName        string   `json:"file_name"`
	ModuleName      string   `json:"module_name"`
	InputPrompt     string   `json:"input_prompt"`
	GeneratedCode   string   `json:"generated_code"`
	Result          string   `json:"result"`
	ExecutionTimeMs int64    `json:"execution_time_ms"`
	ErrorMessage    string   `json:"error_message"`
	Tags            []string `json:"tags"`
}

type patternGetPayload struct {
	Result       string `json:"result"`
	FunctionName string `json:"function_name"`
	Limit        int    `json:"limit"`
}

type patternAnalyzePayload struct {
	FunctionName string `json:"function_name"`
}

type graphLinkPayload struct {
	SourceResourceID int64   `json:"source_resource_id"`
	TargetResourceID int64   `json:"target_resource_id"`
	LinkType         string  `json:"link_type"`
	Weight           float64 `json:"weight"`
	Metadata         string  `json:"metadata"`
	Upsert           bool    `json:"upsert"`
}

type graphUnlinkPayload struct {
	LinkID int64 `json:"link_id"`
}

type graphQueryPayload struct {
	ResourceID   int64  `json:"resource_id"`
	RelationType string `json:"relation_type"`
}

type graphNeighborsPayload struct {
	ResourceID int64  `json:"resource_id"`
	TypeFilter string `json:"type_filter"`
	Depth      int    `json:"depth"`
}

type autoLinkPayload struct {
	ResourceIDs         []int64 `json:"resource_ids"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	MaxLinksPerDoc      int     `json:"max_links_per_doc"`
}

type cacheFlushPayload struct {
	Scope string `json:"scope"`
}

// decodePayload maps the free-form payload object onto a typed
// variant. Numbers arrive as JSON float64, so weak typing is on;
// unknown keys are validation errors.
func decodePayload(args map[string]interface{}, dst interface{}) error {
	payload, _ := args["payload"].(map[string]interface{})
	if payload == nil {
		payload = map[string]interface{}{}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           dst,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeInternal, "building payload decoder", err)
	}
	if err := dec.Decode(payload); err != nil {
		return apperrors.NewValidationError("payload", err.Error(), nil)
	}
	return nil
}

// action pulls the required action discriminator out of the raw args.
func action(args map[string]interface{}) (string, error) {
	a, ok := args["action"].(string)
	if !ok || a == "" {
		return "", apperrors.NewRequiredFieldError("action")
	}
	return a, nil
}
