package types

import "encoding/json"

// DefaultSearchLimit is applied when a search request omits limit.
const DefaultSearchLimit = 10

// AddMemoryRequest creates a new memory.
type AddMemoryRequest struct {
	Content    string          `json:"content"`
	MemoryType MemoryType      `json:"memory_type,omitempty"`
	AgentID    string          `json:"agent_id,omitempty"`
	UserID     string          `json:"user_id,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
	Tags       []string        `json:"tags,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// UpdateMemoryRequest is a partial update; nil fields are left untouched.
type UpdateMemoryRequest struct {
	Content    *string         `json:"content,omitempty"`
	Tags       *[]string       `json:"tags,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// InvalidateMemoryRequest closes a memory's validity window.
type InvalidateMemoryRequest struct {
	Reason    string `json:"reason"`
	ChangedBy string `json:"changed_by,omitempty"`
}

// SearchRequest drives keyword and hybrid search.
type SearchRequest struct {
	Query        string   `json:"query"`
	AgentID      string   `json:"agent_id,omitempty"`
	UserID       string   `json:"user_id,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Limit        int      `json:"limit,omitempty"`
	IncludeGraph bool     `json:"include_graph,omitempty"`
}

// SearchResult is one scored search hit, optionally with graph context.
type SearchResult struct {
	Memory               Memory         `json:"memory"`
	Score                float64        `json:"score"`
	RelatedEntities      []Entity       `json:"related_entities,omitempty"`
	RelatedRelationships []Relationship `json:"related_relationships,omitempty"`
}

// ConversationMessage is one turn of a conversation given to extraction.
type ConversationMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ExtractRequest asks the extraction pipeline to mine a conversation.
type ExtractRequest struct {
	Messages  []ConversationMessage `json:"messages"`
	AgentID   string                `json:"agent_id,omitempty"`
	UserID    string                `json:"user_id,omitempty"`
	SessionID string                `json:"session_id,omitempty"`
}

// ExtractResponse reports what the extraction pipeline stored.
type ExtractResponse struct {
	MemoriesAdded      []Memory       `json:"memories_added"`
	MemoriesUpdated    []Memory       `json:"memories_updated"`
	EntitiesAdded      []Entity       `json:"entities_added"`
	RelationshipsAdded []Relationship `json:"relationships_added"`
	Skipped            int            `json:"skipped"`
}

// AddEntityRequest creates a knowledge-graph node.
type AddEntityRequest struct {
	Name        string          `json:"name"`
	EntityType  string          `json:"entity_type"`
	Description string          `json:"description,omitempty"`
	AgentID     string          `json:"agent_id,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// AddRelationshipRequest creates a knowledge-graph edge.
type AddRelationshipRequest struct {
	SourceEntityID int64           `json:"source_entity_id"`
	TargetEntityID int64           `json:"target_entity_id"`
	RelationType   string          `json:"relation_type"`
	Description    string          `json:"description,omitempty"`
	Weight         float64         `json:"weight,omitempty"`
	CreatedBy      string          `json:"created_by"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// TraverseRequest walks the graph from a starting entity.
type TraverseRequest struct {
	EntityID int64 `json:"entity_id"`
	Depth    int   `json:"depth,omitempty"`
}

// TraversalNode pairs an entity with its live relationships, as produced
// by a graph traversal.
type TraversalNode struct {
	Entity        Entity         `json:"entity"`
	Relationships []Relationship `json:"relationships"`
}

// EntityRelationship pairs a live relationship with the entity at its
// other endpoint, relative to the entity the lookup started from.
type EntityRelationship struct {
	Relationship Relationship `json:"relationship"`
	Entity       Entity       `json:"entity"`
}

// FindEntityRequest looks up an entity by name (case-insensitive).
type FindEntityRequest struct {
	Name string `json:"name"`
}

// CreateChannelRequest creates (or returns the existing) named channel.
type CreateChannelRequest struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	ChannelType ChannelType `json:"channel_type,omitempty"`
	CreatedBy   string      `json:"created_by"`
}

// ShareToChannelRequest publishes an existing memory onto a channel.
type ShareToChannelRequest struct {
	MemoryID int64  `json:"memory_id"`
	SharedBy string `json:"shared_by"`
}

// RegisterAgentRequest registers (or re-registers) an agent.
type RegisterAgentRequest struct {
	AgentID      string          `json:"agent_id"`
	Name         string          `json:"name"`
	AgentType    string          `json:"agent_type"`
	Capabilities []string        `json:"capabilities,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// CreateTaskRequest enqueues a new task in pending state.
type CreateTaskRequest struct {
	Title                string          `json:"title"`
	Description          string          `json:"description"`
	Priority             int             `json:"priority,omitempty"`
	RequiredCapabilities []string        `json:"required_capabilities,omitempty"`
	CreatedBy            string          `json:"created_by"`
	Dependencies         []int64         `json:"dependencies,omitempty"`
	Deadline             string          `json:"deadline,omitempty"`
	Metadata             json.RawMessage `json:"metadata,omitempty"`
}

// ClaimTaskRequest claims a pending task for an agent.
type ClaimTaskRequest struct {
	AgentID string `json:"agent_id"`
}

// StartTaskRequest moves a claimed task to in_progress.
type StartTaskRequest struct {
	AgentID string `json:"agent_id"`
}

// CompleteTaskRequest finishes an in-progress task with a result.
type CompleteTaskRequest struct {
	AgentID string `json:"agent_id"`
	Result  string `json:"result"`
}

// FailTaskRequest marks a claimed or in-progress task as failed.
type FailTaskRequest struct {
	AgentID string `json:"agent_id"`
	Reason  string `json:"reason"`
}

// CancelTaskRequest cancels a task that has not reached a terminal state.
type CancelTaskRequest struct {
	CancelledBy string `json:"cancelled_by"`
	Reason      string `json:"reason,omitempty"`
}

// Stats is the payload of the status endpoint.
type Stats struct {
	Memories            int    `json:"memories"`
	Entities            int    `json:"entities"`
	Relationships       int    `json:"relationships"`
	Episodes            int    `json:"episodes"`
	Agents              int    `json:"agents"`
	Channels            int    `json:"channels"`
	Tasks               int    `json:"tasks"`
	EmbeddingsAvailable bool   `json:"embeddings_available"`
	EmbeddingsIndexed   int    `json:"embeddings_indexed"`
	EmbeddingDimensions int    `json:"embedding_dimensions"`
	Uptime              string `json:"uptime"`
}
