package types

// Replication event type tags. Each mutation entry point emits exactly one
// of these onto the outbound replication queue.
const (
	EventMemoryAdded       = "memory_added"
	EventMemoryUpdated     = "memory_updated"
	EventMemoryInvalidated = "memory_invalidated"
	EventEntityAdded       = "entity_added"
	EventRelationshipAdded = "relationship_added"
	EventAgentRegistered   = "agent_registered"
	EventChannelCreated    = "channel_created"
	EventTaskCreated       = "task_created"
	EventTaskClaimed       = "task_claimed"
	EventTaskCompleted     = "task_completed"
	EventTaskFailed        = "task_failed"
)

// ReplicationEvent is a tagged mutation record forwarded best-effort to the
// external sink. Exactly one payload field is set, matching Type.
type ReplicationEvent struct {
	Type         string        `json:"type"`
	Memory       *Memory       `json:"memory,omitempty"`
	MemoryID     int64         `json:"memory_id,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Entity       *Entity       `json:"entity,omitempty"`
	Relationship *Relationship `json:"relationship,omitempty"`
	Agent        *Agent        `json:"agent,omitempty"`
	Channel      *Channel      `json:"channel,omitempty"`
	Task         *Task         `json:"task,omitempty"`
}

// Well-known channel names derived from mutations.
const (
	ChannelNameGlobal = "global"
	ChannelNameTasks  = "tasks"
)

// UserChannelName returns the derived channel name for a user-scoped memory.
func UserChannelName(userID string) string {
	return "user:" + userID
}

// WsClientMessage is a tagged frame sent by a websocket client.
type WsClientMessage struct {
	Type         string   `json:"type"`
	Channels     []string `json:"channels,omitempty"`
	AgentID      string   `json:"agent_id,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// Client frame tags.
const (
	WsClientSubscribe      = "subscribe"
	WsClientUnsubscribe    = "unsubscribe"
	WsClientSubscribeTasks = "subscribe_tasks"
	WsClientPing           = "ping"
)

// WsServerMessage is a tagged frame sent to a websocket client. Payload
// fields are populated according to Type.
type WsServerMessage struct {
	Type     string   `json:"type"`
	Channel  string   `json:"channel,omitempty"`
	Channels []string `json:"channels,omitempty"`
	Memory   *Memory  `json:"memory,omitempty"`
	MemoryID int64    `json:"memory_id,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	Entity   *Entity  `json:"entity,omitempty"`
	Task     *Task    `json:"task,omitempty"`
	SharedBy string   `json:"shared_by,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// Server frame tags.
const (
	WsServerSubscribed        = "subscribed"
	WsServerMemoryAdded       = "memory_added"
	WsServerMemoryUpdated     = "memory_updated"
	WsServerMemoryInvalidated = "memory_invalidated"
	WsServerMemoryShared      = "memory_shared"
	WsServerEntityUpdated     = "entity_updated"
	WsServerTaskCreated       = "task_created"
	WsServerTaskClaimed       = "task_claimed"
	WsServerTaskUpdated       = "task_updated"
	WsServerTaskCompleted     = "task_completed"
	WsServerTaskFailed        = "task_failed"
	WsServerPong              = "pong"
	WsServerError             = "error"
)
