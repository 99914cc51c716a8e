// Package types defines the core data types shared across hivemind components.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// MemoryType categorizes what kind of knowledge a memory holds.
type MemoryType string

const (
	MemoryTypeFact       MemoryType = "fact"
	MemoryTypeEpisodic   MemoryType = "episodic"
	MemoryTypeProcedural MemoryType = "procedural"
	MemoryTypeSemantic   MemoryType = "semantic"
)

// IsValid checks if the memory type is valid.
func (m MemoryType) IsValid() bool {
	switch m {
	case MemoryTypeFact, MemoryTypeEpisodic, MemoryTypeProcedural, MemoryTypeSemantic:
		return true
	}
	return false
}

// HistoryOperation is the kind of mutation recorded in a memory's audit log.
type HistoryOperation string

const (
	OperationAdd        HistoryOperation = "add"
	OperationUpdate     HistoryOperation = "update"
	OperationInvalidate HistoryOperation = "invalidate"
	OperationMerge      HistoryOperation = "merge"
)

// IsValid checks if the history operation is valid.
func (o HistoryOperation) IsValid() bool {
	switch o {
	case OperationAdd, OperationUpdate, OperationInvalidate, OperationMerge:
		return true
	}
	return false
}

// Memory is a single piece of timestamped, scoped text knowledge.
// ValidUntil absent means the memory is current; once set it is never
// cleared, only overwritten by a later invalidation.
type Memory struct {
	ID         int64           `json:"id"`
	Content    string          `json:"content"`
	MemoryType MemoryType      `json:"memory_type"`
	AgentID    string          `json:"agent_id,omitempty"`
	UserID     string          `json:"user_id,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
	Confidence float64         `json:"confidence"`
	Tags       []string        `json:"tags"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	ValidFrom  time.Time       `json:"valid_from"`
	ValidUntil *time.Time      `json:"valid_until,omitempty"`
	Source     string          `json:"source"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// IsCurrent reports whether the memory's validity window is still open.
func (m *Memory) IsCurrent() bool {
	return m.ValidUntil == nil
}

// Validate checks that a memory satisfies its structural invariants.
func (m *Memory) Validate() error {
	if m.Content == "" {
		return fmt.Errorf("memory content cannot be empty")
	}
	if !m.MemoryType.IsValid() {
		return fmt.Errorf("invalid memory type: %s", m.MemoryType)
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return fmt.Errorf("confidence %f outside [0,1]", m.Confidence)
	}
	if m.ValidUntil != nil && m.ValidUntil.Before(m.ValidFrom) {
		return fmt.Errorf("valid_until precedes valid_from")
	}
	return nil
}

// MemoryHistory is one append-only audit entry for a memory mutation.
type MemoryHistory struct {
	ID         int64            `json:"id"`
	MemoryID   int64            `json:"memory_id"`
	Operation  HistoryOperation `json:"operation"`
	OldContent *string          `json:"old_content"`
	NewContent string           `json:"new_content"`
	Reason     string           `json:"reason"`
	ChangedBy  string           `json:"changed_by"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Entity is a node in the knowledge graph.
type Entity struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	EntityType  string          `json:"entity_type"`
	Description string          `json:"description,omitempty"`
	AgentID     string          `json:"agent_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// Relationship is a directed, typed, weighted edge between two entities.
// Endpoint integrity is weak: traversal skips edges whose other endpoint
// is missing.
type Relationship struct {
	ID             int64           `json:"id"`
	SourceEntityID int64           `json:"source_entity_id"`
	TargetEntityID int64           `json:"target_entity_id"`
	RelationType   string          `json:"relation_type"`
	Description    string          `json:"description,omitempty"`
	Weight         float64         `json:"weight"`
	ValidFrom      time.Time       `json:"valid_from"`
	ValidUntil     *time.Time      `json:"valid_until,omitempty"`
	CreatedBy      string          `json:"created_by"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// IsCurrent reports whether the relationship is still live.
func (r *Relationship) IsCurrent() bool {
	return r.ValidUntil == nil
}

// Episode is a session-scoped summary over a time interval.
type Episode struct {
	ID           int64           `json:"id"`
	AgentID      string          `json:"agent_id"`
	UserID       string          `json:"user_id,omitempty"`
	SessionID    string          `json:"session_id"`
	Summary      string          `json:"summary"`
	KeyDecisions []string        `json:"key_decisions"`
	ToolsUsed    []string        `json:"tools_used"`
	Outcome      string          `json:"outcome"`
	StartedAt    time.Time       `json:"started_at"`
	EndedAt      time.Time       `json:"ended_at"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// AgentStatus is the liveness state of a registered agent.
type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentOffline AgentStatus = "offline"
	AgentBusy    AgentStatus = "busy"
)

// IsValid checks if the agent status is valid.
func (s AgentStatus) IsValid() bool {
	switch s {
	case AgentOnline, AgentOffline, AgentBusy:
		return true
	}
	return false
}

// Agent is a registered client of the service, keyed by a
// client-supplied string id rather than a generated integer.
type Agent struct {
	AgentID      string          `json:"agent_id"`
	Name         string          `json:"name"`
	AgentType    string          `json:"agent_type"`
	Capabilities []string        `json:"capabilities"`
	Status       AgentStatus     `json:"status"`
	LastSeen     time.Time       `json:"last_seen"`
	MemoryCount  int64           `json:"memory_count"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// ChannelType categorizes a pub/sub channel.
type ChannelType string

const (
	ChannelPublic  ChannelType = "public"
	ChannelPrivate ChannelType = "private"
	ChannelAgent   ChannelType = "agent"
	ChannelUser    ChannelType = "user"
)

// IsValid checks if the channel type is valid.
func (c ChannelType) IsValid() bool {
	switch c {
	case ChannelPublic, ChannelPrivate, ChannelAgent, ChannelUser:
		return true
	}
	return false
}

// Channel is a named pub/sub channel.
type Channel struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	ChannelType ChannelType `json:"channel_type"`
	CreatedBy   string      `json:"created_by"`
	CreatedAt   time.Time   `json:"created_at"`
}

// TaskStatus is a task's position in the claim/start/complete state machine.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskClaimed    TaskStatus = "claimed"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// IsValid checks if the task status is valid.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskClaimed, TaskInProgress, TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Task is a unit of work moving through the task state machine.
type Task struct {
	ID                   int64           `json:"id"`
	Title                string          `json:"title"`
	Description          string          `json:"description"`
	Status               TaskStatus      `json:"status"`
	Priority             int             `json:"priority"`
	RequiredCapabilities []string        `json:"required_capabilities"`
	AssignedAgent        string          `json:"assigned_agent,omitempty"`
	CreatedBy            string          `json:"created_by"`
	Dependencies         []int64         `json:"dependencies"`
	Result               string          `json:"result,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	Deadline             string          `json:"deadline,omitempty"`
	Metadata             json.RawMessage `json:"metadata,omitempty"`
}

// TaskEventType is the kind of event in a task's append-only event log.
type TaskEventType string

const (
	TaskEventCreated    TaskEventType = "created"
	TaskEventClaimed    TaskEventType = "claimed"
	TaskEventStarted    TaskEventType = "started"
	TaskEventProgress   TaskEventType = "progress"
	TaskEventCompleted  TaskEventType = "completed"
	TaskEventFailed     TaskEventType = "failed"
	TaskEventCancelled  TaskEventType = "cancelled"
	TaskEventReassigned TaskEventType = "reassigned"
)

// IsValid checks if the task event type is valid.
func (t TaskEventType) IsValid() bool {
	switch t {
	case TaskEventCreated, TaskEventClaimed, TaskEventStarted, TaskEventProgress,
		TaskEventCompleted, TaskEventFailed, TaskEventCancelled, TaskEventReassigned:
		return true
	}
	return false
}

// TaskEvent is one append-only entry in a task's event log.
type TaskEvent struct {
	ID        int64         `json:"id"`
	TaskID    int64         `json:"task_id"`
	EventType TaskEventType `json:"event_type"`
	AgentID   string        `json:"agent_id,omitempty"`
	Details   string        `json:"details,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
