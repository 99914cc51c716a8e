package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/hivemind-db/hivemind/internal/types"
)

// AddMemory creates a memory, writes its initial audit entry, emits a
// replication event, publishes to the derived channels, and dispatches
// async embedding indexing.
func (e *Engine) AddMemory(req types.AddMemoryRequest) (types.Memory, error) {
	if req.Content == "" {
		return types.Memory{}, fmt.Errorf("memory content cannot be empty")
	}
	memType := req.MemoryType
	if memType == "" {
		memType = types.MemoryTypeFact
	}
	if !memType.IsValid() {
		return types.Memory{}, fmt.Errorf("invalid memory type %q", memType)
	}

	source := req.AgentID
	if source == "" {
		source = "unknown"
	}
	now := time.Now().UTC()
	mem := types.Memory{
		ID:         e.nextMemoryID.Add(1),
		Content:    req.Content,
		MemoryType: memType,
		AgentID:    req.AgentID,
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		Confidence: 1.0,
		Tags:       append([]string(nil), req.Tags...),
		CreatedAt:  now,
		UpdatedAt:  now,
		ValidFrom:  now,
		Source:     source,
		Metadata:   req.Metadata,
	}

	e.memories.Update(mem.ID, func(_ types.Memory, _ bool) (types.Memory, bool) {
		e.appendHistory(types.MemoryHistory{
			MemoryID:   mem.ID,
			Operation:  types.OperationAdd,
			NewContent: mem.Content,
			Reason:     "Initial creation",
			ChangedBy:  source,
			Timestamp:  now,
		})
		e.emit(types.ReplicationEvent{Type: types.EventMemoryAdded, Memory: &mem})
		e.publishMemoryEvent(types.WsServerMessage{
			Type:   types.WsServerMemoryAdded,
			Memory: &mem,
		}, mem.UserID)
		return mem, true
	})

	if req.AgentID != "" {
		e.agents.Update(req.AgentID, func(a types.Agent, ok bool) (types.Agent, bool) {
			if !ok {
				return a, false
			}
			a.MemoryCount++
			return a, true
		})
	}

	e.index.IndexAsync(&mem)
	return mem.Clone(), nil
}

// GetMemory returns a copy of the memory, or ErrNotFound.
func (e *Engine) GetMemory(id int64) (types.Memory, error) {
	mem, ok := e.memories.Get(id)
	if !ok {
		return types.Memory{}, fmt.Errorf("memory %d: %w", id, ErrNotFound)
	}
	return mem.Clone(), nil
}

// UpdateMemory applies the non-nil fields of the request and records the
// change in the memory's history. Content changes trigger async re-indexing.
func (e *Engine) UpdateMemory(id int64, req types.UpdateMemoryRequest, changedBy string) (types.Memory, error) {
	var updated types.Memory
	var contentChanged bool
	found := false

	e.memories.Update(id, func(mem types.Memory, ok bool) (types.Memory, bool) {
		if !ok {
			return mem, false
		}
		found = true
		oldContent := mem.Content

		if req.Content != nil && *req.Content != "" {
			contentChanged = *req.Content != mem.Content
			mem.Content = *req.Content
		}
		if req.Tags != nil {
			mem.Tags = append([]string(nil), (*req.Tags)...)
		}
		if req.Confidence != nil {
			mem.Confidence = clamp01(*req.Confidence)
		}
		if req.Metadata != nil {
			mem.Metadata = req.Metadata
		}
		mem.UpdatedAt = time.Now().UTC()

		e.appendHistory(types.MemoryHistory{
			MemoryID:   id,
			Operation:  types.OperationUpdate,
			OldContent: &oldContent,
			NewContent: mem.Content,
			Reason:     "Manual update",
			ChangedBy:  changedBy,
			Timestamp:  mem.UpdatedAt,
		})
		e.emit(types.ReplicationEvent{Type: types.EventMemoryUpdated, Memory: &mem})
		e.publishMemoryEvent(types.WsServerMessage{
			Type:   types.WsServerMemoryUpdated,
			Memory: &mem,
		}, mem.UserID)

		updated = mem.Clone()
		return mem, true
	})

	if !found {
		return types.Memory{}, fmt.Errorf("memory %d: %w", id, ErrNotFound)
	}
	if contentChanged {
		e.index.IndexAsync(&updated)
	}
	return updated, nil
}

// InvalidateMemory closes the memory's validity window. A repeated
// invalidation overwrites valid_until (last write wins). The embedding
// entry is removed synchronously.
func (e *Engine) InvalidateMemory(id int64, reason, changedBy string) (types.Memory, error) {
	var invalidated types.Memory
	found := false

	e.memories.Update(id, func(mem types.Memory, ok bool) (types.Memory, bool) {
		if !ok {
			return mem, false
		}
		found = true
		now := time.Now().UTC()
		mem.ValidUntil = &now
		mem.UpdatedAt = now

		content := mem.Content
		e.appendHistory(types.MemoryHistory{
			MemoryID:   id,
			Operation:  types.OperationInvalidate,
			OldContent: &content,
			NewContent: content,
			Reason:     reason,
			ChangedBy:  changedBy,
			Timestamp:  now,
		})
		e.emit(types.ReplicationEvent{Type: types.EventMemoryInvalidated, MemoryID: id, Reason: reason})
		e.publishMemoryEvent(types.WsServerMessage{
			Type:     types.WsServerMemoryInvalidated,
			MemoryID: id,
			Reason:   reason,
		}, mem.UserID)

		invalidated = mem.Clone()
		return mem, true
	})

	if !found {
		return types.Memory{}, fmt.Errorf("memory %d: %w", id, ErrNotFound)
	}
	e.index.Remove(id)
	return invalidated, nil
}

// GetMemoryHistory returns the memory's audit entries in timestamp order.
func (e *Engine) GetMemoryHistory(id int64) ([]types.MemoryHistory, error) {
	if _, ok := e.memories.Get(id); !ok {
		return nil, fmt.Errorf("memory %d: %w", id, ErrNotFound)
	}
	entries, _ := e.history.Get(id)
	out := make([]types.MemoryHistory, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// ListMemories returns memories matching the exact-match filters, sorted by
// id. Invalidated memories are excluded unless includeInvalidated is set.
func (e *Engine) ListMemories(agentID, userID string, includeInvalidated bool) []types.Memory {
	out := make([]types.Memory, 0)
	e.memories.Range(func(_ int64, mem types.Memory) bool {
		if !includeInvalidated && !mem.IsCurrent() {
			return true
		}
		if agentID != "" && mem.AgentID != agentID {
			return true
		}
		if userID != "" && mem.UserID != userID {
			return true
		}
		out = append(out, mem.Clone())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// appendHistory allocates the entry id and appends to the memory's
// history. Callers hold the memory's shard lock, so entries land in
// mutation order.
func (e *Engine) appendHistory(entry types.MemoryHistory) {
	entry.ID = e.nextHistoryID.Add(1)
	e.history.Update(entry.MemoryID, func(entries []types.MemoryHistory, _ bool) ([]types.MemoryHistory, bool) {
		return append(entries, entry), true
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
