package types

import "encoding/json"

// Clone methods return copies that share no mutable backing with the
// receiver. Engine read paths use them so callers can mutate returned
// records freely.

func cloneStrings(s []string) []string {
	return append([]string(nil), s...)
}

func cloneRaw(m json.RawMessage) json.RawMessage {
	return append(json.RawMessage(nil), m...)
}

// Clone returns a deep copy of the memory.
func (m Memory) Clone() Memory {
	m.Tags = cloneStrings(m.Tags)
	m.Metadata = cloneRaw(m.Metadata)
	return m
}

// Clone returns a deep copy of the history entry.
func (h MemoryHistory) Clone() MemoryHistory {
	if h.OldContent != nil {
		old := *h.OldContent
		h.OldContent = &old
	}
	return h
}

// Clone returns a deep copy of the entity.
func (e Entity) Clone() Entity {
	e.Metadata = cloneRaw(e.Metadata)
	return e
}

// Clone returns a deep copy of the relationship.
func (r Relationship) Clone() Relationship {
	r.Metadata = cloneRaw(r.Metadata)
	return r
}

// Clone returns a deep copy of the episode.
func (e Episode) Clone() Episode {
	e.KeyDecisions = cloneStrings(e.KeyDecisions)
	e.ToolsUsed = cloneStrings(e.ToolsUsed)
	e.Metadata = cloneRaw(e.Metadata)
	return e
}

// Clone returns a deep copy of the agent.
func (a Agent) Clone() Agent {
	a.Capabilities = cloneStrings(a.Capabilities)
	a.Metadata = cloneRaw(a.Metadata)
	return a
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	t.RequiredCapabilities = cloneStrings(t.RequiredCapabilities)
	t.Dependencies = append([]int64(nil), t.Dependencies...)
	t.Metadata = cloneRaw(t.Metadata)
	return t
}
