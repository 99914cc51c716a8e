// Package snapshot persists the full in-memory state as a versioned JSON
// document, written atomically and restored on start.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hivemind-db/hivemind/internal/channels"
	"github.com/hivemind-db/hivemind/internal/engine"
	"github.com/hivemind-db/hivemind/internal/types"
)

// CurrentVersion is written into every new snapshot. Version 2 added the
// task stores; version-1 files load with empty task state.
const CurrentVersion = 2

const (
	snapshotFile = "hivemind-snapshot.json"
	tmpFile      = "hivemind-snapshot.json.tmp"
)

// HistoryEntry is one (memory id, entries) pair. It serializes as a
// two-element JSON array to match the on-disk schema.
type HistoryEntry struct {
	MemoryID int64
	Entries  []types.MemoryHistory
}

// MarshalJSON encodes the pair as [id, entries].
func (h HistoryEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{h.MemoryID, h.Entries})
}

// UnmarshalJSON decodes the [id, entries] pair form.
func (h *HistoryEntry) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[0], &h.MemoryID); err != nil {
		return fmt.Errorf("history pair id: %w", err)
	}
	if err := json.Unmarshal(raw[1], &h.Entries); err != nil {
		return fmt.Errorf("history pair entries: %w", err)
	}
	return nil
}

// TaskEventEntry is one (task id, events) pair, encoded like HistoryEntry.
type TaskEventEntry struct {
	TaskID int64
	Events []types.TaskEvent
}

// MarshalJSON encodes the pair as [id, events].
func (t TaskEventEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{t.TaskID, t.Events})
}

// UnmarshalJSON decodes the [id, events] pair form.
func (t *TaskEventEntry) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[0], &t.TaskID); err != nil {
		return fmt.Errorf("task event pair id: %w", err)
	}
	if err := json.Unmarshal(raw[1], &t.Events); err != nil {
		return fmt.Errorf("task event pair events: %w", err)
	}
	return nil
}

// Snapshot is the versioned on-disk document. Unknown fields in a loaded
// snapshot are ignored for forward compatibility.
type Snapshot struct {
	Version       int                  `json:"version"`
	CreatedAt     time.Time            `json:"created_at"`
	Memories      []types.Memory       `json:"memories"`
	Entities      []types.Entity       `json:"entities"`
	Relationships []types.Relationship `json:"relationships"`
	Episodes      []types.Episode      `json:"episodes"`
	Agents        []types.Agent        `json:"agents"`
	History       []HistoryEntry       `json:"history"`
	Channels      []types.Channel      `json:"channels"`
	Tasks         []types.Task         `json:"tasks"`
	TaskEvents    []TaskEventEntry     `json:"task_events"`
}

// Manager reads and writes snapshots under a data directory.
type Manager struct {
	dataDir string
}

// NewManager creates a manager rooted at dataDir.
func NewManager(dataDir string) *Manager {
	return &Manager{dataDir: dataDir}
}

// Path returns the canonical snapshot file path.
func (m *Manager) Path() string {
	return filepath.Join(m.dataDir, snapshotFile)
}

// Capture builds a snapshot from the engine's stores and the hub's
// channel list.
func Capture(e *engine.Engine, hub *channels.Hub) *Snapshot {
	d := e.Dump()
	snap := &Snapshot{
		Version:       CurrentVersion,
		CreatedAt:     time.Now().UTC(),
		Memories:      d.Memories,
		Entities:      d.Entities,
		Relationships: d.Relationships,
		Episodes:      d.Episodes,
		Agents:        d.Agents,
		Channels:      hub.List(),
		Tasks:         d.Tasks,
	}
	for id, entries := range d.History {
		snap.History = append(snap.History, HistoryEntry{MemoryID: id, Entries: entries})
	}
	for id, events := range d.TaskEvents {
		snap.TaskEvents = append(snap.TaskEvents, TaskEventEntry{TaskID: id, Events: events})
	}
	sort.Slice(snap.History, func(i, j int) bool { return snap.History[i].MemoryID < snap.History[j].MemoryID })
	sort.Slice(snap.TaskEvents, func(i, j int) bool { return snap.TaskEvents[i].TaskID < snap.TaskEvents[j].TaskID })
	return snap
}

// Apply restores a snapshot into a fresh engine and hub. Id allocators end
// up past every restored id.
func Apply(snap *Snapshot, e *engine.Engine, hub *channels.Hub) {
	d := engine.Dump{
		Memories:      snap.Memories,
		Entities:      snap.Entities,
		Relationships: snap.Relationships,
		Episodes:      snap.Episodes,
		Agents:        snap.Agents,
		History:       make(map[int64][]types.MemoryHistory, len(snap.History)),
		Tasks:         snap.Tasks,
		TaskEvents:    make(map[int64][]types.TaskEvent, len(snap.TaskEvents)),
	}
	for _, h := range snap.History {
		d.History[h.MemoryID] = h.Entries
	}
	for _, te := range snap.TaskEvents {
		d.TaskEvents[te.TaskID] = te.Events
	}
	e.Restore(d)
	hub.Restore(snap.Channels)
}

// Save writes the snapshot atomically: serialize, write the scratch file,
// rename over the canonical path.
func (m *Manager) Save(snap *Snapshot) error {
	if err := os.MkdirAll(m.dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp := filepath.Join(m.dataDir, tmpFile)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmp, m.Path()); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot. A missing file is not an error: it returns
// (nil, nil).
func (m *Manager) Load() (*Snapshot, error) {
	data, err := os.ReadFile(m.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &snap, nil
}
