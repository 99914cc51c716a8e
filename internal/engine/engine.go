// Package engine implements the shared memory core: the concurrent record
// store with its audit log, knowledge graph, search, task state machine,
// and the mutation entry points that feed replication and pub/sub.
package engine

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hivemind-db/hivemind/internal/channels"
	"github.com/hivemind-db/hivemind/internal/cmap"
	"github.com/hivemind-db/hivemind/internal/embeddings"
	"github.com/hivemind-db/hivemind/internal/types"
)

// ReplicationSink receives one event per mutation, in per-id mutation
// order. A nil sink disables replication.
type ReplicationSink interface {
	Emit(evt types.ReplicationEvent)
}

// Engine is the long-lived owner of every in-memory store. Reads return
// independent copies; mutations on the same id serialize on the record's
// shard lock.
type Engine struct {
	memories      *cmap.Map[int64, types.Memory]
	history       *cmap.Map[int64, []types.MemoryHistory]
	entities      *cmap.Map[int64, types.Entity]
	relationships *cmap.Map[int64, types.Relationship]
	episodes      *cmap.Map[int64, types.Episode]
	agents        *cmap.Map[string, types.Agent]
	tasks         *cmap.Map[int64, types.Task]
	taskEvents    *cmap.Map[int64, []types.TaskEvent]

	nextMemoryID       atomic.Int64
	nextHistoryID      atomic.Int64
	nextEntityID       atomic.Int64
	nextRelationshipID atomic.Int64
	nextEpisodeID      atomic.Int64
	nextTaskID         atomic.Int64
	nextTaskEventID    atomic.Int64

	hub       *channels.Hub
	index     *embeddings.Index
	repl      ReplicationSink
	extractor Extractor
	log       *slog.Logger

	startedAt time.Time
}

// New creates an engine. hub and index must be non-nil; repl may be nil to
// disable replication.
func New(hub *channels.Hub, index *embeddings.Index, repl ReplicationSink, log *slog.Logger) *Engine {
	return &Engine{
		memories:      cmap.NewInt64[types.Memory](),
		history:       cmap.NewInt64[[]types.MemoryHistory](),
		entities:      cmap.NewInt64[types.Entity](),
		relationships: cmap.NewInt64[types.Relationship](),
		episodes:      cmap.NewInt64[types.Episode](),
		agents:        cmap.NewString[types.Agent](),
		tasks:         cmap.NewInt64[types.Task](),
		taskEvents:    cmap.NewInt64[[]types.TaskEvent](),
		hub:           hub,
		index:         index,
		repl:          repl,
		log:           log.With("component", "engine"),
		startedAt:     time.Now(),
	}
}

// Hub returns the channel hub the engine publishes on.
func (e *Engine) Hub() *channels.Hub { return e.hub }

// Index returns the embedding index.
func (e *Engine) Index() *embeddings.Index { return e.index }

func (e *Engine) emit(evt types.ReplicationEvent) {
	if e.repl != nil {
		e.repl.Emit(evt)
	}
}

// publishMemoryEvent fans a memory event out to its derived channels: the
// user channel when the memory is user-scoped, and always global.
func (e *Engine) publishMemoryEvent(msg types.WsServerMessage, userID string) {
	if userID != "" {
		m := msg
		m.Channel = types.UserChannelName(userID)
		e.hub.Publish(m.Channel, m)
	}
	msg.Channel = types.ChannelNameGlobal
	e.hub.Publish(types.ChannelNameGlobal, msg)
}

// Stats reports per-store counts and embedding status.
func (e *Engine) Stats() types.Stats {
	return types.Stats{
		Memories:            e.memories.Len(),
		Entities:            e.entities.Len(),
		Relationships:       e.relationships.Len(),
		Episodes:            e.episodes.Len(),
		Agents:              e.agents.Len(),
		Channels:            len(e.hub.List()),
		Tasks:               e.tasks.Len(),
		EmbeddingsAvailable: e.index.Available(),
		EmbeddingsIndexed:   e.index.Size(),
		EmbeddingDimensions: e.index.Dimensions(),
		Uptime:              time.Since(e.startedAt).Round(time.Second).String(),
	}
}

// Dump is a copy of every store, used by the snapshot manager.
type Dump struct {
	Memories      []types.Memory
	Entities      []types.Entity
	Relationships []types.Relationship
	Episodes      []types.Episode
	Agents        []types.Agent
	History       map[int64][]types.MemoryHistory
	Tasks         []types.Task
	TaskEvents    map[int64][]types.TaskEvent
}

// Dump copies the full contents of every store. Each store is read under
// its own locks; the result is consistent per record, not across stores.
func (e *Engine) Dump() Dump {
	d := Dump{
		Memories:      e.memories.Values(),
		Entities:      e.entities.Values(),
		Relationships: e.relationships.Values(),
		Episodes:      e.episodes.Values(),
		Agents:        e.agents.Values(),
		History:       make(map[int64][]types.MemoryHistory),
		Tasks:         e.tasks.Values(),
		TaskEvents:    make(map[int64][]types.TaskEvent),
	}
	e.history.Range(func(id int64, entries []types.MemoryHistory) bool {
		d.History[id] = append([]types.MemoryHistory(nil), entries...)
		return true
	})
	e.taskEvents.Range(func(id int64, events []types.TaskEvent) bool {
		d.TaskEvents[id] = append([]types.TaskEvent(nil), events...)
		return true
	})
	return d
}

// Restore loads a dump into the engine and advances every id allocator
// past the largest restored id, so new writes never collide.
func (e *Engine) Restore(d Dump) {
	for _, m := range d.Memories {
		e.memories.Set(m.ID, m)
		advance(&e.nextMemoryID, m.ID)
	}
	for _, en := range d.Entities {
		e.entities.Set(en.ID, en)
		advance(&e.nextEntityID, en.ID)
	}
	for _, r := range d.Relationships {
		e.relationships.Set(r.ID, r)
		advance(&e.nextRelationshipID, r.ID)
	}
	for _, ep := range d.Episodes {
		e.episodes.Set(ep.ID, ep)
		advance(&e.nextEpisodeID, ep.ID)
	}
	for _, a := range d.Agents {
		e.agents.Set(a.AgentID, a)
	}
	for id, entries := range d.History {
		e.history.Set(id, append([]types.MemoryHistory(nil), entries...))
		for _, h := range entries {
			advance(&e.nextHistoryID, h.ID)
		}
	}
	for _, t := range d.Tasks {
		e.tasks.Set(t.ID, t)
		advance(&e.nextTaskID, t.ID)
	}
	for id, events := range d.TaskEvents {
		e.taskEvents.Set(id, append([]types.TaskEvent(nil), events...))
		for _, ev := range events {
			advance(&e.nextTaskEventID, ev.ID)
		}
	}
}

// advance raises the allocator so its next issued id exceeds seen.
func advance(counter *atomic.Int64, seen int64) {
	for {
		cur := counter.Load()
		if cur >= seen {
			return
		}
		if counter.CompareAndSwap(cur, seen) {
			return
		}
	}
}
