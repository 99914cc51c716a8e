package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/hivemind-db/hivemind/internal/channels"
	"github.com/hivemind-db/hivemind/internal/embeddings"
	"github.com/hivemind-db/hivemind/internal/types"
)

// captureSink records replication events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []types.ReplicationEvent
}

func (c *captureSink) Emit(evt types.ReplicationEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureSink) typesSeen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	hub := channels.NewHub(slog.Default())
	index := embeddings.NewIndex(nil, slog.Default())
	return New(hub, index, sink, slog.Default()), sink
}

func addMemory(t *testing.T, e *Engine, content string) types.Memory {
	t.Helper()
	mem, err := e.AddMemory(types.AddMemoryRequest{Content: content})
	if err != nil {
		t.Fatalf("AddMemory(%q): %v", content, err)
	}
	return mem
}

func strptr(s string) *string { return &s }

func TestMemoryLifecycleHistory(t *testing.T) {
	e, _ := newTestEngine(t)

	mem := addMemory(t, e, "User likes Python")
	if mem.ID != 1 {
		t.Fatalf("first memory id = %d", mem.ID)
	}
	if mem.Source != "unknown" {
		t.Errorf("source = %q", mem.Source)
	}

	updated, err := e.UpdateMemory(1, types.UpdateMemoryRequest{
		Content: strptr("User prefers Rust over Python"),
		Tags:    &[]string{"preferences", "languages"},
	}, "test-agent")
	if err != nil {
		t.Fatalf("UpdateMemory: %v", err)
	}
	if updated.Content != "User prefers Rust over Python" {
		t.Errorf("content = %q", updated.Content)
	}
	if len(updated.Tags) != 2 {
		t.Errorf("tags = %v", updated.Tags)
	}

	if _, err := e.InvalidateMemory(1, "outdated", "test"); err != nil {
		t.Fatalf("InvalidateMemory: %v", err)
	}

	history, err := e.GetMemoryHistory(1)
	if err != nil {
		t.Fatalf("GetMemoryHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	wantOps := []types.HistoryOperation{types.OperationAdd, types.OperationUpdate, types.OperationInvalidate}
	for i, want := range wantOps {
		if history[i].Operation != want {
			t.Errorf("history[%d].Operation = %s, want %s", i, history[i].Operation, want)
		}
	}
	if history[1].OldContent == nil || *history[1].OldContent != "User likes Python" {
		t.Error("update entry should capture the pre-write content")
	}
	if history[2].NewContent != "User prefers Rust over Python" {
		t.Errorf("invalidate entry content = %q", history[2].NewContent)
	}
}

func TestInvalidateTwiceLastWriteWins(t *testing.T) {
	e, _ := newTestEngine(t)
	mem := addMemory(t, e, "ephemeral")

	first, err := e.InvalidateMemory(mem.ID, "first", "a")
	if err != nil {
		t.Fatalf("first invalidate: %v", err)
	}
	second, err := e.InvalidateMemory(mem.ID, "second", "b")
	if err != nil {
		t.Fatalf("second invalidate: %v", err)
	}
	if second.ValidUntil == nil || first.ValidUntil == nil {
		t.Fatal("valid_until not set")
	}
	if second.ValidUntil.Before(*first.ValidUntil) {
		t.Error("second invalidation must overwrite valid_until forward")
	}

	history, _ := e.GetMemoryHistory(mem.ID)
	if len(history) != 3 {
		t.Fatalf("history length = %d, want add + 2 invalidates", len(history))
	}
	if history[2].Reason != "second" {
		t.Errorf("last entry reason = %q", history[2].Reason)
	}
}

func TestReadsReturnIndependentCopies(t *testing.T) {
	e, _ := newTestEngine(t)

	mem, err := e.AddMemory(types.AddMemoryRequest{
		Content: "prefers dark mode",
		Tags:    []string{"preferences"},
	})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := e.GetMemory(mem.ID)
	got.Tags[0] = "clobbered"
	again, _ := e.GetMemory(mem.ID)
	if again.Tags[0] != "preferences" {
		t.Error("mutating a returned memory's tags must not touch the store")
	}

	if _, err := e.UpdateMemory(mem.ID, types.UpdateMemoryRequest{
		Content: strptr("prefers light mode"),
	}, "test"); err != nil {
		t.Fatal(err)
	}
	hist, _ := e.GetMemoryHistory(mem.ID)
	*hist[1].OldContent = "clobbered"
	hist2, _ := e.GetMemoryHistory(mem.ID)
	if *hist2[1].OldContent != "prefers dark mode" {
		t.Error("mutating returned history old_content must not touch the store")
	}

	if _, err := e.RegisterAgent(types.RegisterAgentRequest{
		AgentID: "copy-agent", Capabilities: []string{"search"},
	}); err != nil {
		t.Fatal(err)
	}
	agent, _ := e.GetAgent("copy-agent")
	agent.Capabilities[0] = "clobbered"
	agent2, _ := e.GetAgent("copy-agent")
	if agent2.Capabilities[0] != "search" {
		t.Error("mutating returned agent capabilities must not touch the store")
	}

	task, err := e.CreateTask(types.CreateTaskRequest{
		Title: "copy check", RequiredCapabilities: []string{"go"},
	})
	if err != nil {
		t.Fatal(err)
	}
	task.RequiredCapabilities[0] = "clobbered"
	taskAgain, _ := e.GetTask(task.ID)
	if taskAgain.RequiredCapabilities[0] != "go" {
		t.Error("mutating returned task capabilities must not touch the store")
	}
}

func TestUpdateMissingMemory(t *testing.T) {
	e, _ := newTestEngine(t)
	if _, err := e.UpdateMemory(99, types.UpdateMemoryRequest{}, "x"); !errorsIsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := e.InvalidateMemory(99, "r", "x"); !errorsIsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := e.GetMemoryHistory(99); !errorsIsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMonotonicIDsUnderConcurrency(t *testing.T) {
	e, _ := newTestEngine(t)

	const workers = 8
	const perWorker = 50
	ids := make(chan int64, workers*perWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				mem := addMemory(t, e, "concurrent")
				ids <- mem.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != workers*perWorker {
		t.Errorf("issued %d ids", len(seen))
	}
}

func TestSearchAndFilters(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.AddMemory(types.AddMemoryRequest{
		Content: "User prefers dark mode", UserID: "ludde", Tags: []string{"preferences", "ui"},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddMemory(types.AddMemoryRequest{
		Content: "User likes Italian food", UserID: "ludde", Tags: []string{"preferences", "food"},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddMemory(types.AddMemoryRequest{
		Content: "RaftTimeDB uses openraft", Tags: []string{"technical"},
	}); err != nil {
		t.Fatal(err)
	}

	hits, err := e.SearchMemories(ctx, types.SearchRequest{Query: "dark mode"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("dark mode hits = %d, want 1", len(hits))
	}
	if hits[0].Memory.Content != "User prefers dark mode" {
		t.Errorf("hit content = %q", hits[0].Memory.Content)
	}

	hits, err = e.SearchMemories(ctx, types.SearchRequest{
		Query: "preferences", Tags: []string{"preferences"},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("preferences hits = %d, want 2", len(hits))
	}
}

func TestSearchExcludesInvalidated(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	mem := addMemory(t, e, "temporary knowledge")
	if _, err := e.InvalidateMemory(mem.ID, "stale", "test"); err != nil {
		t.Fatal(err)
	}

	hits, _ := e.SearchMemories(ctx, types.SearchRequest{Query: "temporary"})
	if len(hits) != 0 {
		t.Errorf("invalidated memory surfaced in search: %d hits", len(hits))
	}

	listed := e.ListMemories("", "", true)
	if len(listed) != 1 {
		t.Errorf("include_invalidated list = %d entries", len(listed))
	}
	listed = e.ListMemories("", "", false)
	if len(listed) != 0 {
		t.Errorf("default list should hide invalidated, got %d", len(listed))
	}
}

func TestSearchScopingRules(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.AddMemory(types.AddMemoryRequest{Content: "shared note about config"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddMemory(types.AddMemoryRequest{Content: "private note about config", AgentID: "agent-a"}); err != nil {
		t.Fatal(err)
	}

	// Unscoped memories match any requested agent; scoped ones only their own.
	hits, _ := e.SearchMemories(ctx, types.SearchRequest{Query: "config", AgentID: "agent-b"})
	if len(hits) != 1 {
		t.Fatalf("agent-b hits = %d, want 1", len(hits))
	}
	hits, _ = e.SearchMemories(ctx, types.SearchRequest{Query: "config", AgentID: "agent-a"})
	if len(hits) != 2 {
		t.Fatalf("agent-a hits = %d, want 2", len(hits))
	}
}

func TestSearchIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	for _, c := range []string{"alpha beta", "beta gamma", "alpha gamma", "alpha beta gamma"} {
		addMemory(t, e, c)
	}

	first, _ := e.SearchMemories(ctx, types.SearchRequest{Query: "alpha gamma"})
	second, _ := e.SearchMemories(ctx, types.SearchRequest{Query: "alpha gamma"})
	if len(first) != len(second) {
		t.Fatalf("result lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Memory.ID != second[i].Memory.ID || first[i].Score != second[i].Score {
			t.Errorf("result %d differs: (%d, %f) vs (%d, %f)", i,
				first[i].Memory.ID, first[i].Score, second[i].Memory.ID, second[i].Score)
		}
	}
}

func TestGraphTraversal(t *testing.T) {
	e, _ := newTestEngine(t)

	a, _ := e.AddEntity(types.AddEntityRequest{Name: "A", EntityType: "Node"})
	b, _ := e.AddEntity(types.AddEntityRequest{Name: "B", EntityType: "Node"})
	c, _ := e.AddEntity(types.AddEntityRequest{Name: "C", EntityType: "Node"})

	if _, err := e.AddRelationship(types.AddRelationshipRequest{
		SourceEntityID: a.ID, TargetEntityID: b.ID, RelationType: "connects", CreatedBy: "t",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddRelationship(types.AddRelationshipRequest{
		SourceEntityID: b.ID, TargetEntityID: c.ID, RelationType: "connects", CreatedBy: "t",
	}); err != nil {
		t.Fatal(err)
	}

	names := func(nodes []types.TraversalNode) map[string]bool {
		out := make(map[string]bool)
		for _, n := range nodes {
			out[n.Entity.Name] = true
		}
		return out
	}

	depth1 := names(e.TraverseGraph(a.ID, 1))
	if len(depth1) != 2 || !depth1["A"] || !depth1["B"] {
		t.Errorf("traverse depth 1 = %v, want {A, B}", depth1)
	}

	depth2 := names(e.TraverseGraph(a.ID, 2))
	if len(depth2) != 3 || !depth2["C"] {
		t.Errorf("traverse depth 2 = %v, want {A, B, C}", depth2)
	}
}

func TestTraversalLoopSafe(t *testing.T) {
	e, _ := newTestEngine(t)
	a, _ := e.AddEntity(types.AddEntityRequest{Name: "A", EntityType: "Node"})
	b, _ := e.AddEntity(types.AddEntityRequest{Name: "B", EntityType: "Node"})
	_, _ = e.AddRelationship(types.AddRelationshipRequest{SourceEntityID: a.ID, TargetEntityID: b.ID, RelationType: "r", CreatedBy: "t"})
	_, _ = e.AddRelationship(types.AddRelationshipRequest{SourceEntityID: b.ID, TargetEntityID: a.ID, RelationType: "r", CreatedBy: "t"})

	nodes := e.TraverseGraph(a.ID, 10)
	if len(nodes) != 2 {
		t.Errorf("cyclic traversal visited %d nodes, want 2", len(nodes))
	}
}

func TestEntityRelationshipsSkipMissingEndpoint(t *testing.T) {
	e, _ := newTestEngine(t)
	a, _ := e.AddEntity(types.AddEntityRequest{Name: "A", EntityType: "Node"})
	// Dangling edge toward an entity that was never restored.
	_, _ = e.AddRelationship(types.AddRelationshipRequest{SourceEntityID: a.ID, TargetEntityID: 999, RelationType: "r", CreatedBy: "t"})

	rels := e.GetEntityRelationships(a.ID)
	if len(rels) != 0 {
		t.Errorf("dangling edge surfaced: %v", rels)
	}
}

func TestFindEntityByNameCaseInsensitive(t *testing.T) {
	e, _ := newTestEngine(t)
	ent, _ := e.AddEntity(types.AddEntityRequest{Name: "HiveMind", EntityType: "Project"})

	found, err := e.FindEntityByName("hivemind")
	if err != nil {
		t.Fatalf("FindEntityByName: %v", err)
	}
	if found.ID != ent.ID || found.Name != "HiveMind" {
		t.Errorf("found %+v, original casing must be preserved", found)
	}
	if _, err := e.FindEntityByName("absent"); !errorsIsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAgentRegistrationAndHeartbeat(t *testing.T) {
	e, sink := newTestEngine(t)

	agent, err := e.RegisterAgent(types.RegisterAgentRequest{
		AgentID: "worker-1", Name: "Worker", AgentType: "coder", Capabilities: []string{"go"},
	})
	if err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	if agent.Status != types.AgentOnline {
		t.Errorf("status = %s", agent.Status)
	}

	addMemory(t, e, "unscoped")
	if _, err := e.AddMemory(types.AddMemoryRequest{Content: "scoped", AgentID: "worker-1"}); err != nil {
		t.Fatal(err)
	}
	got, _ := e.GetAgent("worker-1")
	if got.MemoryCount != 1 {
		t.Errorf("memory_count = %d, want 1", got.MemoryCount)
	}

	before := got.LastSeen
	beat, err := e.HeartbeatAgent("worker-1")
	if err != nil {
		t.Fatalf("HeartbeatAgent: %v", err)
	}
	if beat.LastSeen.Before(before) {
		t.Error("heartbeat must advance last_seen")
	}
	if _, err := e.HeartbeatAgent("ghost"); !errorsIsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	found := false
	for _, typ := range sink.typesSeen() {
		if typ == types.EventAgentRegistered {
			found = true
		}
	}
	if !found {
		t.Error("registration did not emit a replication event")
	}
}

func TestReplicationEventOrderPerMemory(t *testing.T) {
	e, sink := newTestEngine(t)

	mem := addMemory(t, e, "v1")
	if _, err := e.UpdateMemory(mem.ID, types.UpdateMemoryRequest{Content: strptr("v2")}, "t"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.InvalidateMemory(mem.ID, "done", "t"); err != nil {
		t.Fatal(err)
	}

	want := []string{types.EventMemoryAdded, types.EventMemoryUpdated, types.EventMemoryInvalidated}
	got := sink.typesSeen()
	if len(got) != len(want) {
		t.Fatalf("event count = %d: %v", len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
