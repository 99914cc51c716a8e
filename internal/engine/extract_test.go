package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/hivemind-db/hivemind/internal/extraction"
	"github.com/hivemind-db/hivemind/internal/types"
)

type fakeExtractor struct {
	available bool
	result    *extraction.Result
	err       error
	gotCount  int
}

func (f *fakeExtractor) Available() bool { return f.available }

func (f *fakeExtractor) Extract(_ context.Context, _ []types.ConversationMessage, existing []types.Memory) (*extraction.Result, error) {
	f.gotCount = len(existing)
	return f.result, f.err
}

func extractReq() types.ExtractRequest {
	return types.ExtractRequest{
		Messages: []types.ConversationMessage{{Role: "user", Content: "I moved to Rust"}},
		AgentID:  "agent-1",
		UserID:   "ludde",
	}
}

func TestExtractAndStoreUnavailable(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetExtractor(&fakeExtractor{available: false})

	_, err := e.ExtractAndStore(context.Background(), extractReq())
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}

	e2, _ := newTestEngine(t)
	if _, err := e2.ExtractAndStore(context.Background(), extractReq()); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("nil extractor err = %v, want ErrProviderUnavailable", err)
	}
}

func TestExtractAndStoreAppliesFacts(t *testing.T) {
	e, _ := newTestEngine(t)

	old, err := e.AddMemory(types.AddMemoryRequest{
		Content: "User likes Python",
		AgentID: "agent-1",
		UserID:  "ludde",
	})
	if err != nil {
		t.Fatal(err)
	}

	fx := &fakeExtractor{
		available: true,
		result: &extraction.Result{
			Facts: []extraction.Fact{
				{
					Content:    "User prefers Rust",
					MemoryType: types.MemoryTypeFact,
					Confidence: 0.9,
					Tags:       []string{"languages"},
					Operation:  extraction.OpAdd,
				},
				{
					Content:         "User switched from Python to Rust",
					MemoryType:      types.MemoryTypeFact,
					Confidence:      0.8,
					Operation:       extraction.OpUpdate,
					UpdatesMemoryID: &old.ID,
				},
				{
					Content:   "User exists",
					Operation: extraction.OpNoop,
				},
			},
		},
	}
	e.SetExtractor(fx)

	resp, err := e.ExtractAndStore(context.Background(), extractReq())
	if err != nil {
		t.Fatal(err)
	}
	if fx.gotCount != 1 {
		t.Errorf("extractor saw %d existing memories, want 1", fx.gotCount)
	}
	if len(resp.MemoriesAdded) != 1 || resp.MemoriesAdded[0].Content != "User prefers Rust" {
		t.Errorf("added = %+v", resp.MemoriesAdded)
	}
	if len(resp.MemoriesUpdated) != 1 || resp.MemoriesUpdated[0].ID != old.ID {
		t.Errorf("updated = %+v", resp.MemoriesUpdated)
	}
	if resp.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", resp.Skipped)
	}

	updated, err := e.GetMemory(old.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Content != "User switched from Python to Rust" {
		t.Errorf("updated content = %q", updated.Content)
	}
	if updated.Confidence != 0.8 {
		t.Errorf("updated confidence = %v", updated.Confidence)
	}
}

func TestExtractAndStoreUpdateWithoutTargetAdds(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetExtractor(&fakeExtractor{
		available: true,
		result: &extraction.Result{
			Facts: []extraction.Fact{{
				Content:    "Orphan update becomes a new memory",
				MemoryType: types.MemoryTypeFact,
				Operation:  extraction.OpUpdate,
			}},
		},
	})

	resp, err := e.ExtractAndStore(context.Background(), extractReq())
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.MemoriesAdded) != 1 || len(resp.MemoriesUpdated) != 0 {
		t.Errorf("added/updated = %d/%d, want 1/0", len(resp.MemoriesAdded), len(resp.MemoriesUpdated))
	}
}

func TestExtractAndStoreGraph(t *testing.T) {
	e, _ := newTestEngine(t)

	// Rust already exists with different casing; extraction must not
	// duplicate it.
	if _, err := e.AddEntity(types.AddEntityRequest{Name: "rust", EntityType: "Language"}); err != nil {
		t.Fatal(err)
	}

	e.SetExtractor(&fakeExtractor{
		available: true,
		result: &extraction.Result{
			Entities: []extraction.Entity{
				{Name: "Rust", EntityType: "Language"},
				{Name: "Ludde", EntityType: "Person"},
			},
			Relationships: []extraction.Relationship{
				{SourceEntity: "Ludde", TargetEntity: "Rust", RelationType: "prefers"},
				{SourceEntity: "Ludde", TargetEntity: "Unknown", RelationType: "uses"},
			},
		},
	})

	resp, err := e.ExtractAndStore(context.Background(), extractReq())
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.EntitiesAdded) != 1 || resp.EntitiesAdded[0].Name != "Ludde" {
		t.Errorf("entities added = %+v", resp.EntitiesAdded)
	}
	if len(resp.RelationshipsAdded) != 1 {
		t.Fatalf("relationships added = %+v", resp.RelationshipsAdded)
	}
	rel := resp.RelationshipsAdded[0]
	if rel.RelationType != "prefers" || rel.Weight != 1.0 {
		t.Errorf("relationship = %+v", rel)
	}
}

func TestExtractAndStorePropagatesExtractorError(t *testing.T) {
	e, _ := newTestEngine(t)
	wantErr := errors.New("model melted")
	e.SetExtractor(&fakeExtractor{available: true, err: wantErr})

	_, err := e.ExtractAndStore(context.Background(), extractReq())
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v", err)
	}
}
