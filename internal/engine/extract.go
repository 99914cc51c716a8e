package engine

import (
	"context"
	"fmt"

	"github.com/hivemind-db/hivemind/internal/extraction"
	"github.com/hivemind-db/hivemind/internal/types"
)

// Extractor mines facts, entities, and relationships out of a conversation.
// Implemented by extraction.Pipeline; tests substitute fakes.
type Extractor interface {
	Available() bool
	Extract(ctx context.Context, messages []types.ConversationMessage, existing []types.Memory) (*extraction.Result, error)
}

// SetExtractor installs the extraction pipeline. A nil extractor leaves
// ExtractAndStore unavailable.
func (e *Engine) SetExtractor(x Extractor) {
	e.extractor = x
}

// ExtractAndStore runs the extraction pipeline over the conversation and
// applies the result: facts become memory adds or updates, entities and
// relationships land in the graph. Entities are de-duplicated by name, and
// a relationship is stored only when both endpoints resolve.
func (e *Engine) ExtractAndStore(ctx context.Context, req types.ExtractRequest) (types.ExtractResponse, error) {
	resp := types.ExtractResponse{
		MemoriesAdded:      []types.Memory{},
		MemoriesUpdated:    []types.Memory{},
		EntitiesAdded:      []types.Entity{},
		RelationshipsAdded: []types.Relationship{},
	}
	if e.extractor == nil || !e.extractor.Available() {
		return resp, fmt.Errorf("extraction pipeline not configured, set an LLM API key or use a local provider: %w", ErrProviderUnavailable)
	}
	if len(req.Messages) == 0 {
		return resp, fmt.Errorf("messages cannot be empty")
	}

	existing := e.ListMemories(req.AgentID, req.UserID, false)
	result, err := e.extractor.Extract(ctx, req.Messages, existing)
	if err != nil {
		return resp, err
	}

	changedBy := req.AgentID
	if changedBy == "" {
		changedBy = "extraction"
	}

	for _, fact := range result.Facts {
		switch {
		case fact.Operation == extraction.OpNoop:
			resp.Skipped++
		case fact.Operation == extraction.OpUpdate && fact.UpdatesMemoryID != nil:
			content := fact.Content
			conf := clamp01(fact.Confidence)
			tags := append([]string(nil), fact.Tags...)
			mem, err := e.UpdateMemory(*fact.UpdatesMemoryID, types.UpdateMemoryRequest{
				Content:    &content,
				Tags:       &tags,
				Confidence: &conf,
			}, changedBy)
			if err != nil {
				e.log.Warn("extraction update failed", "memory_id", *fact.UpdatesMemoryID, "error", err)
				resp.Skipped++
				continue
			}
			resp.MemoriesUpdated = append(resp.MemoriesUpdated, mem)
		default:
			// Adds, and updates whose target memory was never named.
			mem, err := e.AddMemory(types.AddMemoryRequest{
				Content:    fact.Content,
				MemoryType: fact.MemoryType,
				AgentID:    req.AgentID,
				UserID:     req.UserID,
				SessionID:  req.SessionID,
				Tags:       fact.Tags,
				Metadata:   extractionMetadata(fact.Confidence),
			})
			if err != nil {
				e.log.Warn("extraction add failed", "error", err)
				resp.Skipped++
				continue
			}
			resp.MemoriesAdded = append(resp.MemoriesAdded, mem)
		}
	}

	for _, ent := range result.Entities {
		if _, err := e.FindEntityByName(ent.Name); err == nil {
			continue
		}
		added, err := e.AddEntity(types.AddEntityRequest{
			Name:        ent.Name,
			EntityType:  ent.EntityType,
			Description: ent.Description,
			AgentID:     req.AgentID,
		})
		if err != nil {
			e.log.Warn("extraction entity add failed", "name", ent.Name, "error", err)
			continue
		}
		resp.EntitiesAdded = append(resp.EntitiesAdded, added)
	}

	for _, rel := range result.Relationships {
		source, err := e.FindEntityByName(rel.SourceEntity)
		if err != nil {
			continue
		}
		target, err := e.FindEntityByName(rel.TargetEntity)
		if err != nil {
			continue
		}
		added, err := e.AddRelationship(types.AddRelationshipRequest{
			SourceEntityID: source.ID,
			TargetEntityID: target.ID,
			RelationType:   rel.RelationType,
			Description:    rel.Description,
			Weight:         1.0,
			CreatedBy:      changedBy,
			Metadata:       []byte(`{"extracted":true}`),
		})
		if err != nil {
			e.log.Warn("extraction relationship add failed", "error", err)
			continue
		}
		resp.RelationshipsAdded = append(resp.RelationshipsAdded, added)
	}

	return resp, nil
}

func extractionMetadata(confidence float64) []byte {
	return []byte(fmt.Sprintf(`{"confidence":%g,"extracted":true}`, clamp01(confidence)))
}
