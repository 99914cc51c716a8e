package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/hivemind-db/hivemind/internal/types"
)

// AddEntity creates a knowledge-graph node. The original name casing is
// stored; de-duplication by name is the caller's concern (extraction
// matches case-insensitively via FindEntityByName).
func (e *Engine) AddEntity(req types.AddEntityRequest) (types.Entity, error) {
	if req.Name == "" {
		return types.Entity{}, fmt.Errorf("entity name cannot be empty")
	}
	now := time.Now().UTC()
	ent := types.Entity{
		ID:          e.nextEntityID.Add(1),
		Name:        req.Name,
		EntityType:  req.EntityType,
		Description: req.Description,
		AgentID:     req.AgentID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Metadata:    req.Metadata,
	}
	e.entities.Set(ent.ID, ent)
	e.emit(types.ReplicationEvent{Type: types.EventEntityAdded, Entity: &ent})
	return ent, nil
}

// GetEntity returns a copy of the entity, or ErrNotFound.
func (e *Engine) GetEntity(id int64) (types.Entity, error) {
	ent, ok := e.entities.Get(id)
	if !ok {
		return types.Entity{}, fmt.Errorf("entity %d: %w", id, ErrNotFound)
	}
	return ent.Clone(), nil
}

// FindEntityByName returns the entity whose name matches case-insensitively.
func (e *Engine) FindEntityByName(name string) (types.Entity, error) {
	var found types.Entity
	ok := false
	e.entities.Range(func(_ int64, ent types.Entity) bool {
		if strings.EqualFold(ent.Name, name) {
			found = ent
			ok = true
			return false
		}
		return true
	})
	if !ok {
		return types.Entity{}, fmt.Errorf("entity %q: %w", name, ErrNotFound)
	}
	return found.Clone(), nil
}

// AddRelationship creates a directed edge. Endpoints are not checked for
// existence: integrity is weak and traversal skips dangling edges.
func (e *Engine) AddRelationship(req types.AddRelationshipRequest) (types.Relationship, error) {
	weight := req.Weight
	if weight == 0 {
		weight = 1.0
	}
	now := time.Now().UTC()
	rel := types.Relationship{
		ID:             e.nextRelationshipID.Add(1),
		SourceEntityID: req.SourceEntityID,
		TargetEntityID: req.TargetEntityID,
		RelationType:   req.RelationType,
		Description:    req.Description,
		Weight:         weight,
		ValidFrom:      now,
		CreatedBy:      req.CreatedBy,
		Metadata:       req.Metadata,
	}
	e.relationships.Set(rel.ID, rel)
	e.emit(types.ReplicationEvent{Type: types.EventRelationshipAdded, Relationship: &rel})
	return rel, nil
}

// GetEntityRelationships returns every live relationship where the entity
// is either endpoint, paired with the entity at the other end. Edges whose
// other endpoint no longer exists are skipped.
func (e *Engine) GetEntityRelationships(entityID int64) []types.EntityRelationship {
	out := make([]types.EntityRelationship, 0)
	e.relationships.Range(func(_ int64, rel types.Relationship) bool {
		if !rel.IsCurrent() {
			return true
		}
		var otherID int64
		switch entityID {
		case rel.SourceEntityID:
			otherID = rel.TargetEntityID
		case rel.TargetEntityID:
			otherID = rel.SourceEntityID
		default:
			return true
		}
		other, ok := e.entities.Get(otherID)
		if !ok {
			return true
		}
		out = append(out, types.EntityRelationship{Relationship: rel.Clone(), Entity: other.Clone()})
		return true
	})
	return out
}

// TraverseGraph performs a bounded-depth, loop-safe walk from the starting
// entity. Result order across nodes is unspecified beyond the breadth-first
// frontier discipline.
func (e *Engine) TraverseGraph(startID int64, depth int) []types.TraversalNode {
	type frame struct {
		id    int64
		depth int
	}

	visited := make(map[int64]bool)
	frontier := []frame{{id: startID, depth: 0}}
	out := make([]types.TraversalNode, 0)

	for len(frontier) > 0 {
		f := frontier[0]
		frontier = frontier[1:]
		if f.depth > depth || visited[f.id] {
			continue
		}
		visited[f.id] = true

		ent, ok := e.entities.Get(f.id)
		if !ok {
			continue
		}

		related := e.GetEntityRelationships(f.id)
		rels := make([]types.Relationship, 0, len(related))
		for _, er := range related {
			rels = append(rels, er.Relationship)
			if !visited[er.Entity.ID] {
				frontier = append(frontier, frame{id: er.Entity.ID, depth: f.depth + 1})
			}
		}
		out = append(out, types.TraversalNode{Entity: ent.Clone(), Relationships: rels})
	}
	return out
}
