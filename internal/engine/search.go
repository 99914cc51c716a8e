package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/hivemind-db/hivemind/internal/embeddings"
	"github.com/hivemind-db/hivemind/internal/types"
)

// Hybrid search blends keyword and vector scores. Vector-only hits are
// admitted above a minimum similarity.
const (
	keywordWeight      = 0.3
	vectorWeight       = 0.7
	vectorOnlyMinScore = 0.3
)

// SearchMemories runs keyword search, blended with vector similarity when
// the embedding index is available and non-empty.
func (e *Engine) SearchMemories(ctx context.Context, req types.SearchRequest) ([]types.SearchResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = types.DefaultSearchLimit
	}

	results := e.keywordSearch(req, limit)

	if e.index.Available() && e.index.Size() > 0 {
		vectorScores, err := e.index.SearchByVector(ctx, req.Query, 2*limit)
		if err != nil {
			// Vector search is an enhancement; keyword results stand.
			e.log.Warn("vector search failed, returning keyword results", "error", err)
		} else if len(vectorScores) > 0 {
			results = e.blendResults(results, vectorScores, req, limit)
		}
	}

	if req.IncludeGraph {
		for i := range results {
			e.attachGraphContext(&results[i])
		}
	}
	return results, nil
}

// keywordSearch scores currently-valid, scope-matching memories by word
// overlap with the query. Ties are broken by id, which matches insertion
// order.
func (e *Engine) keywordSearch(req types.SearchRequest, limit int) []types.SearchResult {
	query := strings.ToLower(req.Query)

	candidates := make([]types.Memory, 0)
	e.memories.Range(func(_ int64, mem types.Memory) bool {
		if e.matchesFilters(&mem, &req) && matchesQuery(&mem, query) {
			candidates = append(candidates, mem.Clone())
		}
		return true
	})
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	results := make([]types.SearchResult, 0, len(candidates))
	for _, mem := range candidates {
		results = append(results, types.SearchResult{
			Memory: mem,
			Score:  keywordScore(&mem, query),
		})
	}
	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// matchesScope applies validity and agent/user scoping: a memory passes
// when it is current and its agent/user scoping is absent or matches the
// request.
func (e *Engine) matchesScope(mem *types.Memory, req *types.SearchRequest) bool {
	if !mem.IsCurrent() {
		return false
	}
	if req.AgentID != "" && mem.AgentID != "" && mem.AgentID != req.AgentID {
		return false
	}
	if req.UserID != "" && mem.UserID != "" && mem.UserID != req.UserID {
		return false
	}
	return true
}

// matchesFilters narrows matchesScope further by requiring every requested
// tag. Keyword candidates go through this; vector-only admission does not,
// so a semantically close memory is not dropped for lacking a tag.
func (e *Engine) matchesFilters(mem *types.Memory, req *types.SearchRequest) bool {
	if !e.matchesScope(mem, req) {
		return false
	}
	for _, want := range req.Tags {
		found := false
		for _, tag := range mem.Tags {
			if tag == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func matchesQuery(mem *types.Memory, query string) bool {
	if strings.Contains(strings.ToLower(mem.Content), query) {
		return true
	}
	for _, tag := range mem.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}

// keywordScore is a word-overlap ratio: 1.0 on a full-content match,
// otherwise the fraction of query tokens contained in the content.
func keywordScore(mem *types.Memory, query string) float64 {
	content := strings.ToLower(mem.Content)
	if content == query {
		return 1.0
	}
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		return 0
	}
	hits := 0
	for _, tok := range tokens {
		if strings.Contains(content, tok) {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}

// blendResults merges vector similarities into the keyword result set:
// keyword hits with a vector score get 0.3·keyword + 0.7·vector, and
// vector-only ids above the admission threshold join with 0.7·vector when
// they pass validity and agent/user scoping. The tag filter applies only to
// keyword candidates.
func (e *Engine) blendResults(keyword []types.SearchResult, vector []embeddings.Scored, req types.SearchRequest, limit int) []types.SearchResult {
	vecByID := make(map[int64]float64, len(vector))
	for _, v := range vector {
		vecByID[v.MemoryID] = v.Score
	}

	inKeyword := make(map[int64]bool, len(keyword))
	for i := range keyword {
		id := keyword[i].Memory.ID
		inKeyword[id] = true
		if vs, ok := vecByID[id]; ok {
			keyword[i].Score = keywordWeight*keyword[i].Score + vectorWeight*vs
		}
	}

	for _, v := range vector {
		if inKeyword[v.MemoryID] || v.Score <= vectorOnlyMinScore {
			continue
		}
		mem, ok := e.memories.Get(v.MemoryID)
		if !ok || !e.matchesScope(&mem, &req) {
			continue
		}
		keyword = append(keyword, types.SearchResult{
			Memory: mem.Clone(),
			Score:  vectorWeight * v.Score,
		})
	}

	sortResults(keyword)
	if len(keyword) > limit {
		keyword = keyword[:limit]
	}
	return keyword
}

// attachGraphContext adds entities whose names appear in the memory
// content, together with their live relationships.
func (e *Engine) attachGraphContext(res *types.SearchResult) {
	content := strings.ToLower(res.Memory.Content)
	e.entities.Range(func(_ int64, ent types.Entity) bool {
		if ent.Name != "" && strings.Contains(content, strings.ToLower(ent.Name)) {
			res.RelatedEntities = append(res.RelatedEntities, ent)
			for _, er := range e.GetEntityRelationships(ent.ID) {
				res.RelatedRelationships = append(res.RelatedRelationships, er.Relationship)
			}
		}
		return true
	})
	sort.Slice(res.RelatedEntities, func(i, j int) bool {
		return res.RelatedEntities[i].ID < res.RelatedEntities[j].ID
	})
}

func sortResults(results []types.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})
}
