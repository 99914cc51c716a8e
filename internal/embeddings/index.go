package embeddings

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync/atomic"

	"github.com/hivemind-db/hivemind/internal/cmap"
	"github.com/hivemind-db/hivemind/internal/types"
)

// Scored pairs a memory id with its cosine similarity to a query.
type Scored struct {
	MemoryID int64
	Score    float64
}

// Index is the concurrent memory-id → vector mapping. Writes on the main
// mutation path never fail: when the provider is unreachable the write is
// skipped with a warning and the record store stays consistent.
type Index struct {
	embedder   Embedder
	vectors    *cmap.Map[int64, []float32]
	dimensions atomic.Int64
	log        *slog.Logger
}

// NewIndex creates an index backed by the given embedder. A nil embedder
// yields an index that is never available.
func NewIndex(embedder Embedder, log *slog.Logger) *Index {
	return &Index{
		embedder: embedder,
		vectors:  cmap.NewInt64[[]float32](),
		log:      log.With("component", "embeddings"),
	}
}

// Available reports whether vectors can be produced at all.
func (ix *Index) Available() bool {
	return ix.embedder != nil && ix.embedder.Available()
}

// Size returns the number of indexed vectors.
func (ix *Index) Size() int {
	return ix.vectors.Len()
}

// Dimensions returns the length of the most recently observed vector.
func (ix *Index) Dimensions() int {
	return int(ix.dimensions.Load())
}

// IndexMemory computes and stores the vector for one memory, overwriting
// any previous vector for the same id.
func (ix *Index) IndexMemory(ctx context.Context, mem *types.Memory) error {
	if !ix.Available() {
		return nil
	}
	vec, err := ix.embedder.Embed(ctx, mem.Content)
	if err != nil {
		return fmt.Errorf("embed memory %d: %w", mem.ID, err)
	}
	ix.vectors.Set(mem.ID, vec)
	ix.dimensions.Store(int64(len(vec)))
	return nil
}

// BatchIndex indexes several memories with a single provider round trip.
func (ix *Index) BatchIndex(ctx context.Context, mems []*types.Memory) error {
	if !ix.Available() || len(mems) == 0 {
		return nil
	}
	texts := make([]string, len(mems))
	for i, m := range mems {
		texts[i] = m.Content
	}
	vecs, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("batch embed %d memories: %w", len(mems), err)
	}
	for i, vec := range vecs {
		ix.vectors.Set(mems[i].ID, vec)
		ix.dimensions.Store(int64(len(vec)))
	}
	return nil
}

// IndexAsync dispatches indexing as a detached task. Failures are logged
// and swallowed; the originating mutation has already committed.
func (ix *Index) IndexAsync(mem *types.Memory) {
	if !ix.Available() {
		return
	}
	m := *mem
	go func() {
		if err := ix.IndexMemory(context.Background(), &m); err != nil {
			ix.log.Warn("embedding index failed", "memory_id", m.ID, "error", err)
		}
	}()
}

// Remove evicts a memory's vector.
func (ix *Index) Remove(memoryID int64) {
	ix.vectors.Delete(memoryID)
}

// SearchByVector embeds the query and returns up to k (id, similarity)
// pairs sorted by similarity descending.
func (ix *Index) SearchByVector(ctx context.Context, query string, k int) ([]Scored, error) {
	if !ix.Available() {
		return nil, nil
	}
	qvec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results := make([]Scored, 0, ix.vectors.Len())
	ix.vectors.Range(func(id int64, vec []float32) bool {
		results = append(results, Scored{MemoryID: id, Score: Cosine(qvec, vec)})
		return true
	})
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].MemoryID < results[j].MemoryID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Cosine computes cosine similarity between two vectors. It returns 0 when
// either vector is empty, the lengths differ, or either norm is zero.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
