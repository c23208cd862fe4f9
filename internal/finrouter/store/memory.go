package store

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

type snapshot struct {
	generation string
	chunks     []*Chunk
	norms      []float64
}

// MemoryStore 进程内暴力余弦检索索引。
//
// 每次 Replace 构建新的不可变快照并以一次原子交换发布，检索总是只看到一代内容。
type MemoryStore struct {
	dimension int
	writeMu   sync.Mutex
	active    atomic.Pointer[snapshot]
}

var _ VectorStore = (*MemoryStore)(nil)

// NewMemoryStore 创建空索引。dimension 为 0 时采用首代的维度。
func NewMemoryStore(dimension int) *MemoryStore {
	s := &MemoryStore{dimension: dimension}
	s.active.Store(&snapshot{})
	return s
}

// Replace 将 chunks 发布为新一代。
func (s *MemoryStore) Replace(_ context.Context, generation string, chunks []*Chunk) error {
	if err := checkDimensions(chunks, s.dimension); err != nil {
		return err
	}

	snap := &snapshot{
		generation: generation,
		chunks:     make([]*Chunk, len(chunks)),
		norms:      make([]float64, len(chunks)),
	}
	for i, c := range chunks {
		cp := *c
		snap.chunks[i] = &cp
		snap.norms[i] = norm(c.Embedding)
	}

	s.writeMu.Lock()
	s.active.Store(snap)
	s.writeMu.Unlock()
	return nil
}

// Search 计算每个块与 embedding 的相似度。
func (s *MemoryStore) Search(_ context.Context, embedding []float32, topK int) ([]*SearchResult, error) {
	snap := s.active.Load()
	if len(snap.chunks) == 0 || topK <= 0 {
		return []*SearchResult{}, nil
	}
	if len(embedding) != len(snap.chunks[0].Embedding) {
		return nil, ErrDimensionMismatch
	}

	qn := norm(embedding)
	results := make([]*SearchResult, len(snap.chunks))
	for i, c := range snap.chunks {
		results[i] = &SearchResult{Chunk: c, Score: cosine(embedding, c.Embedding, qn, snap.norms[i])}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count 返回当前快照的块数。
func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	return int64(len(s.active.Load().chunks)), nil
}

// Generation 返回当前快照的代号。
func (s *MemoryStore) Generation(_ context.Context) (string, error) {
	return s.active.Load().generation, nil
}

// Name 返回 "memory"。
func (s *MemoryStore) Name() string { return "memory" }

// Close 无操作。
func (s *MemoryStore) Close(_ context.Context) error { return nil }

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32, na, nb float64) float32 {
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot / (na * nb))
}
