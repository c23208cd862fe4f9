package store

import (
	"context"
	"errors"
)

// ErrDimensionMismatch 块向量维度与索引不一致。
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Chunk 政策文档中的一个索引片段。
type Chunk struct {
	// ID 形如 {stem}_chunk_{ordinal}。
	ID string `json:"id"`
	// Text 片段内容。
	Text string `json:"text"`
	// Source 文档文件名。
	Source string `json:"source"`
	// Ordinal 块在文档中的序号。
	Ordinal int `json:"ordinal"`
	// Embedding 片段向量。
	Embedding []float32 `json:"-"`
}

// SearchResult 带相似度分数的块。
type SearchResult struct {
	*Chunk
	Score float32 `json:"score"`
}

// VectorStore 文档检索背后的相似度索引。
type VectorStore interface {
	// Replace 丢弃当前全部块，将 chunks 存为指定代。失败时保留原内容。
	Replace(ctx context.Context, generation string, chunks []*Chunk) error
	// Search 按相似度降序返回至多 topK 个块。
	Search(ctx context.Context, embedding []float32, topK int) ([]*SearchResult, error)
	// Count 返回已索引的块数。
	Count(ctx context.Context) (int64, error)
	// Generation 返回当前内容的代号，未索引时为空。
	Generation(ctx context.Context) (string, error)
	// Name 返回后端名称。
	Name() string
	Close(ctx context.Context) error
}

func checkDimensions(chunks []*Chunk, dim int) error {
	for _, c := range chunks {
		if dim > 0 && len(c.Embedding) != dim {
			return ErrDimensionMismatch
		}
		if dim <= 0 {
			dim = len(c.Embedding)
		}
	}
	return nil
}
