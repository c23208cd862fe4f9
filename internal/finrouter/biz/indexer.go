package biz

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kart-io/finrouter/internal/finrouter/metrics"
	"github.com/kart-io/finrouter/internal/finrouter/store"
	"github.com/kart-io/finrouter/pkg/infra/tracing"
	"github.com/kart-io/finrouter/pkg/llm"
	apierrors "github.com/kart-io/finrouter/pkg/utils/errors"
	"github.com/kart-io/finrouter/pkg/utils/id"
)

// Document 待索引的原始文档。
type Document struct {
	// Name 文件名，作为来源引用。
	Name string
	// Stem 去掉扩展名的文件名，用于分块 ID。
	Stem string
	Text string
}

// IngestOptions 索引选项。
type IngestOptions struct {
	// ForceReload 为 true 时无条件重建索引。
	ForceReload bool
	// Generation 本次索引的版本标记，为空时生成 ULID。
	Generation string
}

// IngestResult 索引结果。
type IngestResult struct {
	Chunks     int    `json:"chunks"`
	Generation string `json:"generation"`
	Skipped    bool   `json:"skipped"`
}

// IndexerConfig 索引器配置。
type IndexerConfig struct {
	// ChunkSize 文本块大小（字符数）。
	ChunkSize int
	// ChunkOverlap 块重叠大小。
	ChunkOverlap int
}

// Indexer 负责文档切分、向量化与入库。
type Indexer struct {
	store    store.VectorStore
	embedder llm.EmbeddingProvider
	splitter *Splitter

	// 同一时刻只允许一次索引
	mu sync.Mutex
}

// NewIndexer 创建索引器实例。
func NewIndexer(vs store.VectorStore, embedder llm.EmbeddingProvider, config *IndexerConfig) *Indexer {
	if config == nil {
		config = &IndexerConfig{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap}
	}
	return &Indexer{
		store:    vs,
		embedder: embedder,
		splitter: NewSplitter(config.ChunkSize, config.ChunkOverlap),
	}
}

// Ingest 切分并索引文档。
// 索引非空且未要求强制重建时直接返回当前状态；否则所有分块一次批量向量化，一次整体替换入库。
func (i *Indexer) Ingest(ctx context.Context, docs []Document, opts IngestOptions) (*IngestResult, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	ctx, span := tracing.Start(ctx, "finrouter.ingest",
		attribute.Int("finrouter.documents", len(docs)),
		attribute.Bool("finrouter.force_reload", opts.ForceReload),
	)
	result, err := i.ingest(ctx, docs, opts)
	if err != nil {
		tracing.End(span, err)
		metrics.Get().RecordIngest(0, false, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("finrouter.chunks", result.Chunks))
	tracing.End(span, nil)
	metrics.Get().RecordIngest(result.Chunks, result.Skipped, nil)
	return result, nil
}

func (i *Indexer) ingest(ctx context.Context, docs []Document, opts IngestOptions) (*IngestResult, error) {
	if !opts.ForceReload {
		count, err := i.store.Count(ctx)
		if err != nil {
			return nil, apierrors.ErrIndexFailure.WithCause(err)
		}
		if count > 0 {
			generation, err := i.store.Generation(ctx)
			if err != nil {
				return nil, apierrors.ErrIndexFailure.WithCause(err)
			}
			logger.Infow("index already populated, skipping ingest",
				"chunks", count,
				"generation", generation,
			)
			return &IngestResult{Chunks: int(count), Generation: generation, Skipped: true}, nil
		}
	}

	chunks := i.chunk(docs)
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for idx, c := range chunks {
			texts[idx] = c.Text
		}

		embeddings, err := i.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, apierrors.ErrEmbeddingFailure.WithCause(err)
		}
		if len(embeddings) != len(chunks) {
			return nil, apierrors.ErrEmbeddingFailure.WithMessagef(
				"embedding count mismatch: got %d, want %d", len(embeddings), len(chunks))
		}
		for idx, c := range chunks {
			c.Embedding = embeddings[idx]
		}
	}

	generation := opts.Generation
	if generation == "" {
		generation = id.NewULID()
	}
	if err := i.store.Replace(ctx, generation, chunks); err != nil {
		return nil, apierrors.ErrIndexFailure.WithCause(err)
	}

	logger.Infow("documents indexed",
		"documents", len(docs),
		"chunks", len(chunks),
		"generation", generation,
		"store", i.store.Name(),
	)
	return &IngestResult{Chunks: len(chunks), Generation: generation}, nil
}

// chunk 切分所有文档，分块 ID 为 {stem}_chunk_{i}。
func (i *Indexer) chunk(docs []Document) []*store.Chunk {
	var chunks []*store.Chunk
	for _, doc := range docs {
		stem := doc.Stem
		if stem == "" {
			stem = strings.TrimSuffix(doc.Name, filepath.Ext(doc.Name))
		}
		for n, text := range i.splitter.Split(doc.Text) {
			chunks = append(chunks, &store.Chunk{
				ID:      fmt.Sprintf("%s_chunk_%d", stem, n),
				Text:    text,
				Source:  doc.Name,
				Ordinal: n,
			})
		}
	}
	return chunks
}

// LoadDirectory 读取目录下所有 .txt 文档，按文件名排序。目录不存在时返回错误。
func LoadDirectory(dir string) ([]Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("documents directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("documents directory: %s is not a directory", dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		name := filepath.Base(file)
		docs = append(docs, Document{
			Name: name,
			Stem: strings.TrimSuffix(name, filepath.Ext(name)),
			Text: string(content),
		})
	}
	logger.Infof("Loaded %d documents from %s", len(docs), dir)
	return docs, nil
}
