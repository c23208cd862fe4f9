package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kart-io/logger"
	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/kart-io/finrouter/pkg/component/milvus"
)

const (
	fieldText    = "text"
	fieldSource  = "source"
	fieldOrdinal = "ordinal"

	generationPrefix = "generation="
)

// milvusClient 为 MilvusStore 使用的 *milvus.Client 方法子集。
type milvusClient interface {
	Exists(ctx context.Context, name string) (bool, error)
	Resolve(ctx context.Context, name string) (string, error)
	Create(ctx context.Context, coll *milvus.Collection) error
	Load(ctx context.Context, name string) error
	CreateAlias(ctx context.Context, alias, collection string) error
	AlterAlias(ctx context.Context, alias, collection string) error
	Describe(ctx context.Context, name string) (string, error)
	Insert(ctx context.Context, name string, rows *milvus.Rows) (int64, error)
	Search(ctx context.Context, name string, vector []float32, topK int, fields ...string) ([]milvus.Hit, error)
	Drop(ctx context.Context, name string) error
	RowCount(ctx context.Context, name string) (int64, error)
	Close(ctx context.Context) error
}

// MilvusStore 实现基于 Milvus 的向量索引。
//
// 每一代文档写入独立集合 <collection>_<generation>，collection 作为别名指向当前代。
// 新集合建好、加载并写入成功后才切换别名，随后删除旧集合；任一步失败时旧索引保持可用。
// 代号写入集合描述，进程重启后仍可读取。
type MilvusStore struct {
	client     milvusClient
	collection string
	dimension  int

	mu     sync.RWMutex
	loaded atomic.Bool
}

var _ VectorStore = (*MilvusStore)(nil)

// NewMilvusStore 创建 Milvus 存储实例。
func NewMilvusStore(client *milvus.Client, collection string, dimension int) *MilvusStore {
	return newMilvusStore(client, collection, dimension)
}

func newMilvusStore(client milvusClient, collection string, dimension int) *MilvusStore {
	return &MilvusStore{
		client:     client,
		collection: collection,
		dimension:  dimension,
	}
}

// physicalName 返回某一代的集合名，非字母数字字符替换为下划线。
func (s *MilvusStore) physicalName(generation string) string {
	suffix := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, generation)
	return s.collection + "_" + suffix
}

func (s *MilvusStore) collectionFor(generation string) *milvus.Collection {
	return &milvus.Collection{
		Name:        s.physicalName(generation),
		Description: generationPrefix + generation,
		Dim:         s.dimension,
		IDLen:       512,
		Fields: []milvus.Field{
			{Name: fieldText, Type: entity.FieldTypeVarChar, MaxLen: 65535},
			{Name: fieldSource, Type: entity.FieldTypeVarChar, MaxLen: 512},
			{Name: fieldOrdinal, Type: entity.FieldTypeInt64},
		},
	}
}

// Replace 写入新一代集合并切换别名，成功后删除上一代集合。
func (s *MilvusStore) Replace(ctx context.Context, generation string, chunks []*Chunk) error {
	if err := checkDimensions(chunks, s.dimension); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.client.Resolve(ctx, s.collection)
	if err != nil {
		return err
	}

	coll := s.collectionFor(generation)
	target := coll.Name
	if target == previous {
		return fmt.Errorf("generation %s is already active", generation)
	}
	if err := s.build(ctx, coll, chunks); err != nil {
		s.discard(ctx, target)
		return err
	}

	switch previous {
	case "":
		err = s.client.CreateAlias(ctx, s.collection, target)
	case s.collection:
		// 别名不能与实体集合同名，旧版本直接以 collection 命名的集合需先删除
		if err = s.client.Drop(ctx, previous); err == nil {
			previous = ""
			err = s.client.CreateAlias(ctx, s.collection, target)
		}
	default:
		err = s.client.AlterAlias(ctx, s.collection, target)
	}
	if err != nil {
		s.discard(ctx, target)
		return err
	}
	s.loaded.Store(true)

	if previous != "" {
		if err := s.client.Drop(ctx, previous); err != nil {
			logger.Warnw("failed to drop previous milvus collection",
				"collection", previous,
				"error", err.Error(),
			)
		}
	}
	logger.Infow("milvus collection replaced",
		"alias", s.collection,
		"collection", target,
		"generation", generation,
		"chunks", len(chunks),
	)
	return nil
}

// build 创建并加载集合后写入全部文档块。
func (s *MilvusStore) build(ctx context.Context, coll *milvus.Collection, chunks []*Chunk) error {
	exists, err := s.client.Exists(ctx, coll.Name)
	if err != nil {
		return err
	}
	if exists {
		// 上次失败遗留的同代集合
		if err := s.client.Drop(ctx, coll.Name); err != nil {
			return err
		}
	}
	if err := s.client.Create(ctx, coll); err != nil {
		return err
	}

	rows := &milvus.Rows{
		IDs:      make([]string, len(chunks)),
		Vectors:  make([][]float32, len(chunks)),
		VarChars: map[string][]string{fieldText: make([]string, len(chunks)), fieldSource: make([]string, len(chunks))},
		Int64s:   map[string][]int64{fieldOrdinal: make([]int64, len(chunks))},
	}
	for i, c := range chunks {
		rows.IDs[i] = c.ID
		rows.Vectors[i] = c.Embedding
		rows.VarChars[fieldText][i] = c.Text
		rows.VarChars[fieldSource][i] = c.Source
		rows.Int64s[fieldOrdinal][i] = int64(c.Ordinal)
	}
	if _, err := s.client.Insert(ctx, coll.Name, rows); err != nil {
		return fmt.Errorf("failed to insert into milvus: %w", err)
	}
	return nil
}

func (s *MilvusStore) discard(ctx context.Context, name string) {
	if err := s.client.Drop(ctx, name); err != nil {
		logger.Warnw("failed to drop unfinished milvus collection",
			"collection", name,
			"error", err.Error(),
		)
	}
}

// ensureLoaded 在首次搜索前加载启动时已存在的集合。
func (s *MilvusStore) ensureLoaded(ctx context.Context) error {
	if s.loaded.Load() {
		return nil
	}
	if err := s.client.Load(ctx, s.collection); err != nil {
		return err
	}
	s.loaded.Store(true)
	return nil
}

// Search 执行向量相似度搜索，集合不存在时返回空结果。
func (s *MilvusStore) Search(ctx context.Context, embedding []float32, topK int) ([]*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exists, err := s.client.Exists(ctx, s.collection)
	if err != nil {
		return nil, err
	}
	if !exists || topK <= 0 {
		return []*SearchResult{}, nil
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	hits, err := s.client.Search(ctx, s.collection, embedding, topK, fieldText, fieldSource, fieldOrdinal)
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}

	out := make([]*SearchResult, 0, len(hits))
	for _, r := range hits {
		c := &Chunk{ID: r.ID}
		c.Text, _ = r.Fields[fieldText].(string)
		c.Source, _ = r.Fields[fieldSource].(string)
		if ord, ok := r.Fields[fieldOrdinal].(int64); ok {
			c.Ordinal = int(ord)
		}
		out = append(out, &SearchResult{Chunk: c, Score: r.Score})
	}
	return out, nil
}

// Count 返回集合中的实体数量。
func (s *MilvusStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exists, err := s.client.Exists(ctx, s.collection)
	if err != nil || !exists {
		return 0, err
	}
	return s.client.RowCount(ctx, s.collection)
}

// Generation 从集合描述中读取代号。
func (s *MilvusStore) Generation(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exists, err := s.client.Exists(ctx, s.collection)
	if err != nil || !exists {
		return "", err
	}
	desc, err := s.client.Describe(ctx, s.collection)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(desc, generationPrefix) {
		return "", nil
	}
	return strings.TrimPrefix(desc, generationPrefix), nil
}

// Name 返回 "milvus"。
func (s *MilvusStore) Name() string { return "milvus" }

// Close 关闭 Milvus 连接。
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}
