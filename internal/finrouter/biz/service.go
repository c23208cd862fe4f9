package biz

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/kart-io/finrouter/internal/finrouter/store"
	apierrors "github.com/kart-io/finrouter/pkg/utils/errors"
)

// Service 定义 finrouter 对外提供的业务能力，供 HTTP 与交互式入口共用。
type Service interface {
	// Query 路由并回答问题。
	Query(ctx context.Context, q Query) *AgentResult
	// Ingest 索引文档目录。dir 为默认目录下的相对子目录，为空时使用默认目录。
	Ingest(ctx context.Context, dir string, opts IngestOptions) (*IngestResult, error)
	// History 返回会话的历史问答。
	History(ctx context.Context, sessionID string) ([]Turn, error)
	// ClearMemory 清空会话记忆，不影响索引。
	ClearMemory(ctx context.Context, sessionID string) error
	// Stats 返回索引与会话统计。
	Stats(ctx context.Context) (*Stats, error)
}

// Stats 索引与会话统计。
type Stats struct {
	Chunks     int64  `json:"chunks"`
	Generation string `json:"generation"`
	Collection string `json:"collection"`
	Store      string `json:"store"`
	Sessions   int    `json:"sessions"`
}

// ServiceConfig 服务配置。
type ServiceConfig struct {
	// DocumentsDir 默认文档目录。
	DocumentsDir string
	// Collection 索引集合名称。
	Collection string
}

// RouterService 组合 Orchestrator 与 Indexer 提供完整服务。
type RouterService struct {
	orchestrator *Orchestrator
	indexer      *Indexer
	store        store.VectorStore
	config       *ServiceConfig
}

// NewRouterService 创建服务实例。
func NewRouterService(o *Orchestrator, indexer *Indexer, vs store.VectorStore, config *ServiceConfig) *RouterService {
	if config == nil {
		config = &ServiceConfig{}
	}
	return &RouterService{
		orchestrator: o,
		indexer:      indexer,
		store:        vs,
		config:       config,
	}
}

var _ Service = (*RouterService)(nil)

// Query 路由并回答问题。
func (s *RouterService) Query(ctx context.Context, q Query) *AgentResult {
	return s.orchestrator.Handle(ctx, q)
}

// Ingest 读取目录下的文档并索引。
func (s *RouterService) Ingest(ctx context.Context, dir string, opts IngestOptions) (*IngestResult, error) {
	path, err := DocumentsPath(s.config.DocumentsDir, dir)
	if err != nil {
		return nil, err
	}
	docs, err := LoadDirectory(path)
	if err != nil {
		return nil, apierrors.ErrIndexFailure.WithCause(err)
	}
	return s.indexer.Ingest(ctx, docs, opts)
}

// History 返回会话的历史问答。
func (s *RouterService) History(ctx context.Context, sessionID string) ([]Turn, error) {
	return s.orchestrator.Retriever().History(ctx, sessionID)
}

// ClearMemory 清空会话记忆。
func (s *RouterService) ClearMemory(ctx context.Context, sessionID string) error {
	return s.orchestrator.Retriever().ClearMemory(ctx, sessionID)
}

// Stats 返回索引与会话统计。
func (s *RouterService) Stats(ctx context.Context) (*Stats, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return nil, apierrors.ErrIndexFailure.WithCause(err)
	}
	generation, err := s.store.Generation(ctx)
	if err != nil {
		return nil, apierrors.ErrIndexFailure.WithCause(err)
	}
	return &Stats{
		Chunks:     count,
		Generation: generation,
		Collection: s.config.Collection,
		Store:      s.store.Name(),
		Sessions:   s.orchestrator.Retriever().Sessions(),
	}, nil
}

// CheckSubdir 校验 sub 是相对路径且不含跳出上级的 ".."。
func CheckSubdir(sub string) error {
	if sub == "" {
		return nil
	}
	if filepath.IsAbs(sub) || strings.HasPrefix(sub, "/") {
		return apierrors.ErrInvalidParam.WithMessagef("directory %q must be relative to the documents directory", sub)
	}
	if !filepath.IsLocal(sub) {
		return apierrors.ErrInvalidParam.WithMessagef("directory %q escapes the documents directory", sub)
	}
	return nil
}

// DocumentsPath 将 sub 解析为 root 下的目录。sub 为空时返回 root；
// 经符号链接解析后仍须位于 root 之内。
func DocumentsPath(root, sub string) (string, error) {
	if sub == "" {
		return root, nil
	}
	if err := CheckSubdir(sub); err != nil {
		return "", err
	}
	path := filepath.Join(root, sub)

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		// 根目录不存在时交给 LoadDirectory 报告
		return path, nil
	}
	realPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path, nil
	}
	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil || !filepath.IsLocal(rel) {
		return "", apierrors.ErrInvalidParam.WithMessagef("directory %q escapes the documents directory", sub)
	}
	return path, nil
}
