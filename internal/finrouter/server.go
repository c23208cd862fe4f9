// Package finrouter wires the financial query router: the relational store,
// the policy index, web search and the language-model gateway behind one
// orchestrator, served over HTTP or an interactive chat.
package finrouter

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/kart-io/logger"

	"github.com/kart-io/finrouter/internal/finrouter/biz"
	"github.com/kart-io/finrouter/internal/finrouter/handler"
	"github.com/kart-io/finrouter/internal/finrouter/memory"
	"github.com/kart-io/finrouter/internal/finrouter/metrics"
	"github.com/kart-io/finrouter/internal/finrouter/router"
	"github.com/kart-io/finrouter/internal/finrouter/store"
	"github.com/kart-io/finrouter/internal/finrouter/structured"
	"github.com/kart-io/finrouter/internal/finrouter/watcher"
	"github.com/kart-io/finrouter/pkg/component/database"
	"github.com/kart-io/finrouter/pkg/component/milvus"
	"github.com/kart-io/finrouter/pkg/component/redis"
	"github.com/kart-io/finrouter/pkg/infra/app"
	"github.com/kart-io/finrouter/pkg/infra/pool"
	"github.com/kart-io/finrouter/pkg/infra/server"
	"github.com/kart-io/finrouter/pkg/infra/tracing"
	"github.com/kart-io/finrouter/pkg/llm"
	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/finrouter/pkg/llm/anthropic"
	_ "github.com/kart-io/finrouter/pkg/llm/ollama"
	_ "github.com/kart-io/finrouter/pkg/llm/openai"
	"github.com/kart-io/finrouter/pkg/llm/resilience"
	dbopts "github.com/kart-io/finrouter/pkg/options/database"
	httpopts "github.com/kart-io/finrouter/pkg/options/http"
	llmopts "github.com/kart-io/finrouter/pkg/options/llm"
	logopts "github.com/kart-io/finrouter/pkg/options/logger"
	milvusopts "github.com/kart-io/finrouter/pkg/options/milvus"
	poolopts "github.com/kart-io/finrouter/pkg/options/pool"
	ragopts "github.com/kart-io/finrouter/pkg/options/rag"
	redisopts "github.com/kart-io/finrouter/pkg/options/redis"
	sessionopts "github.com/kart-io/finrouter/pkg/options/session"
	tracingopts "github.com/kart-io/finrouter/pkg/options/tracing"
	searchopts "github.com/kart-io/finrouter/pkg/options/websearch"
	"github.com/kart-io/finrouter/pkg/utils/id"
	"github.com/kart-io/finrouter/pkg/websearch/tavily"
)

// Name is the name of the application.
const Name = "finrouter"

// Run modes.
const (
	ModeServe = "serve"
	ModeChat  = "chat"
)

// Config contains application-related configurations.
type Config struct {
	Mode             string
	HTTPOptions      *httpopts.Options
	LogOptions       *logopts.Options
	DatabaseOptions  *dbopts.Options
	RedisOptions     *redisopts.Options
	MilvusOptions    *milvusopts.Options
	EmbeddingOptions *llmopts.ProviderOptions
	ChatOptions      *llmopts.ProviderOptions
	RAGOptions       *ragopts.Options
	SessionOptions   *sessionopts.Options
	PoolOptions      *poolopts.Options
	WebSearchOptions *searchopts.Options
	TracingOptions   *tracingopts.Options

	// Stdin and Stdout back the chat mode; nil selects the process streams.
	Stdin  io.Reader
	Stdout io.Writer
}

// Server represents the finrouter server.
type Server struct {
	srv     *server.Manager
	service biz.Service
	chat    *Chat
	closers []func()
	checks  []handler.Check
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (_ *Server, err error) {
	printBanner(cfg)

	// 1. 初始化日志
	if err := cfg.LogOptions.Init(Name, app.GetVersion()); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infow("Starting finrouter...", "mode", cfg.Mode)

	s := &Server{}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	// 2. 初始化链路追踪
	tracer, err := tracing.NewProvider(ctx, cfg.TracingOptions, Name, app.GetVersion())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	s.closers = append(s.closers, func() { _ = tracer.Shutdown(context.Background()) })
	if tracer.Enabled() {
		logger.Infow("Tracing initialized", "exporter", cfg.TracingOptions.Exporter)
	}

	// 3. 初始化关系库
	dbClient, err := database.NewWithContext(ctx, cfg.DatabaseOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	s.closers = append(s.closers, func() { _ = dbClient.Close() })
	s.checks = append(s.checks, handler.Check{Name: "database", Probe: dbClient.Ping})
	logger.Infow("Database initialized", "driver", cfg.DatabaseOptions.Driver)

	// 4. 初始化 Redis（会话记忆或 Embedding 缓存需要时）
	redisClient, err := cfg.newRedis(ctx)
	if err != nil {
		return nil, err
	}
	if redisClient != nil {
		s.closers = append(s.closers, func() { _ = redisClient.Close() })
		s.checks = append(s.checks, handler.Check{Name: "redis", Probe: redisClient.Ping})
	}

	// 5. 初始化 LLM 供应商
	embedder, chat, err := cfg.newProviders(redisClient)
	if err != nil {
		return nil, err
	}

	// 6. 初始化向量索引
	vectorStore, err := cfg.newVectorStore()
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() { _ = vectorStore.Close(context.Background()) })
	logger.Infow("Vector store initialized", "store", vectorStore.Name(), "collection", cfg.RAGOptions.Collection)

	// 7. 初始化会话记忆
	sessions := cfg.newSessionStore(redisClient)
	s.closers = append(s.closers, func() { _ = sessions.Close() })

	// 8. 初始化 Web 搜索
	searcher := tavily.New(cfg.WebSearchOptions)
	if !searcher.Configured() {
		logger.Warn("TAVILY_API_KEY is not set, web search queries will report a configuration error")
	}

	// 9. 初始化工作池
	queryPool, err := pool.NewPool(pool.QueryPool, cfg.PoolOptions.QueryPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize query pool: %w", err)
	}
	s.closers = append(s.closers, queryPool.Release)
	metrics.Get().ObservePool(queryPool)

	// 10. 初始化 Biz 层
	structuredHandler := structured.NewHandler(structured.NewGormStore(dbClient.DB()), chat).
		WithSchemaTTL(cfg.DatabaseOptions.SchemaTTL)
	retriever := biz.NewRetriever(vectorStore, embedder, chat, sessions, cfg.RAGOptions.TopK)
	web := biz.NewWebHandler(searcher, chat, cfg.WebSearchOptions.MaxResults)
	orchestrator := biz.NewOrchestrator(biz.NewClassifier(chat), structuredHandler, retriever, web).
		WithPool(queryPool)
	indexer := biz.NewIndexer(vectorStore, embedder, &biz.IndexerConfig{
		ChunkSize:    cfg.RAGOptions.ChunkSize,
		ChunkOverlap: cfg.RAGOptions.ChunkOverlap,
	})
	s.service = biz.NewRouterService(orchestrator, indexer, vectorStore, &biz.ServiceConfig{
		DocumentsDir: cfg.RAGOptions.DocumentsDir,
		Collection:   cfg.RAGOptions.Collection,
	})
	logger.Info("Router service initialized")

	// 11. 启动时索引文档，失败不阻止启动
	if cfg.RAGOptions.IngestOnStart {
		s.ingestOnStart(ctx, cfg.RAGOptions.DocumentsDir)
	}

	if cfg.Mode == ModeChat {
		in, out := cfg.Stdin, cfg.Stdout
		if in == nil {
			in = os.Stdin
		}
		if out == nil {
			out = os.Stdout
		}
		s.chat = NewChat(s.service, id.NewUUID(), in, out)
		return s, nil
	}

	// 12. 初始化服务器
	s.srv = server.NewManager(cfg.HTTPOptions)
	if cfg.RAGOptions.Watch {
		if err := s.addWatcher(cfg.RAGOptions.DocumentsDir); err != nil {
			return nil, err
		}
	}

	// 13. 注册路由
	if err := router.Register(s.srv, handler.NewHandler(s.service, metrics.Get()).WithChecks(s.checks...)); err != nil {
		return nil, fmt.Errorf("failed to register routes: %w", err)
	}

	logger.Info("finrouter is ready")
	return s, nil
}

// Run serves until ctx is cancelled, or runs the chat until the user quits.
func (s *Server) Run(ctx context.Context) error {
	defer s.close()
	if s.chat != nil {
		return s.chat.Run(ctx)
	}
	return s.srv.Run(ctx)
}

// Service returns the business service behind the server.
func (s *Server) Service() biz.Service {
	return s.service
}

func (s *Server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func (s *Server) ingestOnStart(ctx context.Context, dir string) {
	result, err := s.service.Ingest(ctx, dir, biz.IngestOptions{})
	if err != nil {
		logger.Warnw("initial ingest failed, policy questions will find no documents",
			"dir", dir, "error", err.Error())
		return
	}
	logger.Infow("Documents ingested",
		"dir", dir,
		"chunks", result.Chunks,
		"generation", result.Generation,
		"skipped", result.Skipped,
	)
}

func (s *Server) addWatcher(dir string) error {
	ingestPool, err := pool.NewPool(pool.IngestPool, pool.DefaultIngestPoolConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize ingest pool: %w", err)
	}
	s.closers = append(s.closers, ingestPool.Release)
	metrics.Get().ObservePool(ingestPool)

	w := watcher.New(dir, watcher.DefaultDebounce, func(ctx context.Context) error {
		_, err := s.service.Ingest(ctx, dir, biz.IngestOptions{ForceReload: true})
		return err
	}).WithPool(ingestPool)
	s.srv.AddServer(w)
	return nil
}

func (cfg *Config) newRedis(ctx context.Context) (*redis.Client, error) {
	sessionsNeed := cfg.SessionOptions.Backend == sessionopts.BackendRedis
	if !sessionsNeed && !cfg.RAGOptions.EmbeddingCache {
		return nil, nil
	}

	client, err := redis.NewWithContext(ctx, cfg.RedisOptions)
	if err != nil {
		if sessionsNeed {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		logger.Warnw("failed to connect to redis, embedding cache will be disabled", "error", err.Error())
		return nil, nil
	}
	logger.Infow("Redis initialized", "addr", cfg.RedisOptions.Addr())
	return client, nil
}

func (cfg *Config) newProviders(redisClient *redis.Client) (llm.EmbeddingProvider, llm.ChatProvider, error) {
	embedder, err := llm.NewEmbeddingProvider(cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.ToConfigMap())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	if retry := cfg.EmbeddingOptions.RetryConfig(); retry != nil {
		embedder = resilience.NewResilientEmbeddingProvider(embedder, retry, cfg.EmbeddingOptions.CircuitBreakerConfig())
	}
	if redisClient != nil && cfg.RAGOptions.EmbeddingCache {
		cacheConfig := llm.DefaultEmbeddingCacheConfig()
		cacheConfig.TTL = cfg.RAGOptions.EmbeddingCacheTTL
		embedder = llm.NewCachedEmbeddingProvider(embedder, redisClient.Client(), cacheConfig)
	}
	logger.Infow("Embedding provider initialized",
		"provider", cfg.EmbeddingOptions.Provider,
		"model", cfg.EmbeddingOptions.Model,
		"cache", redisClient != nil && cfg.RAGOptions.EmbeddingCache,
	)

	chat, err := llm.NewChatProvider(cfg.ChatOptions.Provider, cfg.ChatOptions.ToConfigMap())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	if retry := cfg.ChatOptions.RetryConfig(); retry != nil {
		chat = resilience.NewResilientChatProvider(chat, retry, cfg.ChatOptions.CircuitBreakerConfig())
	}
	chat = metrics.InstrumentChat(chat, metrics.Get())
	logger.Infow("Chat provider initialized",
		"provider", cfg.ChatOptions.Provider,
		"model", cfg.ChatOptions.Model,
	)
	return embedder, chat, nil
}

func (cfg *Config) newVectorStore() (store.VectorStore, error) {
	if cfg.RAGOptions.VectorStore != ragopts.StoreMilvus {
		return store.NewMemoryStore(cfg.RAGOptions.EmbeddingDim), nil
	}
	client, err := milvus.New(cfg.MilvusOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize milvus: %w", err)
	}
	return store.NewMilvusStore(client, cfg.RAGOptions.Collection, cfg.RAGOptions.EmbeddingDim), nil
}

func (cfg *Config) newSessionStore(redisClient *redis.Client) memory.Store {
	if cfg.SessionOptions.Backend == sessionopts.BackendRedis && redisClient != nil {
		logger.Infow("Session memory backed by redis", "ttl", cfg.SessionOptions.TTL)
		return memory.NewRedisStore(redisClient.Client(), cfg.SessionOptions)
	}
	logger.Infow("Session memory in process",
		"max_sessions", cfg.SessionOptions.MaxSessions,
		"ttl", cfg.SessionOptions.TTL,
	)
	return memory.NewLocalStore(cfg.SessionOptions.MaxSessions, cfg.SessionOptions.TTL)
}

func printBanner(cfg *Config) {
	fmt.Printf("Starting %s (%s mode)...\n", Name, cfg.Mode)
	fmt.Printf("  Embedding: %s (%s)\n", cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.Model)
	fmt.Printf("  Chat: %s (%s)\n", cfg.ChatOptions.Provider, cfg.ChatOptions.Model)
	fmt.Printf("  Vector store: %s\n", cfg.RAGOptions.VectorStore)
}
