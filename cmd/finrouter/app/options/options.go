// Package options contains flags and options for initializing finrouter.
package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/kart-io/finrouter/internal/finrouter"
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
)

// ServerOptions contains the configuration options for finrouter.
type ServerOptions struct {
	// Mode selects serve (HTTP API) or chat (interactive REPL).
	Mode string `json:"mode" mapstructure:"mode"`

	// HTTPOptions contains HTTP server configuration.
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// DatabaseOptions contains the financial database configuration.
	DatabaseOptions *dbopts.Options `json:"db" mapstructure:"db"`

	// RedisOptions contains Redis configuration for sessions and the embedding cache.
	RedisOptions *redisopts.Options `json:"redis" mapstructure:"redis"`

	// MilvusOptions contains Milvus configuration.
	MilvusOptions *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// EmbeddingOptions contains embedding provider configuration.
	EmbeddingOptions *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// ChatOptions contains chat provider configuration.
	ChatOptions *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`

	// RAGOptions contains chunking and retrieval configuration.
	RAGOptions *ragopts.Options `json:"rag" mapstructure:"rag"`

	// SessionOptions contains conversation memory configuration.
	SessionOptions *sessionopts.Options `json:"session" mapstructure:"session"`

	// PoolOptions contains the query worker pool configuration.
	PoolOptions *poolopts.Options `json:"pool" mapstructure:"pool"`

	// WebSearchOptions contains Tavily configuration.
	WebSearchOptions *searchopts.Options `json:"websearch" mapstructure:"websearch"`

	// TracingOptions contains OpenTelemetry configuration.
	TracingOptions *tracingopts.Options `json:"tracing" mapstructure:"tracing"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		Mode:             finrouter.ModeServe,
		HTTPOptions:      httpopts.NewOptions(),
		LogOptions:       logopts.NewOptions(),
		DatabaseOptions:  dbopts.NewOptions(),
		RedisOptions:     redisopts.NewOptions(),
		MilvusOptions:    milvusopts.NewOptions(),
		EmbeddingOptions: llmopts.NewEmbeddingOptions(),
		ChatOptions:      llmopts.NewChatOptions(),
		RAGOptions:       ragopts.NewOptions(),
		SessionOptions:   sessionopts.NewOptions(),
		PoolOptions:      poolopts.NewOptions(),
		WebSearchOptions: searchopts.NewOptions(),
		TracingOptions:   tracingopts.NewOptions(),
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss cliflag.NamedFlagSets) {
	o.HTTPOptions.AddFlags(fss.FlagSet("http"))
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.DatabaseOptions.AddFlags(fss.FlagSet("db"))
	o.RedisOptions.AddFlags(fss.FlagSet("redis"))
	o.MilvusOptions.AddFlags(fss.FlagSet("milvus"))
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"), "embedding")
	o.ChatOptions.AddFlags(fss.FlagSet("chat"), "chat")
	o.RAGOptions.AddFlags(fss.FlagSet("rag"))
	o.SessionOptions.AddFlags(fss.FlagSet("session"))
	o.PoolOptions.AddFlags(fss.FlagSet("pool"))
	o.WebSearchOptions.AddFlags(fss.FlagSet("websearch"))
	o.TracingOptions.AddFlags(fss.FlagSet("tracing"))

	// misc flags
	fs := fss.FlagSet("misc")
	fs.StringVar(&o.Mode, "mode", o.Mode, "Run mode: serve (HTTP API) or chat (interactive).")

	return fss
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	if err := o.HTTPOptions.Complete(); err != nil {
		return err
	}
	if err := o.DatabaseOptions.Complete(); err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if err := o.EmbeddingOptions.Complete(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := o.ChatOptions.Complete(); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	if err := o.RAGOptions.Complete(); err != nil {
		return fmt.Errorf("rag: %w", err)
	}
	if err := o.WebSearchOptions.Complete(); err != nil {
		return fmt.Errorf("websearch: %w", err)
	}
	return nil
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	errs := []error{}

	if o.Mode != finrouter.ModeServe && o.Mode != finrouter.ModeChat {
		errs = append(errs, fmt.Errorf("mode must be %s or %s", finrouter.ModeServe, finrouter.ModeChat))
	}
	errs = append(errs, o.HTTPOptions.Validate()...)
	errs = append(errs, o.LogOptions.Validate()...)
	errs = append(errs, o.DatabaseOptions.Validate()...)
	if o.SessionOptions.Backend == sessionopts.BackendRedis || o.RAGOptions.EmbeddingCache {
		errs = append(errs, o.RedisOptions.Validate()...)
	}
	if o.RAGOptions.VectorStore == ragopts.StoreMilvus {
		errs = append(errs, o.MilvusOptions.Validate()...)
	}
	errs = append(errs, prefixed("embedding", o.EmbeddingOptions.Validate())...)
	errs = append(errs, prefixed("chat", o.ChatOptions.Validate())...)
	errs = append(errs, o.RAGOptions.Validate()...)
	errs = append(errs, o.SessionOptions.Validate()...)
	errs = append(errs, o.PoolOptions.Validate()...)
	errs = append(errs, o.WebSearchOptions.Validate()...)
	errs = append(errs, o.TracingOptions.Validate()...)

	return utilerrors.NewAggregate(errs)
}

func prefixed(section string, errs []error) []error {
	out := make([]error, 0, len(errs))
	for _, err := range errs {
		out = append(out, fmt.Errorf("%s.%w", section, err))
	}
	return out
}

// Config builds a finrouter.Config based on ServerOptions.
func (o *ServerOptions) Config() (*finrouter.Config, error) {
	return &finrouter.Config{
		Mode:             o.Mode,
		HTTPOptions:      o.HTTPOptions,
		LogOptions:       o.LogOptions,
		DatabaseOptions:  o.DatabaseOptions,
		RedisOptions:     o.RedisOptions,
		MilvusOptions:    o.MilvusOptions,
		EmbeddingOptions: o.EmbeddingOptions,
		ChatOptions:      o.ChatOptions,
		RAGOptions:       o.RAGOptions,
		SessionOptions:   o.SessionOptions,
		PoolOptions:      o.PoolOptions,
		WebSearchOptions: o.WebSearchOptions,
		TracingOptions:   o.TracingOptions,
	}, nil
}
