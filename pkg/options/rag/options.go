// Package rag provides options for chunking, indexing and retrieval.
package rag

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/finrouter/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Vector store backends.
const (
	StoreMemory = "memory"
	StoreMilvus = "milvus"
)

// Options contains RAG-specific configuration.
type Options struct {
	// ChunkSize is the target chunk length in characters.
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap is the overlap between adjacent chunks.
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// TopK is the number of passages returned by similarity search.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// Collection is the vector collection name.
	Collection string `json:"collection" mapstructure:"collection"`

	// EmbeddingDim is the embedding model's output size.
	EmbeddingDim int `json:"embedding-dim" mapstructure:"embedding-dim"`

	// DocumentsDir holds the *.txt policy documents.
	DocumentsDir string `json:"documents-dir" mapstructure:"documents-dir"`

	// VectorStore selects the index backend (memory|milvus).
	VectorStore string `json:"vector-store" mapstructure:"vector-store"`

	// IngestOnStart ingests DocumentsDir at boot, honouring the skip rule.
	IngestOnStart bool `json:"ingest-on-start" mapstructure:"ingest-on-start"`

	// Watch re-ingests with force reload when DocumentsDir changes.
	Watch bool `json:"watch" mapstructure:"watch"`

	// EmbeddingCache caches embeddings in Redis.
	EmbeddingCache bool `json:"embedding-cache" mapstructure:"embedding-cache"`

	// EmbeddingCacheTTL is the lifetime of a cached embedding.
	EmbeddingCacheTTL time.Duration `json:"embedding-cache-ttl" mapstructure:"embedding-cache-ttl"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		ChunkSize:     1000,
		ChunkOverlap:  200,
		TopK:          5,
		Collection:    "financial_policies",
		EmbeddingDim:  384, // all-MiniLM-L6-v2
		DocumentsDir:  "data/documents",
		VectorStore:   StoreMemory,
		IngestOnStart: true,

		EmbeddingCacheTTL: 24 * time.Hour,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.IntVar(&o.ChunkSize, p+"rag.chunk-size", o.ChunkSize, "Size of text chunks in characters.")
	fs.IntVar(&o.ChunkOverlap, p+"rag.chunk-overlap", o.ChunkOverlap, "Overlap between chunks in characters.")
	fs.IntVar(&o.TopK, p+"rag.top-k", o.TopK, "Number of results from similarity search.")
	fs.StringVar(&o.Collection, p+"rag.collection", o.Collection, "Vector collection name.")
	fs.IntVar(&o.EmbeddingDim, p+"rag.embedding-dim", o.EmbeddingDim, "Embedding vector dimension.")
	fs.StringVar(&o.DocumentsDir, p+"rag.documents-dir", o.DocumentsDir, "Directory containing *.txt policy documents.")
	fs.StringVar(&o.VectorStore, p+"rag.vector-store", o.VectorStore, "Vector store backend (memory|milvus).")
	fs.BoolVar(&o.IngestOnStart, p+"rag.ingest-on-start", o.IngestOnStart, "Ingest the documents directory at startup.")
	fs.BoolVar(&o.Watch, p+"rag.watch", o.Watch, "Re-ingest when documents change (serve mode).")
	fs.BoolVar(&o.EmbeddingCache, p+"rag.embedding-cache", o.EmbeddingCache, "Cache embeddings in Redis.")
	fs.DurationVar(&o.EmbeddingCacheTTL, p+"rag.embedding-cache-ttl", o.EmbeddingCacheTTL, "Lifetime of a cached embedding.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("rag.chunk-overlap must be in [0, chunk-size)"))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("rag.top-k must be positive"))
	}
	if o.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("rag.embedding-dim must be positive"))
	}
	if o.VectorStore != StoreMemory && o.VectorStore != StoreMilvus {
		errs = append(errs, fmt.Errorf("rag.vector-store must be memory or milvus"))
	}
	if o.Collection == "" {
		errs = append(errs, fmt.Errorf("rag.collection is required"))
	}
	return errs
}

// Complete completes the options.
func (o *Options) Complete() error {
	return nil
}
