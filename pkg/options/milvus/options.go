// Package milvusopts 定义 Milvus 向量库连接与索引参数。
package milvusopts

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/finrouter/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options holds the Milvus connection and IVF_FLAT index settings.
type Options struct {
	Address  string        `json:"address" mapstructure:"address"`
	Database string        `json:"database" mapstructure:"database"`
	Username string        `json:"username" mapstructure:"username"`
	Password string        `json:"-" mapstructure:"password"`
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`

	// NList 为 IVF_FLAT 聚类桶数，NProbe 为检索时探查的桶数。
	NList  int `json:"nlist" mapstructure:"nlist"`
	NProbe int `json:"nprobe" mapstructure:"nprobe"`
}

// NewOptions returns options pointing at a local standalone Milvus.
func NewOptions() *Options {
	return &Options{
		Address:  "localhost:19530",
		Database: "default",
		Timeout:  30 * time.Second,
		NList:    128,
		NProbe:   16,
	}
}

// AddFlags registers milvus.* flags.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "milvus."
	fs.StringVar(&o.Address, p+"address", o.Address, "Milvus address (host:port), used when rag.vector-store=milvus.")
	fs.StringVar(&o.Database, p+"database", o.Database, "Milvus database holding the policy collection.")
	fs.StringVar(&o.Username, p+"username", o.Username, "Milvus username.")
	fs.StringVar(&o.Password, p+"password", o.Password, "Milvus password.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Milvus connect timeout.")
	fs.IntVar(&o.NList, p+"nlist", o.NList, "IVF_FLAT nlist used when the collection is (re)created.")
	fs.IntVar(&o.NProbe, p+"nprobe", o.NProbe, "IVF_FLAT nprobe used at search time.")
}

// Validate checks the connection and index settings.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Address == "" {
		errs = append(errs, fmt.Errorf("milvus address is required"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("milvus timeout must be positive"))
	}
	if o.NList <= 0 || o.NProbe <= 0 {
		errs = append(errs, fmt.Errorf("milvus nlist and nprobe must be positive, got %d/%d", o.NList, o.NProbe))
	}
	if o.NProbe > o.NList {
		errs = append(errs, fmt.Errorf("milvus nprobe (%d) cannot exceed nlist (%d)", o.NProbe, o.NList))
	}
	return errs
}
