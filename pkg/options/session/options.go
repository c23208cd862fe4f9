// Package session provides options for conversation memory.
package session

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/finrouter/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Memory store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Options configures the session-keyed conversation memory.
type Options struct {
	// Backend selects the store (memory|redis).
	Backend string `json:"backend" mapstructure:"backend"`
	// TTL evicts a session after this much idle time.
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`
	// MaxSessions caps the in-memory store; the least recently used session is evicted.
	MaxSessions int `json:"max-sessions" mapstructure:"max-sessions"`
	// KeyPrefix namespaces Redis keys.
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Backend:     BackendMemory,
		TTL:         30 * time.Minute,
		MaxSessions: 1000,
		KeyPrefix:   "finrouter:session:",
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Backend, p+"session.backend", o.Backend, "Conversation memory backend (memory|redis).")
	fs.DurationVar(&o.TTL, p+"session.ttl", o.TTL, "Idle time after which a session is evicted.")
	fs.IntVar(&o.MaxSessions, p+"session.max-sessions", o.MaxSessions, "Maximum sessions kept by the in-memory backend.")
	fs.StringVar(&o.KeyPrefix, p+"session.key-prefix", o.KeyPrefix, "Redis key prefix for session logs.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Backend != BackendMemory && o.Backend != BackendRedis {
		errs = append(errs, fmt.Errorf("session.backend must be memory or redis"))
	}
	if o.TTL <= 0 {
		errs = append(errs, fmt.Errorf("session.ttl must be positive"))
	}
	if o.Backend == BackendMemory && o.MaxSessions <= 0 {
		errs = append(errs, fmt.Errorf("session.max-sessions must be positive"))
	}
	return errs
}
