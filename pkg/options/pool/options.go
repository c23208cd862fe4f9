// Package pool provides worker pool options.
package pool

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/finrouter/pkg/infra/pool"
	"github.com/kart-io/finrouter/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options configures the query worker pool.
type Options struct {
	Workers        int           `json:"workers" mapstructure:"workers"`
	MaxQueued      int           `json:"max-queued" mapstructure:"max-queued"`
	ExpiryDuration time.Duration `json:"expiry-duration" mapstructure:"expiry-duration"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	d := pool.DefaultQueryPoolConfig()
	return &Options{
		Workers:        d.Capacity,
		MaxQueued:      d.MaxBlockingTasks,
		ExpiryDuration: d.ExpiryDuration,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.IntVar(&o.Workers, p+"pool.workers", o.Workers, "Maximum queries processed concurrently.")
	fs.IntVar(&o.MaxQueued, p+"pool.max-queued", o.MaxQueued, "Maximum queries waiting for a worker (0 is unbounded).")
	fs.DurationVar(&o.ExpiryDuration, p+"pool.expiry-duration", o.ExpiryDuration, "Idle worker expiry.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.Workers <= 0 {
		errs = append(errs, fmt.Errorf("pool.workers must be positive"))
	}
	if o.MaxQueued < 0 {
		errs = append(errs, fmt.Errorf("pool.max-queued must not be negative"))
	}
	return errs
}

// QueryPoolConfig converts the options into a pool config.
func (o *Options) QueryPoolConfig() *pool.Config {
	return &pool.Config{
		Capacity:         o.Workers,
		ExpiryDuration:   o.ExpiryDuration,
		MaxBlockingTasks: o.MaxQueued,
	}
}
