// Package http holds the listener and timeout options of the query API.
package http

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/kart-io/finrouter/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options 为查询 API 的监听与超时配置。
//
// WriteTimeout 需大于 RequestTimeout，否则慢速的生成调用会在写回前被截断。
type Options struct {
	Addr            string        `json:"addr" mapstructure:"addr"`
	Mode            string        `json:"mode" mapstructure:"mode"`
	ReadTimeout     time.Duration `json:"read-timeout" mapstructure:"read-timeout"`
	WriteTimeout    time.Duration `json:"write-timeout" mapstructure:"write-timeout"`
	IdleTimeout     time.Duration `json:"idle-timeout" mapstructure:"idle-timeout"`
	RequestTimeout  time.Duration `json:"request-timeout" mapstructure:"request-timeout"`
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewOptions creates a new Options with default values.
func NewOptions() *Options {
	return &Options{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    90 * time.Second,
		IdleTimeout:     60 * time.Second,
		RequestTimeout:  60 * time.Second,
		Mode:            gin.ReleaseMode,
		ShutdownTimeout: 30 * time.Second,
	}
}

// AddFlags adds flags for HTTP options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Addr, p+"http.addr", o.Addr, "Specify the HTTP server bind address and port.")
	fs.DurationVar(&o.ReadTimeout, p+"http.read-timeout", o.ReadTimeout, "Timeout for reading the entire request.")
	fs.DurationVar(&o.WriteTimeout, p+"http.write-timeout", o.WriteTimeout, "Timeout before timing out writes of the response.")
	fs.DurationVar(&o.IdleTimeout, p+"http.idle-timeout", o.IdleTimeout, "Maximum amount of time to wait for the next request.")
	fs.DurationVar(&o.RequestTimeout, p+"http.request-timeout", o.RequestTimeout, "Deadline applied to each query request.")
	fs.StringVar(&o.Mode, p+"http.mode", o.Mode, "Gin mode (debug|release|test).")
	fs.DurationVar(&o.ShutdownTimeout, p+"http.shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout.")
}

// Validate validates the HTTP options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error

	if o.Addr == "" {
		errs = append(errs, fmt.Errorf("http.addr cannot be empty"))
	}
	if o.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http.read-timeout must be positive"))
	}
	if o.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http.write-timeout must be positive"))
	}
	if o.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http.request-timeout must be positive"))
	}
	if o.WriteTimeout > 0 && o.RequestTimeout > o.WriteTimeout {
		errs = append(errs, fmt.Errorf("http.request-timeout (%s) exceeds http.write-timeout (%s)", o.RequestTimeout, o.WriteTimeout))
	}
	switch o.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		errs = append(errs, fmt.Errorf("http.mode must be one of debug, release, test"))
	}

	return errs
}

// Complete completes the HTTP options with defaults.
func (o *Options) Complete() error {
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 30 * time.Second
	}
	return nil
}
