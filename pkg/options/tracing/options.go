// Package tracing provides OpenTelemetry tracing options.
package tracing

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/finrouter/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Exporter types.
const (
	ExporterOTLPGRPC = "otlp_grpc"
	ExporterOTLPHTTP = "otlp_http"
	ExporterStdout   = "stdout"
	ExporterNoop     = "noop"
)

// Options defines configuration for OpenTelemetry tracing.
type Options struct {
	// Enabled enables or disables tracing.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Environment is the deployment environment.
	Environment string `json:"environment" mapstructure:"environment"`

	// Exporter is one of otlp_grpc, otlp_http, stdout, noop.
	Exporter string `json:"exporter" mapstructure:"exporter"`

	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`

	// Insecure disables TLS for the OTLP connection.
	Insecure bool `json:"insecure" mapstructure:"insecure"`

	// SamplerRatio is the root sampling ratio; child spans follow their parent.
	SamplerRatio float64 `json:"sampler-ratio" mapstructure:"sampler-ratio"`

	// BatchTimeout is the maximum time to wait before exporting a batch.
	BatchTimeout time.Duration `json:"batch-timeout" mapstructure:"batch-timeout"`
}

// NewOptions creates default tracing options. Tracing is off by default.
func NewOptions() *Options {
	return &Options{
		Environment:  "development",
		Exporter:     ExporterOTLPGRPC,
		Endpoint:     "localhost:4317",
		Insecure:     true,
		SamplerRatio: 1.0,
		BatchTimeout: 5 * time.Second,
	}
}

// AddFlags adds flags for tracing options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.BoolVar(&o.Enabled, p+"tracing.enabled", o.Enabled, "Enable OpenTelemetry tracing.")
	fs.StringVar(&o.Environment, p+"tracing.environment", o.Environment, "Deployment environment.")
	fs.StringVar(&o.Exporter, p+"tracing.exporter", o.Exporter, "Span exporter (otlp_grpc, otlp_http, stdout, noop).")
	fs.StringVar(&o.Endpoint, p+"tracing.endpoint", o.Endpoint, "OTLP collector endpoint.")
	fs.BoolVar(&o.Insecure, p+"tracing.insecure", o.Insecure, "Disable TLS for the OTLP connection.")
	fs.Float64Var(&o.SamplerRatio, p+"tracing.sampler-ratio", o.SamplerRatio, "Root sampling ratio (0.0 to 1.0).")
	fs.DurationVar(&o.BatchTimeout, p+"tracing.batch-timeout", o.BatchTimeout, "Maximum time to wait before exporting a batch.")
}

// Validate validates the tracing options.
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	var errs []error
	switch o.Exporter {
	case ExporterOTLPGRPC, ExporterOTLPHTTP:
		if o.Endpoint == "" {
			errs = append(errs, fmt.Errorf("tracing.endpoint is required for exporter %s", o.Exporter))
		}
	case ExporterStdout, ExporterNoop:
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter %q is not supported", o.Exporter))
	}
	if o.SamplerRatio < 0 || o.SamplerRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sampler-ratio must be between 0.0 and 1.0"))
	}
	if o.BatchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("tracing.batch-timeout must be positive"))
	}
	return errs
}
