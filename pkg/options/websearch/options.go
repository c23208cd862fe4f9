// Package websearch provides options for the web-search provider.
package websearch

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/finrouter/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options configures the Tavily search client.
type Options struct {
	// APIKey is read from TAVILY_API_KEY when empty. An empty key disables search.
	APIKey      string        `json:"-" mapstructure:"api-key"`
	BaseURL     string        `json:"base-url" mapstructure:"base-url"`
	MaxResults  int           `json:"max-results" mapstructure:"max-results"`
	SearchDepth string        `json:"search-depth" mapstructure:"search-depth"`
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		BaseURL:     "https://api.tavily.com",
		MaxResults:  5,
		SearchDepth: "advanced",
		Timeout:     30 * time.Second,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.APIKey, p+"websearch.api-key", o.APIKey, "Tavily API key (prefer the TAVILY_API_KEY env var).")
	fs.StringVar(&o.BaseURL, p+"websearch.base-url", o.BaseURL, "Tavily API base URL.")
	fs.IntVar(&o.MaxResults, p+"websearch.max-results", o.MaxResults, "Maximum number of search hits per query.")
	fs.StringVar(&o.SearchDepth, p+"websearch.search-depth", o.SearchDepth, "Search depth (basic|advanced).")
	fs.DurationVar(&o.Timeout, p+"websearch.timeout", o.Timeout, "Search request timeout.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("websearch.max-results must be positive"))
	}
	if o.SearchDepth != "basic" && o.SearchDepth != "advanced" {
		errs = append(errs, fmt.Errorf("websearch.search-depth must be basic or advanced"))
	}
	return errs
}

// Complete reads the API key from the environment.
func (o *Options) Complete() error {
	if o.APIKey == "" {
		o.APIKey = os.Getenv("TAVILY_API_KEY")
	}
	return nil
}

// Enabled reports whether a search credential is configured.
func (o *Options) Enabled() bool {
	return o != nil && o.APIKey != ""
}
