// Package database provides options for the relational store behind the
// structured-query handler.
package database

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/finrouter/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Options defines configuration options for the relational store.
type Options struct {
	Driver                string        `json:"driver" mapstructure:"driver"`
	Path                  string        `json:"path" mapstructure:"path"`
	Host                  string        `json:"host" mapstructure:"host"`
	Port                  int           `json:"port" mapstructure:"port"`
	Username              string        `json:"username" mapstructure:"username"`
	Password              string        `json:"-" mapstructure:"password"`
	Database              string        `json:"database" mapstructure:"database"`
	SSLMode               string        `json:"ssl-mode" mapstructure:"ssl-mode"`
	MaxIdleConnections    int           `json:"max-idle-connections" mapstructure:"max-idle-connections"`
	MaxOpenConnections    int           `json:"max-open-connections" mapstructure:"max-open-connections"`
	MaxConnectionLifeTime time.Duration `json:"max-connection-life-time" mapstructure:"max-connection-life-time"`
	LogLevel              int           `json:"log-level" mapstructure:"log-level"`
	// SchemaTTL is how long the introspected schema is reused for SQL generation.
	SchemaTTL time.Duration `json:"schema-ttl" mapstructure:"schema-ttl"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Driver:                DriverSQLite,
		Path:                  "database/financial.db",
		Host:                  "127.0.0.1",
		SSLMode:               "disable",
		MaxIdleConnections:    10,
		MaxOpenConnections:    100,
		MaxConnectionLifeTime: 10 * time.Second,
		LogLevel:              1, // Silent
		SchemaTTL:             5 * time.Minute,
	}
}

// AddFlags adds flags for database options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Driver, p+"db.driver", o.Driver, "Relational store driver (sqlite|mysql|postgres)")
	fs.StringVar(&o.Path, p+"db.path", o.Path, "SQLite database file")
	fs.StringVar(&o.Host, p+"db.host", o.Host, "Database host")
	fs.IntVar(&o.Port, p+"db.port", o.Port, "Database port (0 selects the driver default)")
	fs.StringVar(&o.Username, p+"db.username", o.Username, "Database username")
	fs.StringVar(&o.Password, p+"db.password", o.Password, "Database password (DEPRECATED: use DB_PASSWORD env var instead)")
	fs.StringVar(&o.Database, p+"db.database", o.Database, "Database name")
	fs.StringVar(&o.SSLMode, p+"db.ssl-mode", o.SSLMode, "PostgreSQL SSL mode")
	fs.IntVar(&o.MaxIdleConnections, p+"db.max-idle-connections", o.MaxIdleConnections, "Max idle connections")
	fs.IntVar(&o.MaxOpenConnections, p+"db.max-open-connections", o.MaxOpenConnections, "Max open connections")
	fs.DurationVar(&o.MaxConnectionLifeTime, p+"db.max-connection-life-time", o.MaxConnectionLifeTime, "Max connection life time")
	fs.IntVar(&o.LogLevel, p+"db.log-level", o.LogLevel, "GORM log level (1 silent .. 4 info)")
	fs.DurationVar(&o.SchemaTTL, p+"db.schema-ttl", o.SchemaTTL, "Lifetime of the cached table schema (0 reloads every query)")
}

// Validate checks if the options are valid.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	// 如果 CLI 参数为空，从环境变量读取
	if o.Password == "" {
		o.Password = os.Getenv("DB_PASSWORD")
	}

	var errs []error
	switch o.Driver {
	case DriverSQLite:
		if o.Path == "" {
			errs = append(errs, fmt.Errorf("db.path is required for sqlite"))
		}
	case DriverMySQL, DriverPostgres:
		if o.Host == "" {
			errs = append(errs, fmt.Errorf("db.host is required for %s", o.Driver))
		}
		if o.Database == "" {
			errs = append(errs, fmt.Errorf("db.database is required for %s", o.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported db.driver %q", o.Driver))
	}
	return errs
}

// Complete fills the driver default port.
func (o *Options) Complete() error {
	if o.Port != 0 {
		return nil
	}
	switch o.Driver {
	case DriverMySQL:
		o.Port = 3306
	case DriverPostgres:
		o.Port = 5432
	}
	return nil
}

// DSN returns the driver-specific data source name.
func (o *Options) DSN() string {
	switch o.Driver {
	case DriverMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			o.Username, o.Password, o.Host, o.Port, o.Database)
	case DriverPostgres:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			o.Host, o.Port, o.Username, o.Password, o.Database, o.SSLMode)
	default:
		return o.Path
	}
}
