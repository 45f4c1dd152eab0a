package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	httpadapter "github.com/marmos91/tinyhttpd/pkg/adapter/http"
)

const (
	// DefaultHTTPPort is the port the HTTP adapter listens on by default.
	DefaultHTTPPort = 8080

	// DefaultMetricsPort is the port of the Prometheus endpoint.
	DefaultMetricsPort = 9090

	defaultReadTimeout        = 30 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultMetricsLogInterval = 5 * time.Minute
)

// setViperDefaults registers defaults for keys where an explicit zero is a
// valid setting (port 0, disabled timeouts, a disabled adapter). Applying
// those in ApplyDefaults would overwrite the user's zero.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("adapters.http.enabled", true)
	v.SetDefault("adapters.http.port", DefaultHTTPPort)
	v.SetDefault("adapters.http.read_timeout", defaultReadTimeout)
	v.SetDefault("adapters.http.write_timeout", defaultWriteTimeout)
	v.SetDefault("adapters.http.metrics_log_interval", defaultMetricsLogInterval)
	v.SetDefault("server.metrics.port", DefaultMetricsPort)
}

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false) are replaced with defaults
//   - Explicit values are preserved
//   - Fields whose zero value means something (ports, timeouts that can be
//     disabled) are defaulted by the loader instead
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyHTTPDefaults(&cfg.Adapters.HTTP)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyHTTPDefaults sets HTTP adapter defaults.
func applyHTTPDefaults(cfg *httpadapter.HTTPConfig) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.DocumentRoot == "" {
		cfg.DocumentRoot = "res"
	}
	if cfg.TemplateDir == "" {
		cfg.TemplateDir = "html"
	}
	if cfg.Workers == 0 {
		cfg.Workers = 8
	}
	if cfg.QueueDepth == 0 {
		cfg.QueueDepth = 128
	}
	if cfg.AcceptPollTimeout == 0 {
		cfg.AcceptPollTimeout = 2 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.AcceptRate > 0 && cfg.AcceptBurst == 0 {
		cfg.AcceptBurst = 1
	}
	if cfg.ServerName == "" {
		cfg.ServerName = "tinyhttpd"
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Metrics: MetricsConfig{
				Enabled: false,
				Port:    DefaultMetricsPort,
			},
		},
		Adapters: AdaptersConfig{
			HTTP: httpadapter.HTTPConfig{
				Enabled:            true,
				Port:               DefaultHTTPPort,
				ReadTimeout:        defaultReadTimeout,
				WriteTimeout:       defaultWriteTimeout,
				MetricsLogInterval: defaultMetricsLogInterval,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
