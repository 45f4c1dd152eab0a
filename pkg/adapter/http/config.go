package http

import (
	"fmt"
	"time"
)

// HTTPConfig holds configuration parameters for the HTTP adapter.
//
// Default values (applied by New if zero):
//   - Host: "localhost"
//   - DocumentRoot: "res"
//   - TemplateDir: "html"
//   - Workers: 8
//   - QueueDepth: 128
//   - AcceptPollTimeout: 2s
//   - ShutdownTimeout: 30s
//   - ServerName: "tinyhttpd"
//
// Port is not defaulted here: 0 asks the OS for a free port. The config
// loader defaults it to 8080.
type HTTPConfig struct {
	// Enabled controls whether the HTTP adapter is active.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Host is the name the server answers for. HTTP/1.1 requests must carry
	// it in their Host header, and absolute-form targets must name it.
	Host string `mapstructure:"host" yaml:"host" validate:"required"`

	// BindAddress is the interface to listen on. Empty means all interfaces.
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address" validate:"omitempty,ip|hostname"`

	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// DocumentRoot is the directory served. It must exist.
	DocumentRoot string `mapstructure:"document_root" yaml:"document_root" validate:"required"`

	// TemplateDir holds badrequest.html, unsupported.html and filenotfound.html.
	TemplateDir string `mapstructure:"template_dir" yaml:"template_dir" validate:"required"`

	// Workers is the number of goroutines serving connections.
	Workers int `mapstructure:"workers" yaml:"workers" validate:"min=0,max=4096"`

	// QueueDepth bounds the number of accepted connections waiting for a
	// worker. When full, the accept loop blocks until a worker frees a slot.
	QueueDepth int `mapstructure:"queue_depth" yaml:"queue_depth" validate:"min=0"`

	// AcceptPollTimeout bounds each accept so the loop notices shutdown.
	AcceptPollTimeout time.Duration `mapstructure:"accept_poll_timeout" yaml:"accept_poll_timeout" validate:"min=0"`

	// ReadTimeout bounds reading the whole request head, including any blank
	// lines before the request line. 0 means no timeout.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds each write of the response. 0 means no timeout.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"min=0"`

	// ShutdownTimeout is how long draining waits for workers before
	// connections still in progress are interrupted.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`

	// AcceptRate limits accepted connections per second. 0 disables limiting.
	AcceptRate float64 `mapstructure:"accept_rate" yaml:"accept_rate" validate:"min=0"`

	// AcceptBurst is the number of connections accepted back to back before
	// AcceptRate applies.
	AcceptBurst int `mapstructure:"accept_burst" yaml:"accept_burst" validate:"min=0"`

	// ServerName is sent in the Server header.
	ServerName string `mapstructure:"server_name" yaml:"server_name"`

	// CRLF switches responses to "\r\n" line endings.
	CRLF bool `mapstructure:"crlf" yaml:"crlf"`

	// MetricsLogInterval is the interval at which to log pool statistics.
	// 0 disables periodic logging.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval" validate:"min=0"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *HTTPConfig) applyDefaults() {
	// Enabled and Port defaults are handled in pkg/config/defaults.go so that
	// explicit false and 0 values survive.

	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.DocumentRoot == "" {
		c.DocumentRoot = "res"
	}
	if c.TemplateDir == "" {
		c.TemplateDir = "html"
	}
	if c.Workers == 0 {
		c.Workers = 8
	}
	if c.QueueDepth == 0 {
		c.QueueDepth = 128
	}
	if c.AcceptPollTimeout == 0 {
		c.AcceptPollTimeout = 2 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.ServerName == "" {
		c.ServerName = "tinyhttpd"
	}
}

// validate checks the configuration after defaults were applied.
func (c *HTTPConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.Workers < 1 {
		return fmt.Errorf("invalid Workers %d: must be >= 1", c.Workers)
	}
	if c.QueueDepth < 1 {
		return fmt.Errorf("invalid QueueDepth %d: must be >= 1", c.QueueDepth)
	}
	if c.AcceptPollTimeout <= 0 {
		return fmt.Errorf("invalid AcceptPollTimeout %v: must be > 0", c.AcceptPollTimeout)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("invalid ReadTimeout %v: must be >= 0", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("invalid WriteTimeout %v: must be >= 0", c.WriteTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.AcceptRate < 0 {
		return fmt.Errorf("invalid AcceptRate %v: must be >= 0", c.AcceptRate)
	}
	return nil
}
