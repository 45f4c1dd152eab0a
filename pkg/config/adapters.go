package config

import (
	"fmt"

	"github.com/marmos91/tinyhttpd/pkg/adapter"
	httpadapter "github.com/marmos91/tinyhttpd/pkg/adapter/http"
	"github.com/marmos91/tinyhttpd/pkg/metrics"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// Adapter construction fails fast: a missing document root or error page
// template is reported here rather than on the first request.
//
// Parameters:
//   - cfg: The complete configuration
//   - httpMetrics: Optional HTTP metrics collector (nil = no metrics)
//
// Returns:
//   - []adapter.Adapter: Enabled adapters ready to be added to the server
//   - error: Any error during adapter creation
func CreateAdapters(cfg *Config, httpMetrics metrics.HTTPMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.HTTP.Enabled {
		httpAdapter, err := httpadapter.New(cfg.Adapters.HTTP, httpMetrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP adapter: %w", err)
		}
		adapters = append(adapters, httpAdapter)
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
