package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# tinyhttpd Configuration File
#
# Every value can be overridden with an environment variable named after its
# path, e.g. TINYHTTPD_ADAPTERS_HTTP_PORT=9000.`

// fieldComments documents the keys of the generated configuration file,
// indexed by their dotted path.
var fieldComments = map[string]string{
	"logging":        "Logging configuration",
	"logging.level":  "Minimum level: DEBUG, INFO, WARN or ERROR",
	"logging.format": "Output format: text or json",
	"logging.output": "Destination: stdout, stderr or a file path",

	"server":                  "Server-wide settings",
	"server.shutdown_timeout": "Maximum time each adapter may take to stop",
	"server.metrics":          "Prometheus endpoint, served on /metrics",

	"adapters":                           "Protocol adapters",
	"adapters.http":                      "Static file server",
	"adapters.http.host":                 "Host name the server answers for (checked against the Host header)",
	"adapters.http.bind_address":         "Interface to listen on; empty means all interfaces",
	"adapters.http.port":                 "TCP port; 0 picks a free port",
	"adapters.http.document_root":        "Directory served to clients",
	"adapters.http.template_dir":         "Directory holding badrequest.html, unsupported.html and filenotfound.html",
	"adapters.http.workers":              "Number of goroutines serving connections",
	"adapters.http.queue_depth":          "Accepted connections allowed to wait for a worker",
	"adapters.http.accept_poll_timeout":  "How often the accept loop checks for shutdown",
	"adapters.http.read_timeout":         "Time allowed to read a request head; 0 disables",
	"adapters.http.write_timeout":        "Time allowed for each response write; 0 disables",
	"adapters.http.shutdown_timeout":     "Time allowed for draining before connections are interrupted",
	"adapters.http.accept_rate":          "Accepted connections per second; 0 disables throttling",
	"adapters.http.crlf":                 "Terminate response lines with CRLF instead of LF",
	"adapters.http.metrics_log_interval": "Interval of the periodic pool statistics log line; 0 disables",
}

// InitConfig writes a default configuration file to the default location.
//
// Parameters:
//   - force: overwrite an existing file
//
// Returns the path of the written file.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders cfg as YAML with a comment above each
// documented key.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var root yaml.Node
	if err := root.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	annotate(&root, "")

	doc := &yaml.Node{
		Kind:        yaml.DocumentNode,
		HeadComment: configHeader,
		Content:     []*yaml.Node{&root},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	return buf.String(), nil
}

// annotate attaches fieldComments to the keys of a mapping node, recursing
// into nested mappings.
func annotate(node *yaml.Node, prefix string) {
	if node.Kind != yaml.MappingNode {
		return
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]

		path := key.Value
		if prefix != "" {
			path = prefix + "." + key.Value
		}

		if comment, ok := fieldComments[path]; ok {
			key.HeadComment = "# " + comment
		}
		annotate(value, path)
	}
}
