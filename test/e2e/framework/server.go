package framework

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/tinyhttpd/internal/logger"
	"github.com/marmos91/tinyhttpd/pkg/config"
	"github.com/marmos91/tinyhttpd/pkg/server"
)

// Error page bodies written into every test server's template directory.
const (
	BadRequestBody  = "<html><body>Bad Request</body></html>\n"
	NotFoundBody    = "<html><body>Not Found</body></html>\n"
	UnsupportedBody = "<html><body>The requested method is not supported.</body></html>\n"
)

// TestServerConfig holds configuration for the test server.
// This is distinct from pkg/config.Config: it only names what a test
// usually varies and the rest comes from the defaults.
type TestServerConfig struct {
	Workers        int
	CRLF           bool
	Metrics        bool
	LogLevel       string
	StartupTimeout time.Duration
}

// TestServer runs the full server stack (config, adapters, orchestrator)
// against a temporary document root.
type TestServer struct {
	t        testing.TB
	config   TestServerConfig
	cfg      *config.Config
	server   *server.Server
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
	tempDir  string
	serveErr error
}

// NewTestServer creates a new test server instance with an empty document
// root. Use WriteFile to populate it before or after Start.
func NewTestServer(t testing.TB, cfg TestServerConfig) *TestServer {
	t.Helper()

	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "ERROR" // Keep tests quiet by default
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = 10 * time.Second
	}

	tempDir := t.TempDir()
	docRoot := filepath.Join(tempDir, "res")
	templateDir := filepath.Join(tempDir, "html")
	for _, dir := range []string{docRoot, templateDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
	}
	pages := map[string]string{
		"badrequest.html":   BadRequestBody,
		"filenotfound.html": NotFoundBody,
		"unsupported.html":  UnsupportedBody,
	}
	for name, body := range pages {
		if err := os.WriteFile(filepath.Join(templateDir, name), []byte(body), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	full := config.GetDefaultConfig()
	full.Logging.Level = cfg.LogLevel
	full.Adapters.HTTP.Host = "127.0.0.1"
	full.Adapters.HTTP.BindAddress = "127.0.0.1"
	full.Adapters.HTTP.Port = findFreePort(t)
	full.Adapters.HTTP.DocumentRoot = docRoot
	full.Adapters.HTTP.TemplateDir = templateDir
	full.Adapters.HTTP.Workers = cfg.Workers
	full.Adapters.HTTP.AcceptPollTimeout = 50 * time.Millisecond
	full.Adapters.HTTP.ShutdownTimeout = 5 * time.Second
	full.Adapters.HTTP.MetricsLogInterval = 0
	full.Adapters.HTTP.CRLF = cfg.CRLF
	full.Server.ShutdownTimeout = 5 * time.Second
	if cfg.Metrics {
		full.Server.Metrics.Enabled = true
		full.Server.Metrics.Port = findFreePort(t)
	}

	if err := config.Validate(full); err != nil {
		t.Fatalf("Invalid test configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &TestServer{
		t:       t,
		config:  cfg,
		cfg:     full,
		ctx:     ctx,
		cancel:  cancel,
		tempDir: tempDir,
	}
}

// Start builds the adapters from the configuration and starts serving.
func (ts *TestServer) Start() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.started {
		return fmt.Errorf("server already started")
	}

	ts.t.Helper()

	logger.SetLevel(ts.config.LogLevel)

	metricsResult := config.InitializeMetrics(ts.cfg)

	adapters, err := config.CreateAdapters(ts.cfg, metricsResult.HTTPMetrics)
	if err != nil {
		return fmt.Errorf("failed to create adapters: %w", err)
	}

	ts.server = server.New(ts.cfg.Server.ShutdownTimeout)
	for _, adp := range adapters {
		if err := ts.server.AddAdapter(adp); err != nil {
			return err
		}
	}
	if metricsResult.Server != nil {
		if err := ts.server.AddAuxServer("metrics", metricsResult.Server); err != nil {
			return err
		}
	}

	ts.wg.Add(1)
	go func() {
		defer ts.wg.Done()
		if err := ts.server.Serve(ts.ctx); err != nil && !errors.Is(err, context.Canceled) {
			ts.t.Logf("Server error: %v", err)
			ts.serveErr = err
		}
	}()

	if err := waitForPort(ts.Port(), ts.config.StartupTimeout); err != nil {
		ts.cancel()
		ts.wg.Wait()
		return fmt.Errorf("server failed to start: %w", err)
	}
	if ts.cfg.Server.Metrics.Enabled {
		if err := waitForPort(ts.MetricsPort(), ts.config.StartupTimeout); err != nil {
			ts.cancel()
			ts.wg.Wait()
			return fmt.Errorf("metrics server failed to start: %w", err)
		}
	}

	ts.started = true
	return nil
}

// Stop cancels the server context and waits for the drain to finish.
//
// Returns the error Serve failed with, if any.
func (ts *TestServer) Stop() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.started {
		return nil
	}

	ts.cancel()

	done := make(chan struct{})
	go func() {
		ts.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		return fmt.Errorf("server stop timeout")
	}

	ts.started = false
	return ts.serveErr
}

// Port returns the port the HTTP adapter listens on.
func (ts *TestServer) Port() int {
	return ts.cfg.Adapters.HTTP.Port
}

// MetricsPort returns the port of the metrics endpoint.
func (ts *TestServer) MetricsPort() int {
	return ts.cfg.Server.Metrics.Port
}

// Addr returns host:port of the HTTP adapter.
func (ts *TestServer) Addr() string {
	return net.JoinHostPort("127.0.0.1", fmt.Sprint(ts.Port()))
}

// DocumentRoot returns the served directory.
func (ts *TestServer) DocumentRoot() string {
	return ts.cfg.Adapters.HTTP.DocumentRoot
}

// TempDir returns the directory holding the document root and templates.
func (ts *TestServer) TempDir() string {
	return ts.tempDir
}

// waitForPort waits until something accepts TCP connections on port.
func waitForPort(port int, timeout time.Duration) error {
	addr := net.JoinHostPort("127.0.0.1", fmt.Sprint(port))
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for %s", addr)
}

// findFreePort finds an available port
func findFreePort(t testing.TB) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find free port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	_ = listener.Close()
	return port
}
