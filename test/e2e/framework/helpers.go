package framework

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestContext holds the context for a test run
type TestContext struct {
	T      *testing.T
	Server *TestServer
	Client *http.Client
}

// NewTestContext creates and starts a server and returns a context whose
// client talks to it. Cleanup is registered with t.
func NewTestContext(t *testing.T, cfg TestServerConfig) *TestContext {
	t.Helper()

	ctx := &TestContext{
		T: t,
		Client: &http.Client{
			Timeout: 10 * time.Second,
			// Every response carries Connection: close.
			Transport: &http.Transport{DisableKeepAlives: true},
		},
	}

	// Register cleanup immediately so it's available if anything fails
	t.Cleanup(func() {
		ctx.Cleanup()
	})

	server := NewTestServer(t, cfg)
	ctx.Server = server

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	return ctx
}

// Cleanup stops the server.
func (tc *TestContext) Cleanup() {
	tc.T.Helper()
	if tc.Server != nil {
		if err := tc.Server.Stop(); err != nil {
			tc.T.Errorf("Server stopped with error: %v", err)
		}
	}
}

// Path returns the full path within the document root
func (tc *TestContext) Path(relativePath string) string {
	return filepath.Join(tc.Server.DocumentRoot(), relativePath)
}

// WriteFile writes content to a file in the document root
func (tc *TestContext) WriteFile(relativePath string, content []byte) {
	tc.T.Helper()
	path := tc.Path(relativePath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		tc.T.Fatalf("Failed to create parent of %s: %v", relativePath, err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		tc.T.Fatalf("Failed to write %s: %v", relativePath, err)
	}
}

// Mkdir creates a directory in the document root
func (tc *TestContext) Mkdir(relativePath string) {
	tc.T.Helper()
	if err := os.MkdirAll(tc.Path(relativePath), 0755); err != nil {
		tc.T.Fatalf("Failed to create %s: %v", relativePath, err)
	}
}

// URL returns the absolute URL of path on the test server
func (tc *TestContext) URL(path string) string {
	return fmt.Sprintf("http://%s%s", tc.Server.Addr(), path)
}

// Do sends a request with the standard library client and returns the
// response along with its fully read body.
func (tc *TestContext) Do(method, path string) (*http.Response, []byte) {
	tc.T.Helper()

	req, err := http.NewRequest(method, tc.URL(path), nil)
	if err != nil {
		tc.T.Fatalf("Failed to build %s request: %v", method, err)
	}

	resp, err := tc.Client.Do(req)
	if err != nil {
		tc.T.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		tc.T.Fatalf("Failed to read body of %s %s: %v", method, path, err)
	}
	return resp, body
}

// Raw writes request verbatim on a fresh connection and returns everything
// the server sent back before closing it.
func (tc *TestContext) Raw(request string) string {
	tc.T.Helper()

	conn, err := net.DialTimeout("tcp", tc.Server.Addr(), 5*time.Second)
	if err != nil {
		tc.T.Fatalf("Failed to dial server: %v", err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	if _, err := io.WriteString(conn, request); err != nil {
		tc.T.Fatalf("Failed to write request: %v", err)
	}

	out, err := io.ReadAll(conn)
	if err != nil {
		tc.T.Fatalf("Failed to read response: %v", err)
	}
	return string(out)
}
