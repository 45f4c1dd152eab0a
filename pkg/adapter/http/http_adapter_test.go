package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tinyhttpd/internal/logger"
	"github.com/marmos91/tinyhttpd/pkg/metrics"
	prommetrics "github.com/marmos91/tinyhttpd/pkg/metrics/prometheus"
)

// recordingMetrics captures request outcomes for assertions.
type recordingMetrics struct {
	mu          sync.Mutex
	statuses    map[int]int
	accepted    int
	closed      int
	forceClosed int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{statuses: make(map[int]int)}
}

func (m *recordingMetrics) RecordRequest(method string, status int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[status]++
}
func (m *recordingMetrics) RecordBytesSent(bytes int64)      {}
func (m *recordingMetrics) SetQueueDepth(depth int)          {}
func (m *recordingMetrics) SetBusyWorkers(count int32)       {}
func (m *recordingMetrics) SetActiveConnections(count int32) {}
func (m *recordingMetrics) RecordConnectionAccepted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accepted++
}
func (m *recordingMetrics) RecordConnectionClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
}
func (m *recordingMetrics) RecordConnectionForceClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forceClosed++
}
func (m *recordingMetrics) RecordAcceptError() {}

func (m *recordingMetrics) status(code int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[code]
}

// testConfig returns a config serving a temporary document root.
func testConfig(t *testing.T) HTTPConfig {
	t.Helper()
	root := t.TempDir()
	templates := t.TempDir()

	write := func(path, content string) {
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	write(filepath.Join(root, "index.html"), "<html>index</html>\n")
	write(filepath.Join(root, "hello.txt"), "hello world")
	write(filepath.Join(templates, "badrequest.html"), "<html>400</html>\n")
	write(filepath.Join(templates, "filenotfound.html"), "<html>404</html>\n")
	write(filepath.Join(templates, "unsupported.html"), "<html>method not supported</html>\n")

	return HTTPConfig{
		Enabled:           true,
		Host:              "localhost",
		BindAddress:       "127.0.0.1",
		Port:              0,
		DocumentRoot:      root,
		TemplateDir:       templates,
		Workers:           2,
		QueueDepth:        16,
		AcceptPollTimeout: 50 * time.Millisecond,
		ShutdownTimeout:   5 * time.Second,
	}
}

// runningAdapter is an adapter serving in the background.
type runningAdapter struct {
	*HTTPAdapter
	cancel context.CancelFunc

	// done is closed when Serve returns; err is its result.
	done chan struct{}
	err  error
}

func startAdapter(t *testing.T, config HTTPConfig, m *recordingMetrics) *runningAdapter {
	t.Helper()

	var adapter *HTTPAdapter
	var err error
	if m != nil {
		adapter, err = New(config, m)
	} else {
		adapter, err = New(config, nil)
	}
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ra := &runningAdapter{HTTPAdapter: adapter, cancel: cancel, done: make(chan struct{})}
	go func() {
		ra.err = adapter.Serve(ctx)
		close(ra.done)
	}()

	require.Eventually(t, func() bool { return adapter.Addr() != nil },
		2*time.Second, 10*time.Millisecond, "listener did not start")

	t.Cleanup(func() {
		cancel()
		select {
		case <-ra.done:
		case <-time.After(10 * time.Second):
		}
	})
	return ra
}

func (ra *runningAdapter) wait(t *testing.T) error {
	t.Helper()
	select {
	case <-ra.done:
		return ra.err
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func dial(t *testing.T, a *runningAdapter) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", a.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// roundTrip sends request on a fresh connection and reads until the server
// closes it.
func roundTrip(t *testing.T, a *runningAdapter, request string) string {
	t.Helper()
	conn := dial(t, a)
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	_, err := io.WriteString(conn, request)
	require.NoError(t, err)

	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	conn.Close()
	return string(resp)
}

func hostHeader(a *runningAdapter) string {
	return fmt.Sprintf("Host: localhost:%d\n", a.Port())
}

// ============================================================================
// Construction Tests
// ============================================================================

func TestNew(t *testing.T) {
	t.Run("AppliesDefaults", func(t *testing.T) {
		config := testConfig(t)
		config.Workers = 0
		config.QueueDepth = 0
		config.AcceptPollTimeout = 0
		config.ShutdownTimeout = 0

		adapter, err := New(config, nil)
		require.NoError(t, err)
		assert.Equal(t, 8, adapter.config.Workers)
		assert.Equal(t, 128, adapter.config.QueueDepth)
		assert.Equal(t, 2*time.Second, adapter.config.AcceptPollTimeout)
		assert.Equal(t, 30*time.Second, adapter.config.ShutdownTimeout)
		assert.Equal(t, "tinyhttpd", adapter.config.ServerName)
		assert.Equal(t, "HTTP", adapter.Protocol())
		assert.Nil(t, adapter.Addr())
	})

	t.Run("MissingTemplates", func(t *testing.T) {
		config := testConfig(t)
		config.TemplateDir = t.TempDir()
		_, err := New(config, nil)
		assert.Error(t, err)
	})

	t.Run("MissingDocumentRoot", func(t *testing.T) {
		config := testConfig(t)
		config.DocumentRoot = filepath.Join(t.TempDir(), "missing")
		_, err := New(config, nil)
		assert.Error(t, err)
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		config := testConfig(t)
		config.Port = 70000
		_, err := New(config, nil)
		assert.ErrorContains(t, err, "invalid port")

		config = testConfig(t)
		config.ReadTimeout = -time.Second
		_, err = New(config, nil)
		assert.ErrorContains(t, err, "ReadTimeout")
	})
}

// ============================================================================
// End-to-end Tests
// ============================================================================

func TestServe_Scenarios(t *testing.T) {
	a := startAdapter(t, testConfig(t), nil)

	t.Run("DirectoryListing", func(t *testing.T) {
		resp := roundTrip(t, a, "GET / HTTP/1.1\n"+hostHeader(a)+"\n")
		assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 200 OK\n"), resp)
		assert.Contains(t, resp, `<a href="/index.html">`)
		assert.Contains(t, resp, `<a href="/hello.txt">`)
	})

	t.Run("UnknownMethod", func(t *testing.T) {
		resp := roundTrip(t, a, "FOO /x HTTP/1.1\n"+hostHeader(a)+"\n")
		assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 400 Bad Request\n"), resp)
		assert.Contains(t, resp, "<html>400</html>")
	})

	t.Run("UnsupportedMethod", func(t *testing.T) {
		resp := roundTrip(t, a, "POST /x HTTP/1.1\n"+hostHeader(a)+"\n")
		assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 501 Unsupported Method ('POST')\n"), resp)
		assert.Contains(t, resp, "method '(POST)' not supported")
	})

	t.Run("NotFound", func(t *testing.T) {
		resp := roundTrip(t, a, "GET /missing.txt HTTP/1.1\n"+hostHeader(a)+"\n")
		assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 404 File not found\n"), resp)
	})

	t.Run("File", func(t *testing.T) {
		resp := roundTrip(t, a, "GET /hello.txt HTTP/1.0\r\n\r\n")
		assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 200 OK\n"), resp)
		assert.Contains(t, resp, "Content-Length: 11\n")
		assert.Contains(t, resp, "Connection: close\n")
		assert.True(t, strings.HasSuffix(resp, "\n\nhello world"), resp)
	})

	t.Run("Head", func(t *testing.T) {
		resp := roundTrip(t, a, "HEAD /hello.txt HTTP/1.0\n\n")
		assert.Contains(t, resp, "Content-Length: 11\n")
		assert.True(t, strings.HasSuffix(resp, "\n\n"), resp)
	})

	t.Run("WrongHostPort", func(t *testing.T) {
		resp := roundTrip(t, a, "GET / HTTP/1.1\nHost: localhost:1\n\n")
		assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 400 Bad Request\n"), resp)
	})

	t.Run("PeerSendsNothing", func(t *testing.T) {
		conn := dial(t, a)
		require.NoError(t, conn.(*net.TCPConn).CloseWrite())
		require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

		resp, err := io.ReadAll(conn)
		require.NoError(t, err)
		assert.Empty(t, resp)
	})
}

func TestServe_InvalidMethodBytesWithMetrics(t *testing.T) {
	metrics.InitRegistry()
	config := testConfig(t)
	adapter, err := New(config, prommetrics.NewHTTPMetrics())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	a := &runningAdapter{HTTPAdapter: adapter, cancel: cancel, done: make(chan struct{})}
	go func() {
		a.err = adapter.Serve(ctx)
		close(a.done)
	}()
	t.Cleanup(func() {
		cancel()
		_ = a.wait(t)
	})
	require.Eventually(t, func() bool { return adapter.Addr() != nil },
		2*time.Second, 10*time.Millisecond)

	resp := roundTrip(t, a, "\xff / HTTP/1.0\n\n")
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 400 Bad Request\n"), "%q", resp)

	// The server survived and keeps serving.
	resp = roundTrip(t, a, "GET /hello.txt HTTP/1.0\n\n")
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 200 OK\n"), "%q", resp)

	requestCount := func(method, status string) float64 {
		families, err := metrics.GetRegistry().Gather()
		require.NoError(t, err)
		for _, f := range families {
			if f.GetName() != "tinyhttpd_http_requests_total" {
				continue
			}
			for _, m := range f.GetMetric() {
				labels := map[string]string{}
				for _, l := range m.GetLabel() {
					labels[l.GetName()] = l.GetValue()
				}
				if labels["method"] == method && labels["status"] == status {
					return m.GetCounter().GetValue()
				}
			}
		}
		return 0
	}
	assert.Eventually(t, func() bool { return requestCount("other", "400") == 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestServe_ConcurrentClients(t *testing.T) {
	config := testConfig(t)
	config.Workers = 3
	m := newRecordingMetrics()
	a := startAdapter(t, config, m)

	const clients = 40
	var wg sync.WaitGroup
	results := make(chan string, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.Dial("tcp", a.Addr().String())
			if err != nil {
				results <- err.Error()
				return
			}
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
			_, _ = io.WriteString(conn, "GET /hello.txt HTTP/1.0\n\n")
			resp, _ := io.ReadAll(conn)
			results <- string(resp)
		}()
	}
	wg.Wait()
	close(results)

	for resp := range results {
		assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 200 OK\n"), resp)
	}
	assert.Eventually(t, func() bool { return m.status(200) == clients },
		2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return a.GetActiveConnections() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestServe_ReadTimeout(t *testing.T) {
	config := testConfig(t)
	config.ReadTimeout = 100 * time.Millisecond
	a := startAdapter(t, config, nil)

	conn := dial(t, a)
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	_, err := io.WriteString(conn, "\n\n")
	require.NoError(t, err)

	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(resp), "HTTP/1.1 400 Bad Request\n"), string(resp))
}

func TestServe_AcceptRateLimit(t *testing.T) {
	config := testConfig(t)
	config.AcceptRate = 5
	config.AcceptBurst = 1
	a := startAdapter(t, config, nil)

	// The first token is spent on the first accept; two more need ~400ms.
	start := time.Now()
	for i := 0; i < 3; i++ {
		resp := roundTrip(t, a, "GET /hello.txt HTTP/1.0\n\n")
		require.True(t, strings.HasPrefix(resp, "HTTP/1.1 200 OK\n"), resp)
	}
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

// syncBuffer is a bytes.Buffer safe for the logger and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServe_LogsBoundPort(t *testing.T) {
	var out syncBuffer
	logger.SetOutput(&out)
	logger.SetLevel("INFO")
	t.Cleanup(func() { logger.SetOutput(os.Stdout) })

	config := testConfig(t)
	config.Port = 0
	a := startAdapter(t, config, nil)

	port := a.Addr().(*net.TCPAddr).Port
	assert.Equal(t, port, a.Port())
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), fmt.Sprintf("port %d)", port))
	}, 2*time.Second, 10*time.Millisecond)
	assert.NotContains(t, out.String(), "port 0)")
}

func TestServe_ListenError(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	config := testConfig(t)
	config.Port = occupied.Addr().(*net.TCPAddr).Port
	adapter, err := New(config, nil)
	require.NoError(t, err)

	err = adapter.Serve(context.Background())
	assert.ErrorContains(t, err, "failed to create HTTP listener")

	// Stop after a failed Serve must not hang.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, adapter.Stop(ctx))
}

// ============================================================================
// Shutdown Tests
// ============================================================================

func TestShutdown_DrainsQueuedConnections(t *testing.T) {
	config := testConfig(t)
	config.Workers = 1
	m := newRecordingMetrics()
	a := startAdapter(t, config, m)

	// The only worker blocks on a client that has not sent its request yet.
	slow := dial(t, a)
	require.Eventually(t, func() bool { return a.pool.busyWorkers() == 1 },
		2*time.Second, 10*time.Millisecond)

	// Two more connections wait in the queue.
	queued := []net.Conn{dial(t, a), dial(t, a)}
	for _, c := range queued {
		_, err := io.WriteString(c, "GET /hello.txt HTTP/1.0\n\n")
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return a.GetActiveConnections() == 3 },
		2*time.Second, 10*time.Millisecond)

	stopErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		stopErr <- a.Stop(ctx)
	}()

	// Draining has begun: new connections are no longer accepted.
	time.Sleep(4 * config.AcceptPollTimeout)
	_, err := io.WriteString(slow, "GET /hello.txt HTTP/1.0\n\n")
	require.NoError(t, err)

	for _, c := range append([]net.Conn{slow}, queued...) {
		require.NoError(t, c.SetDeadline(time.Now().Add(5*time.Second)))
		resp, err := io.ReadAll(c)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(resp), "HTTP/1.1 200 OK\n"), string(resp))
	}

	require.NoError(t, <-stopErr)
	require.NoError(t, a.wait(t))
	assert.Equal(t, 3, m.status(200))
	assert.Equal(t, int32(0), a.GetActiveConnections())

	_, err = net.DialTimeout("tcp", a.Addr().String(), 500*time.Millisecond)
	assert.Error(t, err, "listener should be closed after drain")
}

func TestShutdown_InterruptsAfterTimeout(t *testing.T) {
	config := testConfig(t)
	config.Workers = 1
	config.ShutdownTimeout = 200 * time.Millisecond
	m := newRecordingMetrics()
	a := startAdapter(t, config, m)

	// The request line arrives but the header block never ends.
	stuck := dial(t, a)
	_, err := io.WriteString(stuck, "GET / HTTP/1.1\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return a.pool.busyWorkers() == 1 },
		2*time.Second, 10*time.Millisecond)

	a.cancel()

	err = a.wait(t)
	assert.ErrorContains(t, err, "1 connection(s) interrupted")

	require.NoError(t, stuck.SetDeadline(time.Now().Add(2*time.Second)))
	resp, err := io.ReadAll(stuck)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(resp), "HTTP/1.1 400 Bad Request\n"), "%q", resp)
	assert.Contains(t, string(resp), "<html>400</html>")

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 1, m.forceClosed)
	assert.Equal(t, 1, m.statuses[400])
}

func TestConnection_Interrupt(t *testing.T) {
	t.Run("ReadingGetsDeadline", func(t *testing.T) {
		client, server := net.Pipe()
		defer client.Close()
		c := NewHTTPConnection(nil, server)
		c.servingSince.Store(time.Now().UnixNano())

		require.True(t, c.interrupt())

		// The socket stays open; only the pending read fails.
		_, err := server.Read(make([]byte, 1))
		assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
		assert.False(t, c.closing.Load())

		// A second interrupt escalates to closing the socket.
		assert.False(t, c.interrupt())
		assert.True(t, c.closing.Load())
		_, err = client.Read(make([]byte, 1))
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("WritingIsClosed", func(t *testing.T) {
		client, server := net.Pipe()
		defer client.Close()
		c := NewHTTPConnection(nil, server)
		c.writing.Store(true)

		assert.True(t, c.interrupt())
		assert.True(t, c.closing.Load())
		assert.False(t, c.abort())
	})

	t.Run("ClosingIsLeftAlone", func(t *testing.T) {
		client, server := net.Pipe()
		defer client.Close()
		c := NewHTTPConnection(nil, server)
		require.True(t, c.abort())

		assert.False(t, c.interrupt())
		assert.False(t, c.interrupted.Load())
	})
}

func TestShutdown_ContextCancelled(t *testing.T) {
	a := startAdapter(t, testConfig(t), nil)

	a.cancel()
	assert.NoError(t, a.wait(t))

	// Stop after Serve returned is a no-op.
	assert.NoError(t, a.Stop(context.Background()))
}

func TestStop_BeforeServe(t *testing.T) {
	adapter, err := New(testConfig(t), nil)
	require.NoError(t, err)

	assert.NoError(t, adapter.Stop(context.Background()))
	assert.NoError(t, adapter.Stop(context.Background()))

	// Serve after Stop drains immediately.
	done := make(chan error, 1)
	go func() { done <- adapter.Serve(context.Background()) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}

func TestStop_Concurrent(t *testing.T) {
	a := startAdapter(t, testConfig(t), nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			assert.NoError(t, a.Stop(ctx))
		}()
	}
	wg.Wait()
	assert.NoError(t, a.wait(t))
}
