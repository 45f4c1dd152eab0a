package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/marmos91/tinyhttpd/internal/logger"
	proto "github.com/marmos91/tinyhttpd/internal/protocol/http"
	"github.com/marmos91/tinyhttpd/internal/ratelimiter"
	"github.com/marmos91/tinyhttpd/pkg/metrics"
)

// interruptGrace is how long a connection picked up after the shutdown
// timeout is served before it too is interrupted.
const interruptGrace = 100 * time.Millisecond

// HTTPAdapter implements the adapter.Adapter interface for the static file
// server.
//
// Architecture:
// A single accept loop owns the listening socket and hands every accepted
// connection to a fixed worker pool through a bounded FIFO queue. Each worker
// serves exactly one request per connection and closes it.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called: the draining flag is set
//  2. The accept loop notices within AcceptPollTimeout and stops accepting
//  3. One shutdown pill per worker is queued behind every accepted connection
//  4. Workers finish the queue and exit on their pill; after ShutdownTimeout
//     connections still in progress are interrupted (400 if still reading,
//     closed if already writing)
//  5. The listening socket is closed
//
// Thread safety:
// All methods are safe for concurrent use. The shutdown mechanism uses
// sync.Once so Stop() may be called any number of times.
type HTTPAdapter struct {
	config HTTPConfig

	// handler runs the request pipeline. Rebuilt in Serve when the port is
	// picked by the OS, before any worker starts.
	handler *proto.Handler

	metrics metrics.HTTPMetrics

	// limiter throttles accepts; nil when AcceptRate is 0.
	limiter *ratelimiter.RateLimiter

	pool *workerPool

	// listener is set once in Serve and guarded by listenerMu for Addr().
	listener   net.Listener
	listenerMu sync.RWMutex

	// port is the bound port once listening.
	port atomic.Int32

	// started is set when Serve begins; Stop only waits for done if it is.
	started atomic.Bool

	// shutdown is closed by initiateShutdown; it is the draining flag.
	shutdown     chan struct{}
	shutdownOnce sync.Once

	// shutdownCtx is cancelled with shutdown to release goroutines blocked on
	// the rate limiter or in the metrics logger.
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// done is closed when Serve has drained and returned.
	done chan struct{}

	// connCount tracks accepted, not yet closed connections.
	connCount atomic.Int32

	// activeConnections maps connection id to *HTTPConnection for every
	// connection a worker is currently serving, for interruption on timeout.
	activeConnections sync.Map
}

// New creates a new HTTPAdapter.
//
// The document root and error pages are checked here, so a broken deployment
// fails before anything is bound.
//
// Parameters:
//   - config: Adapter configuration; zero values are replaced with defaults
//   - httpMetrics: Optional metrics collector (nil for no metrics)
//
// Returns a configured but not yet started adapter.
func New(config HTTPConfig, httpMetrics metrics.HTTPMetrics) (*HTTPAdapter, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid HTTP config: %w", err)
	}

	if httpMetrics == nil {
		httpMetrics = metrics.NewNoopHTTPMetrics()
	}

	s := &HTTPAdapter{
		config:   config,
		metrics:  httpMetrics,
		limiter:  ratelimiter.New(config.AcceptRate, config.AcceptBurst),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	handler, err := proto.NewHandler(s.handlerConfig(config.Port))
	if err != nil {
		return nil, err
	}
	s.handler = handler
	s.shutdownCtx, s.cancelRequests = context.WithCancel(context.Background())
	s.pool = newWorkerPool(config.Workers, config.QueueDepth, s.serveConn, httpMetrics)

	logger.Debug("HTTP document root: %s", handler.Root())
	if s.limiter != nil {
		logger.Debug("HTTP accept rate limit: %.1f/s (burst %d)", config.AcceptRate, config.AcceptBurst)
	}

	return s, nil
}

func (s *HTTPAdapter) handlerConfig(port int) proto.HandlerConfig {
	return proto.HandlerConfig{
		Host:         s.config.Host,
		Port:         port,
		DocumentRoot: s.config.DocumentRoot,
		TemplateDir:  s.config.TemplateDir,
		ServerName:   s.config.ServerName,
		CRLF:         s.config.CRLF,
	}
}

// Serve binds the listening socket, starts the worker pool and accepts
// connections until the context is cancelled or Stop is called.
//
// Returns:
//   - nil once every accepted connection was served and the pool stopped
//   - error if the socket cannot be bound, becomes unusable, or draining had
//     to interrupt connections
//
// Thread safety:
// Serve() should only be called once per HTTPAdapter instance.
func (s *HTTPAdapter) Serve(ctx context.Context) error {
	s.started.Store(true)
	defer close(s.done)

	addr := net.JoinHostPort(s.config.BindAddress, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.initiateShutdown()
		return fmt.Errorf("failed to create HTTP listener on %s: %w", addr, err)
	}

	port := listener.Addr().(*net.TCPAddr).Port
	if s.config.Port == 0 {
		// The Host check needs the port clients will actually use.
		handler, err := proto.NewHandler(s.handlerConfig(port))
		if err != nil {
			_ = listener.Close()
			s.initiateShutdown()
			return err
		}
		s.handler = handler
	}

	s.port.Store(int32(port))
	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()

	logger.Info("HTTP server listening on %s (host %s, port %d), serving %s",
		listener.Addr(), s.config.Host, port, s.handler.Root())
	logger.Debug("HTTP config: workers=%d queue_depth=%d read_timeout=%v write_timeout=%v accept_poll_timeout=%v accept_rate=%v/s",
		s.config.Workers, s.config.QueueDepth, s.config.ReadTimeout, s.config.WriteTimeout, s.config.AcceptPollTimeout,
		s.limiter.Limit())

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("HTTP shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(s.shutdownCtx)
	}

	s.pool.start()

	acceptErr := s.acceptLoop(listener)
	drainErr := s.drain()

	if acceptErr != nil {
		return acceptErr
	}
	return drainErr
}

// acceptLoop accepts connections and queues them until draining begins.
//
// Each Accept is bounded by AcceptPollTimeout so the draining flag is checked
// even when no client connects. Transient accept errors are retried with
// exponential backoff; a closed listener is fatal.
func (s *HTTPAdapter) acceptLoop(listener net.Listener) error {
	deadliner, _ := listener.(interface{ SetDeadline(time.Time) error })

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 5 * time.Millisecond
	retry.MaxInterval = time.Second
	retry.MaxElapsedTime = 0

	for {
		select {
		case <-s.shutdown:
			return nil
		default:
		}

		if !s.limiter.Allow() {
			logger.Debug("HTTP accept throttled at %v/s", s.limiter.Limit())
			if err := s.limiter.Wait(s.shutdownCtx); err != nil {
				// Only fails once shutdownCtx is cancelled; the check above returns.
				continue
			}
		}

		if deadliner != nil {
			if err := deadliner.SetDeadline(time.Now().Add(s.config.AcceptPollTimeout)); err != nil {
				logger.Debug("Error setting HTTP accept deadline: %v", err)
			}
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				logger.Error("HTTP listener closed unexpectedly: %v", err)
				s.initiateShutdown()
				return fmt.Errorf("HTTP listener unusable: %w", err)
			}

			s.metrics.RecordAcceptError()
			wait := retry.NextBackOff()
			logger.Warn("Error accepting HTTP connection (retrying in %v): %v", wait, err)
			select {
			case <-time.After(wait):
			case <-s.shutdown:
				return nil
			}
			continue
		}
		retry.Reset()

		s.enqueue(tcpConn)
	}
}

// enqueue wraps an accepted socket and queues it for a worker.
func (s *HTTPAdapter) enqueue(tcpConn net.Conn) {
	conn := NewHTTPConnection(s, tcpConn)

	current := s.connCount.Add(1)
	s.metrics.RecordConnectionAccepted()
	s.metrics.SetActiveConnections(current)

	logger.Debug("HTTP connection %s accepted from %s (active: %d, queued: %d)",
		conn.ID(), tcpConn.RemoteAddr(), current, s.pool.depth())

	s.pool.submit(conn)
}

// serveConn is the worker body: serve one connection and release it.
func (s *HTTPAdapter) serveConn(conn *HTTPConnection) {
	s.activeConnections.Store(conn.ID(), conn)
	defer func() {
		s.activeConnections.Delete(conn.ID())

		current := s.connCount.Add(-1)
		s.metrics.RecordConnectionClosed()
		s.metrics.SetActiveConnections(current)
	}()

	conn.Serve()
}

// initiateShutdown sets the draining flag. Safe to call multiple times.
func (s *HTTPAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("HTTP shutdown initiated")
		close(s.shutdown)
		s.cancelRequests()
	})
}

// drain stops the worker pool and closes the listener.
//
// Pills are queued behind every accepted connection, so everything already
// queued is served. If the workers have not all exited after ShutdownTimeout,
// connections being served are interrupted: those still reading their request
// are answered with 400, those already writing are closed. Connections picked
// up later get interruptGrace to finish before the same happens to them.
func (s *HTTPAdapter) drain() error {
	logger.Info("HTTP draining: %d queued, %d in progress (timeout: %v)",
		s.pool.depth(), s.pool.busyWorkers(), s.config.ShutdownTimeout)

	stopped := make(chan struct{})
	go func() {
		s.pool.stop()
		s.pool.wait()
		close(stopped)
	}()

	var drainErr error
	select {
	case <-stopped:
	case <-time.After(s.config.ShutdownTimeout):
		logger.Warn("HTTP shutdown timeout exceeded: %d connection(s) still active after %v - interrupting",
			s.connCount.Load(), s.config.ShutdownTimeout)

		interrupted := s.interruptConnections(0)
		ticker := time.NewTicker(interruptGrace)
	waitWorkers:
		for {
			select {
			case <-stopped:
				break waitWorkers
			case <-ticker.C:
				interrupted += s.interruptConnections(interruptGrace)
			}
		}
		ticker.Stop()
		drainErr = fmt.Errorf("HTTP shutdown timeout: %d connection(s) interrupted", interrupted)
	}

	s.listenerMu.RLock()
	listener := s.listener
	s.listenerMu.RUnlock()
	if listener != nil {
		if err := listener.Close(); err != nil {
			logger.Debug("Error closing HTTP listener: %v", err)
		}
	}

	if drainErr == nil {
		logger.Info("HTTP graceful shutdown complete: all connections served")
	}
	return drainErr
}

// interruptConnections interrupts every connection a worker has been serving
// for at least minAge. Returns the number interrupted for the first time.
func (s *HTTPAdapter) interruptConnections(minAge time.Duration) int {
	now := time.Now()
	count := 0
	s.activeConnections.Range(func(key, value any) bool {
		conn := value.(*HTTPConnection)
		age, serving := conn.servingFor(now)
		if !serving || age < minAge {
			return true
		}
		if conn.interrupt() {
			count++
			s.metrics.RecordConnectionForceClosed()
			logger.Debug("Interrupted HTTP connection %s after %v", key, age)
		}
		return true
	})

	if count > 0 {
		logger.Info("Interrupted %d HTTP connection(s)", count)
	}
	return count
}

// Stop initiates graceful shutdown and waits for Serve to finish draining.
//
// If ctx expires first, connections still in progress are interrupted and
// the context error is returned; Serve keeps draining in the background.
//
// Thread safety:
// Safe to call concurrently from multiple goroutines.
func (s *HTTPAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if !s.started.Load() {
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		interrupted := s.interruptConnections(0)
		logger.Warn("HTTP shutdown context cancelled: %d connection(s) interrupted: %v", interrupted, ctx.Err())
		return ctx.Err()
	}
}

// logMetrics periodically logs pool statistics until ctx is cancelled.
func (s *HTTPAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("HTTP metrics: active_connections=%d busy_workers=%d queue_depth=%d",
				s.connCount.Load(), s.pool.busyWorkers(), s.pool.depth())
		}
	}
}

// GetActiveConnections returns the number of accepted connections that have
// not been closed yet, queued or in progress.
func (s *HTTPAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Addr returns the bound address, or nil before Serve has bound the socket.
func (s *HTTPAdapter) Addr() net.Addr {
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound TCP port, or the configured port before Serve has
// bound the socket.
func (s *HTTPAdapter) Port() int {
	if p := s.port.Load(); p != 0 {
		return int(p)
	}
	return s.config.Port
}

// Protocol returns "HTTP" as the protocol identifier.
func (s *HTTPAdapter) Protocol() string {
	return "HTTP"
}
