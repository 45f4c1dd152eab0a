package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/tinyhttpd/internal/logger"
	"github.com/marmos91/tinyhttpd/pkg/adapter"
)

// DefaultStopTimeout bounds how long Serve waits for each adapter's Stop.
const DefaultStopTimeout = 30 * time.Second

// AuxServer is a background service started next to the adapters, such as
// the metrics endpoint. Start blocks until ctx is cancelled.
type AuxServer interface {
	Start(ctx context.Context) error
}

// Server manages the lifecycle of the protocol adapters and any auxiliary
// servers.
//
// Lifecycle:
//  1. Creation: New() with the stop timeout
//  2. Registration: AddAdapter() for each protocol, AddAuxServer() for extras
//  3. Startup: Serve() starts everything concurrently
//  4. Shutdown: Context cancellation or an adapter failure stops all
//     adapters in reverse registration order
//
// Thread safety:
// Server is safe for concurrent use. Serve() may only be called once.
//
// Example usage:
//
//	srv := server.New(cfg.Server.ShutdownTimeout)
//	if err := srv.AddAdapter(httpAdapter); err != nil {
//	    return err
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    return err
//	}
type Server struct {
	stopTimeout time.Duration

	// mu protects adapters, aux and served
	mu       sync.RWMutex
	adapters []adapter.Adapter
	aux      []namedAux
	served   bool
}

type namedAux struct {
	name   string
	server AuxServer
}

// New creates a Server. A stopTimeout of 0 uses DefaultStopTimeout.
func New(stopTimeout time.Duration) *Server {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Server{
		stopTimeout: stopTimeout,
		adapters:    make([]adapter.Adapter, 0, 2),
	}
}

// AddAdapter registers a protocol adapter.
//
// Returns an error if another adapter already serves the same protocol or
// the same non-zero port, or if Serve() has already been called.
//
// Panics if a is nil (programmer error).
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return errors.New("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	s.adapters = append(s.adapters, a)
	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// AddAuxServer registers a background server that runs for as long as the
// adapters do. Its failure stops the adapters like an adapter failure would.
func (s *Server) AddAuxServer(name string, aux AuxServer) error {
	if aux == nil {
		panic("aux server cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return errors.New("cannot add server after Serve() has been called")
	}
	s.aux = append(s.aux, namedAux{name: name, server: aux})
	return nil
}

// Serve starts all registered adapters and blocks until the context is
// cancelled or one of them fails.
//
// Returns:
//   - ctx.Err() if shutdown was triggered by context cancellation
//   - the failing component's error otherwise
//   - an error if no adapter is registered or Serve was already called
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return errors.New("Serve() has already been called on this server instance")
	}
	s.served = true
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return errors.New("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	aux := make([]namedAux, len(s.aux))
	copy(aux, s.aux)
	s.mu.Unlock()

	logger.Info("Starting server with %d adapter(s)", len(adapters))

	// auxCtx outlives ctx until the adapters have drained, so metrics stay
	// scrapeable during shutdown.
	auxCtx, cancelAux := context.WithCancel(context.Background())
	defer cancelAux()

	errChan := make(chan componentError, len(adapters)+len(aux))
	var wg sync.WaitGroup

	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			if err := a.Serve(ctx); err != nil {
				if !errors.Is(err, context.Canceled) && ctx.Err() == nil {
					logger.Error("%s adapter failed: %v", protocol, err)
					errChan <- componentError{name: protocol, err: err}
				} else {
					logger.Warn("%s adapter stopped: %v", protocol, err)
				}
			} else {
				logger.Info("%s adapter stopped", protocol)
			}
		}(adp)
	}

	var auxWg sync.WaitGroup
	for _, x := range aux {
		auxWg.Add(1)
		go func(x namedAux) {
			defer auxWg.Done()
			if err := x.server.Start(auxCtx); err != nil && auxCtx.Err() == nil {
				errChan <- componentError{name: x.name, err: err}
			}
		}(x)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()
	case failed := <-errChan:
		logger.Error("%s failed: %v - initiating shutdown of all adapters", failed.name, failed.err)
		shutdownErr = fmt.Errorf("%s error: %w", failed.name, failed.err)
	}
	s.stopAllAdapters(adapters)

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	cancelAux()
	auxWg.Wait()

	logger.Info("Server stopped")
	return shutdownErr
}

// componentError pairs a component name with its error for reporting.
type componentError struct {
	name string
	err  error
}

// stopAllAdapters stops every adapter in reverse registration order, each
// bounded by the stop timeout.
func (s *Server) stopAllAdapters(adapters []adapter.Adapter) {
	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())
		if err := adp.Stop(ctx); err != nil {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		}
		cancel()
	}
}

// Adapters returns a snapshot of currently registered adapters.
func (s *Server) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
