package adapter

import (
	"context"
)

// Adapter represents a protocol-specific server adapter that can be managed by
// the Server orchestrator.
//
// Each adapter owns a listening socket and everything needed to answer the
// connections it accepts. The orchestrator only deals with the lifecycle.
//
// Lifecycle:
//  1. Creation: Adapter is created with protocol-specific configuration and
//     validates everything it needs to serve (fail fast)
//  2. Startup: Serve() binds the socket and blocks until shutdown
//  3. Shutdown: Stop() initiates graceful shutdown bounded by its context
//
// Thread safety:
// Implementations must be safe for concurrent use. Stop() may be called
// concurrently with Serve().
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	//   - Stop accepting new connections
	//   - Finish the connections already accepted
	//   - Clean up resources
	//
	// If Serve returns before context cancellation, the orchestrator treats it
	// as a fatal error and stops all other adapters.
	//
	// Returns:
	//   - nil on graceful shutdown
	//   - error if startup fails or shutdown is not graceful
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown of the protocol server and waits for it
	// to complete.
	//
	// Implementations must:
	//   - Be safe to call multiple times (idempotent)
	//   - Be safe to call concurrently with Serve()
	//   - Respect the context deadline, forcing cleanup when it expires
	//
	// Returns:
	//   - nil if shutdown completed successfully
	//   - error if the context expired first
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging and metrics.
	//
	// The returned value should be constant for the lifecycle of the adapter.
	Protocol() string

	// Port returns the TCP port the adapter is listening on, or the configured
	// port if it has not started yet.
	Port() int
}
