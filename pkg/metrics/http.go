package metrics

import "time"

// HTTPMetrics provides observability for the HTTP adapter.
//
// Implementations collect metrics about requests, the work queue, the worker
// pool and the connection lifecycle. This interface is optional - if not
// provided to the HTTP adapter, a no-op implementation is used with zero
// overhead.
//
// Example usage:
//
//	// With metrics enabled
//	m := prometheus.NewHTTPMetrics()
//	adapter, err := http.New(config, m)
//
//	// Without metrics (no-op)
//	adapter, err := http.New(config, nil)
type HTTPMetrics interface {
	// RecordRequest records a completed request.
	//
	// Parameters:
	//   - method: Request method as received ("" if the request line was unparseable)
	//   - status: Status code sent (0 if no response was written)
	//   - duration: Time from dequeue to connection close
	RecordRequest(method string, status int, duration time.Duration)

	// RecordBytesSent records response bytes written to a connection.
	RecordBytesSent(bytes int64)

	// SetQueueDepth updates the number of connections waiting for a worker.
	SetQueueDepth(depth int)

	// SetBusyWorkers updates the number of workers processing a connection.
	SetBusyWorkers(count int32)

	// SetActiveConnections updates the number of accepted, not yet closed
	// connections (queued plus in progress).
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the total accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the total closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed counts connections closed because the
	// shutdown timeout expired.
	RecordConnectionForceClosed()

	// RecordAcceptError counts non-fatal accept failures.
	RecordAcceptError()
}

// NewNoopHTTPMetrics returns an HTTPMetrics that discards everything.
func NewNoopHTTPMetrics() HTTPMetrics {
	return noopHTTPMetrics{}
}

// noopHTTPMetrics is a no-op implementation of HTTPMetrics with zero overhead.
type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordRequest(method string, status int, duration time.Duration) {}
func (noopHTTPMetrics) RecordBytesSent(bytes int64)                                     {}
func (noopHTTPMetrics) SetQueueDepth(depth int)                                         {}
func (noopHTTPMetrics) SetBusyWorkers(count int32)                                      {}
func (noopHTTPMetrics) SetActiveConnections(count int32)                                {}
func (noopHTTPMetrics) RecordConnectionAccepted()                                       {}
func (noopHTTPMetrics) RecordConnectionClosed()                                         {}
func (noopHTTPMetrics) RecordConnectionForceClosed()                                    {}
func (noopHTTPMetrics) RecordAcceptError()                                              {}
