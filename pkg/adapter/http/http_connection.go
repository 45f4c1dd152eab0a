package http

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/tinyhttpd/internal/bufpool"
	"github.com/marmos91/tinyhttpd/internal/logger"
	proto "github.com/marmos91/tinyhttpd/internal/protocol/http"
)

const (
	// lingerTimeout bounds how long Close drains unread request bytes after
	// the response was sent.
	lingerTimeout = 500 * time.Millisecond

	// lingerMaxBytes bounds how much Close is willing to discard.
	lingerMaxBytes = 64 << 10 // 64KB
)

// HTTPConnection is one accepted client connection. It is owned by the
// worker serving it and closed exactly once.
type HTTPConnection struct {
	id     string
	server *HTTPAdapter
	conn   net.Conn

	// servingSince is the UnixNano time a worker started serving, 0 before.
	servingSince atomic.Int64

	// writing is set once the first response byte is handed to the socket.
	writing atomic.Bool

	// interrupted is set when a forced shutdown cut the request short.
	interrupted atomic.Bool

	// closing is set by whichever of Close and abort runs first.
	closing atomic.Bool
}

func NewHTTPConnection(server *HTTPAdapter, conn net.Conn) *HTTPConnection {
	return &HTTPConnection{
		id:     uuid.NewString(),
		server: server,
		conn:   conn,
	}
}

// ID returns the connection id used in logs.
func (c *HTTPConnection) ID() string {
	return c.id
}

// Serve answers the single request carried by the connection and closes it.
//
// Panics are recovered so one misbehaving connection cannot take a worker
// down. Transport errors only end this connection.
func (c *HTTPConnection) Serve() {
	start := time.Now()
	c.servingSince.Store(start.UnixNano())
	clientAddr := c.conn.RemoteAddr().String()

	var out proto.Outcome
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in HTTP connection %s from %s: %v", c.id, clientAddr, r)
		}
		_ = c.Close()
	}()
	defer func() {
		c.server.metrics.RecordRequest(proto.MethodLabel(out.Method), out.Status.Code(), time.Since(start))
		c.server.metrics.RecordBytesSent(out.Written)
	}()

	if timeout := c.server.config.ReadTimeout; timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			logger.Warn("Failed to set read deadline for %s: %v", clientAddr, err)
		}
	}
	// An interrupt that landed before the deadline above must still apply.
	if c.interrupted.Load() {
		_ = c.conn.SetReadDeadline(time.Now())
	}

	w := &deadlineWriter{conn: c, timeout: c.server.config.WriteTimeout}
	out = c.server.handler.Serve(bufio.NewReader(c.conn), w)

	c.logOutcome(clientAddr, out, time.Since(start))
}

func (c *HTTPConnection) logOutcome(clientAddr string, out proto.Outcome, duration time.Duration) {
	if out.Status == 0 {
		switch {
		case errors.Is(out.TransportErr, io.EOF):
			logger.Debug("HTTP connection %s from %s closed before sending a request", c.id, clientAddr)
		default:
			logger.Debug("HTTP connection %s from %s: %s", c.id, clientAddr, describeTransportErr(out.TransportErr))
		}
		return
	}

	logger.Debug("HTTP %s %s %s from %s (%d headers) -> %d (%d bytes, %v)",
		c.id, out.Method, out.Target, clientAddr, out.HeaderCount, out.Status.Code(), out.Written, duration)
	if out.Err != nil {
		logger.Debug("HTTP connection %s: %v", c.id, out.Err)
	}
	if out.TransportErr != nil {
		logger.Debug("HTTP connection %s from %s: %s", c.id, clientAddr, describeTransportErr(out.TransportErr))
	}
}

func describeTransportErr(err error) string {
	var netErr net.Error
	switch {
	case err == nil:
		return "no error"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timed out: " + err.Error()
	case errors.Is(err, net.ErrClosed):
		return "closed: " + err.Error()
	case errors.Is(err, context.Canceled):
		return "cancelled: " + err.Error()
	default:
		return "transport error: " + err.Error()
	}
}

// Close shuts the connection down. The write side is closed first and unread
// request bytes are discarded for a short while, so the peer sees the full
// response rather than a reset.
func (c *HTTPConnection) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}
	if tcp, ok := c.conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
		_ = c.conn.SetReadDeadline(time.Now().Add(lingerTimeout))
		c.discardInput()
	}
	return c.conn.Close()
}

// discardInput discards up to lingerMaxBytes of unread input, stopping at the
// first error (usually the linger deadline or the peer's EOF).
func (c *HTTPConnection) discardInput() {
	buf := bufpool.Get(bufpool.SmallSize)
	defer bufpool.Put(buf)

	for drained := 0; drained < lingerMaxBytes; {
		n, err := c.conn.Read(buf)
		drained += n
		if err != nil {
			return
		}
	}
}

// interrupt cuts the connection short during a forced shutdown.
//
// While no response byte has been written, the read deadline is moved to now:
// the handler's pending read fails and the client still gets a 400. A
// connection already writing its response, or interrupted before, is closed
// outright. Reports whether this was the first interrupt.
func (c *HTTPConnection) interrupt() bool {
	if c.closing.Load() {
		return false
	}

	first := !c.interrupted.Swap(true)
	if !first || c.writing.Load() {
		c.abort()
		return first
	}
	_ = c.conn.SetReadDeadline(time.Now())
	return true
}

// abort closes the socket immediately, interrupting any blocked read or
// write. Reports whether this call closed it.
func (c *HTTPConnection) abort() bool {
	if !c.closing.CompareAndSwap(false, true) {
		return false
	}
	_ = c.conn.Close()
	return true
}

// servingFor reports how long a worker has been serving the connection, and
// false if no worker has picked it up yet.
func (c *HTTPConnection) servingFor(now time.Time) (time.Duration, bool) {
	since := c.servingSince.Load()
	if since == 0 {
		return 0, false
	}
	return now.Sub(time.Unix(0, since)), true
}

// deadlineWriter extends the write deadline before every write.
type deadlineWriter struct {
	conn    *HTTPConnection
	timeout time.Duration
}

func (w *deadlineWriter) Write(p []byte) (int, error) {
	w.conn.writing.Store(true)
	if w.timeout > 0 {
		if err := w.conn.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
			return 0, err
		}
	}
	return w.conn.conn.Write(p)
}
