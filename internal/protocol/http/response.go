package http

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/tinyhttpd/internal/bufpool"
)

// TimeFormat is RFC 1123 with the zone fixed to GMT, as used by Date and
// Last-Modified.
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// chunkSize is the size of each write when streaming a file body.
const chunkSize = bufpool.MediumSize

const (
	ContentTypeHTML   = "text/html; charset=utf-8"
	ContentTypeBinary = "application/octet-stream"

	// contentTypeErrorPage is the type of the static error pages.
	contentTypeErrorPage = "text/html; charset=UTF-8"
)

// headerSanitizer strips line breaks so no value can start a new header line.
var headerSanitizer = strings.NewReplacer("\r", "", "\n", "")

// Response is a response ready to be rendered.
type Response struct {
	Status Status

	// Reason overrides Status.Reason() on the status line when non-empty.
	Reason string

	// Headers are written after the fixed server headers, in order.
	Headers []Header

	// Body is streamed after the header block unless OmitBody is set.
	Body io.Reader

	// OmitBody suppresses the body (HEAD) while keeping every header.
	OmitBody bool
}

// AddHeader appends a header.
func (r *Response) AddHeader(name, value string) {
	r.Headers = append(r.Headers, Header{Name: name, Value: value})
}

// Renderer writes responses to the wire.
type Renderer struct {
	// ServerName is sent in the Server header.
	ServerName string

	// CRLF selects "\r\n" line endings instead of "\n".
	CRLF bool

	// Now returns the current time for the Date header. Defaults to time.Now.
	Now func() time.Time
}

// Write renders resp to w: status line, Server, Date, Connection: close, the
// response headers, a blank line, then the body in fixed-size chunks.
//
// The header block is flushed before the body is copied. Returns the number
// of bytes written, which is meaningful even when err is non-nil.
func (rn *Renderer) Write(w io.Writer, resp *Response) (int64, error) {
	cw := &countingWriter{w: w}
	bw := bufio.NewWriter(cw)
	eol := "\n"
	if rn.CRLF {
		eol = "\r\n"
	}

	reason := resp.Reason
	if reason == "" {
		reason = resp.Status.Reason()
	}
	now := time.Now
	if rn.Now != nil {
		now = rn.Now
	}

	fmt.Fprintf(bw, "HTTP/1.1 %d %s%s", resp.Status.Code(), headerSanitizer.Replace(reason), eol)
	writeHeader(bw, "Server", rn.ServerName, eol)
	writeHeader(bw, "Date", now().UTC().Format(TimeFormat), eol)
	writeHeader(bw, "Connection", "close", eol)
	for _, h := range resp.Headers {
		writeHeader(bw, h.Name, h.Value, eol)
	}
	bw.WriteString(eol)

	if err := bw.Flush(); err != nil {
		return cw.n, fmt.Errorf("write response head: %w", err)
	}

	if resp.Body == nil || resp.OmitBody {
		return cw.n, nil
	}

	buf := bufpool.Get(chunkSize)
	defer bufpool.Put(buf)

	if _, err := io.CopyBuffer(cw, onlyReader{resp.Body}, buf); err != nil {
		return cw.n, fmt.Errorf("write response body: %w", err)
	}
	return cw.n, nil
}

func writeHeader(bw *bufio.Writer, name, value, eol string) {
	bw.WriteString(headerSanitizer.Replace(name))
	bw.WriteString(": ")
	bw.WriteString(headerSanitizer.Replace(value))
	bw.WriteString(eol)
}

// ContentLength formats a byte count for the Content-Length header.
func ContentLength(n int64) string {
	return strconv.FormatInt(n, 10)
}

// countingWriter counts bytes that reached the underlying writer.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// onlyReader hides WriterTo so io.CopyBuffer uses the chunk buffer.
type onlyReader struct {
	io.Reader
}
