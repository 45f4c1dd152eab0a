package http

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// HandlerConfig carries what the handler needs from the server configuration.
type HandlerConfig struct {
	// Host and Port are the authority the server answers for. They drive the
	// HTTP/1.1 Host check and absolute-form target matching.
	Host string
	Port int

	DocumentRoot string
	TemplateDir  string

	ServerName string
	CRLF       bool
}

// Handler runs a single request through parse, resolve and render.
//
// A Handler holds no per-request state and is safe for concurrent use by any
// number of workers.
type Handler struct {
	host     string
	port     int
	resolver *Resolver
	pages    *ErrorPages
	renderer *Renderer
}

// Outcome reports what happened to one connection's request.
type Outcome struct {
	// Method and Target are empty when no request line could be parsed.
	Method string
	Target string

	// HeaderCount is the number of distinct header names received.
	HeaderCount int

	// Status is the status sent, or 0 if no response was attempted.
	Status Status

	// Written is the number of bytes that reached the connection.
	Written int64

	// Err is the fault that decided a non-200 status, if any.
	Err error

	// TransportErr is set when reading the request or writing the response
	// failed at the I/O level.
	TransportErr error
}

// NewHandler builds a handler. The document root must be an existing
// directory and every error page must be readable.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	resolver, err := NewResolver(cfg.DocumentRoot, cfg.Host, cfg.Port)
	if err != nil {
		return nil, err
	}
	pages, err := LoadErrorPages(cfg.TemplateDir)
	if err != nil {
		return nil, err
	}

	return &Handler{
		host:     cfg.Host,
		port:     cfg.Port,
		resolver: resolver,
		pages:    pages,
		renderer: &Renderer{
			ServerName: cfg.ServerName,
			CRLF:       cfg.CRLF,
		},
	}, nil
}

// Root returns the canonical document root.
func (h *Handler) Root() string {
	return h.resolver.Root()
}

// Serve reads one request from r and writes the response to w.
//
// Checks run in this order, the first failure deciding the status:
//  1. request line (400) and method known at all (400)
//  2. header block (400)
//  3. method supported (501)
//  4. target form (400)
//  5. version and Host (400)
//  6. target exists inside the document root (404)
//
// A stream that ends before any request line gets no response at all.
// Any other read failure is answered with 400 on a best-effort basis.
func (h *Handler) Serve(r *bufio.Reader, w io.Writer) Outcome {
	line, err := ReadRequestLine(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Outcome{TransportErr: err}
		}
		out := Outcome{}
		if !errors.Is(err, ErrMalformedRequestLine) {
			out.TransportErr = err
		}
		return h.fail(w, out, err)
	}

	out := Outcome{Method: line.Method, Target: line.Target}

	class := ClassifyMethod(line.Method)
	if class == MethodUnknown {
		return h.fail(w, out, fmt.Errorf("%w: %q", ErrUnknownMethod, line.Method))
	}

	headers, err := ReadHeaders(r)
	if err != nil {
		if !errors.Is(err, ErrMalformedHeaders) {
			out.TransportErr = err
		}
		return h.fail(w, out, err)
	}
	req := &Request{RequestLine: line, Headers: headers}
	out.HeaderCount = headers.Len()

	if class == MethodUnsupported {
		return h.fail(w, out, fmt.Errorf("%w: %s", ErrUnsupportedMethod, req.Method))
	}

	target, resolveErr := h.resolver.Resolve(req.Target)
	if errors.Is(resolveErr, ErrMalformedTarget) {
		return h.fail(w, out, resolveErr)
	}
	if err := CheckVersion(req.Version, &req.Headers, h.host, h.port); err != nil {
		return h.fail(w, out, err)
	}
	if resolveErr != nil {
		return h.fail(w, out, resolveErr)
	}

	return h.serveTarget(w, req, target, out)
}

// fail answers with the error page matching cause.
func (h *Handler) fail(w io.Writer, out Outcome, cause error) Outcome {
	status := StatusFor(cause)
	body := h.pages.Body(status, out.Method)

	resp := &Response{
		Status:   status,
		Body:     bytes.NewReader(body),
		OmitBody: out.Method == MethodHead,
	}
	if status == StatusNotImplemented {
		resp.Reason = fmt.Sprintf("%s ('%s')", status.Reason(), out.Method)
	}
	resp.AddHeader("Content-Type", contentTypeErrorPage)
	resp.AddHeader("Content-Length", ContentLength(int64(len(body))))

	var err error
	out.Status = status
	out.Err = cause
	out.Written, err = h.renderer.Write(w, resp)
	if err != nil && out.TransportErr == nil {
		out.TransportErr = err
	}
	return out
}

func (h *Handler) serveTarget(w io.Writer, req *Request, target *Target, out Outcome) Outcome {
	resp := &Response{
		Status:   StatusOK,
		OmitBody: req.Method == MethodHead,
	}

	if target.IsDir {
		listing, err := DirectoryListing(target)
		if err != nil {
			return h.fail(w, out, fmt.Errorf("%w: %v", ErrTargetNotFound, err))
		}
		resp.AddHeader("Content-Type", ContentTypeHTML)
		resp.AddHeader("Content-Length", ContentLength(int64(len(listing))))
		resp.Body = bytes.NewReader(listing)
		return h.write(w, resp, out)
	}

	f, err := os.Open(target.Path)
	if err != nil {
		return h.fail(w, out, fmt.Errorf("%w: %v", ErrTargetNotFound, err))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return h.fail(w, out, fmt.Errorf("%w: %v", ErrTargetNotFound, err))
	}

	contentType := ContentTypeBinary
	if strings.HasSuffix(info.Name(), ".html") {
		contentType = ContentTypeHTML
	}
	resp.AddHeader("Content-Type", contentType)
	resp.AddHeader("Content-Length", ContentLength(info.Size()))
	resp.AddHeader("Last-Modified", info.ModTime().UTC().Format(TimeFormat))
	resp.Body = io.LimitReader(f, info.Size())

	return h.write(w, resp, out)
}

func (h *Handler) write(w io.Writer, resp *Response, out Outcome) Outcome {
	var err error
	out.Status = resp.Status
	out.Written, err = h.renderer.Write(w, resp)
	if err != nil {
		out.TransportErr = err
	}
	return out
}
