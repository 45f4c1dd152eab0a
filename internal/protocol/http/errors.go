package http

import "errors"

// Protocol faults. Each one is answered locally by the worker that detected
// it and never escapes the connection.
var (
	ErrMalformedRequestLine = errors.New("malformed request line")
	ErrMalformedHeaders     = errors.New("malformed headers")
	ErrUnknownMethod        = errors.New("unknown method")
	ErrUnsupportedMethod    = errors.New("unsupported method")
	ErrUnsupportedVersion   = errors.New("unsupported HTTP version")
	ErrHostMismatch         = errors.New("missing or mismatching Host header")
	ErrMalformedTarget      = errors.New("malformed request target")
	ErrTargetNotFound       = errors.New("target not found")
)

// ErrTemplateRead is returned when an error page cannot be loaded. It breaks
// the response contract and is reported at startup.
var ErrTemplateRead = errors.New("error page unreadable")

// StatusFor maps a request-handling error onto the status sent to the client.
// A nil error means success.
func StatusFor(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrUnsupportedMethod):
		return StatusNotImplemented
	case errors.Is(err, ErrTargetNotFound):
		return StatusNotFound
	default:
		return StatusBadRequest
	}
}
