package http

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// Error page file names inside the template directory.
const (
	BadRequestPage   = "badrequest.html"
	UnsupportedPage  = "unsupported.html"
	FileNotFoundPage = "filenotfound.html"
)

// methodPlaceholder is replaced in the unsupported page with the echoed
// method token.
var methodPlaceholder = []byte("method")

// ErrorPages holds the static bodies of the error responses, read verbatim
// once at startup.
type ErrorPages struct {
	badRequest  []byte
	unsupported []byte
	notFound    []byte
}

// LoadErrorPages reads the three error pages from dir.
//
// Every page is required; a missing or unreadable one returns an error
// wrapping ErrTemplateRead so the server refuses to start.
func LoadErrorPages(dir string) (*ErrorPages, error) {
	pages := &ErrorPages{}
	for name, dst := range map[string]*[]byte{
		BadRequestPage:   &pages.badRequest,
		UnsupportedPage:  &pages.unsupported,
		FileNotFoundPage: &pages.notFound,
	} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrTemplateRead, name, err)
		}
		*dst = data
	}
	return pages, nil
}

// Body returns the page for status. For StatusNotImplemented every
// occurrence of "method" in the page becomes "method '(<method>)'".
//
// The returned slice must not be modified.
func (p *ErrorPages) Body(status Status, method string) []byte {
	switch status {
	case StatusNotImplemented:
		echo := []byte("method '(" + method + ")'")
		return bytes.ReplaceAll(p.unsupported, methodPlaceholder, echo)
	case StatusNotFound:
		return p.notFound
	default:
		return p.badRequest
	}
}
