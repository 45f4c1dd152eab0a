package http

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	Version10 = "HTTP/1.0"
	Version11 = "HTTP/1.1"
)

// CheckVersion enforces the version rules for a request head.
//
// HTTP/1.0 is always accepted. HTTP/1.1 requires a Host header naming host,
// optionally followed by ":port" equal to port. A two-token request line has
// no version and is treated like HTTP/1.0. Any other version is rejected.
func CheckVersion(version string, headers *Headers, host string, port int) error {
	switch version {
	case "", Version10:
		return nil
	case Version11:
		return checkHost(headers, host, port)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)
	}
}

func checkHost(headers *Headers, host string, port int) error {
	value, ok := headers.Get("Host")
	if !ok {
		return fmt.Errorf("%w: Host header required for HTTP/1.1", ErrHostMismatch)
	}

	parts := strings.Split(value, ":")
	switch len(parts) {
	case 1:
		if parts[0] == host {
			return nil
		}
	case 2:
		p, err := strconv.Atoi(parts[1])
		if err == nil && parts[0] == host && p == port {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrHostMismatch, value)
}
