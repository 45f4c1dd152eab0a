package http

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// maxLineLength bounds a single request or header line.
	maxLineLength = 8 << 10 // 8KB

	// maxHeaderCount bounds the number of header lines in one request,
	// counting repeated and rejected lines alike.
	maxHeaderCount = 100
)

// errLineTooLong is reported when a line exceeds maxLineLength.
var errLineTooLong = errors.New("line too long")

// RequestLine is the first line of a request.
type RequestLine struct {
	Method string
	Target string

	// Version is empty when the request line carried only two tokens.
	Version string
}

// Request is a fully parsed request head.
type Request struct {
	RequestLine
	Headers Headers
}

// ReadRequestLine reads the request line, skipping any blank lines before it.
//
// The skip has no bound of its own: a peer that only sends blank lines keeps
// the reader blocked until the connection read deadline fires.
//
// Returns:
//   - io.EOF if the stream ended before any non-blank line
//   - ErrMalformedRequestLine (wrapped) if the line does not have 2 or 3
//     non-empty space-separated tokens (trailing spaces are ignored)
//   - the underlying read error otherwise
func ReadRequestLine(r *bufio.Reader) (RequestLine, error) {
	var line string
	for {
		l, err := readLine(r)
		if err != nil {
			if errors.Is(err, errLineTooLong) {
				return RequestLine{}, fmt.Errorf("%w: %v", ErrMalformedRequestLine, err)
			}
			return RequestLine{}, err
		}
		if l != "" {
			line = l
			break
		}
	}

	return parseRequestLine(line)
}

// parseRequestLine splits on single spaces. Trailing empty tokens are
// dropped, so "GET / " is two tokens; an empty token anywhere else is
// malformed.
func parseRequestLine(line string) (RequestLine, error) {
	parts := strings.Split(line, " ")
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	if len(parts) != 2 && len(parts) != 3 {
		return RequestLine{}, fmt.Errorf("%w: %d tokens", ErrMalformedRequestLine, len(parts))
	}
	for _, p := range parts {
		if p == "" {
			return RequestLine{}, fmt.Errorf("%w: empty token", ErrMalformedRequestLine)
		}
	}

	rl := RequestLine{
		Method: parts[0],
		Target: parts[1],
	}
	if len(parts) == 3 {
		rl.Version = parts[2]
	}
	return rl, nil
}

// ReadHeaders reads header lines up to and including the blank line that ends
// the header block.
//
// Each line is split on its first colon. The value is trimmed; a missing value
// is stored as "". A line without any colon is stored as a name with an empty
// value. Whitespace between the name and the colon is rejected, as is a stream
// that ends before the blank line.
func ReadHeaders(r *bufio.Reader) (Headers, error) {
	var headers Headers
	invalid := false
	lines := 0

	for {
		line, err := readLine(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Headers{}, fmt.Errorf("%w: header block not terminated", ErrMalformedHeaders)
			}
			if errors.Is(err, errLineTooLong) {
				return Headers{}, fmt.Errorf("%w: %v", ErrMalformedHeaders, err)
			}
			return Headers{}, err
		}
		if line == "" {
			break
		}
		if lines++; lines > maxHeaderCount {
			return Headers{}, fmt.Errorf("%w: more than %d header lines", ErrMalformedHeaders, maxHeaderCount)
		}

		name, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimSpace(value)
		}
		// Keep reading to the end of the block so the connection is left at a
		// clean boundary, but remember the violation.
		if name == "" || strings.TrimRight(name, " \t") != name {
			invalid = true
			continue
		}
		headers.Set(name, value)
	}

	if invalid {
		return Headers{}, fmt.Errorf("%w: whitespace before colon", ErrMalformedHeaders)
	}
	return headers, nil
}

// readLine returns the next line without its "\n" or "\r\n" terminator. A
// final unterminated line is returned as is; io.EOF is only reported when no
// bytes were left.
func readLine(r *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		chunk, err := r.ReadSlice('\n')
		if sb.Len()+len(chunk) > maxLineLength+2 {
			return "", errLineTooLong
		}
		sb.Write(chunk)

		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && sb.Len() > 0 {
			break
		}
		return "", err
	}

	line := strings.TrimSuffix(sb.String(), "\n")
	return strings.TrimSuffix(line, "\r"), nil
}
