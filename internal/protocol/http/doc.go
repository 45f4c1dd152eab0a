// Package http implements the request/response engine of tinyhttpd.
//
// # Scope
//
// The engine understands a deliberately small dialect of HTTP/1.0 and
// HTTP/1.1:
//
//   - One request per connection (no keep-alive, no pipelining)
//   - GET and HEAD are served; PUT, POST, DELETE, CONNECT, OPTIONS and TRACE
//     are recognised and answered with 501; anything else is a 400
//   - No request bodies, no chunked transfer encoding
//
// # Layers
//
//   - Parser (request.go, headers.go, version.go): request line, header block,
//     version and Host checks
//   - Resolver (target.go): maps a request-target onto a canonical path inside
//     the document root, rejecting anything that escapes it
//   - Renderer (response.go, listing.go, pages.go): status line, fixed server
//     headers, bodies from error pages, directory listings or streamed files
//   - Handler (handler.go): runs one request through the layers above and
//     reports what happened
//
// # Wire format
//
// Responses use "\n" line endings unless the renderer is configured for
// strict CRLF. Requests may use either.
package http
