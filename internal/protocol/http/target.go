package http

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Target is a request-target resolved inside the document root.
type Target struct {
	// Path is the canonical filesystem path (symlinks and ".." resolved).
	Path string

	// URLPath is Path relative to the document root, slash separated and
	// starting with "/". The root itself is "/".
	URLPath string

	IsDir bool
}

// originForm matches an origin-form target (RFC 7230 §5.3.1).
var originForm = regexp.MustCompile(`^/.*$`)

// Resolver maps request-targets onto files below a document root.
//
// The canonical path of every resolved target has the canonical document
// root as a prefix; targets escaping the root through ".." or symlinks are
// reported as not found.
type Resolver struct {
	root string
	host string

	// absoluteForm matches (http://)?host(:port)?/.* for the configured
	// authority (RFC 7230 §5.3.2).
	absoluteForm *regexp.Regexp
}

// NewResolver canonicalises documentRoot and prepares the absolute-form
// matcher for host and port.
//
// Returns an error if documentRoot does not exist or is not a directory.
func NewResolver(documentRoot, host string, port int) (*Resolver, error) {
	abs, err := filepath.Abs(documentRoot)
	if err != nil {
		return nil, fmt.Errorf("document root %q: %w", documentRoot, err)
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("document root %q: %w", documentRoot, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("document root %q: %w", documentRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("document root %q is not a directory", documentRoot)
	}

	pattern := "^(http://)?" + regexp.QuoteMeta(host) + "(:" + strconv.Itoa(port) + ")?/.*$"

	return &Resolver{
		root:         root,
		host:         host,
		absoluteForm: regexp.MustCompile(pattern),
	}, nil
}

// Root returns the canonical document root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve maps target onto the document root.
//
// Returns:
//   - ErrMalformedTarget (wrapped) if target is in neither origin nor
//     absolute form
//   - ErrTargetNotFound (wrapped) if the path does not exist or canonicalises
//     outside the document root
func (r *Resolver) Resolve(target string) (*Target, error) {
	rel, err := r.relativePath(target)
	if err != nil {
		return nil, err
	}

	joined := filepath.Join(r.root, filepath.FromSlash(rel))
	canonical, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, rel)
	}
	if !r.contains(canonical) {
		return nil, fmt.Errorf("%w: %s escapes document root", ErrTargetNotFound, rel)
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, rel)
	}

	return &Target{
		Path:    canonical,
		URLPath: r.urlPath(canonical),
		IsDir:   info.IsDir(),
	}, nil
}

// relativePath strips the scheme and authority from an absolute-form target
// and returns the origin-relative path.
func (r *Resolver) relativePath(target string) (string, error) {
	if originForm.MatchString(target) {
		return target, nil
	}
	if !r.absoluteForm.MatchString(target) {
		return "", fmt.Errorf("%w: %q", ErrMalformedTarget, target)
	}

	rel := strings.TrimPrefix(target, "http://")
	rel = rel[len(r.host):]

	if strings.HasPrefix(rel, ":") {
		_, path, found := strings.Cut(rel, "/")
		if !found {
			return "/", nil
		}
		rel = "/" + path
	}
	return rel, nil
}

func (r *Resolver) contains(path string) bool {
	if path == r.root {
		return true
	}
	prefix := r.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

func (r *Resolver) urlPath(path string) string {
	rel := filepath.ToSlash(strings.TrimPrefix(path, r.root))
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	return rel
}
