package http

import (
	"bytes"
	"fmt"
	"html"
	"net/url"
	"os"
	"path"
)

// DirectoryListing renders the immediate children of target as an HTML page
// of links. Entries are sorted by name; directories get a trailing slash.
//
// The page is built in memory because its length must be known before the
// headers are written.
func DirectoryListing(target *Target) ([]byte, error) {
	entries, err := os.ReadDir(target.Path)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", target.URLPath, err)
	}

	dir := target.URLPath
	if dir != "/" {
		dir += "/"
	}
	title := html.EscapeString(dir)

	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html>\n")
	fmt.Fprintf(&buf, "<head><title>Directory listing for %s</title></head>\n", title)
	buf.WriteString("<body>\n")
	fmt.Fprintf(&buf, "<h2>Directory listing for %s</h2>\n", title)
	buf.WriteString("<hr>\n<ul>\n")

	for _, entry := range entries {
		name := entry.Name()
		display := name
		if entry.IsDir() {
			display += "/"
		}
		href := (&url.URL{Path: path.Join(dir, name)}).EscapedPath()
		if entry.IsDir() {
			href += "/"
		}
		fmt.Fprintf(&buf, "<li><a href=\"%s\">%s</a></li>\n",
			html.EscapeString(href), html.EscapeString(display))
	}

	buf.WriteString("</ul>\n<hr>\n</body>\n</html>\n")
	return buf.Bytes(), nil
}
