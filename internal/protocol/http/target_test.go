package http

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_Resolve(t *testing.T) {
	f := newFixture(t)
	r, err := NewResolver(f.root, testHost, testPort)
	require.NoError(t, err)

	root := r.Root()

	tests := []struct {
		name    string
		target  string
		path    string
		urlPath string
		isDir   bool
	}{
		{"Root", "/", root, "/", true},
		{"File", "/index.html", filepath.Join(root, "index.html"), "/index.html", false},
		{"Dir", "/sub", filepath.Join(root, "sub"), "/sub", true},
		{"DirTrailingSlash", "/sub/", filepath.Join(root, "sub"), "/sub", true},
		{"DotDotInside", "/sub/../index.html", filepath.Join(root, "index.html"), "/index.html", false},
		{"AbsoluteWithScheme", "http://localhost:8080/sub/nested.txt", filepath.Join(root, "sub", "nested.txt"), "/sub/nested.txt", false},
		{"AbsoluteNoPort", "localhost/index.html", filepath.Join(root, "index.html"), "/index.html", false},
		{"AbsoluteRoot", "localhost:8080/", root, "/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := r.Resolve(tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.path, target.Path)
			assert.Equal(t, tt.urlPath, target.URLPath)
			assert.Equal(t, tt.isDir, target.IsDir)
		})
	}
}

func TestResolver_Errors(t *testing.T) {
	f := newFixture(t)
	r, err := NewResolver(f.root, testHost, testPort)
	require.NoError(t, err)

	t.Run("Malformed", func(t *testing.T) {
		for _, target := range []string{"index.html", "*", "http://other/", "https://localhost/", "localhost:80/", "localhostx/"} {
			_, err := r.Resolve(target)
			assert.ErrorIs(t, err, ErrMalformedTarget, target)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		for _, target := range []string{"/missing", "/../../etc/passwd", "/escape", "/sub/nested.txt/x"} {
			_, err := r.Resolve(target)
			assert.ErrorIs(t, err, ErrTargetNotFound, target)
		}
	})

	t.Run("SymlinkedDirEscape", func(t *testing.T) {
		require.NoError(t, os.Symlink(f.outside, filepath.Join(f.root, "outdir")))
		_, err := r.Resolve("/outdir/secret.txt")
		assert.ErrorIs(t, err, ErrTargetNotFound)
	})

	t.Run("SiblingWithRootPrefix", func(t *testing.T) {
		sibling := r.Root() + "-sibling"
		require.NoError(t, os.Mkdir(sibling, 0755))
		t.Cleanup(func() { os.RemoveAll(sibling) })
		writeFile(t, filepath.Join(sibling, "x.txt"), "x")

		_, err := r.Resolve("/../" + filepath.Base(sibling) + "/x.txt")
		assert.ErrorIs(t, err, ErrTargetNotFound)
	})
}

func TestResolver_SymlinkInsideRoot(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Symlink(filepath.Join(f.root, "sub", "nested.txt"), filepath.Join(f.root, "alias.txt")))

	r, err := NewResolver(f.root, testHost, testPort)
	require.NoError(t, err)

	target, err := r.Resolve("/alias.txt")
	require.NoError(t, err)
	assert.Equal(t, "/sub/nested.txt", target.URLPath)
}

func TestNewResolver_SymlinkedRoot(t *testing.T) {
	f := newFixture(t)
	link := filepath.Join(t.TempDir(), "docroot")
	require.NoError(t, os.Symlink(f.root, link))

	r, err := NewResolver(link, testHost, testPort)
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(f.root)
	require.NoError(t, err)
	assert.Equal(t, want, r.Root())

	_, err = r.Resolve("/index.html")
	assert.NoError(t, err)
}

func TestResolver_FilesystemRoot(t *testing.T) {
	r, err := NewResolver("/", testHost, testPort)
	require.NoError(t, err)

	assert.True(t, r.contains("/etc"))
	assert.Equal(t, "/etc", r.urlPath("/etc"))
	assert.Equal(t, "/", r.urlPath("/"))
}
