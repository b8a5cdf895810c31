package datasource_test

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/CZERTAINLY/Ingestor/internal/datasource"
	"github.com/CZERTAINLY/Ingestor/internal/model"
	"github.com/stretchr/testify/require"
)

func TestDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "etc", "ssl"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "etc", "ssl", "ca.pem"), []byte("pem"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "readme"), []byte("hello"), 0o644))
	if runtime.GOOS != "windows" {
		require.NoError(t, os.Symlink("/etc/passwd", filepath.Join(root, "passwd")))
	}

	src, err := datasource.Open(t.Context(), model.DataSource{Type: model.DataSourceLocal, Path: root})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, src.Close()) })

	var entries []datasource.Entry
	for e, err := range src.Walk(t.Context()) {
		require.NoError(t, err)
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b datasource.Entry) int {
		return strings.Compare(a.Path, b.Path)
	})
	require.Equal(t, []datasource.Entry{
		{Path: "/etc/ssl/ca.pem", Size: 3},
		{Path: "/readme", Size: 5},
	}, entries)

	r, err := src.Open("/readme")
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Equal(t, "hello", string(b))

	r, err = src.Open("../../readme")
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = src.Open("/missing")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDirWalkStop(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), nil, 0o644))
	}
	src, err := datasource.OpenDir(root)
	require.NoError(t, err)
	defer src.Close()

	n := 0
	for range src.Walk(t.Context()) {
		n++
		break
	}
	require.Equal(t, 1, n)
}

func TestOpenUnsupported(t *testing.T) {
	t.Parallel()
	_, err := datasource.Open(t.Context(), model.DataSource{Type: "tape"})
	require.ErrorIs(t, err, model.ErrUnsupportedDataSource)
}
