package datasource

import (
	"context"
	"io"
	"io/fs"
	"iter"
	"os"
	"path"
	"strings"
)

// Dir is a directory tree on the local file system. All access goes
// through os.Root so symbolic links can't escape the tree.
type Dir struct {
	root *os.Root
}

func OpenDir(dir string) (*Dir, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	return &Dir{root: root}, nil
}

func (d *Dir) Name() string {
	return d.root.Name()
}

func (d *Dir) Walk(ctx context.Context) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		fn := func(p string, de fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return fs.SkipAll
			}
			entry := Entry{Path: "/" + p}
			if err != nil {
				if !yield(entry, err) {
					return fs.SkipAll
				}
				return nil
			}
			if de.IsDir() || !de.Type().IsRegular() {
				return nil
			}
			info, err := de.Info()
			if err == nil {
				entry.Size = info.Size()
			}
			if !yield(entry, err) {
				return fs.SkipAll
			}
			return nil
		}
		_ = fs.WalkDir(d.root.FS(), ".", fn)
	}
}

func (d *Dir) Open(p string) (io.ReadCloser, error) {
	rel := strings.TrimPrefix(path.Clean("/"+p), "/")
	if rel == "" {
		rel = "."
	}
	return d.root.Open(rel)
}

func (d *Dir) Close() error {
	return d.root.Close()
}
