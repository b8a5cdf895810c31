package datasource

import (
	"context"
	"fmt"
	"io"
	"iter"

	"github.com/anchore/stereoscope"
	"github.com/anchore/stereoscope/pkg/file"
	"github.com/anchore/stereoscope/pkg/filetree"
	"github.com/anchore/stereoscope/pkg/filetree/filenode"
	"github.com/anchore/stereoscope/pkg/image"
)

// Image is the squashed file system of a container image.
type Image struct {
	ref   string
	image *image.Image
}

// OpenImage fetches the image. ref accepts the stereoscope source prefixes,
// for example docker:alpine:latest or oci-archive:/tmp/image.tar.
func OpenImage(ctx context.Context, ref string) (*Image, error) {
	img, err := stereoscope.GetImage(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("getting image %s: %w", ref, err)
	}
	return &Image{ref: ref, image: img}, nil
}

func (i *Image) Name() string {
	return i.ref
}

func (i *Image) Walk(ctx context.Context) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		stop := false
		fn := func(p file.Path, node filenode.FileNode) error {
			if node.FileType != file.TypeRegular || node.Reference == nil {
				return nil
			}
			entry := Entry{Path: string(node.RealPath)}
			meta, err := i.image.FileCatalog.Get(*node.Reference)
			if err == nil && meta.FileInfo != nil {
				entry.Size = meta.FileInfo.Size()
			}
			if !yield(entry, err) {
				stop = true
			}
			return nil
		}
		cond := filetree.WalkConditions{
			ShouldTerminate: func(_ file.Path, _ filenode.FileNode) bool {
				return stop || ctx.Err() != nil
			},
			ShouldVisit: func(_ file.Path, node filenode.FileNode) bool {
				return !node.IsLink()
			},
			ShouldContinueBranch: func(_ file.Path, node filenode.FileNode) bool {
				return !node.IsLink()
			},
		}
		_ = i.image.SquashedTree().Walk(fn, &cond)
	}
}

func (i *Image) Open(p string) (io.ReadCloser, error) {
	return i.image.OpenPathFromSquash(file.Path(p))
}

func (i *Image) Close() error {
	return i.image.Cleanup()
}
