package ingest

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileFilter selects the files a job analyzes.
type FileFilter interface {
	Match(f *File) bool
}

// GlobFilter matches slash separated file paths against doublestar
// patterns. Exclusion wins over inclusion, no include pattern includes all.
type GlobFilter struct {
	include []string
	exclude []string
	maxSize int64
}

func NewGlobFilter(include, exclude []string, maxSize int64) (*GlobFilter, error) {
	for _, p := range append(append([]string{}, include...), exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid file filter pattern %q", p)
		}
	}
	return &GlobFilter{
		include: include,
		exclude: exclude,
		maxSize: maxSize,
	}, nil
}

func (g *GlobFilter) Match(f *File) bool {
	if g.maxSize > 0 && f.Size > g.maxSize {
		return false
	}
	name := strings.TrimPrefix(f.Path, "/")
	for _, p := range g.exclude {
		if ok, _ := doublestar.Match(p, name); ok {
			return false
		}
	}
	if len(g.include) == 0 {
		return true
	}
	for _, p := range g.include {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}
