package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/ironsheep/photomosaic/internal/imaging"
)

// WorkItem is either a single file or every matching file of a directory.
// The decision is made once by ResolveWorkItem; stages only read it.
type WorkItem struct {
	batch bool
	root  string
	paths []string
}

// Single wraps one input file.
func Single(path string) WorkItem {
	return WorkItem{root: path, paths: []string{path}}
}

// Batch wraps the files found in dir.
func Batch(dir string, paths []string) WorkItem {
	out := make([]string, len(paths))
	copy(out, paths)
	return WorkItem{batch: true, root: dir, paths: out}
}

// IsBatch reports whether the item came from a directory.
func (w WorkItem) IsBatch() bool { return w.batch }

// Root is the file, or the directory, the item was resolved from.
func (w WorkItem) Root() string { return w.root }

// Paths returns the input files in processing order.
func (w WorkItem) Paths() []string {
	out := make([]string, len(w.paths))
	copy(out, w.paths)
	return out
}

// Len returns the number of input files.
func (w WorkItem) Len() int { return len(w.paths) }

// ResolveWorkItem inspects path. A directory becomes a batch of the regular
// files inside it accepted by match (all of them when match is nil),
// sorted by name. A missing path is a *imaging.MissingResourceError.
func ResolveWorkItem(path string, match func(name string) bool) (WorkItem, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return WorkItem{}, &imaging.MissingResourceError{ID: path, Err: err}
		}
		return WorkItem{}, fmt.Errorf("inspect %s: %w", path, err)
	}
	if !info.IsDir() {
		return Single(path), nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return WorkItem{}, fmt.Errorf("read directory %s: %w", path, err)
	}
	var paths []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if match != nil && !match(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(path, e.Name()))
	}
	sort.Strings(paths)
	return WorkItem{batch: true, root: path, paths: paths}, nil
}
