package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/fenilsonani/treeaudit/internal/pathfilter"
	"github.com/fenilsonani/treeaudit/internal/progress"
)

// Options configures an inventory scan
type Options struct {
	Filter         *pathfilter.PathFilter
	Workers        int
	FollowSymlinks bool
	Counters       *progress.Counters
}

// Scanner walks a directory subtree and produces the flat file inventory
type Scanner struct {
	opts Options
}

// New creates a new Scanner
func New(opts Options) *Scanner {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers()
	}
	return &Scanner{opts: opts}
}

// DefaultWorkers returns the worker count used when none is configured.
// Scanning is I/O bound, so it is not capped at the CPU count.
func DefaultWorkers() int {
	workers := runtime.NumCPU() * 2
	if workers < 4 {
		workers = 4 // Minimum 4 workers for I/O parallelism
	}
	if workers > 32 {
		workers = 32
	}
	return workers
}

// collector accumulates records from concurrent fastwalk callbacks.
type collector struct {
	mu       sync.Mutex
	files    []FileRecord
	total    int64
	warnings []Warning
	counters *progress.Counters
}

func (c *collector) addFile(rec FileRecord) {
	c.mu.Lock()
	c.files = append(c.files, rec)
	c.total += rec.Size
	c.mu.Unlock()
	c.counters.AddFile(rec.Size)
}

func (c *collector) warn(w Warning) {
	c.mu.Lock()
	c.warnings = append(c.warnings, w)
	c.mu.Unlock()
	c.counters.AddWarning()
}

// Scan walks root and returns every readable regular file strictly under it,
// skipping excluded subtrees. Unreadable entries become warnings. Scan fails
// only when root itself cannot be resolved, is not a directory, cannot be
// listed, or ctx is cancelled; partial results are discarded in those cases.
func (s *Scanner) Scan(ctx context.Context, root string) (*Inventory, error) {
	resolved, err := pathfilter.Normalize(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", root, err)
	}
	root = resolved

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("accessing path %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path %q is not a directory", root)
	}

	c := &collector{
		files:    make([]FileRecord, 0, 1024),
		counters: s.opts.Counters,
	}
	visited := NewVisitedSet()
	follow := s.opts.FollowSymlinks

	conf := &fastwalk.Config{
		Follow:     follow,
		NumWorkers: s.opts.Workers,
	}

	var rootErr error
	var rootOnce sync.Once

	walkErr := fastwalk.Walk(conf, root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if path == root {
				rootOnce.Do(func() { rootErr = err })
				return err
			}
			c.warn(NewWarning(path, OpReadDir, err))
			return nil
		}

		if path != root && s.excluded(path) {
			// SkipDir also keeps fastwalk from following an excluded link.
			if d.IsDir() || d.Type()&fs.ModeSymlink != 0 {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			id, idErr := Identify(path, follow)
			if idErr != nil {
				c.warn(NewWarning(path, OpStat, idErr))
				return filepath.SkipDir
			}
			if !visited.Add(id) {
				c.warn(NewWarning(path, OpVisit, ErrLoopDetected))
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return s.visitSymlink(path, d, visited, c)
		}

		if !d.Type().IsRegular() {
			return nil
		}

		fi, infoErr := d.Info()
		if infoErr != nil {
			c.warn(NewWarning(path, OpStat, infoErr))
			return nil
		}

		c.addFile(FileRecord{
			Path:    path,
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
		return nil
	})

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if rootErr != nil {
		return nil, fmt.Errorf("reading %s: %w", root, rootErr)
	}
	if walkErr != nil {
		return nil, walkErr
	}

	sort.Slice(c.files, func(i, j int) bool {
		return c.files[i].Path < c.files[j].Path
	})
	SortWarnings(c.warnings)

	return &Inventory{
		Root:      root,
		Files:     c.files,
		TotalSize: c.total,
		Warnings:  c.warnings,
	}, nil
}

// excluded applies the filter to path and, when links are followed, to its
// resolved form. Entries below a followed link carry the link's path.
func (s *Scanner) excluded(path string) bool {
	if s.opts.FollowSymlinks {
		return s.opts.Filter.ExcludesResolved(path)
	}
	return s.opts.Filter.Excludes(path)
}

// visitSymlink handles a symlink entry. Links are ignored unless following is
// enabled; followed links to files are recorded under the link path and
// followed links to already-visited directories are skipped.
func (s *Scanner) visitSymlink(path string, d fs.DirEntry, visited *VisitedSet, c *collector) error {
	if !s.opts.FollowSymlinks {
		return nil
	}

	fde, ok := d.(fastwalk.DirEntry)
	if !ok {
		return nil
	}
	target, err := fde.Stat()
	if err != nil {
		c.warn(NewWarning(path, OpStat, err))
		return nil
	}

	if target.IsDir() {
		id, idErr := Identify(path, true)
		if idErr != nil {
			c.warn(NewWarning(path, OpStat, idErr))
			return filepath.SkipDir
		}
		if !visited.Add(id) {
			c.warn(NewWarning(path, OpVisit, ErrLoopDetected))
			return filepath.SkipDir
		}
		return nil
	}

	if !target.Mode().IsRegular() {
		return nil
	}

	c.addFile(FileRecord{
		Path:    path,
		Size:    target.Size(),
		ModTime: target.ModTime(),
	})
	return nil
}

// SortWarnings orders warnings by path then operation so output is stable.
func SortWarnings(ws []Warning) {
	sort.SliceStable(ws, func(i, j int) bool {
		if ws[i].Path != ws[j].Path {
			return ws[i].Path < ws[j].Path
		}
		return ws[i].Op < ws[j].Op
	})
}
