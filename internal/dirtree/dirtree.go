// Package dirtree aggregates per-directory file counts and sizes over a
// directory subtree.
package dirtree

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fenilsonani/treeaudit/internal/pathfilter"
	"github.com/fenilsonani/treeaudit/internal/progress"
	"github.com/fenilsonani/treeaudit/internal/scanner"
)

// DirectoryNode is one readable directory. TotalSize is OwnFilesSize plus the
// TotalSize of every child. OwnFolderCount counts every non-excluded direct
// subdirectory, including unreadable ones that are absent from Children.
type DirectoryNode struct {
	Path           string           `json:"path" yaml:"path"`
	Depth          int              `json:"depth" yaml:"depth"`
	OwnFileCount   int              `json:"own_file_count" yaml:"own_file_count"`
	OwnFolderCount int              `json:"own_folder_count" yaml:"own_folder_count"`
	OwnFilesSize   int64            `json:"own_files_size" yaml:"own_files_size"`
	TotalSize      int64            `json:"total_size" yaml:"total_size"`
	Children       []*DirectoryNode `json:"children,omitempty" yaml:"children,omitempty"`
}

// Walk visits n and its descendants in pre-order. Returning false from fn
// skips that node's children.
func (n *DirectoryNode) Walk(fn func(*DirectoryNode) bool) {
	if n == nil {
		return
	}
	stack := []*DirectoryNode{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(cur) {
			continue
		}
		for i := len(cur.Children) - 1; i >= 0; i-- {
			stack = append(stack, cur.Children[i])
		}
	}
}

// Count returns the number of nodes in the tree rooted at n
func (n *DirectoryNode) Count() int {
	count := 0
	n.Walk(func(*DirectoryNode) bool {
		count++
		return true
	})
	return count
}

// Find returns the node with the given path, or nil
func (n *DirectoryNode) Find(path string) *DirectoryNode {
	var found *DirectoryNode
	n.Walk(func(cur *DirectoryNode) bool {
		if found != nil {
			return false
		}
		if cur.Path == path {
			found = cur
			return false
		}
		return pathfilter.HasPathPrefix(cur.Path, path)
	})
	return found
}

// Options configures an Aggregator
type Options struct {
	Filter         *pathfilter.PathFilter
	FollowSymlinks bool
	Counters       *progress.Counters
}

// Aggregator builds directory trees
type Aggregator struct {
	opts Options
}

// New creates an Aggregator
func New(opts Options) *Aggregator {
	return &Aggregator{opts: opts}
}

// frame tracks one discovered directory until totals are rolled up.
type frame struct {
	node     *DirectoryNode
	children []*frame
	listed   bool
}

// Build walks root depth-first with an explicit stack, listing each directory
// once. Unreadable directories are left out of their parent's children and
// reported as warnings. Build fails when root cannot be listed or ctx is
// cancelled.
func (a *Aggregator) Build(ctx context.Context, root string) (*DirectoryNode, []scanner.Warning, error) {
	resolved, err := pathfilter.Normalize(root)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving %s: %w", root, err)
	}
	root = resolved

	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, fmt.Errorf("accessing path %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("path %q is not a directory", root)
	}

	var warnings []scanner.Warning
	warn := func(path, op string, err error) {
		warnings = append(warnings, scanner.NewWarning(path, op, err))
		a.opts.Counters.AddWarning()
	}

	visited := scanner.NewVisitedSet()
	rootFrame := &frame{node: &DirectoryNode{Path: root}}
	stack := []*frame{rootFrame}
	var order []*frame

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		id, err := scanner.Identify(f.node.Path, a.opts.FollowSymlinks)
		if err != nil {
			if f == rootFrame {
				return nil, nil, fmt.Errorf("reading %s: %w", root, err)
			}
			warn(f.node.Path, scanner.OpStat, err)
			continue
		}
		if !visited.Add(id) {
			warn(f.node.Path, scanner.OpVisit, scanner.ErrLoopDetected)
			continue
		}

		entries, err := os.ReadDir(f.node.Path)
		if err != nil {
			if f == rootFrame {
				return nil, nil, fmt.Errorf("reading %s: %w", root, err)
			}
			warn(f.node.Path, scanner.OpReadDir, err)
			continue
		}

		f.listed = true
		order = append(order, f)
		a.opts.Counters.AddDir()

		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			a.visitEntry(f, entry, warn)
		}

		// Push in reverse so children are listed in name order.
		for i := len(f.children) - 1; i >= 0; i-- {
			stack = append(stack, f.children[i])
		}
	}

	// order is pre-order, so walking it backwards sees every child before its parent.
	for i := len(order) - 1; i >= 0; i-- {
		f := order[i]
		f.node.TotalSize = f.node.OwnFilesSize
		for _, child := range f.children {
			if !child.listed {
				continue
			}
			f.node.Children = append(f.node.Children, child.node)
			f.node.TotalSize += child.node.TotalSize
		}
	}

	scanner.SortWarnings(warnings)
	return rootFrame.node, warnings, nil
}

// visitEntry accounts for one direct entry of the directory held by f.
func (a *Aggregator) visitEntry(f *frame, entry fs.DirEntry, warn func(string, string, error)) {
	path := filepath.Join(f.node.Path, entry.Name())
	if a.excluded(path) {
		return
	}

	typ := entry.Type()
	if typ&fs.ModeSymlink != 0 {
		if !a.opts.FollowSymlinks {
			return
		}
		target, err := os.Stat(path)
		if err != nil {
			warn(path, scanner.OpStat, err)
			return
		}
		switch {
		case target.IsDir():
			a.addSubdir(f, path)
		case target.Mode().IsRegular():
			f.node.OwnFileCount++
			f.node.OwnFilesSize += target.Size()
		}
		return
	}

	switch {
	case entry.IsDir():
		a.addSubdir(f, path)
	case typ.IsRegular():
		info, err := entry.Info()
		if err != nil {
			warn(path, scanner.OpStat, err)
			return
		}
		f.node.OwnFileCount++
		f.node.OwnFilesSize += info.Size()
	}
}

// excluded checks path and, when links are followed, its resolved form.
func (a *Aggregator) excluded(path string) bool {
	if a.opts.FollowSymlinks {
		return a.opts.Filter.ExcludesResolved(path)
	}
	return a.opts.Filter.Excludes(path)
}

func (a *Aggregator) addSubdir(f *frame, path string) {
	f.node.OwnFolderCount++
	f.children = append(f.children, &frame{
		node: &DirectoryNode{Path: path, Depth: f.node.Depth + 1},
	})
}
