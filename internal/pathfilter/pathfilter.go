// Package pathfilter decides whether a path lies inside an excluded subtree.
package pathfilter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// PathFilter holds a set of normalized exclude prefixes. It is immutable after
// construction and safe for concurrent use by the scanner and tree walkers.
type PathFilter struct {
	prefixes []string
}

// New builds a PathFilter from exclude paths. Each path is made absolute,
// cleaned and, when it exists, resolved through symlinks so that it compares
// equal to the paths produced by walking a resolved target.
func New(excludes []string) (*PathFilter, error) {
	pf := &PathFilter{prefixes: make([]string, 0, len(excludes))}
	seen := make(map[string]struct{}, len(excludes))

	for _, raw := range excludes {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		resolved, err := Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude path %q: %w", raw, err)
		}
		key := foldCase(resolved)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		pf.prefixes = append(pf.prefixes, resolved)
	}

	sort.Strings(pf.prefixes)
	return pf, nil
}

// Normalize returns the absolute, cleaned, symlink-resolved form of path.
// For a path that does not exist yet, the deepest existing ancestor is
// resolved and the missing tail is appended unchanged.
func Normalize(path string) (string, error) {
	if strings.ContainsRune(path, 0) {
		return "", errors.New("path contains NUL byte")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	dir, tail := abs, ""
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			return filepath.Join(resolved, tail), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to resolve symlinks: %w", err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return filepath.Clean(abs), nil
		}
		tail = filepath.Join(filepath.Base(dir), tail)
		dir = parent
	}
}

// Excludes reports whether path equals or is nested under an exclude prefix.
// The test is component-wise: /data/logs2 is not under /data/logs.
func (pf *PathFilter) Excludes(path string) bool {
	if pf == nil || len(pf.prefixes) == 0 {
		return false
	}

	clean := filepath.Clean(path)
	for _, prefix := range pf.prefixes {
		if HasPathPrefix(prefix, clean) {
			return true
		}
	}
	return false
}

// ExcludesResolved is Excludes applied to path and to its symlink-resolved
// form, so a followed link cannot reach into an excluded subtree.
func (pf *PathFilter) ExcludesResolved(path string) bool {
	if pf == nil || len(pf.prefixes) == 0 {
		return false
	}
	if pf.Excludes(path) {
		return true
	}
	resolved, err := Normalize(path)
	if err != nil {
		return false
	}
	return pf.Excludes(resolved)
}

// Prefixes returns a copy of the normalized exclude prefixes.
func (pf *PathFilter) Prefixes() []string {
	if pf == nil {
		return nil
	}
	out := make([]string, len(pf.prefixes))
	copy(out, pf.prefixes)
	return out
}

// HasPathPrefix reports whether path is root or lies beneath it.
func HasPathPrefix(root, path string) bool {
	root = foldCase(root)
	path = foldCase(path)

	if root == path {
		return true
	}
	if strings.HasSuffix(root, string(filepath.Separator)) {
		return strings.HasPrefix(path, root)
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

// Windows paths compare case-insensitively.
func foldCase(path string) string {
	if runtime.GOOS == "windows" {
		return strings.ToLower(path)
	}
	return path
}
