//go:build !unix

package scanner

import (
	"path/filepath"
	"strings"
)

// DirID identifies a directory by its fully resolved path on platforms
// without stable inode numbers.
type DirID struct {
	path string
}

// Identify returns the resolved-path identity of path.
func Identify(path string, follow bool) (DirID, error) {
	resolved := path
	if follow {
		r, err := filepath.EvalSymlinks(path)
		if err != nil {
			return DirID{}, err
		}
		resolved = r
	}
	return DirID{path: strings.ToLower(filepath.Clean(resolved))}, nil
}
