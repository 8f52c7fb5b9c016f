//go:build unix

package scanner

import (
	"golang.org/x/sys/unix"
)

// DirID identifies a directory independent of the path used to reach it.
type DirID struct {
	dev uint64
	ino uint64
}

// Identify returns the device/inode identity of path. When follow is false
// a symlink is identified as itself rather than its target.
func Identify(path string, follow bool) (DirID, error) {
	var st unix.Stat_t
	var err error
	if follow {
		err = unix.Stat(path, &st)
	} else {
		err = unix.Lstat(path, &st)
	}
	if err != nil {
		return DirID{}, err
	}
	return DirID{dev: uint64(st.Dev), ino: uint64(st.Ino)}, nil
}
