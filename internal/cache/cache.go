// Package cache persists scan inventories keyed by resolved target path.
// A stored inventory is either absent or one complete scan.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fenilsonani/treeaudit/internal/pathfilter"
	"github.com/fenilsonani/treeaudit/internal/scanner"
)

// Backend names accepted by Open
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendNone   = "none"
)

// Snapshot is one stored inventory together with the scope it was scanned
// under. Records keep the order they were saved in.
type Snapshot struct {
	Target         string
	SavedAt        time.Time
	FollowSymlinks bool
	Excludes       []string
	Records        []scanner.FileRecord
}

// Covers reports whether the snapshot can stand in for a scan with the given
// scope. The follow mode must match and every prefix excluded when the
// snapshot was taken must still be excluded; records under prefixes added
// since then are the caller's to drop.
func (s *Snapshot) Covers(followSymlinks bool, filter *pathfilter.PathFilter) bool {
	if s.FollowSymlinks != followSymlinks {
		return false
	}
	for _, prefix := range s.Excludes {
		if !filter.Excludes(prefix) {
			return false
		}
	}
	return true
}

// Store reads and writes inventories. Load reports corrupt or unreadable
// data as absent rather than failing. Save stamps SavedAt itself.
type Store interface {
	Load(target string) (*Snapshot, bool)
	Save(snap *Snapshot) error
	Clear(target string) error
	Close() error
}

// Open returns the store for backend rooted at dir. An empty dir selects
// DefaultDir.
func Open(backend, dir string) (Store, error) {
	if backend == BackendNone {
		return NopStore{}, nil
	}

	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}

	switch backend {
	case BackendFile, "":
		return NewFileStore(dir)
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(dir, "cache.db"))
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}

// DefaultDir returns the per-user cache directory for treeaudit
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user cache directory: %w", err)
	}
	return filepath.Join(base, "treeaudit"), nil
}

// keyFor derives a stable file-name-safe key from a target path.
func keyFor(target string) string {
	sum := sha256.Sum256([]byte(target))
	return hex.EncodeToString(sum[:16])
}

// NopStore never holds anything
type NopStore struct{}

func (NopStore) Load(string) (*Snapshot, bool) { return nil, false }

func (NopStore) Save(*Snapshot) error { return nil }

func (NopStore) Clear(string) error { return nil }

func (NopStore) Close() error { return nil }
