package cache

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fenilsonani/treeaudit/internal/scanner"
)

// fileFormatVersion is bumped whenever the encoded layout changes; older
// files then read as absent.
const fileFormatVersion = 2

// fileEntry is the gob-encoded form of a Snapshot
type fileEntry struct {
	Version        int
	Target         string
	SavedAt        time.Time
	FollowSymlinks bool
	Excludes       []string
	Records        []scanner.FileRecord
}

// FileStore keeps one gob file per target in a directory
type FileStore struct {
	dir string
}

// NewFileStore creates the cache directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory holding the cache files
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) pathFor(target string) string {
	return filepath.Join(s.dir, keyFor(target)+".gob")
}

// Load decodes the stored inventory for target
func (s *FileStore) Load(target string) (*Snapshot, bool) {
	f, err := os.Open(s.pathFor(target))
	if err != nil {
		return nil, false // No cache yet
	}
	defer f.Close()

	var entry fileEntry
	if err := gob.NewDecoder(f).Decode(&entry); err != nil {
		return nil, false
	}
	if entry.Version != fileFormatVersion || entry.Target != target {
		return nil, false
	}

	return &Snapshot{
		Target:         entry.Target,
		SavedAt:        entry.SavedAt,
		FollowSymlinks: entry.FollowSymlinks,
		Excludes:       entry.Excludes,
		Records:        entry.Records,
	}, true
}

// Save replaces the stored inventory for snap.Target. The file is written to
// a temporary name and renamed so readers never observe a partial write.
func (s *FileStore) Save(snap *Snapshot) error {
	tmp, err := os.CreateTemp(s.dir, ".scan-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	entry := fileEntry{
		Version:        fileFormatVersion,
		Target:         snap.Target,
		SavedAt:        time.Now(),
		FollowSymlinks: snap.FollowSymlinks,
		Excludes:       snap.Excludes,
		Records:        snap.Records,
	}
	if err := gob.NewEncoder(tmp).Encode(&entry); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cache file: %w", err)
	}

	if err := os.Rename(tmpName, s.pathFor(snap.Target)); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}

// Clear removes the stored inventory for target, if any
func (s *FileStore) Clear(target string) error {
	if err := os.Remove(s.pathFor(target)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cache file: %w", err)
	}
	return nil
}

// Close is a no-op
func (s *FileStore) Close() error {
	return nil
}
