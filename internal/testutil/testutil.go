// Package testutil provides test helpers and fixtures for treeaudit tests.
// All file operations use t.TempDir() for safe, isolated testing.
package testutil

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// Day is 24 hours; file ages in tests are expressed in days.
const Day = 24 * time.Hour

// Days returns n days as a duration
func Days(n int) time.Duration {
	return time.Duration(n) * Day
}

// Years returns n 365-day years as a duration
func Years(n int) time.Duration {
	return time.Duration(n) * 365 * Day
}

// TestFixture holds the root of a scratch directory tree
type TestFixture struct {
	T       testing.TB
	RootDir string // Root temp directory (auto-cleaned)
}

// NewFixture creates a new test fixture rooted in a fresh temp directory.
// RootDir is symlink-resolved so paths compare equal to scanner output.
func NewFixture(t testing.TB) *TestFixture {
	t.Helper()

	root := t.TempDir()
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	return &TestFixture{T: t, RootDir: root}
}

// =============================================================================
// File Creation Helpers
// =============================================================================

// CreateFile creates a file with specified content and returns its path
func (f *TestFixture) CreateFile(relPath string, content []byte) string {
	f.T.Helper()

	fullPath := filepath.Join(f.RootDir, relPath)
	dir := filepath.Dir(fullPath)

	if err := os.MkdirAll(dir, 0755); err != nil {
		f.T.Fatalf("failed to create directory %s: %v", dir, err)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		f.T.Fatalf("failed to create file %s: %v", fullPath, err)
	}

	return fullPath
}

// CreateSizedFile creates a zero-filled file of the given size
func (f *TestFixture) CreateSizedFile(relPath string, size int) string {
	f.T.Helper()
	return f.CreateFile(relPath, make([]byte, size))
}

// CreateRandomFile creates a file with random content
func (f *TestFixture) CreateRandomFile(relPath string, size int) string {
	f.T.Helper()
	content := make([]byte, size)
	rand.Read(content)
	return f.CreateFile(relPath, content)
}

// CreateFileWithAge creates a file and sets its modification time to the past
func (f *TestFixture) CreateFileWithAge(relPath string, content []byte, age time.Duration) string {
	f.T.Helper()
	return f.CreateFileWithTime(relPath, content, time.Now().Add(-age))
}

// CreateFileWithTime creates a file with an exact modification time
func (f *TestFixture) CreateFileWithTime(relPath string, content []byte, mtime time.Time) string {
	f.T.Helper()

	fullPath := f.CreateFile(relPath, content)
	if err := os.Chtimes(fullPath, mtime, mtime); err != nil {
		f.T.Fatalf("failed to set file time for %s: %v", fullPath, err)
	}

	return fullPath
}

// =============================================================================
// Directory Helpers
// =============================================================================

// CreateDir creates a directory and returns its path
func (f *TestFixture) CreateDir(relPath string) string {
	f.T.Helper()

	fullPath := filepath.Join(f.RootDir, relPath)
	if err := os.MkdirAll(fullPath, 0755); err != nil {
		f.T.Fatalf("failed to create directory %s: %v", fullPath, err)
	}

	return fullPath
}

// LockDir removes all permissions from an existing directory so it cannot be
// listed. Permissions are restored on cleanup so TempDir removal works.
func (f *TestFixture) LockDir(relPath string) string {
	f.T.Helper()

	fullPath := f.CreateDir(relPath)
	if err := os.Chmod(fullPath, 0000); err != nil {
		f.T.Fatalf("failed to chmod directory %s: %v", fullPath, err)
	}
	f.T.Cleanup(func() {
		os.Chmod(fullPath, 0755)
	})

	return fullPath
}

// =============================================================================
// Symlink Helpers
// =============================================================================

// CreateSymlink creates a symbolic link at linkPath (relative to the root)
func (f *TestFixture) CreateSymlink(target, linkPath string) string {
	f.T.Helper()

	fullLinkPath := filepath.Join(f.RootDir, linkPath)
	dir := filepath.Dir(fullLinkPath)

	if err := os.MkdirAll(dir, 0755); err != nil {
		f.T.Fatalf("failed to create directory %s: %v", dir, err)
	}

	if err := os.Symlink(target, fullLinkPath); err != nil {
		f.T.Fatalf("failed to create symlink %s -> %s: %v", fullLinkPath, target, err)
	}

	return fullLinkPath
}

// =============================================================================
// Path Helpers
// =============================================================================

// Path returns the full path for a relative path within the fixture
func (f *TestFixture) Path(relPath string) string {
	return filepath.Join(f.RootDir, relPath)
}

// RelPath returns the relative path from the fixture root
func (f *TestFixture) RelPath(fullPath string) string {
	rel, _ := filepath.Rel(f.RootDir, fullPath)
	return filepath.ToSlash(rel)
}

// =============================================================================
// Environment Helpers
// =============================================================================

// IsRoot returns true if running as root/admin
func IsRoot() bool {
	return os.Geteuid() == 0
}

// SkipIfRoot skips the test if running as root, where permission bits are ignored
func SkipIfRoot(t *testing.T) {
	t.Helper()
	if IsRoot() {
		t.Skip("skipping test when running as root")
	}
}

// SkipPermissionTests skips tests that rely on unreadable directories
func SkipPermissionTests(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not enforced on windows")
	}
	SkipIfRoot(t)
}

// SkipIfNoSymlinks skips tests that need symlinks where they need privileges
func SkipIfNoSymlinks(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}
}
