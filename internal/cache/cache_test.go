package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fenilsonani/treeaudit/internal/pathfilter"
	"github.com/fenilsonani/treeaudit/internal/scanner"
)

func sampleRecords() []scanner.FileRecord {
	base := time.Date(2021, 3, 4, 5, 6, 7, 123456789, time.UTC)
	return []scanner.FileRecord{
		{Path: "/data/a.txt", Size: 100, ModTime: base},
		{Path: "/data/sub/b.txt", Size: 0, ModTime: base.Add(-time.Hour)},
		{Path: "/data/sub/c.bin", Size: 1 << 40, ModTime: base.Add(987654321 * time.Nanosecond)},
	}
}

func snapshotOf(target string, records []scanner.FileRecord) *Snapshot {
	return &Snapshot{Target: target, Records: records}
}

func assertSameRecords(t *testing.T, got, want []scanner.FileRecord) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Path != want[i].Path || got[i].Size != want[i].Size {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
		if !got[i].ModTime.Equal(want[i].ModTime) {
			t.Errorf("record %d ModTime = %v, want %v", i, got[i].ModTime, want[i].ModTime)
		}
	}
}

// storeFactories lets every behavioral test run against both backends.
func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"file": func(t *testing.T) Store {
			s, err := NewFileStore(t.TempDir())
			if err != nil {
				t.Fatalf("NewFileStore: %v", err)
			}
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
			if err != nil {
				t.Fatalf("NewSQLiteStore: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			want := sampleRecords()

			before := time.Now()
			if err := s.Save(snapshotOf("/data", want)); err != nil {
				t.Fatalf("Save: %v", err)
			}

			snap, ok := s.Load("/data")
			if !ok {
				t.Fatal("expected cached inventory")
			}
			if snap.Target != "/data" {
				t.Errorf("Target = %q", snap.Target)
			}
			if snap.SavedAt.Before(before.Add(-time.Second)) {
				t.Errorf("SavedAt = %v, expected after %v", snap.SavedAt, before)
			}
			assertSameRecords(t, snap.Records, want)
		})
	}
}

func TestStoreMissingTargetIsAbsent(t *testing.T) {
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			if _, ok := s.Load("/never/saved"); ok {
				t.Error("expected absent for unsaved target")
			}
		})
	}
}

func TestStoreSaveReplacesWholesale(t *testing.T) {
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			if err := s.Save(snapshotOf("/data", sampleRecords())); err != nil {
				t.Fatal(err)
			}
			replacement := []scanner.FileRecord{
				{Path: "/data/only.txt", Size: 7, ModTime: time.Unix(1700000000, 0)},
			}
			if err := s.Save(snapshotOf("/data", replacement)); err != nil {
				t.Fatal(err)
			}

			snap, ok := s.Load("/data")
			if !ok {
				t.Fatal("expected cached inventory")
			}
			assertSameRecords(t, snap.Records, replacement)
		})
	}
}

func TestStoreKeepsTargetsSeparate(t *testing.T) {
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			a := sampleRecords()
			b := []scanner.FileRecord{{Path: "/other/x", Size: 1, ModTime: time.Unix(1, 0)}}
			if err := s.Save(snapshotOf("/data", a)); err != nil {
				t.Fatal(err)
			}
			if err := s.Save(snapshotOf("/other", b)); err != nil {
				t.Fatal(err)
			}

			snapA, _ := s.Load("/data")
			snapB, _ := s.Load("/other")
			assertSameRecords(t, snapA.Records, a)
			assertSameRecords(t, snapB.Records, b)
		})
	}
}

func TestStoreEmptyInventory(t *testing.T) {
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			if err := s.Save(snapshotOf("/empty", nil)); err != nil {
				t.Fatal(err)
			}
			snap, ok := s.Load("/empty")
			if !ok {
				t.Fatal("an empty scan is still a complete scan")
			}
			if len(snap.Records) != 0 {
				t.Errorf("expected no records, got %d", len(snap.Records))
			}
		})
	}
}

func TestStoreClear(t *testing.T) {
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			if err := s.Save(snapshotOf("/data", sampleRecords())); err != nil {
				t.Fatal(err)
			}
			if err := s.Clear("/data"); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			if _, ok := s.Load("/data"); ok {
				t.Error("expected absent after Clear")
			}
			if err := s.Clear("/data"); err != nil {
				t.Errorf("second Clear should be a no-op, got %v", err)
			}
		})
	}
}

func TestStorePreservesScope(t *testing.T) {
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			want := &Snapshot{
				Target:         "/data",
				FollowSymlinks: true,
				Excludes:       []string{"/data/logs", "/data/tmp"},
				Records:        sampleRecords(),
			}
			if err := s.Save(want); err != nil {
				t.Fatal(err)
			}

			snap, ok := s.Load("/data")
			if !ok {
				t.Fatal("expected cached inventory")
			}
			if !snap.FollowSymlinks {
				t.Error("FollowSymlinks lost")
			}
			if len(snap.Excludes) != 2 || snap.Excludes[0] != "/data/logs" || snap.Excludes[1] != "/data/tmp" {
				t.Errorf("Excludes = %v", snap.Excludes)
			}

			// Replacing with an unscoped snapshot drops the old scope.
			if err := s.Save(snapshotOf("/data", sampleRecords())); err != nil {
				t.Fatal(err)
			}
			snap, _ = s.Load("/data")
			if snap.FollowSymlinks || len(snap.Excludes) != 0 {
				t.Errorf("stale scope after replace: follow=%v excludes=%v", snap.FollowSymlinks, snap.Excludes)
			}
		})
	}
}

func TestStorePreservesRecordOrder(t *testing.T) {
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			// Deliberately not in path order.
			want := []scanner.FileRecord{
				{Path: "/data/zeta", Size: 3, ModTime: time.Unix(3, 0)},
				{Path: "/data/alpha", Size: 1, ModTime: time.Unix(1, 0)},
				{Path: "/data/mid/file", Size: 2, ModTime: time.Unix(2, 0)},
			}
			if err := s.Save(snapshotOf("/data", want)); err != nil {
				t.Fatal(err)
			}
			snap, ok := s.Load("/data")
			if !ok {
				t.Fatal("expected cached inventory")
			}
			assertSameRecords(t, snap.Records, want)
		})
	}
}

func TestSnapshotCovers(t *testing.T) {
	root, _ := pathfilter.Normalize(t.TempDir())
	logs := filepath.Join(root, "logs")
	tmp := filepath.Join(root, "tmp")

	filterOf := func(excludes ...string) *pathfilter.PathFilter {
		pf, err := pathfilter.New(excludes)
		if err != nil {
			t.Fatal(err)
		}
		return pf
	}

	tests := []struct {
		name   string
		snap   Snapshot
		follow bool
		filter *pathfilter.PathFilter
		want   bool
	}{
		{"same empty scope", Snapshot{}, false, filterOf(), true},
		{"nil filter", Snapshot{}, false, nil, true},
		{"follow mismatch", Snapshot{FollowSymlinks: true}, false, filterOf(), false},
		{"follow match", Snapshot{FollowSymlinks: true}, true, filterOf(), true},
		{"exclude added since", Snapshot{}, false, filterOf(logs), true},
		{"exclude removed since", Snapshot{Excludes: []string{logs}}, false, filterOf(), false},
		{"exclude kept", Snapshot{Excludes: []string{logs}}, false, filterOf(logs, tmp), true},
		{"exclude widened", Snapshot{Excludes: []string{filepath.Join(logs, "old")}}, false, filterOf(logs), true},
		{"exclude narrowed", Snapshot{Excludes: []string{logs}}, false, filterOf(filepath.Join(logs, "old")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.snap.Covers(tt.follow, tt.filter); got != tt.want {
				t.Errorf("Covers = %v, want %v", got, tt.want)
			}
		})
	}
}

// =============================================================================
// File backend specifics
// =============================================================================

func TestFileStoreCorruptFileIsAbsent(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(snapshotOf("/data", sampleRecords())); err != nil {
		t.Fatal(err)
	}

	path := s.pathFor("/data")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		content []byte
	}{
		{"garbage", []byte("definitely not gob")},
		{"truncated", data[:len(data)/2]},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := os.WriteFile(path, tt.content, 0644); err != nil {
				t.Fatal(err)
			}
			if _, ok := s.Load("/data"); ok {
				t.Error("expected corrupt cache to read as absent")
			}
		})
	}
}

func TestFileStoreRejectsForeignTarget(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(snapshotOf("/data", sampleRecords())); err != nil {
		t.Fatal(err)
	}

	// Simulate a key collision by moving /data's file under /other's name.
	if err := os.Rename(s.pathFor("/data"), s.pathFor("/other")); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Load("/other"); ok {
		t.Error("expected mismatched target to read as absent")
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := s.Save(snapshotOf("/data", sampleRecords())); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected a single cache file, found %v", names)
	}
}

// =============================================================================
// SQLite backend specifics
// =============================================================================

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "cache.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := s.Save(snapshotOf("/data", sampleRecords())); err != nil {
		t.Fatal(err)
	}
	s.Close()

	reopened, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	snap, ok := reopened.Load("/data")
	if !ok {
		t.Fatal("expected inventory after reopen")
	}
	assertSameRecords(t, snap.Records, sampleRecords())
}

func TestSQLiteStoreIncompleteHeaderIsAbsent(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Save(snapshotOf("/data", sampleRecords())); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(`DELETE FROM scan_records WHERE path = ?`, "/data/a.txt"); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.Load("/data"); ok {
		t.Error("expected partial row set to read as absent")
	}
}

// =============================================================================
// Open
// =============================================================================

func TestOpenBackends(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		backend string
		wantErr bool
		check   func(Store) bool
	}{
		{BackendFile, false, func(s Store) bool { _, ok := s.(*FileStore); return ok }},
		{BackendSQLite, false, func(s Store) bool { _, ok := s.(*SQLiteStore); return ok }},
		{BackendNone, false, func(s Store) bool { _, ok := s.(NopStore); return ok }},
		{"redis", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			s, err := Open(tt.backend, dir)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer s.Close()
			if !tt.check(s) {
				t.Errorf("Open(%q) returned %T", tt.backend, s)
			}
		})
	}
}

func TestNopStore(t *testing.T) {
	var s Store = NopStore{}
	if err := s.Save(snapshotOf("/data", sampleRecords())); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Load("/data"); ok {
		t.Error("NopStore should never report a hit")
	}
}
