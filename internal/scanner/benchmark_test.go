package scanner

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/fenilsonani/treeaudit/internal/pathfilter"
	"github.com/fenilsonani/treeaudit/internal/testutil"
)

// =============================================================================
// Scan Benchmarks
// =============================================================================

// buildTree creates dirs*files small files under a fresh fixture
func buildTree(b *testing.B, dirs, files int) *testutil.TestFixture {
	b.Helper()
	f := testutil.NewFixture(b)
	for d := 0; d < dirs; d++ {
		for i := 0; i < files; i++ {
			f.CreateSizedFile(filepath.Join(fmt.Sprintf("dir%03d", d), fmt.Sprintf("file%03d.dat", i)), 100)
		}
	}
	return f
}

func benchmarkScan(b *testing.B, dirs, files, workers int) {
	f := buildTree(b, dirs, files)
	s := New(Options{Workers: workers})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		inv, err := s.Scan(context.Background(), f.RootDir)
		if err != nil {
			b.Fatal(err)
		}
		if inv.TotalCount() != dirs*files {
			b.Fatalf("scanned %d files, want %d", inv.TotalCount(), dirs*files)
		}
	}
}

func BenchmarkScanSmallDirectory(b *testing.B) {
	benchmarkScan(b, 1, 10, 0)
}

func BenchmarkScanMediumDirectory(b *testing.B) {
	benchmarkScan(b, 10, 100, 0)
}

func BenchmarkScanSingleWorker(b *testing.B) {
	benchmarkScan(b, 10, 100, 1)
}

func BenchmarkScanWithExcludes(b *testing.B) {
	f := buildTree(b, 10, 50)
	var excludes []string
	for d := 0; d < 10; d += 2 {
		excludes = append(excludes, filepath.Join(f.RootDir, fmt.Sprintf("dir%03d", d)))
	}
	filter, err := pathfilter.New(excludes)
	if err != nil {
		b.Fatal(err)
	}
	s := New(Options{Filter: filter})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Scan(context.Background(), f.RootDir); err != nil {
			b.Fatal(err)
		}
	}
}

// =============================================================================
// Helper Benchmarks
// =============================================================================

func BenchmarkSortWarnings(b *testing.B) {
	base := make([]Warning, 1000)
	for i := range base {
		base[i] = Warning{Path: fmt.Sprintf("/data/%04d", (i*7919)%1000), Op: OpReadDir}
	}
	ws := make([]Warning, len(base))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		copy(ws, base)
		SortWarnings(ws)
	}
}

func BenchmarkIdentifyAndVisit(b *testing.B) {
	f := buildTree(b, 20, 1)
	dirs := make([]string, 20)
	for d := range dirs {
		dirs[d] = filepath.Join(f.RootDir, fmt.Sprintf("dir%03d", d))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v := NewVisitedSet()
		for _, dir := range dirs {
			id, err := Identify(dir, false)
			if err != nil {
				b.Fatal(err)
			}
			if !v.Add(id) {
				b.Fatalf("%s reported as already visited", dir)
			}
		}
	}
}
