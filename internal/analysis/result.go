package analysis

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fenilsonani/treeaudit/internal/classify"
	"github.com/fenilsonani/treeaudit/internal/dirtree"
	"github.com/fenilsonani/treeaudit/internal/duplicates"
	"github.com/fenilsonani/treeaudit/internal/scanner"
)

// ErrNoTreeRoot is returned by Assemble when the directory tree is missing
var ErrNoTreeRoot = errors.New("directory tree has no root")

// TargetError reports a target that does not exist, is not a directory, or
// cannot be listed. No result is produced.
type TargetError struct {
	Path string
	Err  error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("target %s: %v", e.Path, e.Err)
}

func (e *TargetError) Unwrap() error {
	return e.Err
}

// Timings records how long each phase of a run took
type Timings struct {
	Scan       time.Duration `json:"scan" yaml:"scan"`
	Tree       time.Duration `json:"tree" yaml:"tree"`
	Classify   time.Duration `json:"classify" yaml:"classify"`
	Duplicates time.Duration `json:"duplicates" yaml:"duplicates"`
	Total      time.Duration `json:"total" yaml:"total"`
}

// DirSummary is a flattened view of one tree node used for rankings
type DirSummary struct {
	Path         string `json:"path" yaml:"path"`
	Depth        int    `json:"depth" yaml:"depth"`
	OwnFileCount int    `json:"own_file_count" yaml:"own_file_count"`
	TotalSize    int64  `json:"total_size" yaml:"total_size"`
}

// Result is the outcome of one analysis run. It is built once by Assemble
// and never modified afterwards.
type Result struct {
	Target             string                 `json:"target" yaml:"target"`
	TotalFiles         int                    `json:"total_files" yaml:"total_files"`
	TotalSize          int64                  `json:"total_size" yaml:"total_size"`
	AgeBuckets         []classify.Bucket      `json:"age_buckets" yaml:"age_buckets"`
	SizeBuckets        []classify.Bucket      `json:"size_buckets" yaml:"size_buckets"`
	Strategy           duplicates.Strategy    `json:"strategy" yaml:"strategy"`
	DuplicateSets      []duplicates.Set       `json:"duplicate_sets" yaml:"duplicate_sets"`
	WastedBytes        int64                  `json:"wasted_bytes" yaml:"wasted_bytes"`
	Tree               *dirtree.DirectoryNode `json:"tree" yaml:"tree"`
	LargestFiles       []scanner.FileRecord   `json:"largest_files,omitempty" yaml:"largest_files,omitempty"`
	LargestDirectories []DirSummary           `json:"largest_directories,omitempty" yaml:"largest_directories,omitempty"`
	Warnings           []scanner.Warning      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	FromCache          bool                   `json:"from_cache" yaml:"from_cache"`
	CachedAt           time.Time              `json:"cached_at,omitempty" yaml:"cached_at,omitempty"`
	GeneratedAt        time.Time              `json:"generated_at" yaml:"generated_at"`
	Timings            Timings                `json:"timings" yaml:"timings"`
}

// Parts are the component outputs Assemble merges
type Parts struct {
	Target      string
	Inventory   *scanner.Inventory
	Classes     classify.Result
	Duplicates  *duplicates.Result
	Tree        *dirtree.DirectoryNode
	Warnings    []scanner.Warning // extra warnings not carried by the components
	FromCache   bool
	CachedAt    time.Time
	TopN        int
	Timings     Timings
	GeneratedAt time.Time
}

// Assemble merges component outputs into a Result. It performs no I/O and
// fails only when the tree root is missing.
func Assemble(p Parts) (*Result, error) {
	if p.Tree == nil {
		return nil, ErrNoTreeRoot
	}

	res := &Result{
		Target:      p.Target,
		AgeBuckets:  p.Classes.AgeBuckets,
		SizeBuckets: p.Classes.SizeBuckets,
		Tree:        p.Tree,
		FromCache:   p.FromCache,
		CachedAt:    p.CachedAt,
		GeneratedAt: p.GeneratedAt,
		Timings:     p.Timings,
	}

	var warnings []scanner.Warning
	if p.Inventory != nil {
		res.TotalFiles = p.Inventory.TotalCount()
		res.TotalSize = p.Inventory.TotalSize
		res.LargestFiles = largestFiles(p.Inventory.Files, p.TopN)
		warnings = append(warnings, p.Inventory.Warnings...)
	}
	if p.Duplicates != nil {
		res.Strategy = p.Duplicates.Strategy
		res.DuplicateSets = p.Duplicates.Sets
		res.WastedBytes = p.Duplicates.WastedBytes
		warnings = append(warnings, p.Duplicates.Warnings...)
	}
	warnings = append(warnings, p.Warnings...)
	scanner.SortWarnings(warnings)
	res.Warnings = warnings

	res.LargestDirectories = largestDirectories(p.Tree, p.TopN)

	return res, nil
}

// largestFiles returns the n biggest records, ties broken by path
func largestFiles(files []scanner.FileRecord, n int) []scanner.FileRecord {
	if n <= 0 || len(files) == 0 {
		return nil
	}
	sorted := make([]scanner.FileRecord, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Size != sorted[j].Size {
			return sorted[i].Size > sorted[j].Size
		}
		return sorted[i].Path < sorted[j].Path
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// largestDirectories ranks every node below the root by TotalSize
func largestDirectories(root *dirtree.DirectoryNode, n int) []DirSummary {
	if n <= 0 {
		return nil
	}
	var all []DirSummary
	root.Walk(func(node *dirtree.DirectoryNode) bool {
		if node != root {
			all = append(all, DirSummary{
				Path:         node.Path,
				Depth:        node.Depth,
				OwnFileCount: node.OwnFileCount,
				TotalSize:    node.TotalSize,
			})
		}
		return true
	})
	sort.Slice(all, func(i, j int) bool {
		if all[i].TotalSize != all[j].TotalSize {
			return all[i].TotalSize > all[j].TotalSize
		}
		return all[i].Path < all[j].Path
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}
