// Package duplicates groups inventory records into duplicate sets and
// computes the space the redundant copies occupy.
package duplicates

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/fenilsonani/treeaudit/internal/progress"
	"github.com/fenilsonani/treeaudit/internal/scanner"
	"github.com/fenilsonani/treeaudit/pkg/utils"
)

// Strategy selects the equivalence rule
type Strategy string

const (
	// Fast treats files with the same base name and size as duplicates
	Fast Strategy = "fast"
	// Thorough treats files with the same size and SHA-256 digest as duplicates
	Thorough Strategy = "thorough"
)

// ParseStrategy validates a strategy name
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case Fast:
		return Fast, nil
	case Thorough:
		return Thorough, nil
	default:
		return "", fmt.Errorf("unknown duplicate strategy %q (want %q or %q)", s, Fast, Thorough)
	}
}

// HashFunc returns a content digest for path
type HashFunc func(ctx context.Context, path string) (string, error)

// Set is a group of at least two equivalent files of equal size.
// WastedBytes counts every member but one.
type Set struct {
	MatchKey    string               `json:"match_key" yaml:"match_key"`
	Size        int64                `json:"size" yaml:"size"`
	Members     []scanner.FileRecord `json:"members" yaml:"members"`
	WastedBytes int64                `json:"wasted_bytes" yaml:"wasted_bytes"`
}

// Result is the output of Find
type Result struct {
	Strategy    Strategy          `json:"strategy" yaml:"strategy"`
	Sets        []Set             `json:"sets" yaml:"sets"`
	WastedBytes int64             `json:"wasted_bytes" yaml:"wasted_bytes"`
	Warnings    []scanner.Warning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Options configures Find
type Options struct {
	Strategy Strategy
	Workers  int
	Counters *progress.Counters
	Hash     HashFunc // defaults to utils.HashFileContext
}

// Find groups records under the chosen strategy. It fails only when ctx is
// cancelled; files that cannot be hashed are dropped with a warning.
func Find(ctx context.Context, records []scanner.FileRecord, opts Options) (*Result, error) {
	if opts.Workers <= 0 {
		opts.Workers = scanner.DefaultWorkers()
	}
	if opts.Hash == nil {
		opts.Hash = utils.HashFileContext
	}

	res := &Result{Strategy: opts.Strategy}
	var err error

	switch opts.Strategy {
	case Fast:
		res.Sets = findByName(records)
	case Thorough:
		res.Sets, res.Warnings, err = findByContent(ctx, records, opts)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown duplicate strategy %q", opts.Strategy)
	}

	sortSets(res.Sets)
	for _, s := range res.Sets {
		res.WastedBytes += s.WastedBytes
	}
	return res, nil
}

// findByName groups on (base name, size). Empty files waste nothing and are
// skipped, as in findByContent.
func findByName(records []scanner.FileRecord) []Set {
	groups := make(map[string][]scanner.FileRecord)
	for _, rec := range records {
		if rec.Size == 0 {
			continue
		}
		key := filepath.Base(rec.Path) + "|" + strconv.FormatInt(rec.Size, 10)
		groups[key] = append(groups[key], rec)
	}

	sets := make([]Set, 0)
	for key, members := range groups {
		if len(members) < 2 {
			continue
		}
		sets = append(sets, newSet(key, members))
	}
	return sets
}

// findByContent partitions by size, then hashes only files that share a
// non-zero size with at least one other file.
func findByContent(ctx context.Context, records []scanner.FileRecord, opts Options) ([]Set, []scanner.Warning, error) {
	bySize := make(map[int64][]scanner.FileRecord)
	for _, rec := range records {
		if rec.Size == 0 {
			continue
		}
		bySize[rec.Size] = append(bySize[rec.Size], rec)
	}

	candidates := make([]scanner.FileRecord, 0)
	for _, group := range bySize {
		if len(group) >= 2 {
			candidates = append(candidates, group...)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Size != candidates[j].Size {
			return candidates[i].Size < candidates[j].Size
		}
		return candidates[i].Path < candidates[j].Path
	})

	opts.Counters.AddCandidates(len(candidates))

	digests, warnings, err := hashAll(ctx, candidates, opts)
	if err != nil {
		return nil, nil, err
	}

	// Size is part of the key so equal digests of different lengths never merge.
	type groupKey struct {
		size   int64
		digest string
	}
	groups := make(map[groupKey][]scanner.FileRecord)
	for i, rec := range candidates {
		if digests[i] == "" {
			continue
		}
		k := groupKey{size: rec.Size, digest: digests[i]}
		groups[k] = append(groups[k], rec)
	}

	sets := make([]Set, 0)
	for k, members := range groups {
		if len(members) < 2 {
			continue
		}
		sets = append(sets, newSet(k.digest, members))
	}
	return sets, warnings, nil
}

// hashAll hashes candidates on a bounded pool. Results are stored by index so
// completion order cannot affect grouping.
func hashAll(ctx context.Context, candidates []scanner.FileRecord, opts Options) ([]string, []scanner.Warning, error) {
	digests := make([]string, len(candidates))
	failures := make([]*scanner.Warning, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for i := range candidates {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			digest, err := opts.Hash(gctx, candidates[i].Path)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				w := scanner.NewWarning(candidates[i].Path, scanner.OpHash, err)
				failures[i] = &w
				opts.Counters.AddWarning()
				return nil
			}
			digests[i] = digest
			opts.Counters.AddHashed()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var warnings []scanner.Warning
	for _, w := range failures {
		if w != nil {
			warnings = append(warnings, *w)
		}
	}
	return digests, warnings, nil
}

func newSet(key string, members []scanner.FileRecord) Set {
	sort.Slice(members, func(i, j int) bool {
		return members[i].Path < members[j].Path
	})
	size := members[0].Size
	return Set{
		MatchKey:    key,
		Size:        size,
		Members:     members,
		WastedBytes: size * int64(len(members)-1),
	}
}

// sortSets orders by wasted bytes descending, then by key
func sortSets(sets []Set) {
	sort.Slice(sets, func(i, j int) bool {
		if sets[i].WastedBytes != sets[j].WastedBytes {
			return sets[i].WastedBytes > sets[j].WastedBytes
		}
		return sets[i].MatchKey < sets[j].MatchKey
	})
}
