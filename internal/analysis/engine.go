// Package analysis runs the scan, classification, duplicate and tree phases
// over one target and merges their outputs into a Result.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fenilsonani/treeaudit/internal/cache"
	"github.com/fenilsonani/treeaudit/internal/classify"
	"github.com/fenilsonani/treeaudit/internal/dirtree"
	"github.com/fenilsonani/treeaudit/internal/duplicates"
	"github.com/fenilsonani/treeaudit/internal/pathfilter"
	"github.com/fenilsonani/treeaudit/internal/progress"
	"github.com/fenilsonani/treeaudit/internal/scanner"
)

const tracerName = "github.com/fenilsonani/treeaudit/internal/analysis"

// Options is everything one run needs. Nothing is read from global state.
type Options struct {
	Target         string
	Excludes       []string
	AgeThresholds  []classify.AgeThreshold
	SizeThresholds []classify.SizeThreshold
	Strategy       duplicates.Strategy
	ForceRescan    bool
	Workers        int
	FollowSymlinks bool
	TopN           int

	// Store is consulted before scanning and refreshed after a fresh scan.
	// Nil disables caching.
	Store cache.Store

	// Progress receives periodic snapshots when set.
	Progress         *progress.ProgressReporter
	ProgressInterval time.Duration

	// Tracer defaults to the global otel provider.
	Tracer trace.Tracer

	// Now fixes the reference time for age buckets; defaults to time.Now.
	Now func() time.Time
}

// Engine runs analyses
type Engine struct {
	opts   Options
	tracer trace.Tracer
	now    func() time.Time
}

// NewEngine validates opts and returns an Engine
func NewEngine(opts Options) (*Engine, error) {
	if opts.Target == "" {
		return nil, errors.New("target path is required")
	}
	if _, err := duplicates.ParseStrategy(string(opts.Strategy)); err != nil {
		return nil, err
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("workers must be non-negative, got %d", opts.Workers)
	}
	if opts.Workers == 0 {
		opts.Workers = scanner.DefaultWorkers()
	}

	e := &Engine{opts: opts, tracer: opts.Tracer, now: opts.Now}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Run performs one analysis. It returns a *TargetError when the target is
// unusable and ctx.Err() when cancelled; partial results are discarded.
func (e *Engine) Run(ctx context.Context) (res *Result, err error) {
	started := time.Now()

	ctx, span := e.tracer.Start(ctx, "analysis.Run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	target, err := resolveTarget(e.opts.Target)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("target", target),
		attribute.String("strategy", string(e.opts.Strategy)),
		attribute.Bool("force_rescan", e.opts.ForceRescan),
	)

	filter, err := pathfilter.New(e.opts.Excludes)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude paths: %w", err)
	}

	counters := &progress.Counters{}
	ticker := progress.StartTicker(ctx, e.opts.Progress, counters, target, e.opts.ProgressInterval)
	defer func() { ticker.Stop(err) }()

	var timings Timings

	// Cache
	ticker.SetPhase(progress.PhaseLoadingCache)
	var inv *scanner.Inventory
	var snap *cache.Snapshot
	if e.opts.Store != nil && !e.opts.ForceRescan {
		snap = e.loadCache(ctx, target, filter)
	}
	if snap != nil {
		inv = scanner.NewInventory(target, e.cachedRecords(snap.Records, filter))
		for _, rec := range inv.Files {
			counters.AddFile(rec.Size)
		}
	}

	// Scanner and tree aggregator walk the same subtree concurrently.
	ticker.SetPhase(progress.PhaseScanning)
	var tree *dirtree.DirectoryNode
	var treeWarnings []scanner.Warning

	g, gctx := errgroup.WithContext(ctx)
	if inv == nil {
		g.Go(func() error {
			sctx, sspan := e.tracer.Start(gctx, "analysis.scan")
			defer sspan.End()

			t := time.Now()
			s := scanner.New(scanner.Options{
				Filter:         filter,
				Workers:        e.opts.Workers,
				FollowSymlinks: e.opts.FollowSymlinks,
				Counters:       counters,
			})
			scanned, err := s.Scan(sctx, target)
			timings.Scan = time.Since(t)
			if err != nil {
				sspan.RecordError(err)
				return err
			}
			sspan.SetAttributes(
				attribute.Int("files", scanned.TotalCount()),
				attribute.Int64("bytes", scanned.TotalSize),
			)
			inv = scanned
			return nil
		})
	}
	g.Go(func() error {
		tctx, tspan := e.tracer.Start(gctx, "analysis.tree")
		defer tspan.End()

		t := time.Now()
		agg := dirtree.New(dirtree.Options{
			Filter:         filter,
			FollowSymlinks: e.opts.FollowSymlinks,
			Counters:       counters,
		})
		root, warnings, err := agg.Build(tctx, target)
		timings.Tree = time.Since(t)
		if err != nil {
			tspan.RecordError(err)
			return err
		}
		tspan.SetAttributes(attribute.Int("directories", root.Count()))
		tree, treeWarnings = root, warnings
		return nil
	})
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TargetError{Path: target, Err: err}
	}

	// Classification and duplicate detection share the immutable inventory.
	if e.opts.Strategy == duplicates.Thorough {
		ticker.SetPhase(progress.PhaseHashing)
	} else {
		ticker.SetPhase(progress.PhaseAnalyzing)
	}

	var classes classify.Result
	var dupes *duplicates.Result
	now := e.now()

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		_, cspan := e.tracer.Start(gctx, "analysis.classify")
		defer cspan.End()

		t := time.Now()
		classes = classify.Classify(inv.Files, e.opts.AgeThresholds, e.opts.SizeThresholds, now)
		timings.Classify = time.Since(t)
		return nil
	})
	g.Go(func() error {
		dctx, dspan := e.tracer.Start(gctx, "analysis.duplicates")
		defer dspan.End()

		t := time.Now()
		found, err := duplicates.Find(dctx, inv.Files, duplicates.Options{
			Strategy: e.opts.Strategy,
			Workers:  e.opts.Workers,
			Counters: counters,
		})
		timings.Duplicates = time.Since(t)
		if err != nil {
			dspan.RecordError(err)
			return err
		}
		dspan.SetAttributes(
			attribute.Int("sets", len(found.Sets)),
			attribute.Int64("wasted_bytes", found.WastedBytes),
		)
		dupes = found
		return nil
	})
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	var extra []scanner.Warning
	extra = append(extra, treeWarnings...)

	fromCache := snap != nil
	if !fromCache && e.opts.Store != nil {
		if err := e.saveCache(ctx, &cache.Snapshot{
			Target:         target,
			FollowSymlinks: e.opts.FollowSymlinks,
			Excludes:       filter.Prefixes(),
			Records:        inv.Files,
		}); err != nil {
			extra = append(extra, scanner.NewWarning(target, scanner.OpCache, err))
			counters.AddWarning()
		}
	}

	timings.Total = time.Since(started)

	parts := Parts{
		Target:      target,
		Inventory:   inv,
		Classes:     classes,
		Duplicates:  dupes,
		Tree:        tree,
		Warnings:    extra,
		FromCache:   fromCache,
		TopN:        e.opts.TopN,
		Timings:     timings,
		GeneratedAt: now,
	}
	if fromCache {
		parts.CachedAt = snap.SavedAt
	}
	return Assemble(parts)
}

// loadCache returns the stored inventory for target, or nil when there is none
// or it was scanned under a scope this run cannot reuse.
func (e *Engine) loadCache(ctx context.Context, target string, filter *pathfilter.PathFilter) *cache.Snapshot {
	_, span := e.tracer.Start(ctx, "analysis.load_cache")
	defer span.End()

	snap, ok := e.opts.Store.Load(target)
	if ok && !snap.Covers(e.opts.FollowSymlinks, filter) {
		span.SetAttributes(attribute.Bool("scope_mismatch", true))
		ok = false
	}
	span.SetAttributes(attribute.Bool("hit", ok))
	if !ok {
		return nil
	}
	return snap
}

// cachedRecords drops records that fall under excludes added since the
// snapshot was taken.
func (e *Engine) cachedRecords(records []scanner.FileRecord, filter *pathfilter.PathFilter) []scanner.FileRecord {
	if len(filter.Prefixes()) == 0 {
		return records
	}

	kept := make([]scanner.FileRecord, 0, len(records))
	for _, rec := range records {
		excluded := filter.Excludes(rec.Path)
		if e.opts.FollowSymlinks {
			excluded = filter.ExcludesResolved(rec.Path)
		}
		if !excluded {
			kept = append(kept, rec)
		}
	}
	return kept
}

func (e *Engine) saveCache(ctx context.Context, snap *cache.Snapshot) error {
	_, span := e.tracer.Start(ctx, "analysis.save_cache")
	defer span.End()

	if err := e.opts.Store.Save(snap); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// resolveTarget returns the absolute, symlink-resolved target, failing with
// a *TargetError when it is missing or not a directory.
func resolveTarget(path string) (string, error) {
	resolved, err := pathfilter.Normalize(path)
	if err != nil {
		return "", &TargetError{Path: path, Err: err}
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", &TargetError{Path: resolved, Err: err}
	}
	if !info.IsDir() {
		return "", &TargetError{Path: resolved, Err: errors.New("not a directory")}
	}
	return resolved, nil
}
