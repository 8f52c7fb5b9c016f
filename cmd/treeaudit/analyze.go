package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/fenilsonani/treeaudit/internal/analysis"
	"github.com/fenilsonani/treeaudit/internal/cache"
	"github.com/fenilsonani/treeaudit/internal/config"
	"github.com/fenilsonani/treeaudit/internal/duplicates"
	"github.com/fenilsonani/treeaudit/internal/logging"
	"github.com/fenilsonani/treeaudit/internal/progress"
	"github.com/fenilsonani/treeaudit/internal/reporter"
	"github.com/fenilsonani/treeaudit/internal/ui"
	"github.com/fenilsonani/treeaudit/pkg/utils"
)

type analyzeFlags struct {
	excludes       []string
	strategy       string
	forceRescan    bool
	workers        int
	followSymlinks bool
	topN           int
	cacheBackend   string
	cacheDir       string
	output         string
	outputFile     string
	depth          int
	noProgress     bool
}

func newAnalyzeCmd() *cobra.Command {
	return analyzeCommand(&analyzeFlags{})
}

// analyzeCommand builds the analyze command with its flags bound to f
func analyzeCommand(f *analyzeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [path]",
		Short: "Analyze a directory tree",
		Long: heredoc.Doc(`
			Analyze walks the target directory (default: the configured target,
			or the current directory) and prints age buckets, size buckets,
			duplicate sets and the largest files and directories.

			Flags override values from the config file.
		`),
		Example: heredoc.Doc(`
			treeaudit analyze ~/Downloads
			treeaudit analyze /srv/share --strategy thorough --exclude /srv/share/.snapshots
			treeaudit analyze . --output json --file report.json
		`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args, f)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&f.excludes, "exclude", nil, "exclude this path and everything below it (repeatable)")
	flags.StringVar(&f.strategy, "strategy", "", "duplicate strategy: fast (name+size) or thorough (content hash)")
	flags.BoolVar(&f.forceRescan, "force-rescan", false, "ignore the cached inventory and walk the tree again")
	flags.IntVar(&f.workers, "workers", 0, "parallel walkers and hashers (0 = based on CPU count)")
	flags.BoolVar(&f.followSymlinks, "follow-symlinks", false, "follow symbolic links")
	flags.IntVar(&f.topN, "top", 0, "how many largest files and directories to list")
	flags.StringVar(&f.cacheBackend, "cache-backend", "", "inventory cache backend (file, sqlite, none)")
	flags.StringVar(&f.cacheDir, "cache-dir", "", "inventory cache directory")
	flags.StringVar(&f.output, "output", "summary", "output format (summary, table, tree, json, yaml)")
	flags.StringVar(&f.outputFile, "file", "", "save report to file")
	flags.IntVar(&f.depth, "depth", reporter.DefaultTreeDepth, "levels printed by the tree format (0 = all)")
	flags.BoolVar(&f.noProgress, "no-progress", false, "do not draw the live progress line")

	return cmd
}

// apply overlays the flags the user set onto cfg and validates the result
func (f *analyzeFlags) apply(cmd *cobra.Command, cfg *config.Config, args []string) error {
	flags := cmd.Flags()

	if len(args) == 1 {
		cfg.Target = args[0]
	}
	if cfg.Target == "" {
		cfg.Target = "."
	}
	if flags.Changed("exclude") {
		cfg.ExcludePaths = append(cfg.ExcludePaths, f.excludes...)
	}
	if flags.Changed("strategy") {
		cfg.Strategy = f.strategy
	}
	if flags.Changed("force-rescan") {
		cfg.ForceRescan = f.forceRescan
	}
	if flags.Changed("workers") {
		cfg.Workers = f.workers
	}
	if flags.Changed("follow-symlinks") {
		cfg.FollowSymlinks = f.followSymlinks
	}
	if flags.Changed("top") {
		cfg.TopN = f.topN
	}
	if flags.Changed("cache-backend") {
		cfg.Cache.Backend = f.cacheBackend
	}
	if flags.Changed("cache-dir") {
		cfg.Cache.Dir = f.cacheDir
	}

	return cfg.Validate()
}

// engineOptions converts a validated config into engine options
func engineOptions(cfg *config.Config) (analysis.Options, error) {
	ages, err := cfg.AgeThresholdValues()
	if err != nil {
		return analysis.Options{}, err
	}
	sizes, err := cfg.SizeThresholdValues()
	if err != nil {
		return analysis.Options{}, err
	}
	strategy, err := duplicates.ParseStrategy(cfg.Strategy)
	if err != nil {
		return analysis.Options{}, err
	}

	return analysis.Options{
		Target:         cfg.Target,
		Excludes:       cfg.ExcludePaths,
		AgeThresholds:  ages,
		SizeThresholds: sizes,
		Strategy:       strategy,
		ForceRescan:    cfg.ForceRescan,
		Workers:        cfg.Workers,
		FollowSymlinks: cfg.FollowSymlinks,
		TopN:           cfg.TopN,
	}, nil
}

// openStore opens the configured cache, falling back to no cache on error
func openStore(cfg *config.Config, logger *logging.Logger) cache.Store {
	store, err := cache.Open(cfg.Cache.Backend, cfg.Cache.Dir)
	if err != nil {
		logger.Warn("cache disabled: %v", err)
		return cache.NopStore{}
	}
	return store
}

func runAnalyze(cmd *cobra.Command, args []string, f *analyzeFlags) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := f.apply(cmd, cfg, args); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	format, err := reporter.ParseFormat(f.output)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	shutdown := startTracing(cfg.Trace, logger)
	defer shutdown()

	opts, err := engineOptions(cfg)
	if err != nil {
		return err
	}

	store := openStore(cfg, logger)
	defer store.Close()
	opts.Store = store

	updates := progress.NewProgressReporter()
	opts.Progress = updates

	engine, err := analysis.NewEngine(opts)
	if err != nil {
		return err
	}

	stopProgress := func() {}
	if !f.noProgress {
		stopProgress = ui.NewLiveProgress(os.Stderr).Follow(updates)
	}

	logger.Info("analyzing %s (strategy %s)", cfg.Target, cfg.Strategy)
	res, err := engine.Run(cmd.Context())
	stopProgress()
	if err != nil {
		var targetErr *analysis.TargetError
		if errors.As(err, &targetErr) {
			logger.Error("cannot analyze %s: %v", targetErr.Path, targetErr.Err)
		}
		return err
	}

	for _, w := range res.Warnings {
		logger.Warn("%s", w.String())
	}
	source := "fresh scan"
	if res.FromCache {
		source = "cached inventory"
	}
	logger.Info("analyzed %d files (%s) from %s in %s",
		res.TotalFiles, utils.FormatBytes(res.TotalSize), source, progress.FormatDuration(res.Timings.Total))
	logger.Debug("timings: scan=%s tree=%s classify=%s duplicates=%s",
		res.Timings.Scan, res.Timings.Tree, res.Timings.Classify, res.Timings.Duplicates)

	if f.outputFile != "" {
		if err := reporter.SaveToFile(res, f.outputFile, format, f.depth); err != nil {
			return fmt.Errorf("failed to save report: %w", err)
		}
		logger.Info("report saved to %s", f.outputFile)
		return nil
	}

	rptr := reporter.New(os.Stdout, format)
	rptr.SetTreeDepth(f.depth)
	if err := rptr.Report(res); err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}
	return nil
}
