package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fenilsonani/treeaudit/internal/config"
	"github.com/fenilsonani/treeaudit/internal/pathfilter"
	"github.com/fenilsonani/treeaudit/pkg/utils"
)

func newCacheCmd() *cobra.Command {
	var backend, dir string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear cached scan inventories",
	}
	cmd.PersistentFlags().StringVar(&backend, "cache-backend", "", "inventory cache backend (file, sqlite, none)")
	cmd.PersistentFlags().StringVar(&dir, "cache-dir", "", "inventory cache directory")

	// cacheConfig loads config, applies the cache flags and resolves the target
	cacheConfig := func(cmd *cobra.Command, args []string) (*config.Config, string, error) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, "", err
		}
		if cmd.Flags().Changed("cache-backend") {
			cfg.Cache.Backend = backend
		}
		if cmd.Flags().Changed("cache-dir") {
			cfg.Cache.Dir = dir
		}
		if err := cfg.Validate(); err != nil {
			return nil, "", fmt.Errorf("invalid options: %w", err)
		}

		target := cfg.Target
		if len(args) == 1 {
			target = args[0]
		}
		if target == "" {
			target = "."
		}
		resolved, err := pathfilter.Normalize(target)
		if err != nil {
			return nil, "", fmt.Errorf("invalid target %q: %w", target, err)
		}
		return cfg, resolved, nil
	}

	showCmd := &cobra.Command{
		Use:   "show [path]",
		Short: "Show the cached inventory for a target",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, target, err := cacheConfig(cmd, args)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Close()

			store := openStore(cfg, logger)
			defer store.Close()

			snap, ok := store.Load(target)
			if !ok {
				fmt.Printf("No cached inventory for %s\n", target)
				return nil
			}

			var total int64
			for _, rec := range snap.Records {
				total += rec.Size
			}
			fmt.Printf("Target:     %s\n", snap.Target)
			fmt.Printf("Backend:    %s\n", cfg.Cache.Backend)
			fmt.Printf("Saved:      %s (%s)\n", snap.SavedAt.Format("2006-01-02 15:04:05"), humanize.Time(snap.SavedAt))
			fmt.Printf("Files:      %s\n", humanize.Comma(int64(len(snap.Records))))
			fmt.Printf("Total size: %s\n", utils.FormatBytes(total))
			symlinks := "not followed"
			if snap.FollowSymlinks {
				symlinks = "followed"
			}
			fmt.Printf("Symlinks:   %s\n", symlinks)
			for _, prefix := range snap.Excludes {
				fmt.Printf("Excluded:   %s\n", prefix)
			}
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear [path]",
		Short: "Remove the cached inventory for a target",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, target, err := cacheConfig(cmd, args)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Close()

			store := openStore(cfg, logger)
			defer store.Close()

			if err := store.Clear(target); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			logger.Info("cleared cached inventory for %s", target)
			fmt.Printf("Cleared cached inventory for %s\n", target)
			return nil
		},
	}

	cmd.AddCommand(showCmd, clearCmd)
	return cmd
}
