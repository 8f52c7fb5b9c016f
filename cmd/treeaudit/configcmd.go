package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fenilsonani/treeaudit/internal/config"
)

func newConfigCmd() *cobra.Command {
	var initFile bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if initFile {
				path, err := initConfig()
				if err != nil {
					return fmt.Errorf("failed to create config: %w", err)
				}
				fmt.Printf("Config file: %s\n", path)
				return nil
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&initFile, "init", false, "write a default config file if none exists")

	return cmd
}

// initConfig writes defaults to --config, or to the default path
func initConfig() (string, error) {
	if configPath == "" {
		return config.EnsureConfigExists()
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(config.GetDefault(), configPath); err != nil {
			return "", err
		}
	}
	return configPath, nil
}
