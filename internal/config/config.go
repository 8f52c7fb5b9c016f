package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fenilsonani/treeaudit/internal/cache"
	"github.com/fenilsonani/treeaudit/internal/classify"
	"github.com/fenilsonani/treeaudit/internal/duplicates"
	"github.com/fenilsonani/treeaudit/pkg/utils"
)

// Config represents the application configuration
type Config struct {
	Target         string          `yaml:"target,omitempty"`
	ExcludePaths   []string        `yaml:"exclude_paths"`
	AgeThresholds  []AgeThreshold  `yaml:"age_thresholds"`
	SizeThresholds []SizeThreshold `yaml:"size_thresholds"`
	Strategy       string          `yaml:"strategy"`
	ForceRescan    bool            `yaml:"force_rescan"`
	Workers        int             `yaml:"workers"` // 0 picks a default from the CPU count
	FollowSymlinks bool            `yaml:"follow_symlinks"`
	TopN           int             `yaml:"top_n"`
	Cache          CacheConfig     `yaml:"cache"`
	Log            LogConfig       `yaml:"log"`
	Trace          bool            `yaml:"trace"`
}

// AgeThreshold is a named age such as "90d", "1y" or "720h"
type AgeThreshold struct {
	Name string `yaml:"name"`
	Age  string `yaml:"age"`
}

// SizeThreshold is a named size such as "100MiB" or "1GB"
type SizeThreshold struct {
	Name string `yaml:"name"`
	Size string `yaml:"size"`
}

// CacheConfig selects where scan inventories are kept
type CacheConfig struct {
	Backend string `yaml:"backend"` // "file", "sqlite" or "none"
	Dir     string `yaml:"dir,omitempty"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level"` // "debug", "info", "warn" or "error"
	File  string `yaml:"file,omitempty"`
}

// Load loads configuration from a file
func Load(configPath string) (*Config, error) {
	// If config doesn't exist, return default config
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefault(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := GetDefault()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save saves configuration to a file
func Save(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := config.Marshal()
	if err != nil {
		return err
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Marshal renders the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := duplicates.ParseStrategy(c.Strategy); err != nil {
		return err
	}

	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	if c.TopN < 0 {
		return fmt.Errorf("top_n must be >= 0")
	}

	switch c.Cache.Backend {
	case cache.BackendFile, cache.BackendSQLite, cache.BackendNone:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	for _, path := range c.ExcludePaths {
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("exclude path must not be empty")
		}
		if strings.ContainsRune(path, 0) {
			return fmt.Errorf("exclude path contains a null byte: %q", path)
		}
	}

	if _, err := c.AgeThresholdValues(); err != nil {
		return err
	}
	if _, err := c.SizeThresholdValues(); err != nil {
		return err
	}

	return nil
}

// AgeThresholdValues parses the configured age thresholds
func (c *Config) AgeThresholdValues() ([]classify.AgeThreshold, error) {
	seen := make(map[string]bool)
	out := make([]classify.AgeThreshold, 0, len(c.AgeThresholds))
	for _, th := range c.AgeThresholds {
		if err := checkName(th.Name, seen, "age"); err != nil {
			return nil, err
		}
		age, err := ParseAge(th.Age)
		if err != nil {
			return nil, fmt.Errorf("age threshold %q: %w", th.Name, err)
		}
		out = append(out, classify.AgeThreshold{Name: th.Name, Age: age})
	}
	return out, nil
}

// SizeThresholdValues parses the configured size thresholds
func (c *Config) SizeThresholdValues() ([]classify.SizeThreshold, error) {
	seen := make(map[string]bool)
	out := make([]classify.SizeThreshold, 0, len(c.SizeThresholds))
	for _, th := range c.SizeThresholds {
		if err := checkName(th.Name, seen, "size"); err != nil {
			return nil, err
		}
		size, err := utils.ParseSize(th.Size)
		if err != nil {
			return nil, fmt.Errorf("size threshold %q: %w", th.Name, err)
		}
		out = append(out, classify.SizeThreshold{Name: th.Name, Size: size})
	}
	return out, nil
}

func checkName(name string, seen map[string]bool, kind string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%s threshold name must not be empty", kind)
	}
	if seen[name] {
		return fmt.Errorf("duplicate %s threshold name %q", kind, name)
	}
	seen[name] = true
	return nil
}

// ParseAge converts "30d", "2w", "1y" or any time.ParseDuration string to a
// duration. A year is 365 days.
func ParseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("invalid age: empty")
	}

	unit := map[byte]time.Duration{
		'd': 24 * time.Hour,
		'w': 7 * 24 * time.Hour,
		'y': 365 * 24 * time.Hour,
	}
	if mult, ok := unit[s[len(s)-1]]; ok {
		n, err := strconv.ParseFloat(strings.TrimSpace(s[:len(s)-1]), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid age %q: %w", s, err)
		}
		if n < 0 {
			return 0, fmt.Errorf("invalid age %q: must be >= 0", s)
		}
		return time.Duration(n * float64(mult)), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid age %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid age %q: must be >= 0", s)
	}
	return d, nil
}

// GetConfigPath returns the default config path
func GetConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	configDir := filepath.Join(homeDir, ".config", "treeaudit")
	return filepath.Join(configDir, "config.yaml"), nil
}

// EnsureConfigExists creates a default config file if it doesn't exist
func EnsureConfigExists() (string, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := Save(GetDefault(), configPath); err != nil {
			return "", err
		}
	}

	return configPath, nil
}
