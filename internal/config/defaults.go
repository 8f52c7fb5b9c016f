package config

// GetDefault returns the default configuration
func GetDefault() *Config {
	return &Config{
		ExcludePaths: []string{},
		AgeThresholds: []AgeThreshold{
			{Name: "Over30Days", Age: "30d"},
			{Name: "Over90Days", Age: "90d"},
			{Name: "Over1Year", Age: "1y"},
			{Name: "Over5Years", Age: "5y"},
		},
		SizeThresholds: []SizeThreshold{
			{Name: "Over10MiB", Size: "10MiB"},
			{Name: "Over100MiB", Size: "100MiB"},
			{Name: "Over1GiB", Size: "1GiB"},
		},
		Strategy:       "fast", // thorough hashes every same-size candidate
		ForceRescan:    false,
		Workers:        0,
		FollowSymlinks: false,
		TopN:           10,
		Cache: CacheConfig{
			Backend: "file",
		},
		Log: LogConfig{
			Level: "info",
		},
		Trace: false,
	}
}
