package utils

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// FormatBytes converts bytes to human-readable IEC format
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(bytes))
}

// ParseSize converts a human-readable size ("500MB", "1 GiB", "1024") to bytes.
// Decimal and binary suffixes are both accepted, as go-humanize understands them.
func ParseSize(size string) (int64, error) {
	size = strings.TrimSpace(size)
	if size == "" {
		return 0, fmt.Errorf("invalid size format: empty")
	}
	if strings.HasPrefix(size, "-") {
		return 0, fmt.Errorf("invalid size format: %s", size)
	}

	n, err := humanize.ParseBytes(size)
	if err != nil {
		return 0, fmt.Errorf("invalid size format: %s: %w", size, err)
	}
	if n > uint64(1<<63-1) {
		return 0, fmt.Errorf("size out of range: %s", size)
	}

	return int64(n), nil
}
