package utils

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int64
	}{
		{"plain bytes", "1024", 1024},
		{"decimal KB", "1KB", 1000},
		{"binary KiB", "1KiB", 1 << 10},
		{"binary MiB", "100MiB", 100 << 20},
		{"binary GiB with space", "2 GiB", 2 << 30},
		{"lowercase", "1kib", 1 << 10},
		{"surrounding spaces", "  10MiB ", 10 << 20},
		{"zero", "0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if err != nil {
				t.Fatalf("ParseSize(%q) returned error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseSizeInvalid(t *testing.T) {
	for _, input := range []string{"", "   ", "abc", "-5MB", "12XB"} {
		if _, err := ParseSize(input); err == nil {
			t.Errorf("ParseSize(%q) expected error", input)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{-1, "0 B"},
		{0, "0 B"},
		{512, "512 B"},
		{1 << 10, "1.0 KiB"},
		{3 << 19, "1.5 MiB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.input); got != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")
	c := filepath.Join(dir, "c.bin")
	os.WriteFile(a, []byte("same content"), 0644)
	os.WriteFile(b, []byte("same content"), 0644)
	os.WriteFile(c, []byte("other content"), 0644)

	ha, err := HashFile(a)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	hb, _ := HashFile(b)
	hc, _ := HashFile(c)

	if ha != hb {
		t.Errorf("identical content hashed differently: %s vs %s", ha, hb)
	}
	if ha == hc {
		t.Error("different content produced the same hash")
	}
	if len(ha) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(ha))
	}
}

func TestHashFileContextCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	os.WriteFile(path, []byte("data"), 0644)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := HashFileContext(ctx, path); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestHashFileMissing(t *testing.T) {
	if _, err := HashFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}
