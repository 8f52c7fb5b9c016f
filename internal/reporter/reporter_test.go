package reporter

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/fenilsonani/treeaudit/internal/analysis"
	"github.com/fenilsonani/treeaudit/internal/classify"
	"github.com/fenilsonani/treeaudit/internal/dirtree"
	"github.com/fenilsonani/treeaudit/internal/duplicates"
	"github.com/fenilsonani/treeaudit/internal/scanner"
)

func sampleResult() *analysis.Result {
	mod := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a := scanner.FileRecord{Path: "/data/sub/a.txt", Size: 100, ModTime: mod}
	b := scanner.FileRecord{Path: "/data/sub/b.txt", Size: 100, ModTime: mod}
	c := scanner.FileRecord{Path: "/data/sub/c.txt", Size: 100, ModTime: mod}

	sub := &dirtree.DirectoryNode{Path: "/data/sub", Depth: 1, OwnFileCount: 3, OwnFilesSize: 300, TotalSize: 300}
	deep := &dirtree.DirectoryNode{Path: "/data/sub/deep", Depth: 2}
	sub.Children = []*dirtree.DirectoryNode{deep}
	sub.OwnFolderCount = 1
	root := &dirtree.DirectoryNode{Path: "/data", OwnFolderCount: 1, TotalSize: 300, Children: []*dirtree.DirectoryNode{sub}}

	return &analysis.Result{
		Target:     "/data",
		TotalFiles: 3,
		TotalSize:  300,
		AgeBuckets: []classify.Bucket{
			{Name: "Over1Year", Kind: classify.KindAge, Files: []scanner.FileRecord{a, b, c}, Count: 3, TotalBytes: 300},
		},
		SizeBuckets: []classify.Bucket{
			{Name: "Over10MiB", Kind: classify.KindSize, Threshold: 10 << 20},
		},
		Strategy: duplicates.Thorough,
		DuplicateSets: []duplicates.Set{
			{MatchKey: "abc123", Size: 100, Members: []scanner.FileRecord{a, b}, WastedBytes: 100},
		},
		WastedBytes:        100,
		Tree:               root,
		LargestFiles:       []scanner.FileRecord{a, b, c},
		LargestDirectories: []analysis.DirSummary{{Path: "/data/sub", Depth: 1, OwnFileCount: 3, TotalSize: 300}},
		Warnings: []scanner.Warning{
			{Path: "/data/locked", Op: scanner.OpReadDir, Reason: scanner.ReasonPermissionDenied, Message: "permission denied"},
		},
		GeneratedAt: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatSummary, false},
		{"JSON", FormatJSON, false},
		{" yaml ", FormatYAML, false},
		{"tree", FormatTree, false},
		{"table", FormatTable, false},
		{"html", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestReportSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := New(&buf, FormatSummary).Report(sampleResult()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"/data",
		"300 B",
		"Over1Year",
		"Duplicates (thorough)",
		"/data/sub/a.txt",
		"Largest directories",
		"Warnings: 1",
		"/data/locked",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestReportSummaryNoDuplicates(t *testing.T) {
	res := sampleResult()
	res.DuplicateSets = nil
	res.WastedBytes = 0

	var buf bytes.Buffer
	if err := New(&buf, FormatSummary).Report(res); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "none found") {
		t.Errorf("expected 'none found':\n%s", buf.String())
	}
}

func TestReportTable(t *testing.T) {
	var buf bytes.Buffer
	if err := New(&buf, FormatTable).Report(sampleResult()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Count(out, "#1") != 2 {
		t.Errorf("expected both members of set #1:\n%s", out)
	}
	if !strings.Contains(out, "Total: 1 sets, 100 B wasted") {
		t.Errorf("missing table total:\n%s", out)
	}
}

func TestReportTreeDepth(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, FormatTree)
	r.SetTreeDepth(1)
	if err := r.Report(sampleResult()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "sub (300 B, 3 files)") {
		t.Errorf("missing sub line:\n%s", out)
	}
	if strings.Contains(out, "deep") {
		t.Errorf("depth 1 should not print grandchildren:\n%s", out)
	}

	buf.Reset()
	r.SetTreeDepth(0)
	r.Report(sampleResult())
	if !strings.Contains(buf.String(), "deep") {
		t.Errorf("unlimited depth should print grandchildren:\n%s", buf.String())
	}
}

func TestReportTreeWithoutRoot(t *testing.T) {
	res := sampleResult()
	res.Tree = nil
	err := New(&bytes.Buffer{}, FormatTree).Report(res)
	if !errors.Is(err, analysis.ErrNoTreeRoot) {
		t.Errorf("expected ErrNoTreeRoot, got %v", err)
	}
}

func TestReportJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := New(&buf, FormatJSON).Report(sampleResult()); err != nil {
		t.Fatal(err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["target"] != "/data" {
		t.Errorf("target = %v", decoded["target"])
	}
	if decoded["wasted_bytes"].(float64) != 100 {
		t.Errorf("wasted_bytes = %v", decoded["wasted_bytes"])
	}
	warnings := decoded["warnings"].([]interface{})
	if reason := warnings[0].(map[string]interface{})["reason"]; reason != "permission denied" {
		t.Errorf("reason = %v", reason)
	}
}

func TestReportYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := New(&buf, FormatYAML).Report(sampleResult()); err != nil {
		t.Fatal(err)
	}

	var decoded map[string]interface{}
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if decoded["total_files"] != 3 {
		t.Errorf("total_files = %v", decoded["total_files"])
	}
	if decoded["strategy"] != "thorough" {
		t.Errorf("strategy = %v", decoded["strategy"])
	}
}

func TestReportUnsupported(t *testing.T) {
	if err := New(&bytes.Buffer{}, "html").Report(sampleResult()); err == nil {
		t.Error("expected error for unsupported format")
	}
	if err := New(&bytes.Buffer{}, FormatJSON).Report(nil); err == nil {
		t.Error("expected error for nil result")
	}
}

func TestSaveToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	if err := SaveToFile(sampleResult(), path, FormatJSON, DefaultTreeDepth); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"target": "/data"`) {
		t.Errorf("unexpected file content:\n%s", data)
	}
}

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"short", "/short", "/short"},
		{"ascii", "/" + strings.Repeat("x", 100), "..." + strings.Repeat("x", 17)},
		{"multibyte", "/photos/" + strings.Repeat("日本", 20), "..." + strings.Repeat("本日", 8) + "本"},
		{"multibyte fits", "/données/été", "/données/été"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncatePath(tt.input, 20)
			if got != tt.want {
				t.Errorf("truncatePath = %q, want %q", got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncatePath produced invalid UTF-8: %q", got)
			}
			if n := utf8.RuneCountInString(got); n > 20 {
				t.Errorf("truncatePath kept %d runes, want at most 20", n)
			}
		})
	}
}
