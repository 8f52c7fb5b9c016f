package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/fenilsonani/treeaudit/internal/analysis"
	"github.com/fenilsonani/treeaudit/internal/classify"
	"github.com/fenilsonani/treeaudit/internal/dirtree"
	"github.com/fenilsonani/treeaudit/internal/ui/styles"
	"github.com/fenilsonani/treeaudit/pkg/utils"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatSummary OutputFormat = "summary"
	FormatTable   OutputFormat = "table"
	FormatTree    OutputFormat = "tree"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
)

// DefaultTreeDepth limits how deep the tree format descends
const DefaultTreeDepth = 3

// maxListed caps the warnings and duplicate members printed in text formats
const maxListed = 20

// ParseFormat validates a format name
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatSummary, FormatTable, FormatTree, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatSummary, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// Reporter handles report generation
type Reporter struct {
	writer    io.Writer
	format    OutputFormat
	treeDepth int
}

// New creates a new Reporter
func New(writer io.Writer, format OutputFormat) *Reporter {
	return &Reporter{
		writer:    writer,
		format:    format,
		treeDepth: DefaultTreeDepth,
	}
}

// SetTreeDepth changes how many levels the tree format prints. Zero or less
// prints the whole tree.
func (r *Reporter) SetTreeDepth(depth int) {
	r.treeDepth = depth
}

// Report renders an analysis result
func (r *Reporter) Report(result *analysis.Result) error {
	if result == nil {
		return fmt.Errorf("no result to report")
	}
	switch r.format {
	case FormatSummary:
		return r.reportSummary(result)
	case FormatTable:
		return r.reportTable(result)
	case FormatTree:
		return r.reportTree(result)
	case FormatJSON:
		return r.reportJSON(result)
	case FormatYAML:
		return r.reportYAML(result)
	default:
		return fmt.Errorf("unsupported format: %s", r.format)
	}
}

// reportSummary prints totals, buckets, duplicates, rankings and warnings
func (r *Reporter) reportSummary(res *analysis.Result) error {
	w := r.writer
	const labelWidth = 14

	fmt.Fprintln(w, styles.TitleStyle.Render("=== Analysis of "+res.Target+" ==="))
	fmt.Fprintln(w, styles.Label("Files:", humanize.Comma(int64(res.TotalFiles)), labelWidth))
	fmt.Fprintln(w, styles.Label("Total size:", styles.FileSizeStyle.Render(utils.FormatBytes(res.TotalSize)), labelWidth))
	if res.Tree != nil {
		fmt.Fprintln(w, styles.Label("Directories:", humanize.Comma(int64(res.Tree.Count())), labelWidth))
	}
	if res.FromCache {
		fmt.Fprintln(w, styles.Label("Inventory:", "cached "+humanize.Time(res.CachedAt), labelWidth))
	}

	r.printBuckets("Age buckets", res.AgeBuckets)
	r.printBuckets("Size buckets", res.SizeBuckets)

	fmt.Fprintln(w)
	fmt.Fprintln(w, styles.SectionStyle.Render(fmt.Sprintf("Duplicates (%s)", res.Strategy)))
	if len(res.DuplicateSets) == 0 {
		fmt.Fprintln(w, styles.DimStyle.Render("  none found"))
	} else {
		fmt.Fprintf(w, "  %s sets, %s reclaimable\n",
			styles.CountStyle.Render(humanize.Comma(int64(len(res.DuplicateSets)))),
			styles.FileSizeStyle.Render(utils.FormatBytes(res.WastedBytes)))
		for i, set := range res.DuplicateSets {
			if i == maxListed {
				fmt.Fprintf(w, "  ... and %d more sets\n", len(res.DuplicateSets)-maxListed)
				break
			}
			fmt.Fprintf(w, "  %d x %s (%s wasted)\n", len(set.Members),
				utils.FormatBytes(set.Size), utils.FormatBytes(set.WastedBytes))
			for _, m := range set.Members {
				fmt.Fprintf(w, "    %s\n", styles.FilePathStyle.Render(m.Path))
			}
		}
	}

	if len(res.LargestFiles) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, styles.SectionStyle.Render("Largest files"))
		for _, f := range res.LargestFiles {
			fmt.Fprintf(w, "  %10s  %s\n", utils.FormatBytes(f.Size), styles.FilePathStyle.Render(f.Path))
		}
	}
	if len(res.LargestDirectories) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, styles.SectionStyle.Render("Largest directories"))
		for _, d := range res.LargestDirectories {
			fmt.Fprintf(w, "  %10s  %s\n", utils.FormatBytes(d.TotalSize), styles.FilePathStyle.Render(d.Path))
		}
	}

	if len(res.Warnings) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, styles.WarningStyle.Render(fmt.Sprintf("Warnings: %d", len(res.Warnings))))
		for i, warn := range res.Warnings {
			if i == maxListed {
				fmt.Fprintf(w, "  ... and %d more\n", len(res.Warnings)-maxListed)
				break
			}
			fmt.Fprintf(w, "  %s\n", warn.String())
		}
	}

	return nil
}

func (r *Reporter) printBuckets(title string, buckets []classify.Bucket) {
	if len(buckets) == 0 {
		return
	}
	fmt.Fprintln(r.writer)
	fmt.Fprintln(r.writer, styles.SectionStyle.Render(title))
	for _, b := range buckets {
		fmt.Fprintf(r.writer, "  %-14s %8s files  %10s\n",
			b.Name, humanize.Comma(int64(b.Count)), utils.FormatBytes(b.TotalBytes))
	}
}

// reportTable prints one row per duplicate set member
func (r *Reporter) reportTable(res *analysis.Result) error {
	fmt.Fprintf(r.writer, "%-60s | %-12s | %-20s | %s\n", "Path", "Size", "Set", "Modified")
	fmt.Fprintln(r.writer, strings.Repeat("-", 120))

	for i, set := range res.DuplicateSets {
		for _, m := range set.Members {
			fmt.Fprintf(r.writer, "%-60s | %-12s | %-20s | %s\n",
				truncatePath(m.Path, 60),
				utils.FormatBytes(m.Size),
				fmt.Sprintf("#%d", i+1),
				m.ModTime.Format("2006-01-02 15:04:05"))
		}
	}

	fmt.Fprintln(r.writer, strings.Repeat("-", 120))
	fmt.Fprintf(r.writer, "Total: %d sets, %s wasted\n", len(res.DuplicateSets), utils.FormatBytes(res.WastedBytes))

	return nil
}

// reportTree prints the directory tree with cumulative sizes
func (r *Reporter) reportTree(res *analysis.Result) error {
	if res.Tree == nil {
		return analysis.ErrNoTreeRoot
	}
	root := res.Tree
	fmt.Fprintf(r.writer, "%s (%s)\n", styles.FilePathStyle.Render(root.Path), utils.FormatBytes(root.TotalSize))
	r.printChildren(root, "", 1)
	fmt.Fprintf(r.writer, "\nTotal: %d files | %s\n", res.TotalFiles, utils.FormatBytes(res.TotalSize))
	return nil
}

func (r *Reporter) printChildren(node *dirtree.DirectoryNode, prefix string, depth int) {
	if r.treeDepth > 0 && depth > r.treeDepth {
		return
	}
	for i, child := range node.Children {
		last := i == len(node.Children)-1
		connector, indent := "├── ", "│   "
		if last {
			connector, indent = "╰── ", "    "
		}
		fmt.Fprintf(r.writer, "%s%s%s (%s, %d files)\n", prefix, connector,
			filepath.Base(child.Path), utils.FormatBytes(child.TotalSize), child.OwnFileCount)
		r.printChildren(child, prefix+indent, depth+1)
	}
}

// reportJSON renders the whole result as indented JSON
func (r *Reporter) reportJSON(res *analysis.Result) error {
	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(res)
}

// reportYAML renders the whole result as YAML
func (r *Reporter) reportYAML(res *analysis.Result) error {
	encoder := yaml.NewEncoder(r.writer)
	defer encoder.Close()
	return encoder.Encode(res)
}

// SaveToFile saves the report to a file. treeDepth applies to the tree format.
func SaveToFile(result *analysis.Result, path string, format OutputFormat, treeDepth int) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	reporter := New(file, format)
	reporter.SetTreeDepth(treeDepth)
	if err := reporter.Report(result); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// truncatePath keeps the last width-3 runes of path behind an ellipsis.
func truncatePath(path string, width int) string {
	runes := []rune(path)
	if len(runes) <= width {
		return path
	}
	return "..." + string(runes[len(runes)-(width-3):])
}
