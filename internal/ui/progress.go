// Package ui draws the live progress line shown while an analysis runs.
package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	bar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/fenilsonani/treeaudit/internal/progress"
)

const (
	defaultWidth = 80
	maxBarWidth  = 30
)

// LiveProgress rewrites a single terminal line with each progress snapshot
type LiveProgress struct {
	mu      sync.Mutex
	out     io.Writer
	width   int
	enabled bool
	bar     bar.Model
}

// NewLiveProgress creates a progress line on out. It is disabled when out is
// not a terminal.
func NewLiveProgress(out *os.File) *LiveProgress {
	fd := out.Fd()
	enabled := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)

	width := defaultWidth
	if w, _, err := term.GetSize(int(fd)); err == nil && w > 0 {
		width = w
	}
	return newLiveProgress(out, width, enabled)
}

func newLiveProgress(out io.Writer, width int, enabled bool) *LiveProgress {
	barWidth := width / 3
	if barWidth > maxBarWidth {
		barWidth = maxBarWidth
	}
	return &LiveProgress{
		out:     out,
		width:   width,
		enabled: enabled,
		bar:     bar.New(bar.WithDefaultGradient(), bar.WithWidth(barWidth)),
	}
}

// Enabled reports whether anything will be drawn
func (lp *LiveProgress) Enabled() bool {
	return lp.enabled
}

// Line renders one snapshot. While hashing, a bar showing the hashed
// fraction precedes the text.
func (lp *LiveProgress) Line(s progress.Snapshot) string {
	text := progress.FormatSnapshot(&s)
	if s.Phase != progress.PhaseHashing || s.HashCandidates <= 0 {
		return truncate(text, lp.width-1)
	}

	view := lp.bar.ViewAs(s.HashRatio())
	room := lp.width - 1 - lipgloss.Width(view) - 1
	return view + " " + truncate(text, room)
}

// Follow draws every snapshot published by reporter until the returned stop
// function is called. Call stop only after the run has finished publishing.
func (lp *LiveProgress) Follow(reporter *progress.ProgressReporter) (stop func()) {
	if !lp.enabled || reporter == nil {
		return func() {}
	}

	updates := reporter.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for snap := range updates {
			lp.draw(lp.Line(snap))
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			reporter.Unsubscribe(updates)
			<-done
			lp.clear()
		})
	}
}

func (lp *LiveProgress) draw(line string) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	fmt.Fprintf(lp.out, "\r\033[K%s", line)
}

func (lp *LiveProgress) clear() {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	fmt.Fprint(lp.out, "\r\033[K")
}

// truncate shortens s to width runes, marking the cut with "..."
func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 0 {
		return ""
	}
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}
