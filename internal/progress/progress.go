package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fenilsonani/treeaudit/pkg/utils"
)

// Phase represents the current phase of an analysis run
type Phase string

const (
	PhaseLoadingCache Phase = "loading_cache"
	PhaseScanning     Phase = "scanning"
	PhaseAnalyzing    Phase = "analyzing"
	PhaseHashing      Phase = "hashing"
	PhaseComplete     Phase = "complete"
	PhaseError        Phase = "error"
)

// DefaultInterval is the default cadence of progress snapshots.
const DefaultInterval = 250 * time.Millisecond

// Counters are the live counts the engine components bump while they work.
// A nil *Counters is valid and records nothing.
type Counters struct {
	FilesScanned   atomic.Int64
	BytesScanned   atomic.Int64
	DirsAggregated atomic.Int64
	HashCandidates atomic.Int64
	FilesHashed    atomic.Int64
	Warnings       atomic.Int64
}

// AddFile records one scanned file of the given size.
func (c *Counters) AddFile(size int64) {
	if c == nil {
		return
	}
	c.FilesScanned.Add(1)
	c.BytesScanned.Add(size)
}

// AddDir records one aggregated directory.
func (c *Counters) AddDir() {
	if c == nil {
		return
	}
	c.DirsAggregated.Add(1)
}

// AddCandidates records files queued for hashing.
func (c *Counters) AddCandidates(n int) {
	if c == nil {
		return
	}
	c.HashCandidates.Add(int64(n))
}

// AddHashed records one hashed file.
func (c *Counters) AddHashed() {
	if c == nil {
		return
	}
	c.FilesHashed.Add(1)
}

// AddWarning records one skipped item.
func (c *Counters) AddWarning() {
	if c == nil {
		return
	}
	c.Warnings.Add(1)
}

// Snapshot is a point-in-time copy of Counters tagged with the current phase.
type Snapshot struct {
	Phase          Phase
	Target         string
	FilesScanned   int64
	BytesScanned   int64
	DirsAggregated int64
	HashCandidates int64
	FilesHashed    int64
	Warnings       int64
	StartTime      time.Time
	Error          error
}

// Elapsed returns the time since the run started.
func (s Snapshot) Elapsed() time.Duration {
	return time.Since(s.StartTime)
}

// HashRatio returns hashed/candidates in [0,1].
func (s Snapshot) HashRatio() float64 {
	if s.HashCandidates <= 0 {
		return 0
	}
	r := float64(s.FilesHashed) / float64(s.HashCandidates)
	if r > 1 {
		return 1
	}
	return r
}

// Snapshot copies the counters.
func (c *Counters) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	return Snapshot{
		FilesScanned:   c.FilesScanned.Load(),
		BytesScanned:   c.BytesScanned.Load(),
		DirsAggregated: c.DirsAggregated.Load(),
		HashCandidates: c.HashCandidates.Load(),
		FilesHashed:    c.FilesHashed.Load(),
		Warnings:       c.Warnings.Load(),
	}
}

// ProgressReporter provides thread-safe progress reporting
type ProgressReporter struct {
	current   *Snapshot
	mu        sync.RWMutex
	listeners []chan Snapshot
}

// NewProgressReporter creates a new progress reporter
func NewProgressReporter() *ProgressReporter {
	return &ProgressReporter{
		listeners: make([]chan Snapshot, 0),
	}
}

// Subscribe returns a channel that receives progress updates
func (pr *ProgressReporter) Subscribe() <-chan Snapshot {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	ch := make(chan Snapshot, 10)
	pr.listeners = append(pr.listeners, ch)
	return ch
}

// Unsubscribe closes and removes a listener channel
func (pr *ProgressReporter) Unsubscribe(ch <-chan Snapshot) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	for i, listener := range pr.listeners {
		if listener == ch {
			close(listener)
			pr.listeners = append(pr.listeners[:i], pr.listeners[i+1:]...)
			return
		}
	}
}

// Update stores the snapshot and notifies listeners without blocking
func (pr *ProgressReporter) Update(update Snapshot) {
	if pr == nil {
		return
	}

	pr.mu.Lock()
	pr.current = &update
	pr.mu.Unlock()

	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send.
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	for _, listener := range pr.listeners {
		select {
		case listener <- update:
		default:
			// Skip if channel is full
		}
	}
}

// Current returns the latest snapshot, or nil before the first update
func (pr *ProgressReporter) Current() *Snapshot {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	if pr.current == nil {
		return nil
	}
	snap := *pr.current
	return &snap
}

// Ticker publishes counter snapshots on a fixed cadence until stopped.
type Ticker struct {
	reporter *ProgressReporter
	counters *Counters
	target   string
	start    time.Time

	mu    sync.Mutex
	phase Phase

	cancel context.CancelFunc
	done   chan struct{}
}

// StartTicker begins publishing snapshots of counters to reporter every
// interval. A nil reporter yields a ticker whose methods are no-ops.
func StartTicker(ctx context.Context, reporter *ProgressReporter, counters *Counters, target string, interval time.Duration) *Ticker {
	t := &Ticker{
		reporter: reporter,
		counters: counters,
		target:   target,
		start:    time.Now(),
		phase:    PhaseScanning,
		done:     make(chan struct{}),
	}
	if reporter == nil {
		close(t.done)
		return t
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	ctx, t.cancel = context.WithCancel(ctx)
	ticker := time.NewTicker(interval)

	go func() {
		defer close(t.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.publish(nil)
			case <-ctx.Done():
				return
			}
		}
	}()

	return t
}

// SetPhase switches the phase reported in subsequent snapshots and publishes one immediately.
func (t *Ticker) SetPhase(phase Phase) {
	t.mu.Lock()
	t.phase = phase
	t.mu.Unlock()
	t.publish(nil)
}

// Stop halts the ticker and publishes a final snapshot carrying err, if any.
func (t *Ticker) Stop(err error) {
	if t.cancel != nil {
		t.cancel()
	}
	<-t.done

	if err != nil {
		t.mu.Lock()
		t.phase = PhaseError
		t.mu.Unlock()
	} else {
		t.mu.Lock()
		t.phase = PhaseComplete
		t.mu.Unlock()
	}
	t.publish(err)
}

func (t *Ticker) publish(err error) {
	if t.reporter == nil {
		return
	}
	snap := t.counters.Snapshot()
	t.mu.Lock()
	snap.Phase = t.phase
	t.mu.Unlock()
	snap.Target = t.target
	snap.StartTime = t.start
	snap.Error = err
	t.reporter.Update(snap)
}

// FormatSnapshot returns a human-readable progress line
func FormatSnapshot(p *Snapshot) string {
	if p == nil {
		return "Initializing..."
	}

	elapsed := FormatDuration(p.Elapsed())

	switch p.Phase {
	case PhaseLoadingCache:
		return fmt.Sprintf("Loading cached inventory for %s... [%s]", p.Target, elapsed)
	case PhaseScanning:
		return fmt.Sprintf("Scanning... %d files (%s), %d directories [%s]",
			p.FilesScanned, utils.FormatBytes(p.BytesScanned), p.DirsAggregated, elapsed)
	case PhaseAnalyzing:
		return fmt.Sprintf("Analyzing %d files... [%s]", p.FilesScanned, elapsed)
	case PhaseHashing:
		return fmt.Sprintf("Hashing %d/%d candidates [%s]", p.FilesHashed, p.HashCandidates, elapsed)
	case PhaseComplete:
		return fmt.Sprintf("Analysis complete: %d files (%s), %d warnings in %s",
			p.FilesScanned, utils.FormatBytes(p.BytesScanned), p.Warnings, elapsed)
	case PhaseError:
		return fmt.Sprintf("Analysis error: %v", p.Error)
	default:
		return "Working..."
	}
}

// FormatDuration formats duration in human-readable format
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
