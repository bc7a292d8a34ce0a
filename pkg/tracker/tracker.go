// Package tracker runs the background sampling loop that reduces probe
// readings into running peak values for one monitored process.
package tracker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmitro/peak-mem/pkg/probe"
	"github.com/charmitro/peak-mem/pkg/proctree"
	"github.com/charmitro/peak-mem/pkg/types"
)

var (
	// ErrNoTree is returned by PeakTree when descendant tracking is
	// disabled or no sample has completed yet.
	ErrNoTree = errors.New("no process tree available")
	// ErrAlreadyRunning is returned by Start while a sampling loop is
	// active.
	ErrAlreadyRunning = errors.New("tracker already running")
	// ErrInvalidInterval is returned by Start for non-positive intervals.
	ErrInvalidInterval = errors.New("sampling interval must be positive")
)

// Tracker samples one process (optionally with its descendants) on a
// fixed cadence and keeps peak accumulators, an append-only timeline,
// and the tree snapshot taken at the most recent peak.
//
// Peak counters are single-writer/multi-reader atomics, so peak getters
// are safe to call while sampling runs. The timeline grows without
// bound for the lifetime of the tracker; long monitoring sessions at
// short intervals pay for it in the monitor's own memory.
type Tracker struct {
	probeMu sync.Mutex // probes hold non-thread-safe OS handles
	pr      probe.Probe

	pid           int32
	trackChildren bool

	peakRSS atomic.Uint64
	peakVSZ atomic.Uint64
	samples atomic.Uint64
	running atomic.Bool

	// stateMu guards the multi-field composite the sampler updates
	// per tick: the timeline and the peak tree snapshot.
	stateMu  sync.RWMutex
	timeline []types.MemoryUsage
	peakTree *types.ProcessMemoryInfo

	done chan struct{}
}

// New creates a tracker for pid. With trackChildren set, every sample
// snapshots the whole process tree and peaks are tree totals.
func New(pr probe.Probe, pid int32, trackChildren bool) *Tracker {
	return &Tracker{
		pr:            pr,
		pid:           pid,
		trackChildren: trackChildren,
	}
}

// Start takes one sample synchronously and then launches the background
// sampling loop. A first sample that fails is ignored; the target may
// still be mid-exec. At most one loop runs per tracker.
func (t *Tracker) Start(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	if !t.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	t.done = make(chan struct{})

	_ = t.sample()

	go t.loop(interval)
	return nil
}

func (t *Tracker) loop(interval time.Duration) {
	defer close(t.done)
	defer t.running.Store(false)

	// Ticker delivery drops ticks a slow receiver missed, so a probe
	// call slower than the interval never causes a catch-up burst.
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		<-ticker.C
		if !t.running.Load() {
			return
		}
		if err := t.sample(); err != nil {
			// The target exiting is the normal end of monitoring,
			// not a failure to surface.
			return
		}
	}
}

func (t *Tracker) sample() error {
	t.probeMu.Lock()
	defer t.probeMu.Unlock()

	if t.trackChildren {
		tree, err := t.pr.Tree(t.pid)
		if err != nil {
			return err
		}
		rss, vsz := proctree.Sum(tree)
		if rss > t.peakRSS.Load() {
			// Strictly greater: ties keep the previous snapshot.
			t.stateMu.Lock()
			t.peakTree = tree
			t.stateMu.Unlock()
		}
		t.record(types.MemoryUsage{
			RSSBytes:  rss,
			VSZBytes:  vsz,
			Timestamp: tree.Memory.Timestamp,
		})
		return nil
	}

	usage, err := t.pr.Read(t.pid)
	if err != nil {
		return err
	}
	t.record(usage)
	return nil
}

func (t *Tracker) record(usage types.MemoryUsage) {
	storeMax(&t.peakRSS, usage.RSSBytes)
	storeMax(&t.peakVSZ, usage.VSZBytes)
	t.samples.Add(1)

	t.stateMu.Lock()
	t.timeline = append(t.timeline, usage)
	t.stateMu.Unlock()
}

// Stop asks the sampling loop to finish. The loop notices at its next
// tick; call Wait before reading final results.
func (t *Tracker) Stop() {
	t.running.Store(false)
}

// Wait blocks until the background loop has fully returned. After Wait,
// no further mutation of tracker state happens.
func (t *Tracker) Wait() {
	if t.done == nil {
		return
	}
	<-t.done
}

// PeakRSS returns the highest RSS observed so far. Safe to call while
// sampling runs.
func (t *Tracker) PeakRSS() uint64 { return t.peakRSS.Load() }

// PeakVSZ returns the highest VSZ observed so far.
func (t *Tracker) PeakVSZ() uint64 { return t.peakVSZ.Load() }

// SampleCount returns the number of successful samples taken.
func (t *Tracker) SampleCount() uint64 { return t.samples.Load() }

// Running reports whether the sampling loop is still active.
func (t *Tracker) Running() bool { return t.running.Load() }

// Timeline returns a copy of the samples accumulated so far.
func (t *Tracker) Timeline() []types.MemoryUsage {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()
	out := make([]types.MemoryUsage, len(t.timeline))
	copy(out, t.timeline)
	return out
}

// PeakTree returns a copy of the process tree captured at the most
// recent peak, or ErrNoTree when none has been captured.
func (t *Tracker) PeakTree() (*types.ProcessMemoryInfo, error) {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()
	if t.peakTree == nil {
		return nil, ErrNoTree
	}
	return proctree.Clone(t.peakTree), nil
}

// storeMax is a CAS-loop max-reduction on an atomic counter.
func storeMax(a *atomic.Uint64, v uint64) {
	for {
		old := a.Load()
		if v <= old || a.CompareAndSwap(old, v) {
			return
		}
	}
}
