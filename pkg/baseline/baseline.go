// Package baseline persists named monitoring summaries and compares
// fresh runs against them to flag memory regressions.
package baseline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmitro/peak-mem/pkg/types"
)

// Version identifies the build that wrote a baseline. Overridden at
// link time from the CLI.
var Version = "dev"

// ErrNotFound means no baseline with the requested name exists.
var ErrNotFound = errors.New("baseline not found")

// Baseline is the durable artifact written per name, one JSON file
// each, overwritten whole on save.
type Baseline struct {
	Version      string            `json:"version"`
	CreatedAt    time.Time         `json:"created_at"`
	Command      string            `json:"command"`
	PeakRSSBytes uint64            `json:"peak_rss_bytes"`
	PeakVSZBytes uint64            `json:"peak_vsz_bytes"`
	DurationMs   uint64            `json:"duration_ms"`
	Metadata     map[string]string `json:"metadata"`
}

// FromResult derives a baseline from a finished monitoring session,
// capturing platform metadata at save time.
func FromResult(result *types.MonitorResult) Baseline {
	metadata := map[string]string{
		"platform":   runtime.GOOS,
		"arch":       runtime.GOARCH,
		"go_version": runtime.Version(),
	}
	if result.MainPID != nil {
		metadata["main_pid"] = strconv.Itoa(int(*result.MainPID))
	}
	return Baseline{
		Version:      Version,
		CreatedAt:    time.Now().UTC(),
		Command:      result.Command,
		PeakRSSBytes: result.PeakRSSBytes,
		PeakVSZBytes: result.PeakVSZBytes,
		DurationMs:   result.DurationMs,
		Metadata:     metadata,
	}
}

// ComparisonResult captures the relative deltas between a stored
// baseline and a fresh summary. Derived, never persisted.
type ComparisonResult struct {
	Baseline            Baseline            `json:"baseline"`
	Current             types.MonitorResult `json:"current"`
	RSSDiffBytes        int64               `json:"rss_diff_bytes"`
	RSSDiffPercent      float64             `json:"rss_diff_percent"`
	VSZDiffBytes        int64               `json:"vsz_diff_bytes"`
	VSZDiffPercent      float64             `json:"vsz_diff_percent"`
	DurationDiffMs      int64               `json:"duration_diff_ms"`
	DurationDiffPercent float64             `json:"duration_diff_percent"`
	RegressionDetected  bool                `json:"regression_detected"`
}

// Compare computes deltas of current against base. Only RSS growth
// beyond thresholdPercent counts as a regression; VSZ and duration
// deltas are informational.
func Compare(base Baseline, current types.MonitorResult, thresholdPercent float64) ComparisonResult {
	rssDiff := int64(current.PeakRSSBytes) - int64(base.PeakRSSBytes)
	vszDiff := int64(current.PeakVSZBytes) - int64(base.PeakVSZBytes)
	durationDiff := int64(current.DurationMs) - int64(base.DurationMs)

	rssPercent := percentOf(rssDiff, base.PeakRSSBytes)

	return ComparisonResult{
		Baseline:            base,
		Current:             current,
		RSSDiffBytes:        rssDiff,
		RSSDiffPercent:      rssPercent,
		VSZDiffBytes:        vszDiff,
		VSZDiffPercent:      percentOf(vszDiff, base.PeakVSZBytes),
		DurationDiffMs:      durationDiff,
		DurationDiffPercent: percentOf(durationDiff, base.DurationMs),
		RegressionDetected:  rssPercent > thresholdPercent,
	}
}

// percentOf is diff/base*100, defined as 0 for a zero base so a first
// baseline of 0 bytes never produces NaN or Inf.
func percentOf(diff int64, base uint64) float64 {
	if base == 0 {
		return 0.0
	}
	return float64(diff) / float64(base) * 100.0
}

// Store reads and writes baselines under one directory.
type Store struct {
	dir string
}

// NewStore creates the directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating baseline dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// DefaultDir is the per-user cache location for baselines.
func DefaultDir() string {
	cache, err := os.UserCacheDir()
	if err != nil {
		return ".peak-mem-baselines"
	}
	return filepath.Join(cache, "peak-mem", "baselines")
}

// Save writes the summary as a baseline under name and returns the
// file path. The write goes to a temp file first and is renamed into
// place, so a crash mid-save never leaves a partial baseline readable.
func (s *Store) Save(name string, result *types.MonitorResult) (string, error) {
	base := FromResult(result)
	data, err := json.MarshalIndent(base, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding baseline: %w", err)
	}

	path := s.path(name)
	tmp, err := os.CreateTemp(s.dir, ".baseline-*")
	if err != nil {
		return "", fmt.Errorf("creating temp baseline: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("writing baseline: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("writing baseline: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("replacing baseline: %w", err)
	}
	return path, nil
}

// Load reads the baseline stored under name.
func (s *Store) Load(name string) (Baseline, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return Baseline{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return Baseline{}, fmt.Errorf("reading baseline %s: %w", name, err)
	}
	var base Baseline
	if err := json.Unmarshal(data, &base); err != nil {
		return Baseline{}, fmt.Errorf("parsing baseline %s: %w", name, err)
	}
	return base, nil
}

// List returns the stored baseline names, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing baselines: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the baseline stored under name.
func (s *Store) Delete(name string) error {
	if err := os.Remove(s.path(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("deleting baseline %s: %w", name, err)
	}
	return nil
}

// CompareNamed loads the baseline under name and compares current
// against it.
func (s *Store) CompareNamed(name string, current *types.MonitorResult, thresholdPercent float64) (ComparisonResult, error) {
	base, err := s.Load(name)
	if err != nil {
		return ComparisonResult{}, err
	}
	return Compare(base, *current, thresholdPercent), nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, sanitizeName(name)+".json")
}

// sanitizeName maps filesystem-hostile characters to '_'. Two names
// differing only in those characters collide on the same file; that is
// documented behavior, not auto-disambiguated.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		default:
			return r
		}
	}, name)
}
