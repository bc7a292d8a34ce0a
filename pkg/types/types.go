package types

import "time"

// MemoryUsage is a single point-in-time memory reading.
type MemoryUsage struct {
	RSSBytes  uint64    `json:"rss_bytes"`
	VSZBytes  uint64    `json:"vsz_bytes"`
	Timestamp time.Time `json:"timestamp"`
}

// ProcessMemoryInfo is a snapshot of a process and its children at one
// instant. Children are exclusively owned deep copies, never shared.
type ProcessMemoryInfo struct {
	PID      int32               `json:"pid"`
	Name     string              `json:"name"`
	Memory   MemoryUsage         `json:"memory"`
	Children []ProcessMemoryInfo `json:"children"`
}

// MonitorResult is the final summary of one monitoring session. It is
// assembled once, after the sampler has fully stopped.
type MonitorResult struct {
	Command           string             `json:"command"`
	PeakRSSBytes      uint64             `json:"peak_rss_bytes"`
	PeakVSZBytes      uint64             `json:"peak_vsz_bytes"`
	DurationMs        uint64             `json:"duration_ms"`
	ExitCode          *int               `json:"exit_code"`
	ThresholdExceeded bool               `json:"threshold_exceeded"`
	Timestamp         time.Time          `json:"timestamp"`
	ProcessTree       *ProcessMemoryInfo `json:"process_tree,omitempty"`
	Timeline          []MemoryUsage      `json:"timeline,omitempty"`
	StartTime         *time.Time         `json:"start_time,omitempty"`
	SampleCount       *uint64            `json:"sample_count,omitempty"`
	MainPID           *int32             `json:"main_pid,omitempty"`
}

// Duration returns the monitoring duration.
func (r *MonitorResult) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}
