package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charmitro/peak-mem/pkg/baseline"
	"github.com/charmitro/peak-mem/pkg/types"
)

func testResult() *types.MonitorResult {
	code := 0
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	return &types.MonitorResult{
		Command:      "cargo build --release",
		PeakRSSBytes: 487_300_000,
		PeakVSZBytes: 892_100_000,
		DurationMs:   14_263,
		ExitCode:     &code,
		Timestamp:    now,
	}
}

func TestQuietPrintsBareRSS(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf, UnitAuto)
	require.NoError(t, f.Result(testResult(), FormatQuiet, false))
	assert.Equal(t, "487300000\n", buf.String())
}

func TestHumanOutput(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf, UnitAuto)
	require.NoError(t, f.Result(testResult(), FormatHuman, false))

	out := buf.String()
	assert.Contains(t, out, "Command: cargo build --release")
	assert.Contains(t, out, "487.3 MB (RSS)")
	assert.Contains(t, out, "892.1 MB (VSZ)")
	assert.Contains(t, out, "Exit code: 0")
	assert.Contains(t, out, "Duration: 14.3s")
	assert.NotContains(t, out, "THRESHOLD")
}

func TestHumanOutputThresholdExceeded(t *testing.T) {
	var buf bytes.Buffer
	result := testResult()
	result.ThresholdExceeded = true
	f := NewFormatter(&buf, UnitAuto)
	require.NoError(t, f.Result(result, FormatHuman, false))
	assert.Contains(t, buf.String(), "THRESHOLD EXCEEDED")
}

func TestJSONRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf, UnitAuto)
	require.NoError(t, f.Result(testResult(), FormatJSON, false))

	var decoded types.MonitorResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, uint64(487_300_000), decoded.PeakRSSBytes)
	assert.Nil(t, decoded.ProcessTree)
}

func TestCSVOutput(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf, UnitAuto)
	require.NoError(t, f.Result(testResult(), FormatCSV, false))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t,
		"command,peak_rss_bytes,peak_vsz_bytes,duration_ms,exit_code,threshold_exceeded,timestamp",
		lines[0])
	assert.Contains(t, lines[1], "487300000")
	assert.Contains(t, lines[1], "false")
}

func TestVerboseRendersTree(t *testing.T) {
	now := time.Now()
	samples := uint64(142)
	pid := int32(12345)
	result := testResult()
	result.StartTime = &now
	result.SampleCount = &samples
	result.MainPID = &pid
	result.ProcessTree = &types.ProcessMemoryInfo{
		PID:    12345,
		Name:   "cargo",
		Memory: types.MemoryUsage{RSSBytes: 45_234_567, VSZBytes: 78_901_234, Timestamp: now},
		Children: []types.ProcessMemoryInfo{
			{
				PID:    12347,
				Name:   "cc",
				Memory: types.MemoryUsage{RSSBytes: 23_456_789, VSZBytes: 45_678_901, Timestamp: now},
			},
			{
				PID:    12346,
				Name:   "rustc",
				Memory: types.MemoryUsage{RSSBytes: 442_123_456, VSZBytes: 512_123_456, Timestamp: now},
			},
		},
	}

	var buf bytes.Buffer
	f := NewFormatter(&buf, UnitAuto)
	require.NoError(t, f.Result(result, FormatHuman, true))

	out := buf.String()
	assert.Contains(t, out, "Process Tree: (3 processes monitored)")
	assert.Contains(t, out, "cargo (PID: 12345)")
	assert.Contains(t, out, "├── rustc (PID: 12346)")
	assert.Contains(t, out, "└── cc (PID: 12347)")
	assert.Contains(t, out, "Samples collected: 142")
	// Children sorted by RSS descending: rustc before cc.
	assert.Less(t, strings.Index(out, "rustc"), strings.Index(out, "cc (PID"))
}

func TestVerboseWithoutTree(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf, UnitAuto)
	require.NoError(t, f.Result(testResult(), FormatHuman, true))
	assert.Contains(t, buf.String(), "monitoring disabled with --no-children")
}

func TestComparisonHuman(t *testing.T) {
	base := baseline.Baseline{
		Command:      "test",
		PeakRSSBytes: 100 << 20,
		PeakVSZBytes: 200 << 20,
		DurationMs:   5000,
	}
	current := testResult()
	current.PeakRSSBytes = 110 << 20
	current.PeakVSZBytes = 220 << 20
	current.DurationMs = 5500
	cmp := baseline.Compare(base, *current, 5.0)

	var buf bytes.Buffer
	f := NewFormatter(&buf, UnitAuto)
	require.NoError(t, f.Comparison(&cmp, FormatHuman))

	out := buf.String()
	assert.Contains(t, out, "Baseline vs Current:")
	assert.Contains(t, out, "+10.0%")
	assert.Contains(t, out, "REGRESSION DETECTED")
}

func TestComparisonQuiet(t *testing.T) {
	base := baseline.Baseline{PeakRSSBytes: 100}
	cmp := baseline.Compare(base, *testResult(), 10.0)

	var buf bytes.Buffer
	f := NewFormatter(&buf, UnitAuto)
	require.NoError(t, f.Comparison(&cmp, FormatQuiet))
	assert.Equal(t, "regression\n", buf.String())

	buf.Reset()
	noChange := baseline.Compare(baseline.Baseline{PeakRSSBytes: 487_300_000}, *testResult(), 10.0)
	require.NoError(t, f.Comparison(&noChange, FormatQuiet))
	assert.Equal(t, "ok\n", buf.String())
}

func TestWriteTimeline(t *testing.T) {
	var buf bytes.Buffer
	timeline := []types.MemoryUsage{
		{RSSBytes: 1, VSZBytes: 2, Timestamp: time.Now().UTC()},
		{RSSBytes: 3, VSZBytes: 4, Timestamp: time.Now().UTC()},
	}
	require.NoError(t, WriteTimeline(&buf, timeline))

	var decoded []types.MemoryUsage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, uint64(3), decoded[1].RSSBytes)
}
