// Package output renders monitoring results and baseline comparisons.
// The telemetry core never formats text; everything here consumes the
// final summary read-only.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/charmitro/peak-mem/pkg/baseline"
	"github.com/charmitro/peak-mem/pkg/proctree"
	"github.com/charmitro/peak-mem/pkg/types"
)

// Format selects the rendering of a result.
type Format int

const (
	FormatHuman Format = iota
	FormatJSON
	FormatCSV
	FormatQuiet
)

var (
	styleDanger = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
	styleGood   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD7AF"))
	styleWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00")).Bold(true)
)

// Formatter writes results to one destination in one unit preference.
type Formatter struct {
	w     io.Writer
	units Unit
}

// NewFormatter writes to w, formatting sizes in units.
func NewFormatter(w io.Writer, units Unit) *Formatter {
	return &Formatter{w: w, units: units}
}

func (f *Formatter) size(bytes uint64) string {
	return f.units.Format(bytes)
}

// Result renders a monitoring summary in the requested format.
func (f *Formatter) Result(result *types.MonitorResult, format Format, verbose bool) error {
	switch format {
	case FormatJSON:
		return f.writeJSON(result)
	case FormatCSV:
		return f.resultCSV(result)
	case FormatQuiet:
		_, err := fmt.Fprintln(f.w, result.PeakRSSBytes)
		return err
	default:
		if verbose {
			return f.resultVerbose(result)
		}
		return f.resultHuman(result)
	}
}

func (f *Formatter) resultHuman(result *types.MonitorResult) error {
	fmt.Fprintf(f.w, "Command: %s\n", result.Command)
	fmt.Fprintf(f.w, "Peak memory usage: %s (RSS) / %s (VSZ)\n",
		f.size(result.PeakRSSBytes), f.size(result.PeakVSZBytes))
	if result.ExitCode != nil {
		fmt.Fprintf(f.w, "Exit code: %d\n", *result.ExitCode)
	}
	fmt.Fprintf(f.w, "Duration: %.1fs\n", result.Duration().Seconds())
	if result.ThresholdExceeded {
		fmt.Fprintf(f.w, "\n%s\n", styleWarn.Render("THRESHOLD EXCEEDED"))
	}
	return nil
}

func (f *Formatter) resultVerbose(result *types.MonitorResult) error {
	fmt.Fprintf(f.w, "Command: %s\n", result.Command)
	if result.StartTime != nil {
		fmt.Fprintf(f.w, "Started: %s UTC\n", result.StartTime.UTC().Format("2006-01-02 15:04:05"))
	}
	if result.MainPID != nil {
		fmt.Fprintf(f.w, "Process ID: %d\n", *result.MainPID)
	}

	fmt.Fprintf(f.w, "\nMemory Usage:\n")
	fmt.Fprintf(f.w, "  Peak RSS: %s (%d bytes)\n", f.size(result.PeakRSSBytes), result.PeakRSSBytes)
	fmt.Fprintf(f.w, "  Peak VSZ: %s (%d bytes)\n", f.size(result.PeakVSZBytes), result.PeakVSZBytes)

	fmt.Fprintln(f.w)
	if result.ProcessTree != nil {
		fmt.Fprintf(f.w, "Process Tree: (%d processes monitored)\n", proctree.Count(result.ProcessTree))
		f.renderTree(result.ProcessTree)
	} else {
		fmt.Fprintln(f.w, "Process Tree: (monitoring disabled with --no-children)")
	}

	fmt.Fprintf(f.w, "\nPerformance:\n")
	fmt.Fprintf(f.w, "  Duration: %.3fs\n", result.Duration().Seconds())
	if result.SampleCount != nil {
		fmt.Fprintf(f.w, "  Samples collected: %d\n", *result.SampleCount)
		if *result.SampleCount > 0 {
			fmt.Fprintf(f.w, "  Sampling interval: %dms\n", result.DurationMs / *result.SampleCount)
		}
	}

	if result.ExitCode != nil {
		status := "success"
		if *result.ExitCode != 0 {
			status = "failed"
		}
		fmt.Fprintf(f.w, "\nExit Status: %d (%s)\n", *result.ExitCode, status)
	}
	if result.ThresholdExceeded {
		fmt.Fprintf(f.w, "\n%s\n", styleWarn.Render("THRESHOLD EXCEEDED"))
	}
	return nil
}

// renderTree prints the snapshot as an ASCII tree, heaviest children
// first.
func (f *Formatter) renderTree(tree *types.ProcessMemoryInfo) {
	fmt.Fprintf(f.w, "%s\n", f.treeLabel(tree))
	f.renderChildren(tree.Children, "")
}

func (f *Formatter) renderChildren(children []types.ProcessMemoryInfo, prefix string) {
	ordered := make([]types.ProcessMemoryInfo, len(children))
	copy(ordered, children)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Memory.RSSBytes > ordered[j].Memory.RSSBytes
	})

	for i := range ordered {
		connector, childPrefix := "├── ", prefix+"│   "
		if i == len(ordered)-1 {
			connector, childPrefix = "└── ", prefix+"    "
		}
		fmt.Fprintf(f.w, "%s%s%s\n", prefix, connector, f.treeLabel(&ordered[i]))
		f.renderChildren(ordered[i].Children, childPrefix)
	}
}

func (f *Formatter) treeLabel(node *types.ProcessMemoryInfo) string {
	name := node.Name
	if len(name) > 40 {
		name = name[:37] + "..."
	}
	return fmt.Sprintf("%s (PID: %d) - Peak: %s", name, node.PID, f.size(node.Memory.RSSBytes))
}

func (f *Formatter) resultCSV(result *types.MonitorResult) error {
	w := csv.NewWriter(f.w)
	if err := w.Write([]string{
		"command", "peak_rss_bytes", "peak_vsz_bytes", "duration_ms",
		"exit_code", "threshold_exceeded", "timestamp",
	}); err != nil {
		return err
	}
	exitCode := ""
	if result.ExitCode != nil {
		exitCode = strconv.Itoa(*result.ExitCode)
	}
	if err := w.Write([]string{
		result.Command,
		strconv.FormatUint(result.PeakRSSBytes, 10),
		strconv.FormatUint(result.PeakVSZBytes, 10),
		strconv.FormatUint(result.DurationMs, 10),
		exitCode,
		strconv.FormatBool(result.ThresholdExceeded),
		result.Timestamp.Format(time.RFC3339),
	}); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Comparison renders a baseline comparison in the requested format.
func (f *Formatter) Comparison(cmp *baseline.ComparisonResult, format Format) error {
	switch format {
	case FormatJSON:
		return f.writeJSON(cmp)
	case FormatCSV:
		return f.comparisonCSV(cmp)
	case FormatQuiet:
		verdict := "ok"
		if cmp.RegressionDetected {
			verdict = "regression"
		}
		_, err := fmt.Fprintln(f.w, verdict)
		return err
	default:
		return f.comparisonHuman(cmp)
	}
}

func (f *Formatter) comparisonHuman(cmp *baseline.ComparisonResult) error {
	fmt.Fprintf(f.w, "Command: %s\n\n", cmp.Current.Command)
	fmt.Fprintln(f.w, "Baseline vs Current:")
	fmt.Fprintf(f.w, "  Peak RSS: %s → %s (%+.1f%%)\n",
		f.size(cmp.Baseline.PeakRSSBytes), f.size(cmp.Current.PeakRSSBytes), cmp.RSSDiffPercent)
	if cmp.RSSDiffBytes > 0 {
		fmt.Fprintf(f.w, "  Absolute increase: %s\n", f.size(uint64(cmp.RSSDiffBytes)))
	} else if cmp.RSSDiffBytes < 0 {
		fmt.Fprintf(f.w, "  Absolute decrease: %s\n", f.size(uint64(-cmp.RSSDiffBytes)))
	}
	fmt.Fprintf(f.w, "\n  Peak VSZ: %s → %s (%+.1f%%)\n",
		f.size(cmp.Baseline.PeakVSZBytes), f.size(cmp.Current.PeakVSZBytes), cmp.VSZDiffPercent)
	fmt.Fprintf(f.w, "\n  Duration: %.1fs → %.1fs (%+.1f%%)\n",
		float64(cmp.Baseline.DurationMs)/1000.0,
		cmp.Current.Duration().Seconds(),
		cmp.DurationDiffPercent)

	fmt.Fprintln(f.w)
	if cmp.RegressionDetected {
		fmt.Fprintln(f.w, styleDanger.Render(
			fmt.Sprintf("REGRESSION DETECTED: memory usage increased by %.1f%%", cmp.RSSDiffPercent)))
	} else {
		fmt.Fprintln(f.w, styleGood.Render("No regression detected"))
	}
	return nil
}

func (f *Formatter) comparisonCSV(cmp *baseline.ComparisonResult) error {
	w := csv.NewWriter(f.w)
	if err := w.Write([]string{
		"baseline_command", "baseline_rss_bytes", "baseline_vsz_bytes", "baseline_duration_ms",
		"current_command", "current_rss_bytes", "current_vsz_bytes", "current_duration_ms",
		"rss_diff_bytes", "rss_diff_percent", "vsz_diff_bytes", "vsz_diff_percent",
		"duration_diff_ms", "duration_diff_percent", "regression_detected",
	}); err != nil {
		return err
	}
	if err := w.Write([]string{
		cmp.Baseline.Command,
		strconv.FormatUint(cmp.Baseline.PeakRSSBytes, 10),
		strconv.FormatUint(cmp.Baseline.PeakVSZBytes, 10),
		strconv.FormatUint(cmp.Baseline.DurationMs, 10),
		cmp.Current.Command,
		strconv.FormatUint(cmp.Current.PeakRSSBytes, 10),
		strconv.FormatUint(cmp.Current.PeakVSZBytes, 10),
		strconv.FormatUint(cmp.Current.DurationMs, 10),
		strconv.FormatInt(cmp.RSSDiffBytes, 10),
		strconv.FormatFloat(cmp.RSSDiffPercent, 'f', -1, 64),
		strconv.FormatInt(cmp.VSZDiffBytes, 10),
		strconv.FormatFloat(cmp.VSZDiffPercent, 'f', -1, 64),
		strconv.FormatInt(cmp.DurationDiffMs, 10),
		strconv.FormatFloat(cmp.DurationDiffPercent, 'f', -1, 64),
		strconv.FormatBool(cmp.RegressionDetected),
	}); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (f *Formatter) writeJSON(v any) error {
	enc := json.NewEncoder(f.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteTimeline writes the sample sequence as a pretty JSON array,
// overwriting w's destination wholesale.
func WriteTimeline(w io.Writer, timeline []types.MemoryUsage) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(timeline)
}
