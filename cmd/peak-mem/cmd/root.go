// Package cmd wires the peak-mem CLI: flag parsing, configuration,
// and the monitoring session itself.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/charmitro/peak-mem/pkg/baseline"
	"github.com/charmitro/peak-mem/pkg/config"
	"github.com/charmitro/peak-mem/pkg/output"
	"github.com/charmitro/peak-mem/pkg/probe"
	"github.com/charmitro/peak-mem/pkg/runner"
	"github.com/charmitro/peak-mem/pkg/tracker"
	"github.com/charmitro/peak-mem/pkg/types"
	"github.com/charmitro/peak-mem/pkg/ui"
)

// version is overridden at link time.
var version = "dev"

var (
	cfgFile      string
	globalConfig *config.Config

	// exitCode carries the child's (or the verdict's) exit code out
	// of RunE so Execute can report it without os.Exit in the middle
	// of deferred work.
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "peak-mem [flags] -- command [args...]",
	Short: "Lightweight memory usage monitor for any process",
	Long: `peak-mem monitors and reports the peak memory usage of a program
during its execution.

It tracks both resident set size (RSS) and virtual memory size (VSZ)
across the whole process tree with minimal overhead, and can compare a
run against a saved baseline to catch memory regressions in CI.

Examples:
  peak-mem -- cargo build --release
  peak-mem --watch -- make -j8
  peak-mem --save-baseline release-build -- cargo build --release
  peak-mem --compare-baseline release-build -- cargo build --release`,
	Version:       version,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		return 1
	}
	return exitCode
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (default searches ., $HOME/.config/peak-mem)")
	flags.BoolP("json", "j", false, "output in JSON format")
	flags.BoolP("csv", "c", false, "output in CSV format")
	flags.BoolP("quiet", "q", false, "only output peak RSS value")
	flags.BoolP("verbose", "v", false, "show detailed breakdown")
	flags.BoolP("watch", "w", false, "show real-time memory usage")
	flags.StringP("threshold", "t", "", "memory threshold (e.g. 512M, 1G)")
	flags.Bool("no-children", false, "don't track child processes")
	flags.String("timeline", "", "record memory timeline to file")
	flags.Uint64("interval", config.DefaultIntervalMs, "sampling interval in milliseconds")
	flags.String("units", "auto", "force memory units (B, KB, MB, GB, KiB, MiB, GiB)")
	flags.String("save-baseline", "", "save the result as a baseline with the given name")
	flags.String("compare-baseline", "", "compare results against a saved baseline")
	flags.Float64("regression-threshold", config.DefaultRegressionThreshold,
		"memory increase percentage to consider as regression")
	flags.String("baseline-dir", "", "directory to store baselines (default: per-user cache)")
	flags.Bool("list-baselines", false, "list all saved baselines and exit")
	flags.String("delete-baseline", "", "delete a saved baseline and exit")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.MarkFlagsMutuallyExclusive("json", "csv", "quiet")
	rootCmd.MarkFlagsMutuallyExclusive("quiet", "verbose")
	rootCmd.MarkFlagsMutuallyExclusive("watch", "json")
	rootCmd.MarkFlagsMutuallyExclusive("watch", "csv")
	rootCmd.MarkFlagsMutuallyExclusive("watch", "quiet")
	rootCmd.MarkFlagsMutuallyExclusive("save-baseline", "compare-baseline")

	viper.BindPFlag("interval_ms", flags.Lookup("interval"))
	viper.BindPFlag("no_children", flags.Lookup("no-children"))
	viper.BindPFlag("regression_threshold", flags.Lookup("regression-threshold"))
	viper.BindPFlag("units", flags.Lookup("units"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
}

func initConfig() {
	loader := config.NewLoader()

	var err error
	if cfgFile != "" {
		globalConfig, err = loader.LoadWithFile(cfgFile)
	} else {
		globalConfig, err = loader.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogging(globalConfig.LogLevel)
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	// Results go to stdout; diagnostics must not mix into them.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}

type runOptions struct {
	format            output.Format
	verbose           bool
	watch             bool
	units             output.Unit
	thresholdBytes    uint64
	timelinePath      string
	saveBaseline      string
	compareBaseline   string
	regressionPercent float64
	interval          time.Duration
	trackChildren     bool
	baselineDir       string
}

func parseOptions(cmd *cobra.Command) (*runOptions, error) {
	flags := cmd.Flags()
	opts := &runOptions{format: output.FormatHuman}

	if ok, _ := flags.GetBool("json"); ok {
		opts.format = output.FormatJSON
	}
	if ok, _ := flags.GetBool("csv"); ok {
		opts.format = output.FormatCSV
	}
	if ok, _ := flags.GetBool("quiet"); ok {
		opts.format = output.FormatQuiet
	}
	opts.verbose, _ = flags.GetBool("verbose")
	opts.watch, _ = flags.GetBool("watch")

	units, err := output.ParseUnit(globalConfig.Units)
	if err != nil {
		return nil, err
	}
	opts.units = units

	if raw, _ := flags.GetString("threshold"); raw != "" {
		size, err := output.ParseSize(raw)
		if err != nil {
			return nil, err
		}
		opts.thresholdBytes = size
	}

	opts.timelinePath, _ = flags.GetString("timeline")
	opts.saveBaseline, _ = flags.GetString("save-baseline")
	opts.compareBaseline, _ = flags.GetString("compare-baseline")
	opts.regressionPercent = globalConfig.RegressionThreshold
	opts.interval = time.Duration(globalConfig.IntervalMs) * time.Millisecond
	opts.trackChildren = !globalConfig.NoChildren

	opts.baselineDir = globalConfig.BaselineDir
	if flag, _ := flags.GetString("baseline-dir"); flag != "" {
		opts.baselineDir = flag
	}
	if opts.baselineDir == "" {
		opts.baselineDir = baseline.DefaultDir()
	}
	return opts, nil
}

func run(cmd *cobra.Command, args []string) error {
	baseline.Version = version

	opts, err := parseOptions(cmd)
	if err != nil {
		return err
	}

	store, err := baseline.NewStore(opts.baselineDir)
	if err != nil {
		return err
	}

	// Baseline-only operations run without a command.
	if ok, _ := cmd.Flags().GetBool("list-baselines"); ok {
		return listBaselines(cmd, store)
	}
	if name, _ := cmd.Flags().GetString("delete-baseline"); name != "" {
		if err := store.Delete(name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Baseline '%s' deleted.\n", name)
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("no command provided; usage: peak-mem [flags] -- command [args...]")
	}

	result, err := monitor(args, opts)
	if err != nil {
		return err
	}

	return handleResults(cmd, store, result, opts)
}

func listBaselines(cmd *cobra.Command, store *baseline.Store) error {
	names, err := store.List()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(names) == 0 {
		fmt.Fprintln(out, "No baselines found.")
		return nil
	}
	fmt.Fprintln(out, "Saved baselines:")
	for _, name := range names {
		fmt.Fprintf(out, "  %s\n", name)
	}
	return nil
}

// monitor spawns the command, samples it until exit, and assembles the
// final summary only after the sampler has fully stopped.
func monitor(args []string, opts *runOptions) (*types.MonitorResult, error) {
	r, err := runner.New(args)
	if err != nil {
		return nil, err
	}
	handle, err := r.Start()
	if err != nil {
		return nil, err
	}
	pid := handle.PID()

	pr, err := probe.New()
	if err != nil {
		return nil, err
	}
	tr := tracker.New(pr, pid, opts.trackChildren)

	start := time.Now()
	startTS := start.UTC()
	if err := tr.Start(opts.interval); err != nil {
		return nil, err
	}

	var code *int
	if opts.watch && term.IsTerminal(int(os.Stdout.Fd())) {
		code, err = watchWhileWaiting(handle, tr, r.CommandString(), opts)
	} else {
		if opts.watch {
			slog.Warn("watch mode needs a terminal, falling back to plain output")
		}
		code, err = handle.Wait()
	}
	if err != nil {
		tr.Stop()
		tr.Wait()
		return nil, err
	}

	tr.Stop()
	tr.Wait()

	result := &types.MonitorResult{
		Command:           r.CommandString(),
		PeakRSSBytes:      tr.PeakRSS(),
		PeakVSZBytes:      tr.PeakVSZ(),
		DurationMs:        uint64(time.Since(start).Milliseconds()),
		ExitCode:          code,
		ThresholdExceeded: opts.thresholdBytes > 0 && tr.PeakRSS() > opts.thresholdBytes,
		Timestamp:         time.Now().UTC(),
	}

	if opts.verbose && opts.trackChildren {
		tree, err := tr.PeakTree()
		if err != nil {
			slog.Warn("failed to get process tree", "error", err)
		} else {
			result.ProcessTree = tree
		}
	}
	if opts.timelinePath != "" {
		result.Timeline = tr.Timeline()
	}
	if opts.verbose {
		samples := tr.SampleCount()
		result.StartTime = &startTS
		result.SampleCount = &samples
		result.MainPID = &pid
	}
	return result, nil
}

// watchWhileWaiting runs the live display until the child exits. The
// display intercepts Ctrl+C and forwards it to the child; the watch
// only ends when the child does.
func watchWhileWaiting(handle *runner.Handle, tr *tracker.Tracker, command string, opts *runOptions) (*int, error) {
	displayProbe, err := probe.New()
	if err != nil {
		return nil, err
	}

	model := ui.New(displayProbe, tr, handle.PID(), command,
		opts.interval, opts.units, opts.thresholdBytes, handle.Interrupt)
	prog := tea.NewProgram(model, tea.WithOutput(os.Stderr))

	var code *int
	var waitErr error
	go func() {
		code, waitErr = handle.Wait()
		prog.Send(ui.DoneMsg{})
	}()

	if _, err := prog.Run(); err != nil {
		return nil, err
	}
	return code, waitErr
}

func handleResults(cmd *cobra.Command, store *baseline.Store, result *types.MonitorResult, opts *runOptions) error {
	if opts.timelinePath != "" {
		if err := saveTimeline(opts.timelinePath, result.Timeline); err != nil {
			slog.Warn("failed to save timeline", "path", opts.timelinePath, "error", err)
		}
	}

	if opts.saveBaseline != "" {
		path, err := store.Save(opts.saveBaseline, result)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Baseline '%s' saved to: %s\n", opts.saveBaseline, path)
	}

	formatter := output.NewFormatter(cmd.OutOrStdout(), opts.units)

	if opts.compareBaseline != "" {
		cmp, err := store.CompareNamed(opts.compareBaseline, result, opts.regressionPercent)
		if err != nil {
			return err
		}
		if err := formatter.Comparison(&cmp, opts.format); err != nil {
			return err
		}
		if cmp.RegressionDetected {
			exitCode = 1
		} else if result.ExitCode != nil {
			exitCode = *result.ExitCode
		}
		return nil
	}

	if err := formatter.Result(result, opts.format, opts.verbose); err != nil {
		return err
	}
	if result.ThresholdExceeded {
		exitCode = 1
	} else if result.ExitCode != nil {
		exitCode = *result.ExitCode
	}
	return nil
}

func saveTimeline(path string, timeline []types.MemoryUsage) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := output.WriteTimeline(f, timeline); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
