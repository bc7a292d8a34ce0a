// Package ui renders the live watch view while a monitored command
// runs. It reads the tracker's lock-free peak getters and takes its
// own current-usage readings; it never mutates tracker state.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/charmitro/peak-mem/pkg/output"
	"github.com/charmitro/peak-mem/pkg/probe"
	"github.com/charmitro/peak-mem/pkg/tracker"
	"github.com/charmitro/peak-mem/pkg/types"
)

var (
	styleTitle = lipgloss.NewStyle().Bold(true)
	styleLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	stylePeak  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00")).Bold(true)
	styleFaint = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C"))
	styleOver  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
)

type tickMsg time.Time

// DoneMsg ends the watch view once the monitored command has exited.
type DoneMsg struct{}

// Model is the bubbletea model for the live display.
type Model struct {
	pr       probe.Probe
	tr       *tracker.Tracker
	pid      int32
	command  string
	interval time.Duration
	units    output.Unit

	// threshold of 0 means no threshold bar.
	threshold uint64

	// onInterrupt forwards Ctrl+C to the child; the view itself stays
	// up until the child exits.
	onInterrupt func()

	spin     spinner.Model
	bar      progress.Model
	current  types.MemoryUsage
	lost     bool
	start    time.Time
	finished bool
}

// New builds the watch model. pr must be a probe dedicated to the
// display; the tracker's own probe stays behind the tracker's lock.
func New(pr probe.Probe, tr *tracker.Tracker, pid int32, command string, interval time.Duration, units output.Unit, threshold uint64, onInterrupt func()) Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	return Model{
		pr:          pr,
		tr:          tr,
		pid:         pid,
		command:     command,
		interval:    interval,
		units:       units,
		threshold:   threshold,
		onInterrupt: onInterrupt,
		spin:        sp,
		bar:         progress.New(progress.WithDefaultGradient()),
		start:       time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if usage, err := m.pr.Read(m.pid); err == nil {
			m.current = usage
			m.lost = false
		} else {
			// Process likely gone; keep showing peaks until DoneMsg.
			m.lost = true
		}
		return m, m.tick()

	case DoneMsg:
		m.finished = true
		return m, tea.Quit

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && m.onInterrupt != nil {
			m.onInterrupt()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	if m.finished {
		return ""
	}

	var b strings.Builder
	b.WriteString(styleTitle.Render("peak-mem"))
	b.WriteString(styleFaint.Render(fmt.Sprintf("  %s %s", m.spin.View(), m.command)))
	b.WriteString("\n\n")

	peakRSS := m.tr.PeakRSS()
	peakVSZ := m.tr.PeakVSZ()

	currentRSS := m.units.Format(m.current.RSSBytes)
	currentVSZ := m.units.Format(m.current.VSZBytes)
	if m.lost {
		currentRSS, currentVSZ = "-", "-"
	}

	fmt.Fprintf(&b, "%s %s   %s %s\n",
		styleLabel.Render("Current RSS:"), currentRSS,
		styleLabel.Render("Peak RSS:"), stylePeak.Render(m.units.Format(peakRSS)))
	fmt.Fprintf(&b, "%s %s   %s %s\n",
		styleLabel.Render("Current VSZ:"), currentVSZ,
		styleLabel.Render("Peak VSZ:"), stylePeak.Render(m.units.Format(peakVSZ)))

	if m.threshold > 0 {
		ratio := float64(peakRSS) / float64(m.threshold)
		b.WriteString("\n")
		b.WriteString(styleLabel.Render("Threshold: "))
		if ratio > 1 {
			b.WriteString(styleOver.Render(fmt.Sprintf("%s over %s",
				m.units.Format(peakRSS), m.units.Format(m.threshold))))
		} else {
			b.WriteString(m.bar.ViewAs(ratio))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n%s\n", styleFaint.Render(fmt.Sprintf(
		"samples: %d   elapsed: %s   Ctrl+C stops the command",
		m.tr.SampleCount(), time.Since(m.start).Round(time.Second))))
	return b.String()
}
