package ui

import (
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charmitro/peak-mem/pkg/output"
	"github.com/charmitro/peak-mem/pkg/probe"
	"github.com/charmitro/peak-mem/pkg/tracker"
	"github.com/charmitro/peak-mem/pkg/types"
)

type stubProbe struct {
	mu    sync.Mutex
	rss   uint64
	fail  bool
	reads int
}

func (s *stubProbe) Read(pid int32) (types.MemoryUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.fail {
		return types.MemoryUsage{}, probe.ErrProcessNotFound
	}
	return types.MemoryUsage{RSSBytes: s.rss, VSZBytes: s.rss * 2, Timestamp: time.Now()}, nil
}

func (s *stubProbe) Children(pid int32) ([]int32, error) { return nil, nil }

func (s *stubProbe) Tree(pid int32) (*types.ProcessMemoryInfo, error) {
	return nil, probe.ErrProcessNotFound
}

func newTestModel(t *testing.T, sp *stubProbe, threshold uint64) Model {
	t.Helper()
	tr := tracker.New(sp, 1, false)
	return New(sp, tr, 1, "sleep 5", 50*time.Millisecond, output.UnitAuto, threshold, nil)
}

func TestTickUpdatesCurrentUsage(t *testing.T) {
	sp := &stubProbe{rss: 1_000_000}
	m := newTestModel(t, sp, 0)

	updated, cmd := m.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd)

	view := updated.(Model).View()
	assert.Contains(t, view, "1.0 MB")
	assert.Contains(t, view, "sleep 5")
}

func TestTickKeepsGoingWhenProcessVanishes(t *testing.T) {
	sp := &stubProbe{fail: true}
	m := newTestModel(t, sp, 0)

	updated, cmd := m.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd)

	view := updated.(Model).View()
	assert.Contains(t, view, "Current RSS:")
	assert.Contains(t, view, "-")
}

func TestDoneQuitsAndBlanksView(t *testing.T) {
	sp := &stubProbe{rss: 10}
	m := newTestModel(t, sp, 0)

	updated, cmd := m.Update(DoneMsg{})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, updated.(Model).View())
}

func TestCtrlCForwardsInterrupt(t *testing.T) {
	sp := &stubProbe{rss: 10}
	tr := tracker.New(sp, 1, false)

	interrupted := false
	m := New(sp, tr, 1, "sleep 5", time.Millisecond, output.UnitAuto, 0, func() { interrupted = true })

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	// The view must not quit; it stays up until the child exits.
	assert.Nil(t, cmd)
	assert.True(t, interrupted)
}

func TestThresholdBarSwitchesToOverflowText(t *testing.T) {
	sp := &stubProbe{rss: 100}
	tr := tracker.New(sp, 1, false)
	require.NoError(t, tr.Start(time.Hour))
	tr.Stop()

	m := New(sp, tr, 1, "cmd", time.Millisecond, output.UnitAuto, 50, nil)
	view := m.View()
	assert.Contains(t, view, "over")
}
