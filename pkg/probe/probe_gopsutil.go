package probe

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/charmitro/peak-mem/pkg/types"
)

// psProbe answers the probe contract through gopsutil, which covers
// darwin, windows, and the BSDs with one code path. It is also the
// fallback used by tests that need a probe without touching /proc
// fixtures.
type psProbe struct{}

// NewPortable returns the gopsutil-backed probe regardless of platform.
func NewPortable() Probe {
	return &psProbe{}
}

func (p *psProbe) Read(pid int32) (types.MemoryUsage, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return types.MemoryUsage{}, mapPsError(pid, err)
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return types.MemoryUsage{}, mapPsError(pid, err)
	}
	if mem == nil {
		return types.MemoryUsage{}, fmt.Errorf("%w: no memory info for pid %d", ErrProbeFailure, pid)
	}
	return types.MemoryUsage{
		RSSBytes:  mem.RSS,
		VSZBytes:  mem.VMS,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (p *psProbe) Children(pid int32) ([]int32, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, mapPsError(pid, err)
	}
	procs, err := proc.Children()
	if err != nil {
		// gopsutil reports a childless process as an error; the
		// contract treats it as a leaf.
		if errors.Is(err, process.ErrorNoChildren) {
			return nil, nil
		}
		return nil, mapPsError(pid, err)
	}
	pids := make([]int32, 0, len(procs))
	for _, child := range procs {
		pids = append(pids, child.Pid)
	}
	return pids, nil
}

func (p *psProbe) Tree(pid int32) (*types.ProcessMemoryInfo, error) {
	return buildTree(p, psName, pid)
}

func psName(pid int32) string {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return fmt.Sprintf("pid:%d", pid)
	}
	name, err := proc.Name()
	if err != nil || name == "" {
		return fmt.Sprintf("pid:%d", pid)
	}
	return name
}

func mapPsError(pid int32, err error) error {
	switch {
	case errors.Is(err, process.ErrorProcessNotRunning):
		return fmt.Errorf("%w: pid %d", ErrProcessNotFound, pid)
	case os.IsPermission(err):
		return fmt.Errorf("%w: pid %d", ErrPermissionDenied, pid)
	default:
		return fmt.Errorf("%w: pid %d: %v", ErrProbeFailure, pid, err)
	}
}
