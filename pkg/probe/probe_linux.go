//go:build linux
// +build linux

package probe

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmitro/peak-mem/pkg/types"
)

// procReadFile allows tests to stub reading /proc entries.
var procReadFile = os.ReadFile

// procDir allows tests to point the /proc scan at a fixture tree.
var procDir = "/proc"

// procProbe reads memory usage straight out of /proc. It holds no
// state beyond the page size, which is fixed for the process lifetime.
type procProbe struct {
	pageSize uint64
}

// New returns the probe for the current platform.
func New() (Probe, error) {
	return &procProbe{pageSize: uint64(os.Getpagesize())}, nil
}

func (p *procProbe) Read(pid int32) (types.MemoryUsage, error) {
	if pid <= 0 {
		return types.MemoryUsage{}, fmt.Errorf("%w: invalid pid %d", ErrProcessNotFound, pid)
	}
	path := filepath.Join(procDir, strconv.Itoa(int(pid)), "statm")
	data, err := procReadFile(path)
	if err != nil {
		return types.MemoryUsage{}, mapProcError(pid, err)
	}
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return types.MemoryUsage{}, fmt.Errorf("%w: unexpected statm format for pid %d", ErrProbeFailure, pid)
	}
	vszPages, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return types.MemoryUsage{}, fmt.Errorf("%w: parsing statm size for pid %d: %v", ErrProbeFailure, pid, err)
	}
	rssPages, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return types.MemoryUsage{}, fmt.Errorf("%w: parsing statm resident for pid %d: %v", ErrProbeFailure, pid, err)
	}
	return types.MemoryUsage{
		RSSBytes:  rssPages * p.pageSize,
		VSZBytes:  vszPages * p.pageSize,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Children scans /proc for processes whose stat ppid matches pid. The
// scan tolerates entries that vanish between the readdir and the read.
func (p *procProbe) Children(pid int32) ([]int32, error) {
	entries, err := os.ReadDir(procDir)
	if err != nil {
		return nil, mapProcError(pid, err)
	}
	var children []int32
	for _, entry := range entries {
		candidate, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		ppid, ok := statPPID(int32(candidate))
		if ok && ppid == pid {
			children = append(children, int32(candidate))
		}
	}
	return children, nil
}

func (p *procProbe) Tree(pid int32) (*types.ProcessMemoryInfo, error) {
	return buildTree(p, commForPID, pid)
}

// statPPID extracts the parent pid from /proc/<pid>/stat. The comm
// field may contain spaces and parentheses, so parsing starts after
// the last ')'.
func statPPID(pid int32) (int32, bool) {
	data, err := procReadFile(filepath.Join(procDir, strconv.Itoa(int(pid)), "stat"))
	if err != nil {
		return 0, false
	}
	raw := string(data)
	end := strings.LastIndexByte(raw, ')')
	if end < 0 || end+2 >= len(raw) {
		return 0, false
	}
	fields := strings.Fields(raw[end+2:])
	// After comm: state, ppid, ...
	if len(fields) < 2 {
		return 0, false
	}
	ppid, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(ppid), true
}

func commForPID(pid int32) string {
	data, err := procReadFile(filepath.Join(procDir, strconv.Itoa(int(pid)), "comm"))
	if err != nil {
		return fmt.Sprintf("pid:%d", pid)
	}
	comm := strings.TrimSpace(string(data))
	if comm == "" {
		return fmt.Sprintf("pid:%d", pid)
	}
	return comm
}

func mapProcError(pid int32, err error) error {
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("%w: pid %d", ErrProcessNotFound, pid)
	case os.IsPermission(err):
		return fmt.Errorf("%w: pid %d", ErrPermissionDenied, pid)
	default:
		return fmt.Errorf("%w: pid %d: %v", ErrProbeFailure, pid, err)
	}
}
