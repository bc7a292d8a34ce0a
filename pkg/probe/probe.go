// Package probe reads point-in-time memory usage and process-tree
// topology from the operating system. One implementation exists per
// target platform; all of them answer the same contract.
package probe

import (
	"errors"

	"github.com/charmitro/peak-mem/pkg/types"
)

var (
	// ErrProcessNotFound means the pid no longer exists.
	ErrProcessNotFound = errors.New("process not found")
	// ErrPermissionDenied means the OS refused access to the process.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrProbeFailure covers malformed or unexpected OS data.
	ErrProbeFailure = errors.New("probe failure")
)

// Probe answers read-only memory queries about live processes.
// Implementations may hold non-thread-safe OS handles; callers that
// share a Probe across goroutines must serialize access themselves.
type Probe interface {
	// Read returns the current memory usage of a single process.
	Read(pid int32) (types.MemoryUsage, error)
	// Children returns the direct child pids. An empty slice is a
	// valid answer for a leaf process, not an error.
	Children(pid int32) ([]int32, error)
	// Tree builds a memory-annotated snapshot of the process tree
	// rooted at pid. The walk races against process churn, so
	// children that exit or error mid-traversal are dropped from the
	// result instead of failing the call.
	Tree(pid int32) (*types.ProcessMemoryInfo, error)
}

// buildTree composes Read and Children recursively. Only a failure on
// the root itself is an error; vanished descendants are skipped.
func buildTree(p Probe, name func(int32) string, pid int32) (*types.ProcessMemoryInfo, error) {
	usage, err := p.Read(pid)
	if err != nil {
		return nil, err
	}
	info := &types.ProcessMemoryInfo{
		PID:    pid,
		Name:   name(pid),
		Memory: usage,
	}
	children, err := p.Children(pid)
	if err != nil {
		return info, nil
	}
	for _, child := range children {
		childInfo, err := buildTree(p, name, child)
		if err != nil {
			continue
		}
		info.Children = append(info.Children, *childInfo)
	}
	return info, nil
}
