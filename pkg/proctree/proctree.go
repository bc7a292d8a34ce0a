// Package proctree provides pure aggregation over process-memory trees.
package proctree

import "github.com/charmitro/peak-mem/pkg/types"

// Sum adds up RSS and VSZ across every node of the tree. Shared pages
// mapped into multiple processes are counted once per process; the total
// is a deliberate over-approximation.
func Sum(tree *types.ProcessMemoryInfo) (rss, vsz uint64) {
	if tree == nil {
		return 0, 0
	}
	rss = tree.Memory.RSSBytes
	vsz = tree.Memory.VSZBytes
	for i := range tree.Children {
		childRSS, childVSZ := Sum(&tree.Children[i])
		rss += childRSS
		vsz += childVSZ
	}
	return rss, vsz
}

// Clone returns a deep copy with full ownership, so a retained snapshot
// is independent of any later mutation of the source.
func Clone(tree *types.ProcessMemoryInfo) *types.ProcessMemoryInfo {
	if tree == nil {
		return nil
	}
	out := &types.ProcessMemoryInfo{
		PID:    tree.PID,
		Name:   tree.Name,
		Memory: tree.Memory,
	}
	if len(tree.Children) > 0 {
		out.Children = make([]types.ProcessMemoryInfo, len(tree.Children))
		for i := range tree.Children {
			out.Children[i] = *Clone(&tree.Children[i])
		}
	}
	return out
}

// Count returns the number of processes in the tree.
func Count(tree *types.ProcessMemoryInfo) int {
	if tree == nil {
		return 0
	}
	n := 1
	for i := range tree.Children {
		n += Count(&tree.Children[i])
	}
	return n
}
