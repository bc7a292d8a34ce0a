//go:build linux

package probe

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func writeProcFixture(t *testing.T, dir string, pid int, comm string, ppid int, statm string) {
	t.Helper()
	pidDir := filepath.Join(dir, strconv.Itoa(pid))
	if err := os.MkdirAll(pidDir, 0o755); err != nil {
		t.Fatalf("mkdir fixture: %v", err)
	}
	stat := strconv.Itoa(pid) + " (" + comm + ") S " + strconv.Itoa(ppid) + " 1 1 0 -1 0 0 0 0 0 0 0"
	for name, content := range map[string]string{
		"comm":  comm + "\n",
		"stat":  stat,
		"statm": statm,
	} {
		if err := os.WriteFile(filepath.Join(pidDir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write fixture %s: %v", name, err)
		}
	}
}

func withProcFixture(t *testing.T, dir string) {
	t.Helper()
	t.Cleanup(func() {
		procDir = "/proc"
		procReadFile = os.ReadFile
	})
	procDir = dir
	procReadFile = os.ReadFile
}

func TestProcProbeReadSelf(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	usage, err := p.Read(int32(os.Getpid()))
	if err != nil {
		t.Fatalf("Read self: %v", err)
	}
	if usage.RSSBytes == 0 {
		t.Fatal("expected nonzero RSS for self")
	}
	if usage.VSZBytes < usage.RSSBytes {
		t.Fatalf("VSZ %d smaller than RSS %d", usage.VSZBytes, usage.RSSBytes)
	}
	if usage.Timestamp.IsZero() {
		t.Fatal("expected a timestamp")
	}
}

func TestProcProbeReadMissingPID(t *testing.T) {
	dir := t.TempDir()
	withProcFixture(t, dir)

	p := &procProbe{pageSize: 4096}
	if _, err := p.Read(424242); !errors.Is(err, ErrProcessNotFound) {
		t.Fatalf("expected ErrProcessNotFound, got %v", err)
	}
}

func TestProcProbeReadMalformedStatm(t *testing.T) {
	dir := t.TempDir()
	withProcFixture(t, dir)
	writeProcFixture(t, dir, 10, "broken", 1, "only-one-field")

	p := &procProbe{pageSize: 4096}
	if _, err := p.Read(10); !errors.Is(err, ErrProbeFailure) {
		t.Fatalf("expected ErrProbeFailure, got %v", err)
	}
}

func TestProcProbeReadScalesPages(t *testing.T) {
	dir := t.TempDir()
	withProcFixture(t, dir)
	writeProcFixture(t, dir, 11, "scaled", 1, "20 5 0 0 0 0 0")

	p := &procProbe{pageSize: 4096}
	usage, err := p.Read(11)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if usage.VSZBytes != 20*4096 {
		t.Fatalf("unexpected VSZ: %d", usage.VSZBytes)
	}
	if usage.RSSBytes != 5*4096 {
		t.Fatalf("unexpected RSS: %d", usage.RSSBytes)
	}
}

func TestProcProbeChildrenAndTree(t *testing.T) {
	dir := t.TempDir()
	withProcFixture(t, dir)
	writeProcFixture(t, dir, 100, "parent", 1, "100 50 0 0 0 0 0")
	writeProcFixture(t, dir, 101, "child a", 100, "10 5 0 0 0 0 0")
	writeProcFixture(t, dir, 102, "childb", 100, "20 8 0 0 0 0 0")
	writeProcFixture(t, dir, 103, "grandchild", 101, "4 2 0 0 0 0 0")
	writeProcFixture(t, dir, 200, "unrelated", 1, "1 1 0 0 0 0 0")

	p := &procProbe{pageSize: 4096}

	children, err := p.Children(100)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %v", children)
	}

	leaf, err := p.Children(200)
	if err != nil {
		t.Fatalf("Children leaf: %v", err)
	}
	if len(leaf) != 0 {
		t.Fatalf("leaf should have no children, got %v", leaf)
	}

	tree, err := p.Tree(100)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if tree.PID != 100 || tree.Name != "parent" {
		t.Fatalf("unexpected root: %+v", tree)
	}
	if len(tree.Children) != 2 {
		t.Fatalf("expected 2 subtrees, got %d", len(tree.Children))
	}
	total := 1
	for _, c := range tree.Children {
		total += 1 + len(c.Children)
	}
	if total != 4 {
		t.Fatalf("expected 4 nodes in tree, got %d", total)
	}
}

func TestProcProbeTreeDropsVanishedChildren(t *testing.T) {
	dir := t.TempDir()
	withProcFixture(t, dir)
	writeProcFixture(t, dir, 100, "parent", 1, "100 50 0 0 0 0 0")
	writeProcFixture(t, dir, 101, "ghost", 100, "10 5 0 0 0 0 0")

	// The child's stat is visible during the scan but its statm read
	// fails, as happens when a process exits mid-walk.
	procReadFile = func(path string) ([]byte, error) {
		if strings.Contains(path, "/101/statm") {
			return nil, os.ErrNotExist
		}
		return os.ReadFile(path)
	}

	p := &procProbe{pageSize: 4096}
	tree, err := p.Tree(100)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if len(tree.Children) != 0 {
		t.Fatalf("vanished child should be dropped, got %+v", tree.Children)
	}
}

func TestStatPPIDParsesCommWithSpaces(t *testing.T) {
	dir := t.TempDir()
	withProcFixture(t, dir)
	writeProcFixture(t, dir, 300, "tricky (name) here", 42, "1 1 0 0 0 0 0")

	ppid, ok := statPPID(300)
	if !ok {
		t.Fatal("expected ppid parse to succeed")
	}
	if ppid != 42 {
		t.Fatalf("expected ppid 42, got %d", ppid)
	}
}
