//go:build unix
// +build unix

package runner

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func forwardedSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}

// forward relays a termination signal to the child so it can shut down
// on its own terms before the monitor exits.
func (h *Handle) forward(sig os.Signal) {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return
	}
	_ = unix.Kill(h.cmd.Process.Pid, s)
}
