//go:build windows
// +build windows

package runner

import "os"

// Windows consoles deliver Ctrl+C to every process in the console
// group, so there is nothing to forward.
func forwardedSignals() []os.Signal {
	return nil
}

func (h *Handle) forward(os.Signal) {}
