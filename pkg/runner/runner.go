// Package runner spawns the monitored command and waits for it,
// forwarding termination signals so Ctrl+C reaches the child first.
package runner

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
)

// ErrEmptyCommand is returned when no command was given to run.
var ErrEmptyCommand = errors.New("no command provided")

// Runner holds the argv of the command to monitor.
type Runner struct {
	argv []string
}

// New validates the argv.
func New(argv []string) (*Runner, error) {
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}
	return &Runner{argv: argv}, nil
}

// CommandString returns the argv joined for display and persistence.
func (r *Runner) CommandString() string {
	return strings.Join(r.argv, " ")
}

// Start spawns the command with inherited stdio and returns a handle
// for waiting on it. The tracker only ever needs the pid.
func (r *Runner) Start() (*Handle, error) {
	cmd := exec.Command(r.argv[0], r.argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawning %q: %w", r.argv[0], err)
	}
	return &Handle{cmd: cmd}, nil
}

// Handle is a spawned process being monitored.
type Handle struct {
	cmd *exec.Cmd
}

// PID returns the child's process id.
func (h *Handle) PID() int32 {
	return int32(h.cmd.Process.Pid)
}

// Wait blocks until the child exits, forwarding SIGINT/SIGTERM to it
// in the meantime. The returned pointer is nil when the child was
// terminated by a signal and has no exit code.
func (h *Handle) Wait() (*int, error) {
	sigCh := make(chan os.Signal, 1)
	if sigs := forwardedSignals(); len(sigs) > 0 {
		signal.Notify(sigCh, sigs...)
		defer signal.Stop(sigCh)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- h.cmd.Wait() }()

	for {
		select {
		case sig := <-sigCh:
			h.forward(sig)
		case err := <-waitCh:
			return h.exitCode(err)
		}
	}
}

// Interrupt asks the child to stop, as if Ctrl+C reached it. Used by
// the live display, which owns the terminal and swallows the real one.
func (h *Handle) Interrupt() {
	h.forward(os.Interrupt)
}

func (h *Handle) exitCode(waitErr error) (*int, error) {
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		code := h.cmd.ProcessState.ExitCode()
		return &code, nil
	case errors.As(waitErr, &exitErr):
		code := exitErr.ExitCode()
		if code < 0 {
			// Signal-terminated, no exit code to report.
			return nil, nil
		}
		return &code, nil
	default:
		return nil, fmt.Errorf("waiting for process: %w", waitErr)
	}
}
