//go:build !linux
// +build !linux

package probe

// New returns the probe for the current platform. Outside linux the
// gopsutil-backed probe covers every supported OS.
func New() (Probe, error) {
	return NewPortable(), nil
}
