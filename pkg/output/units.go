package output

import (
	"fmt"
	"strconv"
	"strings"
)

// Unit forces a specific memory unit in human-readable output. The
// zero value picks a unit automatically.
type Unit int

const (
	UnitAuto Unit = iota
	UnitBytes
	UnitKilobytes
	UnitMegabytes
	UnitGigabytes
	UnitKibibytes
	UnitMebibytes
	UnitGibibytes
)

// ParseUnit maps the --units flag spelling to a Unit.
func ParseUnit(s string) (Unit, error) {
	switch s {
	case "", "auto":
		return UnitAuto, nil
	case "B":
		return UnitBytes, nil
	case "KB":
		return UnitKilobytes, nil
	case "MB":
		return UnitMegabytes, nil
	case "GB":
		return UnitGigabytes, nil
	case "KiB":
		return UnitKibibytes, nil
	case "MiB":
		return UnitMebibytes, nil
	case "GiB":
		return UnitGibibytes, nil
	default:
		return UnitAuto, fmt.Errorf("invalid unit %q: use one of B, KB, MB, GB, KiB, MiB, GiB", s)
	}
}

// Format renders bytes in this unit.
func (u Unit) Format(bytes uint64) string {
	switch u {
	case UnitBytes:
		return fmt.Sprintf("%d B", bytes)
	case UnitKilobytes:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1e3)
	case UnitMegabytes:
		return fmt.Sprintf("%.1f MB", float64(bytes)/1e6)
	case UnitGigabytes:
		return fmt.Sprintf("%.1f GB", float64(bytes)/1e9)
	case UnitKibibytes:
		return fmt.Sprintf("%.1f KiB", float64(bytes)/(1<<10))
	case UnitMebibytes:
		return fmt.Sprintf("%.1f MiB", float64(bytes)/(1<<20))
	case UnitGibibytes:
		return fmt.Sprintf("%.1f GiB", float64(bytes)/(1<<30))
	default:
		return FormatBytes(bytes)
	}
}

// FormatBytes renders bytes with an automatically chosen decimal unit.
func FormatBytes(bytes uint64) string {
	switch {
	case bytes >= 1e9:
		return fmt.Sprintf("%.1f GB", float64(bytes)/1e9)
	case bytes >= 1e6:
		return fmt.Sprintf("%.1f MB", float64(bytes)/1e6)
	case bytes >= 1e3:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1e3)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// ParseSize parses a human size such as 512M, 1G, 1.5GB, 100KiB, or a
// bare byte count.
func ParseSize(s string) (uint64, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, fmt.Errorf("empty size")
	}

	split := len(raw)
	for i, r := range raw {
		if (r < '0' || r > '9') && r != '.' {
			split = i
			break
		}
	}
	numPart := raw[:split]
	suffix := strings.TrimSpace(raw[split:])

	value, err := strconv.ParseFloat(numPart, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid size %q: use formats like 512M, 1G, 1.5GB", s)
	}

	var multiplier float64
	switch strings.ToUpper(suffix) {
	case "", "B":
		multiplier = 1
	case "K", "KB":
		multiplier = 1e3
	case "M", "MB":
		multiplier = 1e6
	case "G", "GB":
		multiplier = 1e9
	case "KIB":
		multiplier = 1 << 10
	case "MIB":
		multiplier = 1 << 20
	case "GIB":
		multiplier = 1 << 30
	default:
		return 0, fmt.Errorf("invalid size %q: use formats like 512M, 1G, 1.5GB", s)
	}

	return uint64(value * multiplier), nil
}
