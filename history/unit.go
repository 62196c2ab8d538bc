package history

import (
	"fmt"

	"gitlab.com/tinyland/lab/loadgraph/internal/format"
)

// Unit describes how a series' integer values are scaled. Collectors store
// fixed-point integers so interpolation never rounds through floats twice.
type Unit int

const (
	// UnitRaw values are plain integers.
	UnitRaw Unit = iota
	// UnitPercentTenths values are percentages multiplied by 10.
	UnitPercentTenths
	// UnitHundredths values are ratios multiplied by 100 (load averages).
	UnitHundredths
	// UnitBytesPerSecond values are throughput in bytes per second.
	UnitBytesPerSecond
)

var unitNames = map[Unit]string{
	UnitRaw:            "raw",
	UnitPercentTenths:  "percent",
	UnitHundredths:     "hundredths",
	UnitBytesPerSecond: "bytes_per_second",
}

// String returns the unit's config and JSON name.
func (u Unit) String() string {
	if s, ok := unitNames[u]; ok {
		return s
	}
	return fmt.Sprintf("unit(%d)", int(u))
}

// MarshalText implements encoding.TextMarshaler.
func (u Unit) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *Unit) UnmarshalText(b []byte) error {
	for k, v := range unitNames {
		if v == string(b) {
			*u = k
			return nil
		}
	}
	return fmt.Errorf("unknown unit %q", string(b))
}

// Format renders v for display.
func (u Unit) Format(v int64) string {
	switch u {
	case UnitPercentTenths:
		return format.Tenths(v) + "%"
	case UnitHundredths:
		return format.Hundredths(v)
	case UnitBytesPerSecond:
		return format.BytesRate(v)
	default:
		return format.Int(v)
	}
}

// Float converts v to its natural floating point value.
func (u Unit) Float(v int64) float64 {
	switch u {
	case UnitPercentTenths:
		return float64(v) / 10
	case UnitHundredths:
		return float64(v) / 100
	default:
		return float64(v)
	}
}

// Ceiling is the natural full-scale value for bounded units, used to pin
// graph axes. Unbounded units return 0.
func (u Unit) Ceiling() int64 {
	if u == UnitPercentTenths {
		return 1000
	}
	return 0
}
