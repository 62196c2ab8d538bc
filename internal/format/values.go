package format

import (
	"fmt"
	"strconv"
)

// Tenths renders a value stored in tenths (e.g. percent x 10) as "12.3".
func Tenths(v int64) string {
	return fixed(v, 10, 1)
}

// Hundredths renders a value stored in hundredths (e.g. load x 100) as "1.25".
func Hundredths(v int64) string {
	return fixed(v, 100, 2)
}

func fixed(v, scale int64, digits int) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%0*d", sign, v/scale, digits, v%scale)
}

// Bytes renders a byte count with binary units: "512B", "1.5KiB", "3.2GiB".
func Bytes(n int64) string {
	const unit = 1024
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	if n < unit {
		return sign + strconv.FormatInt(n, 10) + "B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 5; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%s%.1f%ciB", sign, float64(n)/float64(div), "KMGTPE"[exp])
}

// BytesRate renders a bytes-per-second value: "1.5KiB/s".
func BytesRate(n int64) string {
	return Bytes(n) + "/s"
}

// Int renders a plain integer with thousands separators: "1,234,567".
func Int(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := v < 0
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}
	out := make([]byte, 0, len(s)+len(s)/3+1)
	if neg {
		out = append(out, '-')
	}
	pre := len(s) % 3
	if pre > 0 {
		out = append(out, s[:pre]...)
	}
	for i := pre; i < len(s); i += 3 {
		if len(out) > 0 && out[len(out)-1] != '-' {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}
