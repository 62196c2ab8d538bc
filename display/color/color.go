// Package color provides color profile detection and the series palette for
// loadgraph.
//
// It implements the NO_COLOR specification (https://no-color.org/) and
// automatic pipe/redirect detection. When color is disabled, lipgloss is
// set to the Ascii profile so all styled renders produce plain text.
package color

import (
	"fmt"
	"hash/fnv"
	imgcolor "image/color"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// ShouldDisableColor returns true if color output should be suppressed.
// This happens when:
//   - The NO_COLOR environment variable is set (any value, per https://no-color.org/)
//   - stdout is not a terminal (pipe or redirect)
func ShouldDisableColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return true
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return true
	}
	return false
}

// Apply configures the global lipgloss renderer based on ShouldDisableColor.
// Returns true if color is enabled.
func Apply() bool {
	if ShouldDisableColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
		return false
	}
	return true
}

// ForceDisable sets the lipgloss color profile to Ascii, unconditionally
// disabling all color output. This is useful for tests.
func ForceDisable() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// StripANSI removes all ANSI escape sequences from a string.
func StripANSI(s string) string {
	var result []byte
	inEscape := false
	for i := 0; i < len(s); i++ {
		if inEscape {
			if (s[i] >= 'a' && s[i] <= 'z') || (s[i] >= 'A' && s[i] <= 'Z') || s[i] == '~' {
				inEscape = false
			}
			continue
		}
		if s[i] == '\x1b' {
			inEscape = true
			continue
		}
		result = append(result, s[i])
	}
	return string(result)
}

// Shared UI colors.
const (
	Primary = lipgloss.Color("#7C3AED")
	Accent  = lipgloss.Color("#06B6D4")
	Success = lipgloss.Color("#22C55E")
	Warning = lipgloss.Color("#EAB308")
	Danger  = lipgloss.Color("#EF4444")
	Muted   = lipgloss.Color("#6B7280")
	Grid    = lipgloss.Color("#374151")
)

// palette holds graph colors. Well-known series get a fixed entry so CPU is
// always the same hue; anything else is hashed into the palette.
var palette = []lipgloss.Color{
	"#22C55E", // green
	"#3B82F6", // blue
	"#F59E0B", // amber
	"#A855F7", // purple
	"#06B6D4", // cyan
	"#EC4899", // pink
	"#84CC16", // lime
	"#F97316", // orange
	"#14B8A6", // teal
}

var fixed = map[string]int{
	"cpu":    0,
	"ram":    1,
	"swap":   2,
	"disk":   3,
	"load1":  4,
	"load5":  4,
	"load15": 4,
	"net_rx": 5,
	"net_tx": 6,
}

// Series returns the graph color for a series name.
func Series(name string) lipgloss.Color {
	if i, ok := fixed[name]; ok {
		return palette[i]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return palette[h.Sum32()%uint32(len(palette))]
}

// RGBA converts a "#RRGGBB" lipgloss color to an image color. Malformed
// values come back as opaque white.
func RGBA(c lipgloss.Color) imgcolor.NRGBA {
	var r, g, b uint8
	if _, err := fmt.Sscanf(string(c), "#%02x%02x%02x", &r, &g, &b); err != nil {
		return imgcolor.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	}
	return imgcolor.NRGBA{R: r, G: g, B: b, A: 0xff}
}

// Threshold picks Success, Warning or Danger for a fill ratio in [0,1].
func Threshold(ratio float64) lipgloss.Color {
	switch {
	case ratio >= 0.9:
		return Danger
	case ratio >= 0.7:
		return Warning
	default:
		return Success
	}
}
