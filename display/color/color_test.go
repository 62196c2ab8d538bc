package color

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestShouldDisableColor_NOCOLORSet(t *testing.T) {
	// Any value, including empty, disables color.
	for _, val := range []string{"", "1", "true", "anything"} {
		t.Setenv("NO_COLOR", val)
		if !ShouldDisableColor() {
			t.Errorf("ShouldDisableColor() = false with NO_COLOR=%q, want true", val)
		}
	}
}

func TestApply_NOCOLORSet(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if Apply() {
		t.Error("Apply() should return false when NO_COLOR is set")
	}
}

func TestForceDisable(t *testing.T) {
	ForceDisable()
	out := lipgloss.NewStyle().Foreground(Danger).Render("x")
	if out != "x" {
		t.Errorf("expected plain output after ForceDisable, got %q", out)
	}
}

func TestStripANSI(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text unchanged", "hello world", "hello world"},
		{"strips color codes", "\x1b[31mred text\x1b[0m", "red text"},
		{"strips multiple sequences", "\x1b[1;31;40mstyle\x1b[0m gap \x1b[32mgreen\x1b[0m", "style gap green"},
		{"empty string", "", ""},
		{"cursor control stripped", "\x1b[?25h", ""},
		{"preserves graph blocks", "\x1b[36m▁▂▃▄▅▆▇█\x1b[0m", "▁▂▃▄▅▆▇█"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripANSI(tt.input)
			if got != tt.want {
				t.Errorf("StripANSI(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if strings.Contains(got, "\x1b") {
				t.Errorf("StripANSI(%q) still contains ESC", tt.input)
			}
		})
	}
}

func TestSeries_FixedAndStable(t *testing.T) {
	if Series("cpu") != lipgloss.Color("#22C55E") {
		t.Errorf("expected cpu to be green, got %s", Series("cpu"))
	}
	if Series("load1") != Series("load15") {
		t.Error("expected load averages to share a color")
	}
	if Series("custom_metric") != Series("custom_metric") {
		t.Error("expected hashed color to be stable")
	}
	found := false
	for _, c := range palette {
		if c == Series("custom_metric") {
			found = true
		}
	}
	if !found {
		t.Error("expected hashed color to come from the palette")
	}
}

func TestRGBA(t *testing.T) {
	c := RGBA(lipgloss.Color("#3B82F6"))
	if c.R != 0x3b || c.G != 0x82 || c.B != 0xf6 || c.A != 0xff {
		t.Errorf("unexpected conversion %+v", c)
	}
	w := RGBA(lipgloss.Color("212"))
	if w.R != 0xff || w.G != 0xff || w.B != 0xff {
		t.Errorf("expected white fallback, got %+v", w)
	}
}

func TestThreshold(t *testing.T) {
	tests := []struct {
		ratio float64
		want  lipgloss.Color
	}{
		{0, Success},
		{0.69, Success},
		{0.7, Warning},
		{0.95, Danger},
	}
	for _, tt := range tests {
		if got := Threshold(tt.ratio); got != tt.want {
			t.Errorf("Threshold(%v) = %s, want %s", tt.ratio, got, tt.want)
		}
	}
}
