package layout

import "testing"

func TestDetectTerminalSize_EnvFallback(t *testing.T) {
	t.Setenv("COLUMNS", "132")
	t.Setenv("LINES", "50")

	w, h := DetectTerminalSize()
	// Under a real TTY the terminal wins; otherwise the env vars apply.
	if w <= 0 || h <= 0 {
		t.Fatalf("expected positive size, got %dx%d", w, h)
	}
}

func TestDetectTerminalSize_BadEnv(t *testing.T) {
	t.Setenv("COLUMNS", "wide")
	t.Setenv("LINES", "-3")

	w, h := DetectTerminalSize()
	if w <= 0 || h <= 0 {
		t.Errorf("expected defaults for bad env, got %dx%d", w, h)
	}
}

func TestDetectMode(t *testing.T) {
	tests := []struct {
		width int
		want  Mode
	}{
		{40, Compact},
		{59, Compact},
		{60, Normal},
		{200, Normal},
	}
	for _, tt := range tests {
		if got := DetectMode(tt.width); got != tt.want {
			t.Errorf("DetectMode(%d) = %s, want %s", tt.width, got, tt.want)
		}
	}
}

func TestGraphColumns(t *testing.T) {
	tests := []struct {
		width int
		want  int
	}{
		{80, 54},
		{120, 94},
		{50, 46},
		{12, 10},
	}
	for _, tt := range tests {
		if got := GraphColumns(tt.width); got != tt.want {
			t.Errorf("GraphColumns(%d) = %d, want %d", tt.width, got, tt.want)
		}
	}
}

func TestVisiblePanels(t *testing.T) {
	// 24 rows, 4 rows header/footer, panels of 6 rows.
	if got := VisiblePanels(80, 24, 4, 9); got != 3 {
		t.Errorf("expected 3 panels, got %d", got)
	}
	if got := VisiblePanels(80, 24, 4, 2); got != 2 {
		t.Errorf("expected all 2 panels, got %d", got)
	}
	if got := VisiblePanels(40, 5, 4, 9); got != 1 {
		t.Errorf("expected at least 1 panel, got %d", got)
	}
}
