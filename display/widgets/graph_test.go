package widgets

import (
	"strings"
	"testing"
	"unicode/utf8"

	"gitlab.com/tinyland/lab/loadgraph/history"
)

func TestRenderGraph_TwoRows(t *testing.T) {
	got := RenderGraph(GraphConfig{
		Grid:   history.Grid{Values: []int64{0, 8, 16}},
		Height: 2,
		Min:    0,
		Max:    16,
	})
	want := "  █\n ██"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestRenderGraph_LeadAndPartialBlocks(t *testing.T) {
	got := RenderGraph(GraphConfig{
		Grid:   history.Grid{Lead: 1, Values: []int64{99, 0, 4, 8}},
		Height: 1,
		Max:    8,
	})
	if got != "  ▄█" {
		t.Errorf("expected blank lead and half block, got %q", got)
	}
}

func TestRenderGraph_Shape(t *testing.T) {
	values := make([]int64, 40)
	for i := range values {
		values[i] = int64(i * i)
	}
	for _, height := range []int{1, 3, 6} {
		out := RenderGraph(GraphConfig{Grid: history.Grid{Values: values}, Height: height})
		lines := strings.Split(out, "\n")
		if len(lines) != height {
			t.Fatalf("height %d: expected %d lines, got %d", height, height, len(lines))
		}
		for i, line := range lines {
			if n := utf8.RuneCountInString(line); n != len(values) {
				t.Errorf("height %d line %d: expected %d columns, got %d", height, i, len(values), n)
			}
		}
		// The largest value fills its whole column.
		for i, line := range lines {
			if r := []rune(line)[len(values)-1]; r != '█' {
				t.Errorf("height %d line %d: expected full block in last column, got %q", height, i, r)
			}
		}
	}
}

func TestRenderGraph_AllLead(t *testing.T) {
	got := RenderGraph(GraphConfig{Grid: history.Grid{Lead: 3, Values: []int64{0, 0, 0}}, Height: 2})
	if got != "   \n   " {
		t.Errorf("expected blank graph, got %q", got)
	}
}
