package collectors

import (
	"context"
	"testing"

	"gitlab.com/tinyland/lab/loadgraph/history"
)

// stubCollector is a minimal Collector implementation for registry tests.
type stubCollector struct {
	name    string
	series  []SeriesInfo
	samples []Sample
	err     error
	panics  bool
	calls   int
}

func (s *stubCollector) Name() string         { return s.name }
func (s *stubCollector) Description() string  { return "stub " + s.name }
func (s *stubCollector) Series() []SeriesInfo { return s.series }
func (s *stubCollector) Collect(_ context.Context) (*CollectResult, error) {
	s.calls++
	if s.panics {
		panic("boom")
	}
	if s.err != nil {
		return nil, s.err
	}
	return &CollectResult{Collector: s.name, Samples: s.samples}, nil
}

// TestRegistry_RegisterAll verifies that multiple collectors can be registered
// and retrieved by name, and that All returns all of them.
func TestRegistry_RegisterAll(t *testing.T) {
	reg := NewRegistry()

	for _, name := range []string{"sysmetrics", "remote", "synthetic"} {
		reg.Register(&stubCollector{name: name})
	}

	for _, want := range []string{"sysmetrics", "remote", "synthetic"} {
		got, ok := reg.Get(want)
		if !ok {
			t.Errorf("Get(%q) returned false, want true", want)
			continue
		}
		if got.Name() != want {
			t.Errorf("Get(%q).Name() = %q, want %q", want, got.Name(), want)
		}
	}

	all := reg.All()
	if len(all) != 3 {
		t.Fatalf("All() returned %d collectors, want 3", len(all))
	}

	// All returns a copy; modifying the slice does not affect the registry.
	all[0] = &stubCollector{name: "mutated"}
	original, ok := reg.Get("sysmetrics")
	if !ok || original.Name() != "sysmetrics" {
		t.Errorf("registry was mutated via All() slice")
	}
}

// TestRegistry_DuplicateRegistration verifies that registering a collector with
// the same name as an existing one replaces the existing collector.
func TestRegistry_DuplicateRegistration(t *testing.T) {
	reg := NewRegistry()

	first := &stubCollector{name: "sysmetrics"}
	second := &stubCollector{name: "sysmetrics"}
	reg.Register(first)
	reg.Register(second)

	if n := len(reg.All()); n != 1 {
		t.Fatalf("All() returned %d collectors after duplicate registration, want 1", n)
	}
	got, _ := reg.Get("sysmetrics")
	if got != second {
		t.Error("Get(sysmetrics) did not return the replacement collector")
	}
}

func TestRegistry_GetMissing(t *testing.T) {
	reg := NewRegistry()

	got, ok := reg.Get("nonexistent")
	if ok || got != nil {
		t.Errorf("Get(nonexistent) = %v, %v; want nil, false", got, ok)
	}
	if _, ok := reg.Status("nonexistent"); ok {
		t.Error("Status(nonexistent) returned true")
	}
}

// TestRegistry_ListPreservesOrder verifies that List and All return
// collectors in registration order.
func TestRegistry_ListPreservesOrder(t *testing.T) {
	reg := NewRegistry()

	names := []string{"zebra", "alpha", "middle"}
	for _, name := range names {
		reg.Register(&stubCollector{name: name})
	}

	list := reg.List()
	for i, want := range names {
		if list[i] != want {
			t.Errorf("List()[%d] = %q, want %q", i, list[i], want)
		}
	}
}

func TestRegistry_Series(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubCollector{name: "a", series: []SeriesInfo{{Name: "cpu", Unit: history.UnitPercentTenths}}})
	reg.Register(&stubCollector{name: "b", series: []SeriesInfo{{Name: "load1", Unit: history.UnitHundredths}, {Name: "load5", Unit: history.UnitHundredths}}})

	series := reg.Series()
	if len(series) != 3 {
		t.Fatalf("expected 3 series, got %d", len(series))
	}
	if series[1].Name != "load1" || series[1].Unit != history.UnitHundredths {
		t.Errorf("unexpected series[1]: %+v", series[1])
	}
}

func TestRegistry_StatusStartsHealthy(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubCollector{name: "sysmetrics"})

	s, ok := reg.Status("sysmetrics")
	if !ok {
		t.Fatal("expected status for registered collector")
	}
	if !s.Healthy || s.RunCount != 0 {
		t.Errorf("expected fresh healthy status, got %+v", s)
	}
}
