// Package history owns the named time series a loadgraph process keeps in
// memory and serializes access to them.
package history

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/loadgraph/timeseries"
)

var (
	// ErrUnknownSeries is returned when a series name was never registered.
	ErrUnknownSeries = errors.New("unknown series")

	// ErrOutOfOrder is returned when a sample is older than the newest one
	// already stored for that series.
	ErrOutOfOrder = errors.New("sample older than newest stored sample")
)

// Summary is a point-in-time description of one series.
type Summary struct {
	Name      string        `json:"name"`
	Unit      Unit          `json:"unit"`
	Latest    int64         `json:"latest"`
	Min       int64         `json:"min"`
	Max       int64         `json:"max"`
	Count     int           `json:"count"`
	Capacity  int           `json:"capacity"`
	SpanStart time.Time     `json:"span_start"`
	SpanEnd   time.Time     `json:"span_end"`
	Interval  time.Duration `json:"interval"`
	Dropped   uint64        `json:"dropped"`
}

// Window is the time span the series can hold at its current interval.
func (s Summary) Window() time.Duration {
	return time.Duration(s.Capacity) * s.Interval
}

// Range is the value range graphs are drawn against: the unit's full scale
// when it has one, otherwise the stored extremes.
func (s Summary) Range() (lo, hi int64) {
	if ceiling := s.Unit.Ceiling(); ceiling > 0 {
		return 0, ceiling
	}
	return s.Min, s.Max
}

// Grid is a series evaluated at evenly spaced times ending at End.
// The first Lead columns fall before the oldest sample and hold 0.
type Grid struct {
	End    time.Time     `json:"end"`
	Step   time.Duration `json:"step"`
	Lead   int           `json:"lead"`
	Values []int64       `json:"values"`
}

// Start returns the time of the first column.
func (g Grid) Start() time.Time {
	if len(g.Values) == 0 {
		return g.End
	}
	return g.End.Add(-time.Duration(len(g.Values)-1) * g.Step)
}

type entry struct {
	mu      sync.RWMutex
	name    string
	unit    Unit
	series  *timeseries.Series
	dropped uint64
}

// Store is a registry of named series. Each series has its own lock, so a
// slow reader of one series never blocks appends to another.
type Store struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	order     []string
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// New creates an empty store. Series registered later are sized to hold
// retention worth of samples at interval.
func New(retention, interval time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		entries:   make(map[string]*entry),
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

// Register creates the named series if it does not exist yet.
func (s *Store) Register(name string, unit Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[name]; ok {
		return nil
	}
	series, err := timeseries.New(s.retention, s.interval)
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	s.entries[name] = &entry{name: name, unit: unit, series: series}
	s.order = append(s.order, name)
	s.logger.Debug("series registered", "series", name, "unit", unit.String(), "capacity", series.Cap())
	return nil
}

func (s *Store) get(name string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	return e, ok
}

// Append adds a sample at time t. Samples older than the series' newest
// sample are counted as dropped and rejected with ErrOutOfOrder.
func (s *Store) Append(name string, t time.Time, v int64) error {
	e, ok := s.get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSeries, name)
	}
	ts := timeseries.Micros(t)

	e.mu.Lock()
	defer e.mu.Unlock()
	if last, ok := e.series.Last(); ok && ts < last.Time {
		e.dropped++
		return fmt.Errorf("%w: %s at %d < %d", ErrOutOfOrder, name, ts, last.Time)
	}
	e.series.Append(ts, v)
	return nil
}

// SetInterval resizes every series for a new sampling interval. Every
// series is rebuilt before any is replaced, so when one fails the whole
// store keeps its previous interval and windows.
func (s *Store) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("interval must be positive, got %v", d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range s.order {
		e := s.entries[name]
		e.mu.Lock()
		defer e.mu.Unlock()
	}

	next := make([]*timeseries.Series, len(s.order))
	var errs []error
	for i, name := range s.order {
		series, err := s.entries[name].series.Rescaled(d)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		next[i] = series
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	for i, name := range s.order {
		s.entries[name].series = next[i]
	}

	if s.interval > 0 {
		s.logger.Info("sampling interval changed", "from", s.interval, "to", d)
	}
	// Capacity scales inversely with the interval, so the window only
	// changes when the capacity floor kicks in.
	if floor := timeseries.MinResizeCapacity * d; s.retention > 0 && s.retention < floor {
		s.retention = floor
	}
	s.interval = d
	return nil
}

// Interval returns the current sampling interval.
func (s *Store) Interval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interval
}

// Retention returns the span of time a full series currently represents.
func (s *Store) Retention() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retention
}

// Names returns series names in registration order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Unit returns the unit of the named series.
func (s *Store) Unit(name string) (Unit, bool) {
	e, ok := s.get(name)
	if !ok {
		return UnitRaw, false
	}
	return e.unit, true
}

func (e *entry) summary() Summary {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sum := Summary{
		Name:     e.name,
		Unit:     e.unit,
		Min:      e.series.Minimum(),
		Max:      e.series.Maximum(),
		Count:    e.series.Len(),
		Capacity: e.series.Cap(),
		Interval: e.series.Interval(),
		Dropped:  e.dropped,
	}
	if last, ok := e.series.Last(); ok {
		sum.Latest = last.Value
		sum.SpanStart = timeseries.FromMicros(e.series.SpanStart())
		sum.SpanEnd = timeseries.FromMicros(e.series.SpanEnd())
	}
	return sum
}

// Summary describes the named series.
func (s *Store) Summary(name string) (Summary, bool) {
	e, ok := s.get(name)
	if !ok {
		return Summary{}, false
	}
	return e.summary(), true
}

// Summaries describes every series in registration order.
func (s *Store) Summaries() []Summary {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.order))
	for _, name := range s.order {
		entries = append(entries, s.entries[name])
	}
	s.mu.RUnlock()

	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.summary())
	}
	return out
}

// ValueAt returns the interpolated value of the named series at t.
func (s *Store) ValueAt(name string, t time.Time) (int64, bool) {
	e, ok := s.get(name)
	if !ok {
		return 0, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.series.ValueAt(timeseries.Micros(t)), true
}

// Grid evaluates the named series at columns evenly spaced times ending at
// end. One search hint is carried across columns, so a full-width render
// costs roughly one binary search plus a linear walk.
func (s *Store) Grid(name string, end time.Time, columns int, step time.Duration) (Grid, bool) {
	e, ok := s.get(name)
	if !ok {
		return Grid{}, false
	}
	if columns < 0 {
		columns = 0
	}
	g := Grid{End: end, Step: step, Values: make([]int64, columns)}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.series.Len() == 0 {
		g.Lead = columns
		return g, true
	}
	start := e.series.SpanStart()
	endUS := timeseries.Micros(end)
	stepUS := step.Microseconds()
	hint := 0
	for i := 0; i < columns; i++ {
		t := endUS - int64(columns-1-i)*stepUS
		if t < start {
			g.Lead++
			continue
		}
		g.Values[i] = e.series.ValueAtHint(t, &hint)
	}
	return g, true
}

// Samples returns a chronological copy of the named series.
func (s *Store) Samples(name string) ([]timeseries.Sample, bool) {
	e, ok := s.get(name)
	if !ok {
		return nil, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.series.Samples(), true
}
