package history

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/tinyland/lab/loadgraph/timeseries"
)

var base = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newStore(t *testing.T, names ...string) *Store {
	t.Helper()
	s := New(10*time.Second, time.Second, nil)
	for _, n := range names {
		require.NoError(t, s.Register(n, UnitPercentTenths))
	}
	return s
}

func TestStore_RegisterIsIdempotent(t *testing.T) {
	s := newStore(t, "cpu", "ram")
	require.NoError(t, s.Register("cpu", UnitRaw))

	assert.Equal(t, []string{"cpu", "ram"}, s.Names())
	u, ok := s.Unit("cpu")
	assert.True(t, ok)
	assert.Equal(t, UnitPercentTenths, u)
}

func TestStore_AppendUnknown(t *testing.T) {
	s := newStore(t)
	err := s.Append("nope", base, 1)
	assert.ErrorIs(t, err, ErrUnknownSeries)
}

func TestStore_AppendOutOfOrder(t *testing.T) {
	s := newStore(t, "cpu")
	require.NoError(t, s.Append("cpu", base, 10))
	require.NoError(t, s.Append("cpu", base, 11))

	err := s.Append("cpu", base.Add(-time.Second), 12)
	assert.ErrorIs(t, err, ErrOutOfOrder)

	sum, ok := s.Summary("cpu")
	require.True(t, ok)
	assert.Equal(t, 2, sum.Count)
	assert.Equal(t, uint64(1), sum.Dropped)
	assert.Equal(t, int64(11), sum.Latest)
}

func TestStore_Summary(t *testing.T) {
	s := newStore(t, "cpu")
	for i, v := range []int64{40, 10, 90, 30} {
		require.NoError(t, s.Append("cpu", base.Add(time.Duration(i)*time.Second), v))
	}

	sum, ok := s.Summary("cpu")
	require.True(t, ok)
	assert.Equal(t, "cpu", sum.Name)
	assert.Equal(t, int64(30), sum.Latest)
	assert.Equal(t, int64(10), sum.Min)
	assert.Equal(t, int64(90), sum.Max)
	assert.Equal(t, 4, sum.Count)
	assert.Equal(t, 10, sum.Capacity)
	assert.True(t, sum.SpanStart.Equal(base))
	assert.True(t, sum.SpanEnd.Equal(base.Add(3*time.Second)))

	_, ok = s.Summary("missing")
	assert.False(t, ok)
}

func TestStore_EmptySummary(t *testing.T) {
	s := newStore(t, "cpu")
	sum, ok := s.Summary("cpu")
	require.True(t, ok)
	assert.Equal(t, int64(0), sum.Latest)
	assert.True(t, sum.SpanStart.IsZero())
}

func TestStore_SummaryJSON(t *testing.T) {
	s := newStore(t, "cpu")
	require.NoError(t, s.Append("cpu", base, 5))
	sum, _ := s.Summary("cpu")

	b, err := json.Marshal(sum)
	require.NoError(t, err)

	var decoded Summary
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, UnitPercentTenths, decoded.Unit)
	assert.Contains(t, string(b), `"unit":"percent"`)
}

func TestStore_ValueAt(t *testing.T) {
	s := newStore(t, "cpu")
	require.NoError(t, s.Append("cpu", base, 0))
	require.NoError(t, s.Append("cpu", base.Add(time.Second), 100))

	v, ok := s.ValueAt("cpu", base.Add(250*time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, int64(25), v)

	_, ok = s.ValueAt("missing", base)
	assert.False(t, ok)
}

func TestStore_Grid(t *testing.T) {
	s := newStore(t, "cpu")
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append("cpu", base.Add(time.Duration(i)*time.Second), int64(i*100)))
	}

	end := base.Add(4 * time.Second)
	g, ok := s.Grid("cpu", end, 12, 500*time.Millisecond)
	require.True(t, ok)
	require.Len(t, g.Values, 12)

	// Columns start at end-5.5s; the first three precede the oldest sample.
	assert.Equal(t, 3, g.Lead)
	assert.Equal(t, []int64{0, 0, 0, 0, 50, 100, 150, 200, 250, 300, 350, 400}, g.Values)
	assert.True(t, g.Start().Equal(end.Add(-5500*time.Millisecond)))
}

func TestStore_GridEmptySeries(t *testing.T) {
	s := newStore(t, "cpu")
	g, ok := s.Grid("cpu", base, 8, time.Second)
	require.True(t, ok)
	assert.Equal(t, 8, g.Lead)
	assert.Len(t, g.Values, 8)
}

func TestStore_SetInterval(t *testing.T) {
	s := newStore(t, "cpu", "ram")
	for i := 0; i < 10; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.Append("cpu", ts, int64(i)))
		require.NoError(t, s.Append("ram", ts, int64(100-i)))
	}

	require.NoError(t, s.SetInterval(500*time.Millisecond))
	assert.Equal(t, 500*time.Millisecond, s.Interval())
	assert.Equal(t, 10*time.Second, s.Retention())

	for _, sum := range s.Summaries() {
		assert.Equal(t, 20, sum.Capacity, sum.Name)
		assert.Equal(t, 10, sum.Count, sum.Name)
	}

	// Coarsening past the floor grows the represented window.
	require.NoError(t, s.SetInterval(5*time.Second))
	assert.Equal(t, 50*time.Second, s.Retention())
	sum, _ := s.Summary("ram")
	assert.Equal(t, 10, sum.Capacity)
	assert.Equal(t, int64(91), sum.Min)

	// Series registered afterwards match the new geometry.
	require.NoError(t, s.Register("disk", UnitPercentTenths))
	sum, _ = s.Summary("disk")
	assert.Equal(t, 10, sum.Capacity)
	assert.Equal(t, 5*time.Second, sum.Interval)
}

func TestStore_SetIntervalRejectsNonPositive(t *testing.T) {
	s := newStore(t, "cpu")
	assert.Error(t, s.SetInterval(0))
	assert.Equal(t, time.Second, s.Interval())
}

func TestStore_SetIntervalFailureKeepsInterval(t *testing.T) {
	s := newStore(t, "cpu")
	err := s.SetInterval(time.Nanosecond)
	require.Error(t, err)
	assert.Equal(t, time.Second, s.Interval())
	sum, _ := s.Summary("cpu")
	assert.Equal(t, 10, sum.Capacity)
}

func TestStore_SetIntervalFailureRollsBack(t *testing.T) {
	s := newStore(t, "cpu")

	// A finer-grained series that can take a 1ns interval while cpu cannot.
	fine, err := timeseries.New(20*time.Nanosecond, 2*time.Nanosecond)
	require.NoError(t, err)
	s.entries["fine"] = &entry{name: "fine", unit: UnitRaw, series: fine}
	s.order = append([]string{"fine"}, s.order...)

	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.Append("fine", ts, int64(i)))
		require.NoError(t, s.Append("cpu", ts, int64(10*i)))
	}

	err = s.SetInterval(time.Nanosecond)
	require.ErrorIs(t, err, timeseries.ErrOutOfMemory)
	assert.Equal(t, time.Second, s.Interval())

	sum, _ := s.Summary("fine")
	assert.Equal(t, 10, sum.Capacity)
	assert.Equal(t, 2*time.Nanosecond, sum.Interval)
	assert.Equal(t, 5, sum.Count)

	sum, _ = s.Summary("cpu")
	assert.Equal(t, 10, sum.Capacity)
	assert.Equal(t, time.Second, sum.Interval)
	assert.Equal(t, int64(40), sum.Latest)

	// The store still accepts appends on the old geometry.
	require.NoError(t, s.Append("cpu", base.Add(5*time.Second), 50))
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := newStore(t, "cpu", "ram")
	var wg sync.WaitGroup

	for _, name := range []string{"cpu", "ram"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				_ = s.Append(name, base.Add(time.Duration(i)*time.Millisecond), int64(i))
			}
		}(name)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = s.Summaries()
			_, _ = s.Grid("cpu", base.Add(time.Second), 40, 10*time.Millisecond)
		}
	}()
	wg.Wait()

	for _, sum := range s.Summaries() {
		assert.Equal(t, int64(499), sum.Latest)
	}
}

func TestUnit_Format(t *testing.T) {
	tests := []struct {
		unit Unit
		v    int64
		want string
	}{
		{UnitPercentTenths, 425, "42.5%"},
		{UnitHundredths, 150, "1.50"},
		{UnitBytesPerSecond, 2048, "2.0KiB/s"},
		{UnitRaw, 12345, "12,345"},
	}
	for _, tt := range tests {
		t.Run(tt.unit.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.unit.Format(tt.v))
		})
	}
	assert.InDelta(t, 42.5, UnitPercentTenths.Float(425), 1e-9)
	assert.Equal(t, int64(1000), UnitPercentTenths.Ceiling())
	assert.Equal(t, int64(0), UnitRaw.Ceiling())

	var u Unit
	assert.Error(t, u.UnmarshalText([]byte("furlongs")))
}

func TestSummary_WindowAndRange(t *testing.T) {
	sum := Summary{Capacity: 300, Interval: time.Second, Unit: UnitPercentTenths, Min: 5, Max: 50}
	assert.Equal(t, 5*time.Minute, sum.Window())

	lo, hi := sum.Range()
	assert.Equal(t, int64(0), lo)
	assert.Equal(t, int64(1000), hi)

	sum.Unit = UnitBytesPerSecond
	lo, hi = sum.Range()
	assert.Equal(t, int64(5), lo)
	assert.Equal(t, int64(50), hi)
}
