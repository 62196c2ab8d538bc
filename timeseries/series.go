package timeseries

import "time"

const (
	// DefaultCapacity is used when retention or interval is not positive.
	DefaultCapacity = 100

	// MinResizeCapacity is the floor applied when an interval change
	// recomputes capacity.
	MinResizeCapacity = 10
)

// Series is a Ring plus min and max deques kept in lock-step with it.
// Times passed to Append must be non-decreasing.
type Series struct {
	ring     *Ring
	min      extremum
	max      extremum
	interval time.Duration
}

// New sizes a series to hold retention worth of samples taken every interval,
// with a minimum of one sample.
func New(retention, interval time.Duration) (*Series, error) {
	capacity := DefaultCapacity
	if retention > 0 && interval > 0 {
		capacity = max(int(retention/interval), 1)
		if retention/interval > MaxCapacity {
			capacity = MaxCapacity + 1
		}
	}
	ring, err := NewRing(capacity)
	if err != nil {
		return nil, err
	}
	return &Series{
		ring:     ring,
		min:      newMinDeque(),
		max:      newMaxDeque(),
		interval: interval,
	}, nil
}

// Append records a sample, evicting the oldest one when the series is full.
//
// Eviction is matched against the deque fronts by timestamp. If several live
// samples share the evicted timestamp the deques may keep or drop the wrong
// one; callers that need exact extrema should not repeat timestamps.
func (s *Series) Append(t, v int64) {
	if s.ring.Cap() == 0 {
		return
	}
	var evicted int64
	full := s.ring.Full()
	if full {
		oldest, _ := s.ring.At(0)
		evicted = oldest.Time
	}

	sample := Sample{Time: t, Value: v}
	s.ring.Append(sample)
	s.min.push(sample)
	s.max.push(sample)

	if full {
		s.min.evict(evicted)
		s.max.evict(evicted)
	}
}

// ValueAt returns the value at time t, interpolating linearly between the two
// samples that bracket it. See ValueAtHint.
func (s *Series) ValueAt(t int64) int64 {
	return s.ValueAtHint(t, nil)
}

// ValueAtHint is ValueAt with a search hint. When hint is non-nil and points
// at a sample no later than t, the search starts there; on return it holds
// the index of the lower bracketing sample. Callers rendering a sequence of
// increasing times should reuse one hint across calls.
//
// An empty series returns 0. Times at or after the newest sample return the
// newest value, and times before the oldest sample return the oldest value.
func (s *Series) ValueAtHint(t int64, hint *int) int64 {
	n := s.ring.Len()
	if n == 0 {
		return 0
	}
	last, _ := s.ring.At(n - 1)
	if t >= last.Time {
		setHint(hint, n-1)
		return last.Value
	}

	lo := 0
	if hint != nil && *hint > 0 && *hint < n {
		if h, _ := s.ring.At(*hint); h.Time <= t {
			lo = *hint
		}
	}
	if a, _ := s.ring.At(lo); t < a.Time {
		setHint(hint, lo)
		return a.Value
	}

	// Invariant: At(lo).Time <= t < At(hi).Time.
	hi := n - 1
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if m, _ := s.ring.At(mid); m.Time <= t {
			lo = mid
		} else {
			hi = mid
		}
	}
	setHint(hint, lo)

	a, _ := s.ring.At(lo)
	b, _ := s.ring.At(hi)
	if t == a.Time || a.Time == b.Time {
		return a.Value
	}
	frac := float64(t-a.Time) / float64(b.Time-a.Time)
	return interpolate(a.Value, b.Value, frac)
}

// interpolate returns a + (b-a)*frac truncated, clamped to [min(a,b), max(a,b)].
// The difference is taken in float64 so far-apart values cannot overflow.
func interpolate(a, b int64, frac float64) int64 {
	lo, hi := min(a, b), max(a, b)
	v := float64(a) + (float64(b)-float64(a))*frac
	switch {
	case v <= float64(lo):
		return lo
	case v >= float64(hi):
		return hi
	}
	return int64(v)
}

func setHint(hint *int, i int) {
	if hint != nil {
		*hint = i
	}
}

// Minimum returns the smallest live value, or 0 when empty.
func (s *Series) Minimum() int64 {
	f, _ := s.min.front()
	return f.Value
}

// Maximum returns the largest live value, or 0 when empty.
func (s *Series) Maximum() int64 {
	f, _ := s.max.front()
	return f.Value
}

// SpanStart returns the oldest sample time, or 0 when empty.
func (s *Series) SpanStart() int64 {
	f, _ := s.ring.At(0)
	return f.Time
}

// SpanEnd returns the newest sample time, or 0 when empty.
func (s *Series) SpanEnd() int64 {
	l, _ := s.ring.At(s.ring.Len() - 1)
	return l.Time
}

// Len returns the number of live samples.
func (s *Series) Len() int { return s.ring.Len() }

// Cap returns the number of samples the series can hold.
func (s *Series) Cap() int { return s.ring.Cap() }

// Interval returns the sampling interval the series is sized for.
func (s *Series) Interval() time.Duration { return s.interval }

// At returns the sample at logical index i, 0 being the oldest.
func (s *Series) At(i int) (Sample, bool) { return s.ring.At(i) }

// Last returns the newest sample.
func (s *Series) Last() (Sample, bool) { return s.ring.At(s.ring.Len() - 1) }

// Samples returns a chronological copy of the live samples.
func (s *Series) Samples() []Sample {
	out := make([]Sample, s.ring.Len())
	for i := range out {
		out[i], _ = s.ring.At(i)
	}
	return out
}

// Clear drops every sample, keeping capacity and interval.
func (s *Series) Clear() {
	s.ring.Clear()
	s.min.reset()
	s.max.reset()
}

// SetInterval rescales capacity so the series keeps covering roughly the
// same span of time at the new sampling rate, never dropping below
// MinResizeCapacity. The newest samples survive a shrink. Non-positive and
// unchanged intervals are ignored.
//
// A series built without a positive interval covers no span, so it drops to
// MinResizeCapacity.
func (s *Series) SetInterval(d time.Duration) error {
	if d <= 0 || d == s.interval {
		return nil
	}
	if err := s.ring.Resize(s.rescaledCapacity(d)); err != nil {
		return err
	}
	s.interval = d
	s.rebuild()
	return nil
}

// Rescaled returns a copy of s sized for interval d by the same rules as
// SetInterval, leaving s untouched. Intervals SetInterval would ignore
// return s itself.
func (s *Series) Rescaled(d time.Duration) (*Series, error) {
	if d <= 0 || d == s.interval {
		return s, nil
	}
	ring, err := NewRing(s.rescaledCapacity(d))
	if err != nil {
		return nil, err
	}
	for i := max(s.ring.Len()-ring.Cap(), 0); i < s.ring.Len(); i++ {
		sample, _ := s.ring.At(i)
		ring.Append(sample)
	}
	next := &Series{
		ring:     ring,
		min:      newMinDeque(),
		max:      newMaxDeque(),
		interval: d,
	}
	next.rebuild()
	return next, nil
}

// rescaledCapacity is capacity*interval/d floored at MinResizeCapacity.
// Results above MaxCapacity come back as MaxCapacity+1 so allocation fails.
func (s *Series) rescaledCapacity(d time.Duration) int {
	scaled := float64(s.ring.Cap()) * float64(max(s.interval, 0)) / float64(d)
	switch {
	case scaled > MaxCapacity:
		return MaxCapacity + 1
	case scaled < MinResizeCapacity:
		return MinResizeCapacity
	default:
		return int(scaled)
	}
}

// rebuild recomputes both deques from the ring in one pass.
func (s *Series) rebuild() {
	s.min.reset()
	s.max.reset()
	for i := 0; i < s.ring.Len(); i++ {
		sample, _ := s.ring.At(i)
		s.min.push(sample)
		s.max.push(sample)
	}
}
