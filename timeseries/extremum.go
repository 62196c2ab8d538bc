package timeseries

// extremum is a monotonic deque over the live samples of a Ring. The front
// is always the window's minimum (or maximum, depending on dominates).
//
// Popped front entries are skipped with head rather than shifted out; the
// slice is compacted once the dead prefix outgrows the live part.
type extremum struct {
	items []Sample
	head  int

	// dominates reports whether a new value makes the existing back value
	// irrelevant for the rest of its lifetime.
	dominates func(back, v int64) bool
}

func newMinDeque() extremum {
	return extremum{dominates: func(back, v int64) bool { return back >= v }}
}

func newMaxDeque() extremum {
	return extremum{dominates: func(back, v int64) bool { return back <= v }}
}

func (d *extremum) len() int { return len(d.items) - d.head }

func (d *extremum) push(s Sample) {
	for d.len() > 0 && d.dominates(d.items[len(d.items)-1].Value, s.Value) {
		d.items = d.items[:len(d.items)-1]
	}
	if d.head > 0 && d.head >= d.len() {
		n := copy(d.items, d.items[d.head:])
		d.items = d.items[:n]
		d.head = 0
	}
	d.items = append(d.items, s)
}

func (d *extremum) front() (Sample, bool) {
	if d.len() == 0 {
		return Sample{}, false
	}
	return d.items[d.head], true
}

// evict pops the front when it carries the evicted timestamp.
func (d *extremum) evict(t int64) {
	if f, ok := d.front(); ok && f.Time == t {
		d.head++
		if d.len() == 0 {
			d.reset()
		}
	}
}

func (d *extremum) reset() {
	d.items = d.items[:0]
	d.head = 0
}
