// Package timeseries implements a bounded-memory sample store with
// interpolated lookup and O(1) sliding-window minimum and maximum.
//
// Nothing in this package locks. A Ring or Series shared between goroutines
// needs external synchronization; see the history package.
package timeseries

import (
	"errors"
	"fmt"
	"time"
)

// MaxCapacity is the largest ring the package will allocate (16 Mi samples,
// 256 MiB of backing storage).
const MaxCapacity = 1 << 24

// ErrOutOfMemory is returned when a backing array cannot be allocated.
// The receiver is left exactly as it was before the call.
var ErrOutOfMemory = errors.New("timeseries: out of memory")

// Sample is a single timestamped value. Time is in microseconds.
type Sample struct {
	Time  int64 `json:"time"`
	Value int64 `json:"value"`
}

// Micros converts t to the microsecond timestamps used by Sample.
func Micros(t time.Time) int64 {
	return t.UnixMicro()
}

// FromMicros converts a Sample timestamp back to a time.Time.
func FromMicros(us int64) time.Time {
	return time.UnixMicro(us)
}

// Ring is a fixed-capacity circular buffer of samples in arrival order.
// When full, Append overwrites the oldest sample.
type Ring struct {
	buf   []Sample
	n     int
	first int
}

// NewRing returns an empty ring holding at most capacity samples.
// A capacity of 0 is legal and yields a ring that is always empty.
// Negative capacities are treated as 0.
func NewRing(capacity int) (*Ring, error) {
	buf, err := allocate(capacity)
	if err != nil {
		return nil, err
	}
	return &Ring{buf: buf}, nil
}

// allocate converts both an over-limit request and a makeslice panic into
// ErrOutOfMemory.
func allocate(capacity int) (buf []Sample, err error) {
	if capacity < 0 {
		capacity = 0
	}
	if capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: %d samples exceeds limit of %d", ErrOutOfMemory, capacity, MaxCapacity)
	}
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = fmt.Errorf("%w: %v", ErrOutOfMemory, r)
		}
	}()
	return make([]Sample, capacity), nil
}

// physical maps a logical index (0 = oldest) to a slot in buf.
// It is the only place the wrap-around arithmetic lives.
func (r *Ring) physical(i int) int {
	return (r.first + i) % len(r.buf)
}

// Append stores s as the newest sample, evicting the oldest when full.
func (r *Ring) Append(s Sample) {
	if len(r.buf) == 0 {
		return
	}
	r.buf[r.physical(r.n)] = s
	if r.n < len(r.buf) {
		r.n++
		return
	}
	r.first = r.physical(1)
}

// At returns the sample at logical index i, where 0 is the oldest.
func (r *Ring) At(i int) (Sample, bool) {
	if i < 0 || i >= r.n {
		return Sample{}, false
	}
	return r.buf[r.physical(i)], true
}

// Len returns the number of live samples.
func (r *Ring) Len() int { return r.n }

// Cap returns the maximum number of samples the ring holds.
func (r *Ring) Cap() int { return len(r.buf) }

// Full reports whether the next Append will evict a sample.
func (r *Ring) Full() bool { return len(r.buf) > 0 && r.n == len(r.buf) }

// Resize changes the capacity. Growing keeps every sample; shrinking below
// Len keeps only the newest capacity samples. Either way the samples are
// re-laid out from slot 0. On error the ring is unchanged.
func (r *Ring) Resize(capacity int) error {
	if capacity < 0 {
		capacity = 0
	}
	if capacity == len(r.buf) {
		return nil
	}
	buf, err := allocate(capacity)
	if err != nil {
		return err
	}
	keep := min(r.n, capacity)
	skip := r.n - keep
	for i := 0; i < keep; i++ {
		buf[i] = r.buf[r.physical(skip+i)]
	}
	r.buf = buf
	r.n = keep
	r.first = 0
	return nil
}

// Clear drops every sample without changing capacity.
func (r *Ring) Clear() {
	r.n = 0
	r.first = 0
}
