// Package collectors provides the sampling interface and registration for
// loadgraph. A collector reads one source (e.g. /proc) and reports scalar
// samples for the series it owns; the Runner turns those into a steady
// stream of appends at the configured interval.
package collectors

import (
	"context"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/loadgraph/history"
)

// Collector is the interface that all data collectors must implement.
type Collector interface {
	// Name returns the collector's unique identifier (e.g., "sysmetrics").
	// Names must be unique within a Registry.
	Name() string

	// Description returns a human-readable description of what this collector gathers.
	Description() string

	// Series lists every series the collector may report, so they can be
	// registered before the first sample arrives.
	Series() []SeriesInfo

	// Collect reads the source once. A result may omit series that are not
	// ready yet (e.g. counters that need two readings for a rate).
	// Non-fatal issues should be reported as Warnings rather than errors.
	Collect(ctx context.Context) (*CollectResult, error)
}

// SeriesInfo names a series and its unit.
type SeriesInfo struct {
	Name        string       `json:"name"`
	Unit        history.Unit `json:"unit"`
	Description string       `json:"description,omitempty"`
}

// Sample is one value for one series.
type Sample struct {
	Series string `json:"series"`
	Value  int64  `json:"value"`
}

// CollectResult holds the output of a collection run.
type CollectResult struct {
	// Collector is the name of the collector that produced this result.
	Collector string `json:"collector"`

	// Timestamp records when the collection completed.
	Timestamp time.Time `json:"timestamp"`

	// Samples holds the values read during this run.
	Samples []Sample `json:"samples"`

	// Warnings contains non-fatal issues encountered during collection.
	// For example, the disk path being unreadable while /proc succeeds.
	Warnings []string `json:"warnings,omitempty"`
}

// CollectorStatus tracks the health of one collector across runs.
type CollectorStatus struct {
	Name        string        `json:"name"`
	LastRun     time.Time     `json:"last_run"`
	LastLatency time.Duration `json:"last_latency"`
	RunCount    int64         `json:"run_count"`
	ErrorCount  int64         `json:"error_count"`
	LastError   string        `json:"last_error,omitempty"`
	Healthy     bool          `json:"healthy"`
}

// Registry holds registered collectors and provides lookup by name.
type Registry struct {
	mu         sync.RWMutex
	collectors []Collector
	status     map[string]*CollectorStatus
}

// NewRegistry creates a new empty collector registry.
func NewRegistry() *Registry {
	return &Registry{
		collectors: make([]Collector, 0),
		status:     make(map[string]*CollectorStatus),
	}
}

// Register adds a collector to the registry.
// If a collector with the same name already exists, it is replaced.
func (r *Registry) Register(c Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.status[c.Name()]; !ok {
		r.status[c.Name()] = &CollectorStatus{Name: c.Name(), Healthy: true}
	}
	for i, existing := range r.collectors {
		if existing.Name() == c.Name() {
			r.collectors[i] = c
			return
		}
	}
	r.collectors = append(r.collectors, c)
}

// Get returns a collector by name. The second return value indicates
// whether the collector was found.
func (r *Registry) Get(name string) (Collector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.collectors {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// All returns all registered collectors.
func (r *Registry) All() []Collector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Collector, len(r.collectors))
	copy(result, r.collectors)
	return result
}

// List returns the names of all registered collectors in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.collectors))
	for i, c := range r.collectors {
		names[i] = c.Name()
	}
	return names
}

// Series returns every series declared by every collector.
func (r *Registry) Series() []SeriesInfo {
	var out []SeriesInfo
	for _, c := range r.All() {
		out = append(out, c.Series()...)
	}
	return out
}

// Status returns a copy of the named collector's status.
func (r *Registry) Status(name string) (CollectorStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.status[name]
	if !ok {
		return CollectorStatus{}, false
	}
	return *s, true
}

// AllStatus returns the status of every collector in registration order.
func (r *Registry) AllStatus() []CollectorStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CollectorStatus, 0, len(r.collectors))
	for _, c := range r.collectors {
		if s, ok := r.status[c.Name()]; ok {
			out = append(out, *s)
		}
	}
	return out
}

func (r *Registry) updateStatus(name string, fn func(*CollectorStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.status[name]
	if !ok {
		s = &CollectorStatus{Name: name}
		r.status[name] = s
	}
	fn(s)
}
