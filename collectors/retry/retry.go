// Package retry provides a circuit breaker for collectors. A source that keeps
// failing (an unmounted disk path, a revoked /proc permission) is skipped for
// exponentially growing periods instead of being retried on every tick. While
// open, the series it owns simply receive no samples, which renders as a gap.
package retry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/loadgraph/collectors"
)

// Compile-time check: CircuitBreaker satisfies the Collector interface.
var _ collectors.Collector = (*CircuitBreaker)(nil)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed is normal operation; every tick reaches the collector.
	StateClosed State = iota
	// StateOpen means failures exceeded the threshold; ticks are skipped.
	StateOpen
	// StateHalfOpen lets one probe through to test recovery.
	StateHalfOpen
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Config configures the circuit breaker behavior.
type Config struct {
	// MaxFailures is the number of consecutive failures before opening.
	MaxFailures int
	// ResetTimeout is the first open period.
	ResetTimeout time.Duration
	// MaxResetTimeout caps the exponential backoff.
	MaxResetTimeout time.Duration
	// BackoffMultiplier grows the open period after each failed probe.
	BackoffMultiplier float64
	// Logger for state changes. Nil is safe (a discard logger is used).
	Logger *slog.Logger
}

// DefaultConfig suits tick-rate sampling: a handful of failed ticks opens
// the circuit, and probes back off from seconds to a couple of minutes.
func DefaultConfig() Config {
	return Config{
		MaxFailures:       5,
		ResetTimeout:      5 * time.Second,
		MaxResetTimeout:   2 * time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// Stats holds circuit breaker statistics for external inspection.
type Stats struct {
	State            State         `json:"state"`
	ConsecutiveFails int           `json:"consecutive_fails"`
	TotalFailures    int           `json:"total_failures"`
	TotalSuccesses   int           `json:"total_successes"`
	Skipped          int           `json:"skipped"`
	LastFailure      time.Time     `json:"last_failure"`
	LastSuccess      time.Time     `json:"last_success"`
	CurrentTimeout   time.Duration `json:"current_timeout"`
}

// CircuitBreaker wraps a collectors.Collector with failure tracking.
type CircuitBreaker struct {
	collector collectors.Collector
	config    Config
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	state State
	stats Stats
}

// NewCircuitBreaker wraps a collector with circuit breaker logic.
// Zero config fields fall back to DefaultConfig values.
func NewCircuitBreaker(c collectors.Collector, cfg Config) *CircuitBreaker {
	def := DefaultConfig()
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.MaxResetTimeout < cfg.ResetTimeout {
		cfg.MaxResetTimeout = max(def.MaxResetTimeout, cfg.ResetTimeout)
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CircuitBreaker{
		collector: c,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
		state:     StateClosed,
		stats:     Stats{CurrentTimeout: cfg.ResetTimeout},
	}
}

// Name delegates to the wrapped collector.
func (cb *CircuitBreaker) Name() string {
	return cb.collector.Name()
}

// Description delegates to the wrapped collector, appending the circuit state.
func (cb *CircuitBreaker) Description() string {
	return fmt.Sprintf("%s [circuit: %s]", cb.collector.Description(), cb.State())
}

// Series delegates to the wrapped collector.
func (cb *CircuitBreaker) Series() []collectors.SeriesInfo {
	return cb.collector.Series()
}

// Collect runs the wrapped collector unless the circuit is open, in which
// case it returns an empty result carrying a warning.
func (cb *CircuitBreaker) Collect(ctx context.Context) (*collectors.CollectResult, error) {
	if res, skip := cb.admit(); skip {
		return res, nil
	}

	result, err := cb.collector.Collect(ctx)
	cb.record(err)
	return result, err
}

// admit decides whether this tick reaches the collector, moving Open to
// HalfOpen once the timeout has elapsed.
func (cb *CircuitBreaker) admit() (*collectors.CollectResult, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil, false
	}
	now := cb.now()
	remaining := cb.stats.CurrentTimeout - now.Sub(cb.stats.LastFailure)
	if remaining <= 0 {
		cb.state = StateHalfOpen
		cb.logger.Info("circuit breaker probing", "collector", cb.collector.Name())
		return nil, false
	}

	cb.stats.Skipped++
	return &collectors.CollectResult{
		Collector: cb.collector.Name(),
		Timestamp: now,
		Warnings: []string{fmt.Sprintf(
			"circuit breaker open for %s (failures: %d, retry in %s)",
			cb.collector.Name(), cb.stats.ConsecutiveFails, remaining.Round(time.Millisecond),
		)},
	}, true
}

// record applies the outcome of one collection to the state machine.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	now := cb.now()

	if err == nil {
		if cb.state != StateClosed {
			cb.logger.Info("circuit breaker closed", "collector", cb.collector.Name())
		}
		cb.state = StateClosed
		cb.stats.ConsecutiveFails = 0
		cb.stats.TotalSuccesses++
		cb.stats.LastSuccess = now
		cb.stats.CurrentTimeout = cb.config.ResetTimeout
		return
	}

	cb.stats.ConsecutiveFails++
	cb.stats.TotalFailures++
	cb.stats.LastFailure = now

	switch cb.state {
	case StateHalfOpen:
		next := time.Duration(float64(cb.stats.CurrentTimeout) * cb.config.BackoffMultiplier)
		cb.stats.CurrentTimeout = min(next, cb.config.MaxResetTimeout)
		cb.state = StateOpen
		cb.logger.Warn("circuit breaker re-opened",
			"collector", cb.collector.Name(),
			"failures", cb.stats.ConsecutiveFails,
			"next_timeout", cb.stats.CurrentTimeout,
			"error", err,
		)
	case StateClosed:
		if cb.stats.ConsecutiveFails >= cb.config.MaxFailures {
			cb.state = StateOpen
			cb.stats.CurrentTimeout = cb.config.ResetTimeout
			cb.logger.Warn("circuit breaker opened",
				"collector", cb.collector.Name(),
				"failures", cb.stats.ConsecutiveFails,
				"timeout", cb.stats.CurrentTimeout,
				"error", err,
			)
		}
	}
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot of the circuit breaker statistics.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	s := cb.stats
	s.State = cb.state
	return s
}

// Reset forces the circuit closed and clears the failure streak.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.stats.ConsecutiveFails = 0
	cb.stats.CurrentTimeout = cb.config.ResetTimeout
	cb.logger.Info("circuit breaker reset", "collector", cb.collector.Name())
}
