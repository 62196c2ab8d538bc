package collectors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/loadgraph/history"
)

const (
	// DefaultUpdateBufferSize is the default capacity of the updates channel.
	// A buffered channel prevents slow consumers from blocking sampling.
	DefaultUpdateBufferSize = 64

	// DefaultStopTimeout is the maximum time Stop() will wait for the
	// sampling goroutine to finish before returning.
	DefaultStopTimeout = 5 * time.Second
)

// Sink receives samples. *history.Store implements it.
type Sink interface {
	Register(name string, unit history.Unit) error
	Append(name string, t time.Time, v int64) error
	SetInterval(d time.Duration) error
	Interval() time.Duration
}

// Update is sent after every sampling tick.
type Update struct {
	Timestamp time.Time       `json:"time"`
	Interval  time.Duration   `json:"interval"`
	Samples   []Sample        `json:"samples"`
	Errors    []CollectorFail `json:"errors,omitempty"`
}

// CollectorFail records a collector that returned an error for one tick.
type CollectorFail struct {
	Collector string `json:"collector"`
	Error     string `json:"error"`
}

// errTracker deduplicates repeated identical errors per collector.
type errTracker struct {
	lastMsg    string
	lastTime   time.Time
	suppressed int64
}

// Runner samples every registered collector on one shared ticker and appends
// the results to a Sink. The interval can be changed while running.
type Runner struct {
	registry *Registry
	sink     Sink
	logger   *slog.Logger
	updates  chan Update

	// wake tells the loop the sink's interval changed.
	wake    chan struct{}
	cancel  context.CancelFunc
	stopped chan struct{}
	once    sync.Once

	// errTrackers is only touched from the sampling goroutine (or from
	// CollectOnce before Start).
	errTrackers map[string]*errTracker
}

// NewRunner creates a runner that appends to sink at sink.Interval().
func NewRunner(registry *Registry, sink Sink, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		registry:    registry,
		sink:        sink,
		logger:      logger,
		updates:     make(chan Update, DefaultUpdateBufferSize),
		wake:        make(chan struct{}, 1),
		stopped:     make(chan struct{}),
		errTrackers: make(map[string]*errTracker),
	}
}

// Updates returns the channel that receives one Update per tick. Updates
// are dropped when the channel is full.
func (r *Runner) Updates() <-chan Update {
	return r.updates
}

// RegisterSeries registers every declared series with the sink.
func (r *Runner) RegisterSeries() error {
	var errs []error
	for _, info := range r.registry.Series() {
		if err := r.sink.Register(info.Name, info.Unit); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start registers series and launches the sampling goroutine. It samples
// once immediately, then on every tick. The provided context controls the
// goroutine's lifetime; cancelling it (or calling Stop) shuts it down.
func (r *Runner) Start(ctx context.Context) error {
	if err := r.RegisterSeries(); err != nil {
		return fmt.Errorf("collectors: register series: %w", err)
	}
	ctx, r.cancel = context.WithCancel(ctx)
	go r.loop(ctx)
	return nil
}

// Stop cancels the runner context and waits for the sampling goroutine to
// finish, with a timeout to prevent indefinite blocking.
func (r *Runner) Stop() {
	r.once.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
	})
	if r.cancel == nil {
		return
	}

	select {
	case <-r.stopped:
	case <-time.After(DefaultStopTimeout):
		r.logger.Warn("runner stop timed out", "timeout", DefaultStopTimeout)
	}
}

// Interval returns the current sampling interval.
func (r *Runner) Interval() time.Duration {
	return r.sink.Interval()
}

// SetInterval resizes the stored series for d and retimes the ticker.
func (r *Runner) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("interval must be positive, got %v", d)
	}
	if err := r.sink.SetInterval(d); err != nil {
		return err
	}
	select {
	case r.wake <- struct{}{}:
	default:
	}
	return nil
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.stopped)

	interval := r.tickInterval()
	r.send(r.CollectOnce(ctx, time.Now()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
			if d := r.tickInterval(); d != interval {
				interval = d
				ticker.Reset(d)
				r.logger.Debug("ticker retimed", "interval", d)
			}
		case t := <-ticker.C:
			r.send(r.CollectOnce(ctx, t))
		}
	}
}

func (r *Runner) tickInterval() time.Duration {
	if d := r.sink.Interval(); d > 0 {
		return d
	}
	return time.Second
}

// send performs a non-blocking send so a slow consumer never delays sampling.
func (r *Runner) send(u Update) {
	select {
	case r.updates <- u:
	default:
		r.logger.Debug("update channel full, dropping update", "time", u.Timestamp)
	}
}

// CollectOnce runs every collector once and appends their samples at now.
// Collector errors and panics are recorded in status and in the returned
// Update; they never stop the other collectors.
func (r *Runner) CollectOnce(ctx context.Context, now time.Time) Update {
	interval := r.tickInterval()
	u := Update{Timestamp: now, Interval: interval}

	for _, c := range r.registry.All() {
		name := c.Name()
		start := time.Now()
		cctx, cancel := context.WithTimeout(ctx, interval)
		res, err := safeCollect(cctx, c)
		cancel()
		latency := time.Since(start)

		r.registry.updateStatus(name, func(s *CollectorStatus) {
			s.LastRun = start
			s.RunCount++
			s.LastLatency = latency
			if err != nil {
				s.ErrorCount++
				s.LastError = err.Error()
				s.Healthy = false
			} else {
				s.LastError = ""
				s.Healthy = true
			}
		})

		if err != nil {
			r.logCollectorError(name, err)
			u.Errors = append(u.Errors, CollectorFail{Collector: name, Error: err.Error()})
			continue
		}
		if res == nil {
			continue
		}
		for _, w := range res.Warnings {
			r.logger.Debug("collector warning", "collector", name, "warning", w)
		}
		for _, s := range res.Samples {
			if err := r.append(s, now); err != nil {
				r.logger.Debug("append failed", "collector", name, "series", s.Series, "error", err)
				continue
			}
			u.Samples = append(u.Samples, s)
		}
	}
	return u
}

// append stores one sample, registering undeclared series as raw.
func (r *Runner) append(s Sample, now time.Time) error {
	err := r.sink.Append(s.Series, now, s.Value)
	if !errors.Is(err, history.ErrUnknownSeries) {
		return err
	}
	if err := r.sink.Register(s.Series, history.UnitRaw); err != nil {
		return err
	}
	return r.sink.Append(s.Series, now, s.Value)
}

// safeCollect converts a collector panic into an error.
func safeCollect(ctx context.Context, c Collector) (res *CollectResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = fmt.Errorf("collector %s panicked: %v", c.Name(), p)
		}
	}()
	return c.Collect(ctx)
}

// logCollectorError deduplicates repeated identical errors from the same
// collector. If the same error message recurs within 1 hour, it is suppressed
// with a summary logged every 100 suppressions. Sub-second sampling would
// otherwise turn one broken source into thousands of log lines a minute.
func (r *Runner) logCollectorError(name string, err error) {
	msg := err.Error()
	tracker := r.errTrackers[name]
	if tracker == nil {
		tracker = &errTracker{}
		r.errTrackers[name] = tracker
	}
	now := time.Now()
	if msg == tracker.lastMsg && now.Sub(tracker.lastTime) < time.Hour {
		tracker.suppressed++
		if tracker.suppressed%100 == 0 {
			r.logger.Warn("collector error repeated", "collector", name, "repeated", tracker.suppressed, "error", err)
		}
		return
	}
	if tracker.suppressed > 0 {
		r.logger.Info("previous collector error repeated", "collector", name, "repeated", tracker.suppressed)
	}
	r.logger.Warn("collector error", "collector", name, "error", err)
	tracker.lastMsg = msg
	tracker.lastTime = now
	tracker.suppressed = 0
}

// Health returns a map of collector name to healthy status.
func (r *Runner) Health() map[string]bool {
	statuses := r.registry.AllStatus()
	result := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		result[s.Name] = s.Healthy
	}
	return result
}
