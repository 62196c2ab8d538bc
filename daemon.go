package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"

	"gitlab.com/tinyland/lab/loadgraph/cache"
	"gitlab.com/tinyland/lab/loadgraph/collectors"
	"gitlab.com/tinyland/lab/loadgraph/collectors/retry"
	"gitlab.com/tinyland/lab/loadgraph/collectors/sysmetrics"
	"gitlab.com/tinyland/lab/loadgraph/config"
	"gitlab.com/tinyland/lab/loadgraph/history"
	"gitlab.com/tinyland/lab/loadgraph/server"
)

const (
	lockFileName = "loadgraph.pid"

	// sparklineColumns is the width of the per-series grid in snapshots.
	sparklineColumns = 24

	shutdownTimeout = 5 * time.Second
)

// daemonOptions selects which outputs the daemon feeds.
type daemonOptions struct {
	// Serve starts the HTTP API, takes the PID lock and writes summary
	// snapshots.
	Serve bool
	// TUI makes Updates return a channel fed with every runner update.
	TUI bool
}

// daemon owns the sampling pipeline: collectors feed the runner, the runner
// appends to the history store, and every update is fanned out to the HTTP
// server and the TUI.
type daemon struct {
	config   *config.Config
	logger   *slog.Logger
	opts     daemonOptions
	store    *history.Store
	registry *collectors.Registry
	runner   *collectors.Runner
	server   *server.Server
	cache    *cache.Store
	lock     *flock.Flock
	tui      chan collectors.Update
	now      func() time.Time
}

// newDaemon wires the pipeline from the configuration. Nothing runs until run.
func newDaemon(cfg *config.Config, logger *slog.Logger, opts daemonOptions) (*daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}

	store := history.New(cfg.SamplingRetention(), cfg.SamplingInterval(), logger)
	registry := buildRegistry(cfg, logger)
	runner := collectors.NewRunner(registry, store, logger)

	d := &daemon{
		config:   cfg,
		logger:   logger,
		opts:     opts,
		store:    store,
		registry: registry,
		runner:   runner,
		now:      time.Now,
	}

	if opts.TUI {
		d.tui = make(chan collectors.Update, collectors.DefaultUpdateBufferSize)
	}

	if opts.Serve {
		dir := config.ExpandHome(cfg.Daemon.CacheDir)
		cs, err := cache.NewStore(dir, logger)
		if err != nil {
			return nil, fmt.Errorf("daemon: %w", err)
		}
		d.cache = cs
		d.lock = flock.New(filepath.Join(dir, lockFileName))
		d.server = server.New(cfg.Server, server.Deps{
			Store:    store,
			Interval: runner,
			Status:   registry.AllStatus,
			Version:  version,
			Logger:   logger,
		})
	}
	return d, nil
}

// buildRegistry registers every enabled collector behind a circuit breaker.
func buildRegistry(cfg *config.Config, logger *slog.Logger) *collectors.Registry {
	registry := collectors.NewRegistry()
	reset, maxReset := cfg.BreakerTimeouts()
	breaker := retry.Config{
		MaxFailures:     cfg.Collectors.Breaker.MaxFailures,
		ResetTimeout:    reset,
		MaxResetTimeout: maxReset,
		Logger:          logger,
	}

	if sm := cfg.Collectors.SysMetrics; sm.Enabled {
		c := sysmetrics.NewSysMetricsCollector(sysmetrics.Options{
			DiskPath:     sm.DiskPath,
			NetInterface: sm.NetInterface,
		}, logger)
		registry.Register(retry.NewCircuitBreaker(c, breaker))
	}
	return registry
}

// Updates returns the TUI feed, or nil when the daemon was built without TUI.
// The channel is closed when run returns.
func (d *daemon) Updates() <-chan collectors.Update {
	return d.tui
}

// acquireLock takes the single-instance lock and records our PID in it.
func (d *daemon) acquireLock() error {
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("daemon: lock %s: %w", d.lock.Path(), err)
	}
	if !ok {
		pid := "unknown"
		if data, err := os.ReadFile(d.lock.Path()); err == nil && len(data) > 0 {
			pid = string(data)
		}
		return fmt.Errorf("daemon: already running (PID %s, lock %s)", pid, d.lock.Path())
	}
	if err := os.WriteFile(d.lock.Path(), []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		d.logger.Warn("failed to record PID", "path", d.lock.Path(), "error", err)
	}
	d.logger.Info("acquired lock", "path", d.lock.Path(), "pid", os.Getpid())
	return nil
}

func (d *daemon) releaseLock() {
	if err := os.Remove(d.lock.Path()); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("failed to remove lock file", "path", d.lock.Path(), "error", err)
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Error("failed to release lock", "path", d.lock.Path(), "error", err)
	}
}

// run samples until ctx is cancelled, then shuts everything down.
func (d *daemon) run(ctx context.Context) error {
	if d.tui != nil {
		defer close(d.tui)
	}

	if d.lock != nil {
		if err := d.acquireLock(); err != nil {
			return err
		}
		defer d.releaseLock()
	}

	if err := d.runner.Start(ctx); err != nil {
		return fmt.Errorf("daemon: start runner: %w", err)
	}
	defer d.runner.Stop()

	if d.server != nil {
		if err := d.server.Start(); err != nil {
			return fmt.Errorf("daemon: %w", err)
		}
		defer d.stopServer()
	}

	var summaryC <-chan time.Time
	if d.cache != nil {
		ticker := time.NewTicker(d.config.SummaryInterval())
		defer ticker.Stop()
		summaryC = ticker.C
	}

	d.logger.Info("daemon started",
		"interval", d.store.Interval(),
		"retention", d.store.Retention(),
		"collectors", d.registry.List(),
	)

	updates := d.runner.Updates()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon shutting down gracefully")
			d.writeSummary()
			return nil
		case u := <-updates:
			d.fanOut(u)
		case <-summaryC:
			d.writeSummary()
		}
	}
}

func (d *daemon) stopServer() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.server.Stop(ctx); err != nil {
		d.logger.Error("server shutdown failed", "error", err)
	}
}

// fanOut forwards a runner update to the websocket clients and the TUI. The
// TUI send never blocks sampling; a stale frame is simply skipped.
func (d *daemon) fanOut(u collectors.Update) {
	if d.server != nil {
		d.server.Broadcast(u)
	}
	if d.tui != nil {
		select {
		case d.tui <- u:
		default:
			d.logger.Debug("tui update channel full, dropping update", "time", u.Timestamp)
		}
	}
}

// snapshot captures the store for `loadgraph -status`.
func (d *daemon) snapshot() *cache.Snapshot {
	now := d.now()
	snap := &cache.Snapshot{
		WrittenAt:  now,
		PID:        os.Getpid(),
		Interval:   d.store.Interval(),
		Retention:  d.store.Retention(),
		Series:     d.store.Summaries(),
		Collectors: d.registry.AllStatus(),
		Sparklines: make(map[string][]int64),
	}
	if d.server != nil {
		snap.Listen = d.server.Addr()
	}
	for _, sum := range snap.Series {
		if sum.Count == 0 {
			continue
		}
		step := max(sum.Window()/sparklineColumns, time.Microsecond)
		if g, ok := d.store.Grid(sum.Name, now, sparklineColumns, step); ok {
			snap.Sparklines[sum.Name] = g.Values[g.Lead:]
		}
	}
	return snap
}

func (d *daemon) writeSummary() {
	if d.cache == nil {
		return
	}
	if err := d.cache.WriteSnapshot(d.snapshot()); err != nil {
		d.logger.Error("summary write failed", "error", err)
		return
	}
	d.logger.Debug("summary written", "dir", d.cache.Dir())
}
