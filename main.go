// loadgraph samples system load into bounded in-memory time series and
// shows them as live terminal graphs, over an HTTP API, or both.
//
// Usage:
//
//	loadgraph [flags]
//
// Flags:
//
//	-tui              Launch the interactive graph dashboard
//	-serve            Run the sampling daemon and HTTP API
//	-status           Print the running daemon's last summary and exit
//	-config string    Path to configuration file (default: ~/.config/loadgraph/config.yaml)
//	-interval string  Override sampling.interval (e.g. 250ms)
//	-retention string Override sampling.retention (e.g. 10m)
//	-verbose          Enable debug logging
//	-version          Print version and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"gitlab.com/tinyland/lab/loadgraph/config"
	"gitlab.com/tinyland/lab/loadgraph/display/color"
	"gitlab.com/tinyland/lab/loadgraph/display/tui"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file (default: ~/.config/loadgraph/config.yaml)")
		runTUI      = flag.Bool("tui", false, "Launch the interactive graph dashboard")
		runServe    = flag.Bool("serve", false, "Run the sampling daemon and HTTP API")
		showStatus  = flag.Bool("status", false, "Print the running daemon's last summary and exit")
		interval    = flag.String("interval", "", "Override sampling.interval (e.g. 250ms)")
		retention   = flag.String("retention", "", "Override sampling.retention (e.g. 10m)")
		verbose     = flag.Bool("verbose", false, "Enable debug logging")
		showVersion = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("loadgraph %s (%s) built %s\n", version, commit, date)
		os.Exit(0)
	}

	path := *configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(cfg, *interval, *retention)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	if *showStatus {
		color.Apply()
		os.Exit(runStatus(cfg, os.Stdout, time.Now()))
	}

	if !*runTUI && !*runServe {
		fmt.Printf("loadgraph %s (%s) built %s\n", version, commit, date)
		fmt.Println()
		fmt.Println("Usage: loadgraph [flags]")
		fmt.Println()
		flag.PrintDefaults()
		os.Exit(0)
	}

	logger, closeLog, err := newLogger(cfg, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(cfg, logger, daemonOptions{Serve: *runServe, TUI: *runTUI})
	if err != nil {
		fmt.Fprintf(os.Stderr, "daemon init failed: %v\n", err)
		os.Exit(1)
	}

	if *runTUI {
		os.Exit(runDashboard(ctx, stop, d, cfg))
	}

	fmt.Fprintf(os.Stderr, "starting loadgraph %s on %s\n", version, cfg.Server.Listen)
	if err := d.run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "daemon error: %v\n", err)
		os.Exit(1)
	}
}

// applyOverrides replaces config values with non-empty flag values.
func applyOverrides(cfg *config.Config, interval, retention string) {
	if interval != "" {
		cfg.Sampling.Interval = interval
	}
	if retention != "" {
		cfg.Sampling.Retention = retention
	}
}

// parseLevel maps a config log level onto slog. Unknown values mean info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger opens the configured log file. Logs never go to the terminal,
// which belongs to the TUI.
func newLogger(cfg *config.Config, verbose bool) (*slog.Logger, func(), error) {
	level := parseLevel(cfg.Daemon.LogLevel)
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	logPath := config.ExpandHome(cfg.Daemon.LogFile)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return slog.New(slog.NewTextHandler(f, opts)), func() { f.Close() }, nil
}

// runDashboard runs the daemon in the background and the TUI in the
// foreground. Quitting the TUI stops the daemon.
func runDashboard(ctx context.Context, stop context.CancelFunc, d *daemon, cfg *config.Config) int {
	defer func() {
		if r := recover(); r != nil {
			// Attempt to restore terminal from alt-screen before printing error.
			fmt.Print("\x1b[?1049l\x1b[?25h")
			fmt.Fprintf(os.Stderr, "loadgraph: TUI panic: %v\n", r)
			os.Exit(1)
		}
	}()

	color.Apply()

	done := make(chan error, 1)
	go func() { done <- d.run(ctx) }()

	saveDir := config.ExpandHome(cfg.Daemon.CacheDir)
	if saveDir != "" {
		if err := os.MkdirAll(saveDir, 0o700); err != nil {
			saveDir = ""
		}
	}
	model := tui.New(d.store, d.Updates(), tui.Options{
		Presets:     cfg.Presets(),
		GraphHeight: cfg.Display.GraphHeight,
		Series:      cfg.Display.Series,
		SaveDir:     saveDir,
	})
	model.SetIntervalSetter(d.runner)

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, tuiErr := p.Run()
	interrupted := ctx.Err() != nil

	stop()
	runErr := <-done

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "daemon error: %v\n", runErr)
		return 1
	}
	if tuiErr != nil && !interrupted {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", tuiErr)
		return 1
	}
	return 0
}
