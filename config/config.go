// Package config provides configuration parsing for loadgraph.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the loadgraph configuration.
type Config struct {
	// Sampling controls how often collectors run and how much history is kept.
	Sampling SamplingConfig `yaml:"sampling"`

	// Collectors holds per-collector settings.
	Collectors CollectorsConfig `yaml:"collectors"`

	// Display holds TUI and graph rendering settings.
	Display DisplayConfig `yaml:"display"`

	// Server holds HTTP API settings.
	Server ServerConfig `yaml:"server"`

	// Daemon holds process-level settings.
	Daemon DaemonConfig `yaml:"daemon"`
}

// SamplingConfig holds sampling cadence settings.
type SamplingConfig struct {
	// Interval is a duration string (e.g. "1s", "250ms") between samples.
	Interval string `yaml:"interval"`
	// Retention is a duration string for how much history each series holds.
	// Capacity is retention / interval samples.
	Retention string `yaml:"retention"`
}

// CollectorsConfig holds per-collector settings.
type CollectorsConfig struct {
	// SysMetrics configures the local /proc collector.
	SysMetrics SysMetricsConfig `yaml:"sysmetrics"`
	// Breaker configures the circuit breaker wrapped around every collector.
	Breaker BreakerConfig `yaml:"breaker"`
}

// SysMetricsConfig configures the local system metrics collector.
type SysMetricsConfig struct {
	// Enabled controls whether the collector runs.
	Enabled bool `yaml:"enabled"`
	// DiskPath is the mount point whose usage is graphed.
	DiskPath string `yaml:"disk_path"`
	// NetInterface restricts throughput to one interface; empty sums all
	// non-loopback interfaces.
	NetInterface string `yaml:"net_interface"`
}

// BreakerConfig configures collector circuit breakers.
type BreakerConfig struct {
	// MaxFailures is the consecutive failure count that opens the circuit.
	MaxFailures int `yaml:"max_failures"`
	// ResetTimeout is a duration string for the first open period.
	ResetTimeout string `yaml:"reset_timeout"`
	// MaxResetTimeout is a duration string capping the backoff.
	MaxResetTimeout string `yaml:"max_reset_timeout"`
}

// DisplayConfig holds TUI and graph rendering settings.
type DisplayConfig struct {
	// GraphHeight is the number of terminal rows per graph.
	GraphHeight int `yaml:"graph_height"`
	// IntervalPresets are the intervals the +/- keys step through.
	IntervalPresets []string `yaml:"interval_presets"`
	// Series limits and orders the series shown; empty shows all.
	Series []string `yaml:"series"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	// Listen is the host:port the API binds to.
	Listen string `yaml:"listen"`
	// RemoteWrite enables the Prometheus remote-write ingest endpoint.
	RemoteWrite bool `yaml:"remote_write"`
	// RemoteWriteScale multiplies ingested float values before rounding
	// them to integers.
	RemoteWriteScale float64 `yaml:"remote_write_scale"`
	// Metrics enables the Prometheus /metrics endpoint.
	Metrics bool `yaml:"metrics"`
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// DaemonConfig holds process-level settings.
type DaemonConfig struct {
	// CacheDir holds the PID lock and summary snapshots.
	CacheDir string `yaml:"cache_dir"`
	// LogFile is the path for log output.
	LogFile string `yaml:"log_file"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// SummaryInterval is a duration string between summary snapshot writes.
	SummaryInterval string `yaml:"summary_interval"`
}

// DefaultPath returns the default configuration file location.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "loadgraph", "config.yaml")
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		Sampling: SamplingConfig{
			Interval:  "1s",
			Retention: "5m",
		},
		Collectors: CollectorsConfig{
			SysMetrics: SysMetricsConfig{
				Enabled:  true,
				DiskPath: "/",
			},
			Breaker: BreakerConfig{
				MaxFailures:     5,
				ResetTimeout:    "5s",
				MaxResetTimeout: "2m",
			},
		},
		Display: DisplayConfig{
			GraphHeight:     4,
			IntervalPresets: []string{"100ms", "250ms", "500ms", "1s", "2s", "5s", "10s"},
		},
		Server: ServerConfig{
			Listen:           "127.0.0.1:9477",
			RemoteWrite:      true,
			RemoteWriteScale: 1,
			Metrics:          true,
			MaxBodyBytes:     10 * 1024 * 1024,
		},
		Daemon: DaemonConfig{
			CacheDir:        filepath.Join(home, ".cache", "loadgraph"),
			LogFile:         filepath.Join(home, ".local", "log", "loadgraph.log"),
			LogLevel:        "info",
			SummaryInterval: "10s",
		},
	}
}

// LoadConfig loads configuration from a YAML file, merging with defaults.
// A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return config, nil
}

// SaveConfig saves configuration to a YAML file.
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func positiveDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", field, s)
	}
	return d, nil
}

// Validate checks the configuration for required fields and logical consistency.
func (c *Config) Validate() error {
	interval, err := positiveDuration("sampling.interval", c.Sampling.Interval)
	if err != nil {
		return err
	}
	retention, err := positiveDuration("sampling.retention", c.Sampling.Retention)
	if err != nil {
		return err
	}
	if retention < interval {
		return fmt.Errorf("sampling.retention (%s) must be at least sampling.interval (%s)", c.Sampling.Retention, c.Sampling.Interval)
	}

	if c.Collectors.Breaker.MaxFailures < 1 {
		return fmt.Errorf("collectors.breaker.max_failures must be at least 1, got %d", c.Collectors.Breaker.MaxFailures)
	}
	if _, err := positiveDuration("collectors.breaker.reset_timeout", c.Collectors.Breaker.ResetTimeout); err != nil {
		return err
	}
	if _, err := positiveDuration("collectors.breaker.max_reset_timeout", c.Collectors.Breaker.MaxResetTimeout); err != nil {
		return err
	}

	if c.Display.GraphHeight < 1 || c.Display.GraphHeight > 20 {
		return fmt.Errorf("display.graph_height must be between 1 and 20, got %d", c.Display.GraphHeight)
	}
	if len(c.Display.IntervalPresets) == 0 {
		return fmt.Errorf("display.interval_presets must not be empty")
	}
	var prev time.Duration
	for i, p := range c.Display.IntervalPresets {
		d, err := positiveDuration(fmt.Sprintf("display.interval_presets[%d]", i), p)
		if err != nil {
			return err
		}
		if d <= prev {
			return fmt.Errorf("display.interval_presets must be strictly increasing, %q follows %s", p, prev)
		}
		prev = d
	}

	if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		return fmt.Errorf("server.listen: %w", err)
	}
	if c.Server.RemoteWriteScale <= 0 {
		return fmt.Errorf("server.remote_write_scale must be positive, got %v", c.Server.RemoteWriteScale)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}

	if c.Daemon.CacheDir == "" {
		return fmt.Errorf("daemon.cache_dir is required")
	}
	if c.Daemon.LogFile == "" {
		return fmt.Errorf("daemon.log_file is required")
	}
	switch strings.ToLower(c.Daemon.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("daemon.log_level must be 'debug', 'info', 'warn', or 'error', got %q", c.Daemon.LogLevel)
	}
	if _, err := positiveDuration("daemon.summary_interval", c.Daemon.SummaryInterval); err != nil {
		return err
	}

	return nil
}

// mustDuration parses a duration already checked by Validate, falling back
// to def when it cannot be parsed.
func mustDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// SamplingInterval returns the parsed sampling interval.
func (c *Config) SamplingInterval() time.Duration {
	return mustDuration(c.Sampling.Interval, time.Second)
}

// SamplingRetention returns the parsed retention window.
func (c *Config) SamplingRetention() time.Duration {
	return mustDuration(c.Sampling.Retention, 5*time.Minute)
}

// SummaryInterval returns the parsed summary snapshot interval.
func (c *Config) SummaryInterval() time.Duration {
	return mustDuration(c.Daemon.SummaryInterval, 10*time.Second)
}

// BreakerTimeouts returns the parsed circuit breaker timeouts.
func (c *Config) BreakerTimeouts() (reset, maxReset time.Duration) {
	return mustDuration(c.Collectors.Breaker.ResetTimeout, 5*time.Second),
		mustDuration(c.Collectors.Breaker.MaxResetTimeout, 2*time.Minute)
}

// Presets returns the parsed interval presets. Unparseable entries are skipped.
func (c *Config) Presets() []time.Duration {
	out := make([]time.Duration, 0, len(c.Display.IntervalPresets))
	for _, p := range c.Display.IntervalPresets {
		if d, err := time.ParseDuration(p); err == nil && d > 0 {
			out = append(out, d)
		}
	}
	return out
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
