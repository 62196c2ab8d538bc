package sysmetrics

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"gitlab.com/tinyland/lab/loadgraph/collectors"
	"gitlab.com/tinyland/lab/loadgraph/history"
)

const (
	// collectorName is the unique identifier for this collector.
	collectorName = "sysmetrics"

	// collectorDescription describes what this collector gathers.
	collectorDescription = "Local system metrics (CPU, RAM, swap, disk, load average, network)"
)

// SysMetricsCollector implements collectors.Collector for local system metrics.
// CPU and network are rates, so they need a previous reading; the first
// Collect only seeds them and reports the instantaneous series.
type SysMetricsCollector struct {
	logger *slog.Logger
	opts   Options

	prevCPU cpuTimes
	hasCPU  bool

	prevNet   netCounters
	prevNetAt time.Time
	hasNet    bool

	// Overridable file openers and clock for testing.
	openProcStat    func() (io.ReadCloser, error)
	openProcMeminfo func() (io.ReadCloser, error)
	openProcLoadavg func() (io.ReadCloser, error)
	openProcNetDev  func() (io.ReadCloser, error)
	statfsFunc      func(path string, buf *unix.Statfs_t) error
	now             func() time.Time
}

// NewSysMetricsCollector creates a SysMetricsCollector.
// If logger is nil, a no-op logger is used.
func NewSysMetricsCollector(opts Options, logger *slog.Logger) *SysMetricsCollector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.DiskPath == "" {
		opts.DiskPath = "/"
	}

	return &SysMetricsCollector{
		logger: logger,
		opts:   opts,
		openProcStat: func() (io.ReadCloser, error) {
			return os.Open("/proc/stat")
		},
		openProcMeminfo: func() (io.ReadCloser, error) {
			return os.Open("/proc/meminfo")
		},
		openProcLoadavg: func() (io.ReadCloser, error) {
			return os.Open("/proc/loadavg")
		},
		openProcNetDev: func() (io.ReadCloser, error) {
			return os.Open("/proc/net/dev")
		},
		statfsFunc: unix.Statfs,
		now:        time.Now,
	}
}

// Name returns the collector's unique identifier.
func (c *SysMetricsCollector) Name() string {
	return collectorName
}

// Description returns a human-readable description of what this collector gathers.
func (c *SysMetricsCollector) Description() string {
	return collectorDescription
}

// Series lists every series this collector reports.
func (c *SysMetricsCollector) Series() []collectors.SeriesInfo {
	return []collectors.SeriesInfo{
		{Name: SeriesCPU, Unit: history.UnitPercentTenths, Description: "CPU busy time"},
		{Name: SeriesRAM, Unit: history.UnitPercentTenths, Description: "memory in use"},
		{Name: SeriesSwap, Unit: history.UnitPercentTenths, Description: "swap in use"},
		{Name: SeriesDisk, Unit: history.UnitPercentTenths, Description: "usage of " + c.opts.DiskPath},
		{Name: SeriesLoad1, Unit: history.UnitHundredths, Description: "1 minute load average"},
		{Name: SeriesLoad5, Unit: history.UnitHundredths, Description: "5 minute load average"},
		{Name: SeriesLoad15, Unit: history.UnitHundredths, Description: "15 minute load average"},
		{Name: SeriesNetRx, Unit: history.UnitBytesPerSecond, Description: "network receive rate"},
		{Name: SeriesNetTx, Unit: history.UnitBytesPerSecond, Description: "network transmit rate"},
	}
}

// Collect reads every source once. A source that fails adds a warning and
// its series are simply absent from the result.
func (c *SysMetricsCollector) Collect(ctx context.Context) (*collectors.CollectResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	res := &collectors.CollectResult{Collector: collectorName}
	add := func(series string, v int64) {
		res.Samples = append(res.Samples, collectors.Sample{Series: series, Value: v})
	}
	warn := func(w string) {
		if w != "" {
			res.Warnings = append(res.Warnings, w)
		}
	}

	cpu, ok, w := c.readCPU()
	warn(w)
	if ok {
		add(SeriesCPU, cpu)
	}

	ram, swap, hasSwap, w := c.readMemory()
	warn(w)
	if w == "" {
		add(SeriesRAM, ram)
		if hasSwap {
			add(SeriesSwap, swap)
		}
	}

	disk, w := c.readDisk()
	warn(w)
	if w == "" {
		add(SeriesDisk, disk)
	}

	loads, w := c.readLoadAvg()
	warn(w)
	if w == "" {
		add(SeriesLoad1, loads[0])
		add(SeriesLoad5, loads[1])
		add(SeriesLoad15, loads[2])
	}

	rx, tx, ok, w := c.readNet()
	warn(w)
	if ok {
		add(SeriesNetRx, rx)
		add(SeriesNetTx, tx)
	}

	res.Timestamp = c.now()
	c.logger.Debug("sysmetrics collected",
		"samples", len(res.Samples),
		"warnings", len(res.Warnings),
	)
	return res, nil
}

// readCPU reads /proc/stat and returns busy time since the previous call in
// percent tenths. The first call only seeds the counters.
func (c *SysMetricsCollector) readCPU() (int64, bool, string) {
	f, err := c.openProcStat()
	if err != nil {
		return 0, false, fmt.Sprintf("sysmetrics: open /proc/stat: %v", err)
	}
	defer f.Close()

	cur, err := parseProcStat(f)
	if err != nil {
		return 0, false, fmt.Sprintf("sysmetrics: %v", err)
	}

	prev, had := c.prevCPU, c.hasCPU
	c.prevCPU, c.hasCPU = cur, true
	if !had || cur.total <= prev.total || cur.idle < prev.idle {
		return 0, false, ""
	}

	deltaTotal := cur.total - prev.total
	deltaIdle := cur.idle - prev.idle
	if deltaIdle > deltaTotal {
		deltaIdle = deltaTotal
	}
	return percentTenths(deltaTotal-deltaIdle, deltaTotal), true, ""
}

func parseProcStat(r io.Reader) (cpuTimes, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}

		// Fields: cpu user nice system idle iowait irq softirq steal ...
		fields := strings.Fields(line)
		if len(fields) < 5 {
			return cpuTimes{}, fmt.Errorf("/proc/stat cpu line too short")
		}
		var t cpuTimes
		for i := 1; i < len(fields); i++ {
			val, err := strconv.ParseUint(fields[i], 10, 64)
			if err != nil {
				return cpuTimes{}, fmt.Errorf("parse /proc/stat field %d: %w", i, err)
			}
			t.total += val
			if i == 4 {
				t.idle = val
			}
		}
		return t, nil
	}
	return cpuTimes{}, fmt.Errorf("cpu line not found in /proc/stat")
}

// readMemory reads /proc/meminfo. RAM usage is MemTotal - MemAvailable;
// swap is only reported when SwapTotal is non-zero.
func (c *SysMetricsCollector) readMemory() (ram, swap int64, hasSwap bool, warning string) {
	f, err := c.openProcMeminfo()
	if err != nil {
		return 0, 0, false, fmt.Sprintf("sysmetrics: open /proc/meminfo: %v", err)
	}
	defer f.Close()

	want := map[string]*uint64{}
	var memTotal, memAvailable, swapTotal, swapFree uint64
	want["MemTotal"] = &memTotal
	want["MemAvailable"] = &memAvailable
	want["SwapTotal"] = &swapTotal
	want["SwapFree"] = &swapFree
	found := map[string]bool{}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() && len(found) < len(want) {
		key, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		dst, ok := want[key]
		if !ok {
			continue
		}
		val, err := parseMemInfoValue(rest)
		if err != nil {
			return 0, 0, false, fmt.Sprintf("sysmetrics: parse %s: %v", key, err)
		}
		*dst = val
		found[key] = true
	}

	if !found["MemTotal"] {
		return 0, 0, false, "sysmetrics: MemTotal not found in /proc/meminfo"
	}
	if !found["MemAvailable"] {
		return 0, 0, false, "sysmetrics: MemAvailable not found in /proc/meminfo"
	}
	if memTotal == 0 {
		return 0, 0, false, "sysmetrics: MemTotal is zero"
	}

	ram = percentTenths(memTotal-min(memAvailable, memTotal), memTotal)
	if swapTotal > 0 {
		swap = percentTenths(swapTotal-min(swapFree, swapTotal), swapTotal)
		hasSwap = true
	}
	return ram, swap, hasSwap, ""
}

// parseMemInfoValue extracts the numeric kB value from the part of a
// /proc/meminfo line after the colon: "       16384000 kB".
func parseMemInfoValue(s string) (uint64, error) {
	fields := strings.Fields(s)
	if len(fields) < 1 {
		return 0, fmt.Errorf("missing value")
	}
	return strconv.ParseUint(fields[0], 10, 64)
}

// readDisk uses statfs to compute filesystem usage in percent tenths.
func (c *SysMetricsCollector) readDisk() (int64, string) {
	var stat unix.Statfs_t
	if err := c.statfsFunc(c.opts.DiskPath, &stat); err != nil {
		return 0, fmt.Sprintf("sysmetrics: statfs %s: %v", c.opts.DiskPath, err)
	}

	if stat.Blocks == 0 {
		return 0, "sysmetrics: filesystem reports zero blocks"
	}

	// Bavail excludes blocks reserved for root, matching df.
	used := uint64(stat.Blocks) - uint64(stat.Bfree)
	total := used + uint64(stat.Bavail)
	return percentTenths(used, total), ""
}

// readLoadAvg reads /proc/loadavg and returns the 1, 5 and 15 minute load
// averages in hundredths.
func (c *SysMetricsCollector) readLoadAvg() ([3]int64, string) {
	var out [3]int64
	f, err := c.openProcLoadavg()
	if err != nil {
		return out, fmt.Sprintf("sysmetrics: open /proc/loadavg: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return out, "sysmetrics: /proc/loadavg is empty"
	}

	fields := strings.Fields(scanner.Text())
	if len(fields) < 3 {
		return out, "sysmetrics: /proc/loadavg too few fields"
	}

	for i, name := range []string{"load1", "load5", "load15"} {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return [3]int64{}, fmt.Sprintf("sysmetrics: parse %s: %v", name, err)
		}
		out[i] = int64(math.Round(v * 100))
	}
	return out, ""
}

// Compile-time interface compliance check.
var _ collectors.Collector = (*SysMetricsCollector)(nil)
