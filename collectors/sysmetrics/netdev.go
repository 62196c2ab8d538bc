package sysmetrics

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// readNet returns receive and transmit throughput in bytes per second since
// the previous call. The first call, and any call where a counter went
// backwards (interface reset), only reseeds.
func (c *SysMetricsCollector) readNet() (rx, tx int64, ok bool, warning string) {
	f, err := c.openProcNetDev()
	if err != nil {
		return 0, 0, false, fmt.Sprintf("sysmetrics: open /proc/net/dev: %v", err)
	}
	defer f.Close()

	cur, err := parseNetDev(f, c.opts.NetInterface)
	if err != nil {
		return 0, 0, false, fmt.Sprintf("sysmetrics: %v", err)
	}
	now := c.now()

	prev, prevAt, had := c.prevNet, c.prevNetAt, c.hasNet
	c.prevNet, c.prevNetAt, c.hasNet = cur, now, true

	elapsed := now.Sub(prevAt)
	if !had || elapsed <= 0 || cur.rx < prev.rx || cur.tx < prev.tx {
		return 0, 0, false, ""
	}
	rx = int64(float64(cur.rx-prev.rx) / elapsed.Seconds())
	tx = int64(float64(cur.tx-prev.tx) / elapsed.Seconds())
	return rx, tx, true, ""
}

// parseNetDev sums byte counters from /proc/net/dev. With iface empty every
// interface except loopback is included.
//
// Format (after two header lines):
//
//	  eth0: 1234 10 0 0 0 0 0 0 5678 20 0 0 0 0 0 0
func parseNetDev(r io.Reader, iface string) (netCounters, error) {
	var total netCounters
	matched := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		name, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if iface != "" && name != iface {
			continue
		}
		if iface == "" && name == "lo" {
			continue
		}

		fields := strings.Fields(rest)
		if len(fields) < 9 {
			return netCounters{}, fmt.Errorf("/proc/net/dev: short line for %s", name)
		}
		rx, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return netCounters{}, fmt.Errorf("/proc/net/dev: parse %s rx: %w", name, err)
		}
		tx, err := strconv.ParseUint(fields[8], 10, 64)
		if err != nil {
			return netCounters{}, fmt.Errorf("/proc/net/dev: parse %s tx: %w", name, err)
		}
		total.rx += rx
		total.tx += tx
		matched = true
	}
	if err := scanner.Err(); err != nil {
		return netCounters{}, fmt.Errorf("/proc/net/dev: %w", err)
	}
	if iface != "" && !matched {
		return netCounters{}, fmt.Errorf("interface %s not found in /proc/net/dev", iface)
	}
	return total, nil
}
