// Package sysmetrics provides a local system metrics collector for loadgraph.
// It reads CPU, RAM, swap, disk, load average and network throughput from
// /proc (Linux) and reports them as fixed-point integer samples.
package sysmetrics

// Series names reported by the collector.
const (
	SeriesCPU    = "cpu"
	SeriesRAM    = "ram"
	SeriesSwap   = "swap"
	SeriesDisk   = "disk"
	SeriesLoad1  = "load1"
	SeriesLoad5  = "load5"
	SeriesLoad15 = "load15"
	SeriesNetRx  = "net_rx"
	SeriesNetTx  = "net_tx"
)

// Options selects what the collector measures.
type Options struct {
	// DiskPath is the mount point whose usage is reported. Defaults to "/".
	DiskPath string

	// NetInterface limits network throughput to one interface. Empty means
	// the sum of all non-loopback interfaces.
	NetInterface string
}

// cpuTimes is the aggregate "cpu" line of /proc/stat.
type cpuTimes struct {
	idle  uint64
	total uint64
}

// netCounters is a byte-counter reading from /proc/net/dev.
type netCounters struct {
	rx, tx uint64
}

// percentTenths returns part/whole as a percentage times 10, clamped to
// [0, 1000].
func percentTenths(part, whole uint64) int64 {
	if whole == 0 {
		return 0
	}
	if part >= whole {
		return 1000
	}
	return int64((part*1000 + whole/2) / whole)
}
