package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gitlab.com/tinyland/lab/loadgraph/cache"
	"gitlab.com/tinyland/lab/loadgraph/config"
	"gitlab.com/tinyland/lab/loadgraph/display/color"
	"gitlab.com/tinyland/lab/loadgraph/display/widgets"
	"gitlab.com/tinyland/lab/loadgraph/internal/format"
)

// statusNameWidth is the column width for series names in -status output.
const statusNameWidth = 10

// runStatus prints the daemon's last summary snapshot. It returns the exit
// code: 0 for a fresh snapshot, 1 when none exists or it is stale.
func runStatus(cfg *config.Config, w io.Writer, now time.Time) int {
	store, err := cache.NewStore(config.ExpandHome(cfg.Daemon.CacheDir), nil)
	if err != nil {
		fmt.Fprintf(w, "loadgraph: %v\n", err)
		return 1
	}
	snap, err := store.ReadSnapshot()
	if errors.Is(err, cache.ErrNoSnapshot) {
		fmt.Fprintf(w, "loadgraph: no snapshot in %s (is `loadgraph -serve` running?)\n", store.Dir())
		return 1
	}
	if err != nil {
		fmt.Fprintf(w, "loadgraph: %v\n", err)
		return 1
	}

	stale := snap.Stale(now, cfg.SummaryInterval())
	fmt.Fprint(w, formatStatus(snap, now, stale))
	if stale {
		return 1
	}
	return 0
}

// formatStatus renders the header line and one line per series.
func formatStatus(snap *cache.Snapshot, now time.Time, stale bool) string {
	header := fmt.Sprintf("loadgraph pid %d  interval %s  window %s  updated %s",
		snap.PID,
		format.FormatDuration(snap.Interval),
		format.FormatDuration(snap.Retention),
		format.FormatTimeSince(snap.WrittenAt),
	)
	if snap.Listen != "" {
		header += "  http://" + snap.Listen
	}
	if stale {
		header += fmt.Sprintf("  STALE (%s old)", format.FormatDuration(now.Sub(snap.WrittenAt).Truncate(time.Second)))
	}
	out := header + "\n"

	for _, sum := range snap.Series {
		name := format.PadRight(sum.Name, statusNameWidth)
		if sum.Count == 0 {
			out += name + " -\n"
			continue
		}
		lo, hi := sum.Range()
		spark := widgets.RenderSparkline(widgets.SparklineConfig{
			Values: snap.Sparklines[sum.Name],
			Width:  sparklineColumns,
			Min:    lo,
			Max:    hi,
			Color:  color.Series(sum.Name),
		})
		out += fmt.Sprintf("%s %s %s  ↓%s ↑%s\n",
			name,
			spark,
			format.PadRight(sum.Unit.Format(sum.Latest), 10),
			sum.Unit.Format(sum.Min),
			sum.Unit.Format(sum.Max),
		)
	}
	for _, c := range snap.Collectors {
		if !c.Healthy && c.LastError != "" {
			out += fmt.Sprintf("collector %s: %s\n", c.Name, c.LastError)
		}
	}
	return out
}
