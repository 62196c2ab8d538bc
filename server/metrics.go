package server

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitlab.com/tinyland/lab/loadgraph/collectors"
)

var (
	seriesLabels    = []string{"series", "unit"}
	collectorLabels = []string{"collector"}

	descLatest   = prometheus.NewDesc("loadgraph_series_latest", "Newest stored sample, in unit scale.", seriesLabels, nil)
	descMin      = prometheus.NewDesc("loadgraph_series_min", "Smallest sample in the retention window, in unit scale.", seriesLabels, nil)
	descMax      = prometheus.NewDesc("loadgraph_series_max", "Largest sample in the retention window, in unit scale.", seriesLabels, nil)
	descSamples  = prometheus.NewDesc("loadgraph_series_samples", "Samples currently stored.", seriesLabels, nil)
	descCapacity = prometheus.NewDesc("loadgraph_series_capacity", "Samples the series can hold at the current interval.", seriesLabels, nil)
	descDropped  = prometheus.NewDesc("loadgraph_series_dropped_total", "Samples rejected as out of order.", seriesLabels, nil)

	descHealthy = prometheus.NewDesc("loadgraph_collector_healthy", "1 when the collector's last run succeeded.", collectorLabels, nil)
	descRuns    = prometheus.NewDesc("loadgraph_collector_runs_total", "Collector runs.", collectorLabels, nil)
	descErrors  = prometheus.NewDesc("loadgraph_collector_errors_total", "Collector runs that failed.", collectorLabels, nil)
)

// storeCollector exports the store's series summaries at scrape time.
type storeCollector struct {
	store  Store
	status func() []collectors.CollectorStatus
}

func (c storeCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{descLatest, descMin, descMax, descSamples, descCapacity, descDropped, descHealthy, descRuns, descErrors} {
		ch <- d
	}
}

func (c storeCollector) Collect(ch chan<- prometheus.Metric) {
	for _, sum := range c.store.Summaries() {
		unit := sum.Unit.String()
		if sum.Count > 0 {
			ch <- prometheus.MustNewConstMetric(descLatest, prometheus.GaugeValue, sum.Unit.Float(sum.Latest), sum.Name, unit)
			ch <- prometheus.MustNewConstMetric(descMin, prometheus.GaugeValue, sum.Unit.Float(sum.Min), sum.Name, unit)
			ch <- prometheus.MustNewConstMetric(descMax, prometheus.GaugeValue, sum.Unit.Float(sum.Max), sum.Name, unit)
		}
		ch <- prometheus.MustNewConstMetric(descSamples, prometheus.GaugeValue, float64(sum.Count), sum.Name, unit)
		ch <- prometheus.MustNewConstMetric(descCapacity, prometheus.GaugeValue, float64(sum.Capacity), sum.Name, unit)
		ch <- prometheus.MustNewConstMetric(descDropped, prometheus.CounterValue, float64(sum.Dropped), sum.Name, unit)
	}

	if c.status == nil {
		return
	}
	for _, st := range c.status() {
		healthy := 0.0
		if st.Healthy {
			healthy = 1
		}
		ch <- prometheus.MustNewConstMetric(descHealthy, prometheus.GaugeValue, healthy, st.Name)
		ch <- prometheus.MustNewConstMetric(descRuns, prometheus.CounterValue, float64(st.RunCount), st.Name)
		ch <- prometheus.MustNewConstMetric(descErrors, prometheus.CounterValue, float64(st.ErrorCount), st.Name)
	}
}

type metrics struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	remoteAccepted   prometheus.Counter
	remoteRejected   *prometheus.CounterVec
	remoteRegistered prometheus.Counter
}

func newMetrics(store Store, status func() []collectors.CollectorStatus) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loadgraph_http_requests_total",
			Help: "HTTP requests served, by method and status code.",
		}, []string{"method", "code"}),
		remoteAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loadgraph_remote_write_samples_total",
			Help: "Remote-write samples appended to the store.",
		}),
		remoteRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loadgraph_remote_write_rejected_total",
			Help: "Remote-write samples not appended, by reason.",
		}, []string{"reason"}),
		remoteRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loadgraph_remote_write_series_registered_total",
			Help: "Series created by remote write.",
		}),
	}
	m.registry.MustRegister(
		m.requests,
		m.remoteAccepted,
		m.remoteRejected,
		m.remoteRegistered,
		storeCollector{store: store, status: status},
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) observeRequest(method string, status int) {
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}
