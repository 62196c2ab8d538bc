package server

import (
	"errors"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"

	"gitlab.com/tinyland/lab/loadgraph/history"
)

// seriesKey names a remote-write series: the metric name followed by its
// other labels sorted by name, e.g. "node_load1,instance=a,job=node".
func seriesKey(labels []prompb.Label) string {
	var name string
	rest := make([]prompb.Label, 0, len(labels))
	for _, l := range labels {
		if l.Name == "__name__" {
			name = l.Value
			continue
		}
		rest = append(rest, l)
	}
	if name == "" {
		return ""
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].Name < rest[j].Name })

	var b strings.Builder
	b.WriteString(name)
	for _, l := range rest {
		b.WriteByte(',')
		b.WriteString(l.Name)
		b.WriteByte('=')
		b.WriteString(l.Value)
	}
	return b.String()
}

func (s *Server) handleRemoteWrite(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: %v", err)
		return
	}
	decoded, err := snappy.Decode(nil, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "snappy: %v", err)
		return
	}
	var req prompb.WriteRequest
	if err := req.Unmarshal(decoded); err != nil {
		writeError(w, http.StatusBadRequest, "decode write request: %v", err)
		return
	}

	accepted := s.ingest(&req)
	s.logger.Debug("remote write", "series", len(req.Timeseries), "accepted", accepted)
	w.WriteHeader(http.StatusNoContent)
}

// ingest appends every usable sample in req and returns how many were
// stored. Rejections are counted by reason, never returned.
func (s *Server) ingest(req *prompb.WriteRequest) int {
	accepted := 0
	for i := range req.Timeseries {
		ts := &req.Timeseries[i]
		key := seriesKey(ts.Labels)
		if key == "" {
			s.metrics.remoteRejected.WithLabelValues("no_name").Add(float64(len(ts.Samples)))
			continue
		}
		if _, ok := s.deps.Store.Unit(key); !ok {
			if err := s.deps.Store.Register(key, history.UnitRaw); err != nil {
				s.logger.Warn("remote write register failed", "series", key, "error", err)
				s.metrics.remoteRejected.WithLabelValues("register").Add(float64(len(ts.Samples)))
				continue
			}
			s.metrics.remoteRegistered.Inc()
		}

		for _, sample := range ts.Samples {
			if math.IsNaN(sample.Value) || math.IsInf(sample.Value, 0) {
				s.metrics.remoteRejected.WithLabelValues("not_finite").Inc()
				continue
			}
			v := math.Round(sample.Value * s.cfg.RemoteWriteScale)
			if v >= math.MaxInt64 || v < math.MinInt64 {
				s.metrics.remoteRejected.WithLabelValues("overflow").Inc()
				continue
			}
			err := s.deps.Store.Append(key, time.UnixMilli(sample.Timestamp), int64(v))
			switch {
			case err == nil:
				accepted++
				s.metrics.remoteAccepted.Inc()
			case errors.Is(err, history.ErrOutOfOrder):
				s.metrics.remoteRejected.WithLabelValues("out_of_order").Inc()
			default:
				s.logger.Warn("remote write append failed", "series", key, "error", err)
				s.metrics.remoteRejected.WithLabelValues("append").Inc()
			}
		}
	}
	return accepted
}
