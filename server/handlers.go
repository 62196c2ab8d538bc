package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"gitlab.com/tinyland/lab/loadgraph/collectors"
	"gitlab.com/tinyland/lab/loadgraph/display/color"
	"gitlab.com/tinyland/lab/loadgraph/display/plot"
	"gitlab.com/tinyland/lab/loadgraph/history"
	"gitlab.com/tinyland/lab/loadgraph/timeseries"
)

const (
	defaultColumns = 60
	maxColumns     = 4096
)

type healthBody struct {
	Status     string                       `json:"status"`
	Version    string                       `json:"version,omitempty"`
	Series     int                          `json:"series"`
	Collectors []collectors.CollectorStatus `json:"collectors,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := healthBody{
		Status:  "ok",
		Version: s.deps.Version,
		Series:  len(s.deps.Store.Names()),
	}
	if s.deps.Status != nil {
		body.Collectors = s.deps.Status()
		for _, st := range body.Collectors {
			if !st.Healthy {
				body.Status = "degraded"
			}
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSeriesList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Store.Summaries())
}

// summary looks up the {name} route variable, writing a 404 when unknown.
func (s *Server) summary(w http.ResponseWriter, r *http.Request) (history.Summary, bool) {
	name := mux.Vars(r)["name"]
	sum, ok := s.deps.Store.Summary(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown series %q", name)
	}
	return sum, ok
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	if sum, ok := s.summary(w, r); ok {
		writeJSON(w, http.StatusOK, sum)
	}
}

// parseTime accepts unix microseconds or RFC 3339. Empty means def.
func parseTime(v string, def time.Time) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	if us, err := strconv.ParseInt(v, 10, 64); err == nil {
		return timeseries.FromMicros(us), nil
	}
	return time.Parse(time.RFC3339Nano, v)
}

type valueBody struct {
	Series    string       `json:"series"`
	Time      time.Time    `json:"time"`
	Value     int64        `json:"value"`
	Unit      history.Unit `json:"unit"`
	Formatted string       `json:"formatted"`
}

func (s *Server) handleValue(w http.ResponseWriter, r *http.Request) {
	sum, ok := s.summary(w, r)
	if !ok {
		return
	}
	t, err := parseTime(r.URL.Query().Get("t"), s.deps.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "t: %v", err)
		return
	}
	v, _ := s.deps.Store.ValueAt(sum.Name, t)
	writeJSON(w, http.StatusOK, valueBody{
		Series:    sum.Name,
		Time:      t,
		Value:     v,
		Unit:      sum.Unit,
		Formatted: sum.Unit.Format(v),
	})
}

// gridParams reads columns, step and end from the query string. Step
// defaults to the series window spread over the columns.
func (s *Server) gridParams(r *http.Request, sum history.Summary, columnsKey string, def int) (end time.Time, columns int, step time.Duration, err error) {
	q := r.URL.Query()

	columns = def
	if v := q.Get(columnsKey); v != "" {
		columns, err = strconv.Atoi(v)
		if err != nil || columns < 1 || columns > maxColumns {
			return end, 0, 0, errors.New(columnsKey + " must be between 1 and " + strconv.Itoa(maxColumns))
		}
	}

	end, err = parseTime(q.Get("end"), s.deps.Now())
	if err != nil {
		return end, 0, 0, errors.New("end: " + err.Error())
	}

	if v := q.Get("step"); v != "" {
		step, err = time.ParseDuration(v)
		if err != nil || step <= 0 {
			return end, 0, 0, errors.New("step must be a positive duration")
		}
		return end, columns, step, nil
	}
	step = time.Second
	if window := sum.Window(); window > 0 {
		step = max(window/time.Duration(columns), time.Microsecond)
	}
	return end, columns, step, nil
}

type gridBody struct {
	Series string       `json:"series"`
	Unit   history.Unit `json:"unit"`
	history.Grid
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	sum, ok := s.summary(w, r)
	if !ok {
		return
	}
	end, columns, step, err := s.gridParams(r, sum, "columns", defaultColumns)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	g, _ := s.deps.Store.Grid(sum.Name, end, columns, step)
	writeJSON(w, http.StatusOK, gridBody{Series: sum.Name, Unit: sum.Unit, Grid: g})
}

type samplesBody struct {
	Series  string              `json:"series"`
	Unit    history.Unit        `json:"unit"`
	Samples []timeseries.Sample `json:"samples"`
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	sum, ok := s.summary(w, r)
	if !ok {
		return
	}
	samples, _ := s.deps.Store.Samples(sum.Name)
	if samples == nil {
		samples = []timeseries.Sample{}
	}
	writeJSON(w, http.StatusOK, samplesBody{Series: sum.Name, Unit: sum.Unit, Samples: samples})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	sum, ok := s.summary(w, r)
	if !ok {
		return
	}
	opt := plot.DefaultOptions()
	opt.Line = color.Series(sum.Name)
	q := r.URL.Query()
	for key, dst := range map[string]*int{"width": &opt.Width, "height": &opt.Height} {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > plot.MaxDimension {
				writeError(w, http.StatusBadRequest, "%s must be between 1 and %d", key, plot.MaxDimension)
				return
			}
			*dst = n
		}
	}

	end, columns, step, err := s.gridParams(r, sum, "columns", opt.Width)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	g, _ := s.deps.Store.Grid(sum.Name, end, columns, step)
	lo, hi := sum.Range()
	img, err := plot.Render(g, lo, hi, opt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := plot.Encode(w, img); err != nil {
		s.logger.Warn("graph encode failed", "series", sum.Name, "error", err)
	}
}

type intervalBody struct {
	Interval string `json:"interval"`
}

func (s *Server) handleGetInterval(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, intervalBody{Interval: s.deps.Interval.Interval().String()})
}

func (s *Server) handlePutInterval(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	var body intervalBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "decode: %v", err)
		return
	}
	d, err := time.ParseDuration(body.Interval)
	if err != nil || d <= 0 {
		writeError(w, http.StatusBadRequest, "interval must be a positive duration, got %q", body.Interval)
		return
	}
	if err := s.deps.Interval.SetInterval(d); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, timeseries.ErrOutOfMemory) {
			status = http.StatusInsufficientStorage
		}
		writeError(w, status, "%v", err)
		return
	}
	s.logger.Info("sampling interval changed", "interval", d, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, intervalBody{Interval: s.deps.Interval.Interval().String()})
}
