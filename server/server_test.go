package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/tinyland/lab/loadgraph/collectors"
	"gitlab.com/tinyland/lab/loadgraph/config"
	"gitlab.com/tinyland/lab/loadgraph/history"
	"gitlab.com/tinyland/lab/loadgraph/timeseries"
)

var testNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

type fakeSetter struct {
	interval time.Duration
	err      error
}

func (f *fakeSetter) SetInterval(d time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.interval = d
	return nil
}

func (f *fakeSetter) Interval() time.Duration { return f.interval }

func testConfig() config.ServerConfig {
	cfg := config.DefaultConfig().Server
	cfg.Listen = "127.0.0.1:0"
	return cfg
}

// newTestServer returns a server over a store holding cpu (percent, two
// samples 1s apart ending at testNow) and an empty raw series.
func newTestServer(t *testing.T) (*Server, *history.Store, *fakeSetter) {
	t.Helper()
	store := history.New(5*time.Minute, time.Second, nil)
	require.NoError(t, store.Register("cpu", history.UnitPercentTenths))
	require.NoError(t, store.Register("empty", history.UnitRaw))
	require.NoError(t, store.Append("cpu", testNow.Add(-time.Second), 100))
	require.NoError(t, store.Append("cpu", testNow, 425))

	setter := &fakeSetter{interval: time.Second}
	srv := New(testConfig(), Deps{
		Store:    store,
		Interval: setter,
		Version:  "test",
		Now:      func() time.Time { return testNow },
		Status: func() []collectors.CollectorStatus {
			return []collectors.CollectorStatus{{Name: "sysmetrics", Healthy: true, RunCount: 3}}
		},
	})
	return srv, store, setter
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := do(t, srv.Handler(), http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode[healthBody](t, rec)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "test", body.Version)
	assert.Equal(t, 2, body.Series)
	require.Len(t, body.Collectors, 1)
	assert.Equal(t, "sysmetrics", body.Collectors[0].Name)
}

func TestHealth_Degraded(t *testing.T) {
	store := history.New(time.Minute, time.Second, nil)
	srv := New(testConfig(), Deps{
		Store:    store,
		Interval: &fakeSetter{interval: time.Second},
		Status: func() []collectors.CollectorStatus {
			return []collectors.CollectorStatus{{Name: "sysmetrics", Healthy: false}}
		},
	})
	rec := do(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, "degraded", decode[healthBody](t, rec).Status)
}

func TestSeriesList(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := do(t, srv.Handler(), http.MethodGet, "/api/series", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	sums := decode[[]history.Summary](t, rec)
	require.Len(t, sums, 2)
	assert.Equal(t, "cpu", sums[0].Name)
	assert.Equal(t, history.UnitPercentTenths, sums[0].Unit)
	assert.Equal(t, int64(425), sums[0].Latest)
	assert.Equal(t, 300, sums[0].Capacity)
	assert.Equal(t, "empty", sums[1].Name)
}

func TestSeries(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv.Handler(), http.MethodGet, "/api/series/cpu", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decode[history.Summary](t, rec)
	assert.Equal(t, int64(100), sum.Min)
	assert.Equal(t, int64(425), sum.Max)
	assert.Equal(t, 2, sum.Count)

	rec = do(t, srv.Handler(), http.MethodGet, "/api/series/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode[errorBody](t, rec).Error, `"nope"`)
}

func TestValue(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		name   string
		query  string
		status int
		value  int64
	}{
		{"default now", "", http.StatusOK, 425},
		{"micros midpoint", "?t=" + strconv.FormatInt(timeseries.Micros(testNow.Add(-500*time.Millisecond)), 10), http.StatusOK, 262},
		{"rfc3339 before span", "?t=" + testNow.Add(-time.Hour).Format(time.RFC3339), http.StatusOK, 100},
		{"bad time", "?t=yesterday", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv.Handler(), http.MethodGet, "/api/series/cpu/value"+tt.query, nil)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusOK {
				return
			}
			body := decode[valueBody](t, rec)
			assert.Equal(t, "cpu", body.Series)
			assert.Equal(t, tt.value, body.Value)
			assert.Equal(t, history.UnitPercentTenths.Format(tt.value), body.Formatted)
		})
	}
}

func TestGrid(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv.Handler(), http.MethodGet, "/api/series/cpu/grid", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[gridBody](t, rec)
	assert.Len(t, body.Values, defaultColumns)
	assert.Equal(t, 5*time.Second, body.Step, "300 x 1s window over 60 columns")
	assert.True(t, body.End.Equal(testNow))
	assert.Equal(t, defaultColumns-1, body.Lead)
	assert.Equal(t, int64(425), body.Values[defaultColumns-1])

	rec = do(t, srv.Handler(), http.MethodGet, "/api/series/cpu/grid?columns=3&step=500ms", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[gridBody](t, rec)
	assert.Equal(t, []int64{100, 262, 425}, body.Values)
	assert.Equal(t, 0, body.Lead)

	for _, q := range []string{"columns=0", "columns=abc", "columns=5000", "step=-1s", "step=fast", "end=never"} {
		rec = do(t, srv.Handler(), http.MethodGet, "/api/series/cpu/grid?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestSamples(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv.Handler(), http.MethodGet, "/api/series/cpu/samples", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[samplesBody](t, rec)
	require.Len(t, body.Samples, 2)
	assert.Equal(t, timeseries.Micros(testNow), body.Samples[1].Time)
	assert.Equal(t, int64(425), body.Samples[1].Value)

	rec = do(t, srv.Handler(), http.MethodGet, "/api/series/empty/samples", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"samples":[]`)
}

func TestGraph(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv.Handler(), http.MethodGet, "/api/series/cpu/graph.png?width=120&height=40", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG\r\n\x1a\n"))

	for _, q := range []string{"width=0", "height=99999", "width=x"} {
		rec = do(t, srv.Handler(), http.MethodGet, "/api/series/cpu/graph.png?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	rec = do(t, srv.Handler(), http.MethodGet, "/api/series/nope/graph.png", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInterval(t *testing.T) {
	srv, _, setter := newTestServer(t)

	rec := do(t, srv.Handler(), http.MethodGet, "/api/interval", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1s", decode[intervalBody](t, rec).Interval)

	rec = do(t, srv.Handler(), http.MethodPut, "/api/interval", strings.NewReader(`{"interval":"250ms"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "250ms", decode[intervalBody](t, rec).Interval)
	assert.Equal(t, 250*time.Millisecond, setter.interval)

	for _, body := range []string{`{"interval":"0s"}`, `{"interval":"soon"}`, `not json`} {
		rec = do(t, srv.Handler(), http.MethodPut, "/api/interval", strings.NewReader(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Equal(t, 250*time.Millisecond, setter.interval)
}

func TestInterval_SetterErrors(t *testing.T) {
	srv, _, setter := newTestServer(t)

	setter.err = fmt.Errorf("cpu: %w", timeseries.ErrOutOfMemory)
	rec := do(t, srv.Handler(), http.MethodPut, "/api/interval", strings.NewReader(`{"interval":"1ns"}`))
	assert.Equal(t, http.StatusInsufficientStorage, rec.Code)

	setter.err = fmt.Errorf("boom")
	rec = do(t, srv.Handler(), http.MethodPut, "/api/interval", strings.NewReader(`{"interval":"2s"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "boom", decode[errorBody](t, rec).Error)
	assert.Equal(t, time.Second, setter.interval)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := do(t, srv.Handler(), http.MethodDelete, "/api/series", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetrics(t *testing.T) {
	srv, _, _ := newTestServer(t)
	do(t, srv.Handler(), http.MethodGet, "/healthz", nil)

	rec := do(t, srv.Handler(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `loadgraph_series_latest{series="cpu",unit="percent"} 42.5`)
	assert.Contains(t, body, `loadgraph_series_min{series="cpu",unit="percent"} 10`)
	assert.Contains(t, body, `loadgraph_series_samples{series="empty",unit="raw"} 0`)
	assert.NotContains(t, body, `loadgraph_series_latest{series="empty"`)
	assert.Contains(t, body, `loadgraph_collector_healthy{collector="sysmetrics"} 1`)
	assert.Contains(t, body, `loadgraph_http_requests_total{code="200",method="GET"} 1`)
}

func TestDisabledRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics = false
	cfg.RemoteWrite = false
	srv := New(cfg, Deps{Store: history.New(time.Minute, time.Second, nil), Interval: &fakeSetter{}})

	assert.Equal(t, http.StatusNotFound, do(t, srv.Handler(), http.MethodGet, "/metrics", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv.Handler(), http.MethodPost, "/api/v1/write", nil).Code)
}

func TestStartStop(t *testing.T) {
	srv, _, _ := newTestServer(t)
	assert.Empty(t, srv.Addr())

	require.NoError(t, srv.Start())
	require.NoError(t, srv.Start(), "second start is a no-op")

	addr := srv.Addr()
	require.NotEmpty(t, addr)
	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	require.NoError(t, srv.Stop(ctx), "second stop is a no-op")

	_, err = http.Get("http://" + addr + "/healthz")
	assert.Error(t, err)
}

func TestStart_BadAddress(t *testing.T) {
	cfg := testConfig()
	cfg.Listen = "127.0.0.1:99999"
	srv := New(cfg, Deps{Store: history.New(time.Minute, time.Second, nil), Interval: &fakeSetter{}})
	assert.Error(t, srv.Start())
}
