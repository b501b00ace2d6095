package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hemtjan.st/meter2car/config"
	"hemtjan.st/meter2car/control"
	"hemtjan.st/meter2car/metrics"
)

type staticHealth control.Health

func (h staticHealth) Health() control.Health {
	return control.Health(h)
}

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthCheck(t *testing.T) {
	last := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	srv := NewServer(config.HTTPConfig{Addr: ":0"}, staticHealth{Healthy: true, LastSuccess: last, Iterations: 7}, nil)

	rec := serve(t, srv.Handler, "/healthcheck")
	require.Equal(t, http.StatusOK, rec.Code)

	var h control.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.True(t, h.Healthy)
	assert.Equal(t, uint64(7), h.Iterations)
	assert.True(t, last.Equal(h.LastSuccess))
}

func TestHealthCheckUnhealthy(t *testing.T) {
	srv := NewServer(config.HTTPConfig{}, staticHealth{LastError: "reading meter: timeout"}, nil)

	rec := serve(t, srv.Handler, "/healthcheck")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "reading meter: timeout")
}

func TestMetricsRoute(t *testing.T) {
	reg := metrics.NewRegistry()
	am := metrics.NewAppMetrics(reg)
	am.Resync()

	srv := NewServer(config.HTTPConfig{Log: true}, staticHealth{Healthy: true}, reg)
	rec := serve(t, srv.Handler, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "meter2car_hdlc_resync_bytes_total 1")

	noMetrics := NewServer(config.HTTPConfig{}, staticHealth{Healthy: true}, nil)
	assert.Equal(t, http.StatusNotFound, serve(t, noMetrics.Handler, "/metrics").Code)
}

func TestVersion(t *testing.T) {
	srv := NewServer(config.HTTPConfig{}, staticHealth{}, nil)
	rec := serve(t, srv.Handler, "/version")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "meter2car ")
}
