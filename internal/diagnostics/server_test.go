package diagnostics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlowrPro/Essence.io-frontend/internal/middleware"
)

func newTestServer(stats StatsProvider) *Server {
	reg := prometheus.NewRegistry()
	return NewServer(Config{ListenAddr: "127.0.0.1:0", Registerer: reg, Gatherer: reg}, stats, nil)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

// TestSessionEndpoint проверяет выдачу состояния сессии
func TestSessionEndpoint(t *testing.T) {
	srv := newTestServer(StatsFunc(func() any {
		return map[string]any{"phase": "live", "remote_players": 3}
	}))

	rec := get(t, srv.Handler(), "/debug/session")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "live", body["phase"])
	assert.EqualValues(t, 3, body["remote_players"])
	assert.NotEmpty(t, rec.Header().Get(middleware.TraceHeader))
}

// TestSessionEndpointWithoutSession проверяет ответ без активной сессии
func TestSessionEndpointWithoutSession(t *testing.T) {
	srv := newTestServer(nil)
	rec := get(t, srv.Handler(), "/debug/session")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// TestProcessEndpoint проверяет показатели процесса
func TestProcessEndpoint(t *testing.T) {
	srv := newTestServer(nil)
	rec := get(t, srv.Handler(), "/debug/process")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats ProcessStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Greater(t, stats.Goroutines, 0)
	assert.Greater(t, stats.SysMB, 0.0)
}

// TestMetricsEndpoint проверяет экспорт HTTP метрик
func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(nil)
	get(t, srv.Handler(), "/health")

	rec := get(t, srv.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "essence_diag_http_request_duration_seconds")
}

// TestStartShutdown проверяет запуск на свободном порту и остановку
func TestStartShutdown(t *testing.T) {
	srv := newTestServer(nil)
	require.NoError(t, srv.Start())
	assert.Error(t, srv.Start(), "повторный запуск запрещён")

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, srv.Shutdown(ctx))
}
