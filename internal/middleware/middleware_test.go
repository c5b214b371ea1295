package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(reg *prometheus.Registry) (*gin.Engine, *PrometheusMiddleware) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewRequestLogger(nil).Handler())
	pm := NewPrometheusMiddlewareWith("test", reg, reg)
	r.Use(pm.Handler())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(TraceKey)) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	return r, pm
}

// TestTraceIDGenerated проверяет генерацию trace-ID
func TestTraceIDGenerated(t *testing.T) {
	r, _ := newRouter(prometheus.NewRegistry())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))

	traceID := rec.Header().Get(TraceHeader)
	_, err := uuid.Parse(traceID)
	require.NoError(t, err)
	assert.Equal(t, traceID, rec.Body.String())
}

// TestTraceIDPropagated проверяет сохранение входящего trace-ID
func TestTraceIDPropagated(t *testing.T) {
	r, _ := newRouter(prometheus.NewRegistry())
	incoming := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(TraceHeader, incoming)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, incoming, rec.Header().Get(TraceHeader))
}

// TestErrorCounter проверяет счётчик ошибочных ответов
func TestErrorCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, _ := newRouter(reg)

	for i := 0; i < 2; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))

	families, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] += m.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, values["test_http_request_errors_total"])
	assert.Equal(t, 0.0, values["test_http_requests_inflight"])
}

// TestReRegistration проверяет переиспользование уже зарегистрированных коллекторов
func TestReRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewPrometheusMiddlewareWith("dup", reg, reg)
	second := NewPrometheusMiddlewareWith("dup", reg, reg)

	assert.Same(t, first.reqErrors, second.reqErrors)
}
