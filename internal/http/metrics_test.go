package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	m := &HTTPMetrics{
		meter:  mp.Meter(httpInstrumentationName),
		logger: zap.NewNop(),
	}
	m.init()

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/api/v1/qa", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"answer": "ok"})
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/qa", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(req.Context(), &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			names[met.Name] = true
		}
	}

	assert.True(t, names["lectern.http.requests_total"])
	assert.True(t, names["lectern.http.request_duration_seconds"])
	assert.True(t, names["lectern.http.response_size_bytes"])
	assert.True(t, names["lectern.http.active_requests"])
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/api/v1/qa", "/api/v1/qa"},
		{"/api/v1/sources/:id", "/api/v1/sources/{id}"},
		{"/api/v1/sources/abc-123", "/api/v1/sources/{id}"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePath(tt.path), tt.path)
	}
}
