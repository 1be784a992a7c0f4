package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/middleware"
	"github.com/Ramsey-B/sage/pkg/routes/health"
)

func newTestServer() (*echo.Echo, *health.Checker) {
	e := echo.New()
	e.Use(middleware.Tracing("sage-api"))
	e.Use(middleware.Logger(noopLogger()))

	checker := health.NewChecker(nil, nil, "test")
	checker.RegisterRoutes(e)
	return e, checker
}

func TestHealthEndpoints(t *testing.T) {
	e, checker := newTestServer()

	t.Run("live is always up", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("ready follows the readiness flag", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		checker.SetReady(true)
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("health reports missing database", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var status health.HealthStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "unhealthy", status.Status)
		require.Contains(t, status.Checks, "database")
		assert.Equal(t, "unhealthy", status.Checks["database"].Status)
	})
}
