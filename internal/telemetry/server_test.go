package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omxlab/equityrun/internal/persistence"
)

type stubHealth struct {
	healthy bool
	pingErr error
}

func (s stubHealth) Health(context.Context) persistence.HealthCheck {
	return persistence.HealthCheck{Healthy: s.healthy, LastCheck: time.Now()}
}

func (s stubHealth) Ping(context.Context) error { return s.pingErr }

func (s stubHealth) Stats(context.Context) map[string]interface{} {
	return map[string]interface{}{}
}

func TestHealthHealthy(t *testing.T) {
	srv := NewServer(":0", NewMetrics(), stubHealth{healthy: true}, func() string { return "closed" })

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "closed", resp.Feed)
}

func TestHealthDegradedOnUnhealthyDatabase(t *testing.T) {
	srv := NewServer(":0", NewMetrics(), stubHealth{healthy: false}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthDegradedOnOpenBreaker(t *testing.T) {
	srv := NewServer(":0", NewMetrics(), stubHealth{healthy: true}, func() string { return "open" })

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReady(t *testing.T) {
	srv := NewServer(":0", NewMetrics(), stubHealth{healthy: true}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyFailsOnPingError(t *testing.T) {
	srv := NewServer(":0", NewMetrics(), stubHealth{pingErr: errors.New("refused")}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "refused")
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	m := NewMetrics()
	m.TradesExecuted.WithLabelValues("BUY").Inc()
	m.OpenPositions.Set(3)

	srv := NewServer(":0", m, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "equityrun_trades_executed_total")
	assert.Contains(t, rec.Body.String(), "equityrun_open_positions 3")
}
