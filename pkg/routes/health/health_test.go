package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error {
	return f.err
}

func doRequest(target string, handler echo.HandlerFunc) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	_ = handler(e.NewContext(req, rec))
	return rec
}

func TestLive(t *testing.T) {
	checker := NewChecker(nil, nil, "1.2.3")

	rec := doRequest("/api/v1/health/live", checker.Live)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReady(t *testing.T) {
	checker := NewChecker(nil, nil, "1.2.3")

	rec := doRequest("/api/v1/health/ready", checker.Ready)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	checker.SetReady(true)
	rec = doRequest("/api/v1/health/ready", checker.Ready)
	assert.Equal(t, http.StatusOK, rec.Code)

	checker.SetReady(false)
	rec = doRequest("/api/v1/health/ready", checker.Ready)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth_NoDatabase(t *testing.T) {
	checker := NewChecker(nil, nil, "1.2.3")

	rec := doRequest("/api/v1/health", checker.Health)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "1.2.3", status.Version)
	require.NotNil(t, status.Checks["database"])
	assert.Equal(t, "unhealthy", status.Checks["database"].Status)
}

func TestHealth_RedisFailureIsUnhealthy(t *testing.T) {
	checker := NewChecker(nil, &fakePinger{err: fmt.Errorf("connection refused")}, "1.2.3")

	rec := doRequest("/api/v1/health", checker.Health)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.NotNil(t, status.Checks["redis"])
	assert.Equal(t, "unhealthy", status.Checks["redis"].Status)
	assert.Equal(t, "connection refused", status.Checks["redis"].Message)
}
