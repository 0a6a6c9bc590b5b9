package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHealthHandler_HandleHealth(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.HandleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
}

func TestHealthHandler_HandleReady_AllPass(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	h.RegisterCheck(NewPingHealthCheck("database", func(ctx context.Context) error { return nil }))
	h.RegisterCheck(NewPingHealthCheck("cache", func(ctx context.Context) error { return nil }))

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	h.HandleReady(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "pass", status.Checks["database"].Status)
	assert.Equal(t, "pass", status.Checks["cache"].Status)
}

func TestHealthHandler_HandleReady_Failing(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	h.RegisterCheck(NewPingHealthCheck("database", func(ctx context.Context) error { return nil }))
	h.RegisterCheck(NewPingHealthCheck("cache", func(ctx context.Context) error {
		return errors.New("connection refused")
	}))

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	h.HandleReady(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "fail", status.Checks["cache"].Status)
	assert.Equal(t, "connection refused", status.Checks["cache"].Message)
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()
	h.HandleVersion("1.2.3", "2026-01-01", "abc123")(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	require.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "1.2.3", data["version"])
	assert.Equal(t, "abc123", data["git_commit"])
}
