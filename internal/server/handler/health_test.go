package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getHealth(t *testing.T, h *HealthHandler) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	h.HealthCheck(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestHealthAllChecksPass(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHealthHandler("serve", map[string]Check{
		"store": func(context.Context) error { return nil },
		"bus":   func(context.Context) error { return nil },
	}, logger)

	w, body := getHealth(t, h)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "serve", body["mode"])

	components := body["components"].(map[string]any)
	assert.Equal(t, "ok", components["store"])
	assert.Equal(t, "ok", components["bus"])
}

func TestHealthFailingCheckDegrades(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHealthHandler("serve", map[string]Check{
		"store": func(context.Context) error { return nil },
		"bus":   func(context.Context) error { return errors.New("connection refused") },
	}, logger)

	w, body := getHealth(t, h)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", body["status"])

	components := body["components"].(map[string]any)
	assert.Equal(t, "ok", components["store"])
	assert.Contains(t, components["bus"], "connection refused")
}
