package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/taskengine/internal/controlplane/api/handlers"
)

func TestLivenessAlwaysOK(t *testing.T) {
	h, _, _, _ := newTestRouter(t)

	w := doRequest(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "healthy", body["status"])
	require.Contains(t, body, "started_at")
	require.Contains(t, body, "uptime_sec")
}

func TestReadinessHealthyStore(t *testing.T) {
	h, _, _, _ := newTestRouter(t)

	w := doRequest(t, h, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "healthy", body["status"])
}

func TestReadinessUnreachableStore(t *testing.T) {
	_, meta, _, _ := newTestRouter(t)
	require.NoError(t, meta.Close())

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()

	handlers.NewHealthHandler(meta).Readiness(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "unhealthy", body["status"])
}
