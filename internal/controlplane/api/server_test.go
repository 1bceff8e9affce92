package api

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/taskengine/internal/tasklog"
)

func TestServerLifecycle(t *testing.T) {
	_, meta, reg, clientLogDir := newTestRouter(t)
	taskLogs := tasklog.NewStore(filepath.Join(t.TempDir(), "task-logs"), nil)
	t.Cleanup(func() { _ = taskLogs.CloseAll() })

	server := NewServer(Config{Port: 18180}, meta, reg, taskLogs, t.TempDir(), clientLogDir)

	ctx, cancel := context.WithCancel(context.Background())

	errChan := make(chan error, 1)
	go func() { errChan <- server.Start(ctx) }()

	waitForListening(t, 18180)

	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/health", server.Port()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()

	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestServerPort(t *testing.T) {
	_, meta, reg, clientLogDir := newTestRouter(t)
	taskLogs := tasklog.NewStore(filepath.Join(t.TempDir(), "task-logs"), nil)
	t.Cleanup(func() { _ = taskLogs.CloseAll() })

	server := NewServer(Config{Port: 9999}, meta, reg, taskLogs, t.TempDir(), clientLogDir)
	require.Equal(t, 9999, server.Port())
}

func TestServerDefaultConfig(t *testing.T) {
	_, meta, reg, clientLogDir := newTestRouter(t)
	taskLogs := tasklog.NewStore(filepath.Join(t.TempDir(), "task-logs"), nil)
	t.Cleanup(func() { _ = taskLogs.CloseAll() })

	server := NewServer(Config{}, meta, reg, taskLogs, t.TempDir(), clientLogDir)
	require.Equal(t, 8080, server.Port())
}

func waitForListening(t *testing.T, port int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := http.Get(fmt.Sprintf("http://localhost:%d/health", port))
		if err == nil {
			conn.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server on port %d never started listening", port)
}
