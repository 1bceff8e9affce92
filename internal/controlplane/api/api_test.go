package api

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/taskengine/internal/bytesize"
	"github.com/marmos91/taskengine/internal/fetchfn"
	"github.com/marmos91/taskengine/internal/registry"
	"github.com/marmos91/taskengine/internal/tasklog"
	"github.com/marmos91/taskengine/internal/taskmeta"
)

type stubUploader struct{}

func (stubUploader) Upload(ctx context.Context, localPath, key string) (string, string, int64, error) {
	return "bucket", "http://localhost:9000", 1, nil
}

// newTestRouter wires a router against an in-process sqlite metadata store
// and a registry whose sole fetch function echoes its input, mirroring the
// "demo/echo" fixture used by the registry's own tests.
func newTestRouter(t *testing.T) (http.HandlerFunc, *taskmeta.Store, *registry.Registry, string) {
	t.Helper()
	dir := t.TempDir()

	meta, err := taskmeta.Open(&taskmeta.Config{
		Type:   taskmeta.DatabaseTypeSQLite,
		SQLite: taskmeta.SQLiteConfig{Path: filepath.Join(dir, "meta.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	fetch := fetchfn.NewRegistry()
	fetch.Register("demo", "echo", func(taskType string, params json.RawMessage) (fetchfn.Descriptor, error) {
		return fetchfn.Descriptor{Single: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			return input, nil
		}}, nil
	})

	queueDBDir := filepath.Join(dir, "queues")
	clientLogDir := filepath.Join(dir, "client-logs")

	taskLogs := tasklog.NewStore(filepath.Join(dir, "task-logs"), nil)
	t.Cleanup(func() { _ = taskLogs.CloseAll() })

	reg := registry.New(registry.Dependencies{
		Meta:       meta,
		Fetch:      fetch,
		TaskLogs:   taskLogs,
		Uploader:   stubUploader{},
		QueueDBDir: queueDBDir,
		OutputDir:  filepath.Join(dir, "output"),
		ServerIP:   "127.0.0.1",
		Threshold:  500 * bytesize.MiB,
		Cadence:    time.Minute,
	}, registry.Config{Workers: 2, QueueSize: 16})
	reg.Start(context.Background())
	t.Cleanup(func() { reg.Stop(time.Second) })

	router := NewRouter(meta, reg, taskLogs, queueDBDir, clientLogDir)
	return router.ServeHTTP, meta, reg, clientLogDir
}
