//go:build integration

package taskmeta

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marmos91/taskengine/internal/taskstate"
)

// TestPostgresStore exercises the Store against a real PostgreSQL container,
// the way the teacher's e2e postgres helper (test/e2e/postgres.go) spins one
// up for its own metadata-store backend. Run with: go test -tags=integration.
func TestPostgresStore(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("taskengine_test"),
		postgres.WithUsername("taskengine_test"),
		postgres.WithPassword("taskengine_test"),
		testcontainerswait(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	store, err := Open(&Config{
		Type: DatabaseTypePostgres,
		Postgres: PostgresConfig{
			Host:     host,
			Port:     port.Int(),
			Database: "taskengine_test",
			User:     "taskengine_test",
			Password: "taskengine_test",
			SSLMode:  "disable",
		},
	})
	require.NoError(t, err)
	defer store.Close()

	task, err := store.CreateTask(ctx, "dummy-api", "fetch-items", []byte(`{}`))
	require.NoError(t, err)
	require.Equal(t, taskstate.Initial(), task.Status)

	err = store.UpdateStatus(ctx, task.ID, taskstate.Running)
	require.NoError(t, err)

	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, taskstate.Running, got.Status)

	err = store.AppendUpload(ctx, task.ID, Upload{
		S3Key:      "tasks/1/seg.jsonl.zst",
		S3Bucket:   "bucket",
		S3Endpoint: "",
		SizeBytes:  1024,
		UploadedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	uploads, err := store.ListUploads(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
}

func testcontainerswait() testcontainers.CustomizeRequestOption {
	return testcontainers.WithWaitStrategy(
		wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	)
}
