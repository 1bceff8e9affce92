package taskmeta

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/taskengine/internal/taskstate"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(&Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: filepath.Join(t.TempDir(), "meta.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateTaskStartsPaused(t *testing.T) {
	s := newStore(t)
	task, err := s.CreateTask(context.Background(), "dummy-api", "flaky", []byte(`{"flakiness":0.1}`))
	require.NoError(t, err)
	require.Equal(t, taskstate.Paused, task.Status)
	require.NotZero(t, task.ID)
}

func TestGetTaskNotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.GetTask(context.Background(), 999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	s := newStore(t)
	task, err := s.CreateTask(context.Background(), "dummy-api", "flaky", nil)
	require.NoError(t, err)

	err = s.UpdateStatus(context.Background(), task.ID, taskstate.Done)
	require.Error(t, err)

	fetched, err := s.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, taskstate.Paused, fetched.Status)
}

func TestUpdateStatusAppliesLegalTransition(t *testing.T) {
	s := newStore(t)
	task, err := s.CreateTask(context.Background(), "dummy-api", "flaky", nil)
	require.NoError(t, err)

	require.NoError(t, s.UpdateStatus(context.Background(), task.ID, taskstate.Pending))

	fetched, err := s.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, taskstate.Pending, fetched.Status)
	require.True(t, fetched.UpdatedAt.Equal(fetched.UpdatedAt) && !fetched.UpdatedAt.Before(fetched.CreatedAt))
}

func TestListTasksPaginates(t *testing.T) {
	s := newStore(t)
	for i := 0; i < 5; i++ {
		_, err := s.CreateTask(context.Background(), "dummy-api", "flaky", nil)
		require.NoError(t, err)
	}

	page, cursor, err := s.ListTasks(context.Background(), nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotNil(t, cursor)

	page2, cursor2, err := s.ListTasks(context.Background(), cursor, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	require.NotNil(t, cursor2)

	page3, cursor3, err := s.ListTasks(context.Background(), cursor2, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	require.Nil(t, cursor3)
}

func TestAppendUploadAndList(t *testing.T) {
	s := newStore(t)
	task, err := s.CreateTask(context.Background(), "dummy-api", "flaky", nil)
	require.NoError(t, err)

	require.NoError(t, s.RecordUpload(context.Background(), task.ID, "bucket", "http://localhost:9000", "key1", 1024, task.CreatedAt))

	uploads, err := s.ListUploads(context.Background(), task.ID)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	require.Equal(t, "key1", uploads[0].S3Key)
}
