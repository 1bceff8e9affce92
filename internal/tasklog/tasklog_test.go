package tasklog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerPerTaskIsolated(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, nil)

	l1, err := store.Logger(1)
	require.NoError(t, err)
	l2, err := store.Logger(2)
	require.NoError(t, err)

	l1.Info("hello from task 1")
	l2.Info("hello from task 2")

	require.NoError(t, store.CloseAll())

	data1, err := os.ReadFile(filepath.Join(dir, "1.log"))
	require.NoError(t, err)
	data2, err := os.ReadFile(filepath.Join(dir, "2.log"))
	require.NoError(t, err)

	assert.Contains(t, string(data1), "hello from task 1")
	assert.NotContains(t, string(data1), "hello from task 2")
	assert.Contains(t, string(data2), "hello from task 2")
}

func TestLoggerReusesHandleOnRepeatedCalls(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, nil)

	l1, err := store.Logger(5)
	require.NoError(t, err)
	l2, err := store.Logger(5)
	require.NoError(t, err)

	assert.Same(t, l1, l2)
	require.NoError(t, store.CloseAll())
}

func TestCloseIsIdempotentForUnusedTask(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	assert.NoError(t, store.Close(42))
}
