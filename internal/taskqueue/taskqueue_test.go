package taskqueue

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/taskengine/internal/queuestore"
	"github.com/marmos91/taskengine/internal/taskerr"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	store, err := queuestore.Open(filepath.Join(t.TempDir(), "task.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

func raw(v string) json.RawMessage { return json.RawMessage(`"` + v + `"`) }

func TestProcessNextRoutesSuccess(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.AddInputs([]json.RawMessage{raw("a")}))

	var gotInput, gotOutput json.RawMessage
	err := m.ProcessNext(context.Background(), func(ctx context.Context, in json.RawMessage) (json.RawMessage, error) {
		return raw("out:" + string(in)), nil
	}, Callbacks{OnSuccess: func(in, out json.RawMessage) {
		gotInput, gotOutput = in, out
	}})
	require.NoError(t, err)
	require.Equal(t, raw("a"), gotInput)
	require.Equal(t, raw(`out:"a"`), gotOutput)

	counts, err := m.Counts()
	require.NoError(t, err)
	require.EqualValues(t, 1, counts.Success)
	require.EqualValues(t, 0, counts.Remaining)
}

func TestProcessNextRoutesNoData(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.AddInputs([]json.RawMessage{raw("a")}))

	called := false
	err := m.ProcessNext(context.Background(), func(ctx context.Context, in json.RawMessage) (json.RawMessage, error) {
		return nil, nil
	}, Callbacks{OnNoData: func(in json.RawMessage) { called = true }})
	require.NoError(t, err)
	require.True(t, called)

	counts, err := m.Counts()
	require.NoError(t, err)
	require.EqualValues(t, 1, counts.NoOutput)
}

func TestProcessNextRoutesNonFatalToFailuresAndContinues(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.AddInputs([]json.RawMessage{raw("a")}))

	err := m.ProcessNext(context.Background(), func(ctx context.Context, in json.RawMessage) (json.RawMessage, error) {
		return nil, taskerr.NewNonFatal("not found upstream", nil)
	}, Callbacks{})
	require.NoError(t, err, "non-fatal errors must not propagate")

	counts, err := m.Counts()
	require.NoError(t, err)
	require.EqualValues(t, 1, counts.Failure)
	require.EqualValues(t, 0, counts.Remaining)
}

func TestProcessNextRestoresInputOnFatal(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.AddInputs([]json.RawMessage{raw("a")}))

	err := m.ProcessNext(context.Background(), func(ctx context.Context, in json.RawMessage) (json.RawMessage, error) {
		return nil, taskerr.NewFatal("credentials blocked", nil)
	}, Callbacks{})
	require.Error(t, err)
	require.True(t, taskerr.IsFatal(err))

	counts, err := m.Counts()
	require.NoError(t, err)
	require.EqualValues(t, 1, counts.Remaining, "input must be restored, not lost")
}

func TestProcessNextBatchRejectsSizeOne(t *testing.T) {
	m := newManager(t)
	err := m.ProcessNextBatch(context.Background(), nil, 1, Callbacks{})
	require.True(t, taskerr.IsValidation(err))
}

func TestProcessNextBatchLengthMismatchIsFatalAndRestores(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.AddInputs([]json.RawMessage{raw("a"), raw("b"), raw("c")}))

	err := m.ProcessNextBatch(context.Background(), func(ctx context.Context, in []json.RawMessage) ([]json.RawMessage, error) {
		return []json.RawMessage{raw("only-one")}, nil
	}, 3, Callbacks{})
	require.True(t, taskerr.IsFatal(err))

	counts, err := m.Counts()
	require.NoError(t, err)
	require.EqualValues(t, 3, counts.Remaining)
}

func TestProcessNextBatchNonFatalRoutesAllToFailures(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.AddInputs([]json.RawMessage{raw("a"), raw("b")}))

	err := m.ProcessNextBatch(context.Background(), func(ctx context.Context, in []json.RawMessage) ([]json.RawMessage, error) {
		return nil, taskerr.NewNonFatal("batch rejected upstream", nil)
	}, 2, Callbacks{})
	require.NoError(t, err)

	counts, err := m.Counts()
	require.NoError(t, err)
	require.EqualValues(t, 2, counts.Failure)
	require.EqualValues(t, 0, counts.Remaining)
}

func TestProcessNextBatchSuccessAndNoDataMixed(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.AddInputs([]json.RawMessage{raw("a"), raw("b")}))

	err := m.ProcessNextBatch(context.Background(), func(ctx context.Context, in []json.RawMessage) ([]json.RawMessage, error) {
		return []json.RawMessage{raw("out-a"), nil}, nil
	}, 2, Callbacks{})
	require.NoError(t, err)

	counts, err := m.Counts()
	require.NoError(t, err)
	require.EqualValues(t, 1, counts.Success)
	require.EqualValues(t, 1, counts.NoOutput)
	require.EqualValues(t, 0, counts.Remaining)
}

func TestAddInputsRejectsEmpty(t *testing.T) {
	m := newManager(t)
	err := m.AddInputs(nil)
	require.True(t, taskerr.IsValidation(err))
}
