package taskprocessor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/taskengine/internal/bytesize"
	"github.com/marmos91/taskengine/internal/fetchfn"
	"github.com/marmos91/taskengine/internal/outputsink"
	"github.com/marmos91/taskengine/internal/queuestore"
	"github.com/marmos91/taskengine/internal/taskerr"
	"github.com/marmos91/taskengine/internal/taskqueue"
	"github.com/marmos91/taskengine/internal/taskstate"
)

type stubUploader struct{ uploads int }

func (s *stubUploader) Upload(ctx context.Context, localPath, key string) (string, string, int64, error) {
	s.uploads++
	return "bucket", "http://localhost:9000", 1, nil
}

type stubRecorder struct{ records int }

func (s *stubRecorder) RecordUpload(ctx context.Context, taskID uint, bucket, endpoint, key string, size int64, uploadedAt time.Time) error {
	s.records++
	return nil
}

type stubStatusStore struct{ transitions []taskstate.Status }

func (s *stubStatusStore) UpdateStatus(ctx context.Context, id uint, to taskstate.Status) error {
	s.transitions = append(s.transitions, to)
	return nil
}

func newTestProcessor(t *testing.T, fn fetchfn.Descriptor) (*Processor, *taskqueue.Manager, *stubStatusStore) {
	t.Helper()
	dir := t.TempDir()
	store, err := queuestore.Open(filepath.Join(dir, "1.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	qm := taskqueue.New(store)

	sink, err := outputsink.Open(context.Background(), outputsink.Config{
		TaskID:    1,
		LocalDir:  dir,
		Threshold: 500 * bytesize.MiB,
		Uploader:  &stubUploader{},
		Recorder:  &stubRecorder{},
	})
	require.NoError(t, err)

	status := &stubStatusStore{}
	p := New(Config{
		TaskID: 1,
		Queue:  qm,
		Sink:   sink,
		Fn:     fn,
		Status: status,
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return p, qm, status
}

func idInput(n int) json.RawMessage { return json.RawMessage(fmt.Sprintf("%d", n)) }

// Scenario 2 from spec.md §8: threshold=5, ids 1..10 -> success=5, failure=5,
// done, because ids above threshold are non-fatal per-item failures.
func TestRunThrowAboveThresholdPartialFailures(t *testing.T) {
	const threshold = 5
	fn := fetchfn.Descriptor{Single: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		var id int
		_ = json.Unmarshal(input, &id)
		if id > threshold {
			return nil, taskerr.NewNonFatal("above threshold", nil)
		}
		return input, nil
	}}

	p, qm, status := newTestProcessor(t, fn)
	var inputs []json.RawMessage
	for i := 1; i <= 10; i++ {
		inputs = append(inputs, idInput(i))
	}
	require.NoError(t, qm.AddInputs(inputs))

	require.NoError(t, p.Run(context.Background()))

	counts, err := qm.Counts()
	require.NoError(t, err)
	require.EqualValues(t, 5, counts.Success)
	require.EqualValues(t, 5, counts.Failure)
	require.EqualValues(t, 0, counts.Remaining)
	require.Contains(t, status.transitions, taskstate.Done)
}

// Scenario 4: a batch fetch function returning mismatched lengths is Fatal;
// all popped inputs are restored and the task transitions to error.
func TestRunBatchLengthMismatchIsFatal(t *testing.T) {
	fn := fetchfn.Descriptor{
		MaxBatch: 3,
		Batch: func(ctx context.Context, inputs []json.RawMessage) ([]json.RawMessage, error) {
			return inputs[:len(inputs)-1], nil // one short
		},
	}

	p, qm, status := newTestProcessor(t, fn)
	require.NoError(t, qm.AddInputs([]json.RawMessage{idInput(1), idInput(2), idInput(3)}))

	err := p.Run(context.Background())
	require.Error(t, err)
	require.True(t, taskerr.IsFatal(err))

	counts, cerr := qm.Counts()
	require.NoError(t, cerr)
	require.EqualValues(t, 3, counts.Remaining)
	require.Contains(t, status.transitions, taskstate.Error)
}

// An empty input queue at entry is a no-op completion: done, no fetches.
func TestRunWithNoInputsCompletesImmediately(t *testing.T) {
	fn := fetchfn.Descriptor{Single: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		t.Fatal("fetch function must not be called when there are no inputs")
		return nil, nil
	}}

	p, _, status := newTestProcessor(t, fn)
	require.NoError(t, p.Run(context.Background()))
	require.Contains(t, status.transitions, taskstate.Done)
}

// Pause observed between items stops the loop without processing every
// input, and leaves the remainder durably queued.
func TestRunObservesPauseBetweenItems(t *testing.T) {
	processed := 0
	fn := fetchfn.Descriptor{Single: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		processed++
		return input, nil
	}}

	p, qm, status := newTestProcessor(t, fn)
	var inputs []json.RawMessage
	for i := 1; i <= 100; i++ {
		inputs = append(inputs, idInput(i))
	}
	require.NoError(t, qm.AddInputs(inputs))

	p.RequestPause()
	require.NoError(t, p.Run(context.Background()))

	require.Equal(t, 0, processed)
	require.Contains(t, status.transitions, taskstate.Paused)

	counts, err := qm.Counts()
	require.NoError(t, err)
	require.EqualValues(t, 100, counts.Remaining)
}
