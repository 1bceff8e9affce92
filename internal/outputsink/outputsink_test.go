package outputsink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/taskengine/internal/bytesize"
)

type fakeUploader struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeUploader) Upload(ctx context.Context, localPath, key string) (string, string, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	info, err := os.Stat(localPath)
	if err != nil {
		return "", "", 0, err
	}
	return "test-bucket", "http://localhost:9000", info.Size(), nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	records int
}

func (f *fakeRecorder) RecordUpload(ctx context.Context, taskID uint, bucket, endpoint, key string, size int64, uploadedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records++
	return nil
}

func TestWriteWrapsNonObjectRecord(t *testing.T) {
	dir := t.TempDir()
	uploader := &fakeUploader{}
	recorder := &fakeRecorder{}

	sink, err := Open(context.Background(), Config{
		TaskID:    1,
		LocalDir:  dir,
		Threshold: 500 * bytesize.MiB,
		Uploader:  uploader,
		Recorder:  recorder,
	})
	require.NoError(t, err)

	require.NoError(t, sink.Write(context.Background(), json.RawMessage(`42`)))
	require.NoError(t, sink.Flush(context.Background()))

	require.Equal(t, 1, recorder.records)
	require.Len(t, uploader.calls, 1)
}

func TestWriteInjectsObservedAtOnObject(t *testing.T) {
	dir := t.TempDir()
	sink, err := Open(context.Background(), Config{
		TaskID:    2,
		LocalDir:  dir,
		Threshold: 500 * bytesize.MiB,
		Uploader:  &fakeUploader{},
		Recorder:  &fakeRecorder{},
	})
	require.NoError(t, err)

	require.NoError(t, sink.Write(context.Background(), json.RawMessage(`{"id":1}`)))
	require.NoError(t, sink.buf.Flush())

	data, err := os.ReadFile(filepath.Join(dir, "2.jsonl"))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data[:len(data)-1], &decoded))
	require.Contains(t, decoded, "observed_at")
	require.EqualValues(t, 1, decoded["id"])
}

func TestFlushOnEmptySegmentDeletesWithoutUpload(t *testing.T) {
	dir := t.TempDir()
	uploader := &fakeUploader{}
	sink, err := Open(context.Background(), Config{
		TaskID:    3,
		LocalDir:  dir,
		Threshold: 500 * bytesize.MiB,
		Uploader:  uploader,
		Recorder:  &fakeRecorder{},
	})
	require.NoError(t, err)

	require.NoError(t, sink.Flush(context.Background()))
	require.Empty(t, uploader.calls)

	_, err = os.Stat(filepath.Join(dir, "3.jsonl"))
	require.True(t, os.IsNotExist(err))
}

func TestRotationTriggersOnThreshold(t *testing.T) {
	dir := t.TempDir()
	uploader := &fakeUploader{}
	recorder := &fakeRecorder{}

	sink, err := Open(context.Background(), Config{
		TaskID:    4,
		LocalDir:  dir,
		Threshold: 16, // tiny threshold to force rotation on the first write
		Uploader:  uploader,
		Recorder:  recorder,
	})
	require.NoError(t, err)

	require.NoError(t, sink.Write(context.Background(), json.RawMessage(`{"payload":"`+strings.Repeat("x", 64)+`"}`)))

	require.Equal(t, 1, recorder.records)
	require.Equal(t, int64(0), sink.Size())
}

// TestOpenUploadsOrphanedCompressedSegment covers spec.md §4.3's crash window
// between compressing a segment and recording its upload: a `.zst` sibling
// left on disk with no matching Upload record must be uploaded before the
// task resumes, not silently dropped.
func TestOpenUploadsOrphanedCompressedSegment(t *testing.T) {
	dir := t.TempDir()
	uploader := &fakeUploader{}
	recorder := &fakeRecorder{}

	orphanPath := filepath.Join(dir, "5.jsonl.zst")
	require.NoError(t, os.WriteFile(orphanPath, []byte("not really zstd, just needs nonzero size"), 0o644))

	sink, err := Open(context.Background(), Config{
		TaskID:      5,
		LocalDir:    dir,
		S3KeyPrefix: "tasks/5",
		ServerIP:    "host-1",
		Threshold:   500 * bytesize.MiB,
		Uploader:    uploader,
		Recorder:    recorder,
	})
	require.NoError(t, err)

	require.Equal(t, 1, recorder.records)
	require.Len(t, uploader.calls, 1)
	require.Contains(t, uploader.calls[0], "tasks/5/")

	_, err = os.Stat(orphanPath)
	require.True(t, os.IsNotExist(err), "orphaned .zst must be removed after upload")
}

// TestOpenDeletesEmptyOrphanedSegmentWithoutUpload covers the companion edge
// case: an orphaned but empty segment is cleaned up without producing an
// upload, matching the tail-flush rule for empty segments.
func TestOpenDeletesEmptyOrphanedSegmentWithoutUpload(t *testing.T) {
	dir := t.TempDir()
	uploader := &fakeUploader{}

	orphanPath := filepath.Join(dir, "6.jsonl.zst")
	require.NoError(t, os.WriteFile(orphanPath, nil, 0o644))

	sink, err := Open(context.Background(), Config{
		TaskID:    6,
		LocalDir:  dir,
		Threshold: 500 * bytesize.MiB,
		Uploader:  uploader,
		Recorder:  &fakeRecorder{},
	})
	require.NoError(t, err)
	require.Empty(t, uploader.calls)
	_ = sink

	_, err = os.Stat(orphanPath)
	require.True(t, os.IsNotExist(err))
}
