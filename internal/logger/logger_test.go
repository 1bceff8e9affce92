package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer for testing.
// Returns the buffer and a cleanup function to restore original output.
func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false
	mu.Unlock()

	reconfigure()

	cleanup := func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		reconfigure()
	}

	return buf, cleanup
}

func TestLevelFiltering(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("WARN")
	SetFormat("json")

	Debug("should not appear")
	Info("should not appear either")
	Warn("should appear", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "should appear")
}

func TestSetFormatJSON(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("DEBUG")
	SetFormat("json")

	Info("hello", TaskID(42), DataSource("dummy-api"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded))
	assert.Equal(t, "hello", decoded["msg"])
	assert.EqualValues(t, 42, decoded[KeyTaskID])
	assert.Equal(t, "dummy-api", decoded[KeyDataSource])
}

func TestSetFormatIgnoresInvalid(t *testing.T) {
	SetFormat("json")
	SetFormat("xml") // invalid, ignored
	format, _ := currentFormat.Load().(string)
	assert.Equal(t, "json", format)
}

func TestSetLevelIgnoresInvalid(t *testing.T) {
	SetLevel("INFO")
	SetLevel("NOPE")
	assert.Equal(t, LevelInfo, Level(currentLevel.Load()))
}

func TestContextFieldsPropagate(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()
	SetLevel("DEBUG")
	SetFormat("json")

	ctx := WithContext(context.Background(), NewLogContext(7, "spotify-api", "playlist-tracks"))
	InfoCtx(ctx, "processing")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded))
	assert.EqualValues(t, 7, decoded[KeyTaskID])
	assert.Equal(t, "spotify-api", decoded[KeyDataSource])
	assert.Equal(t, "playlist-tracks", decoded[KeyTaskType])
}

func TestContextFieldsOmittedWhenNoContext(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()
	SetLevel("DEBUG")
	SetFormat("json")

	InfoCtx(context.Background(), "no context set")

	out := buf.String()
	assert.NotContains(t, out, KeyTaskID)
}

func TestLogContextWithQueueAndTrace(t *testing.T) {
	lc := NewLogContext(1, "dummy-api", "echo")
	withQueue := lc.WithQueue("inputs")
	withTrace := withQueue.WithTrace("run-123")

	assert.Equal(t, "inputs", withQueue.Queue)
	assert.Equal(t, "", lc.Queue, "original context must not be mutated")
	assert.Equal(t, "run-123", withTrace.TraceID)
	assert.Equal(t, "inputs", withTrace.Queue)
}

func TestDurationHelper(t *testing.T) {
	lc := NewLogContext(1, "dummy-api", "echo")
	assert.GreaterOrEqual(t, lc.DurationMs(), 0.0)
}

func TestWithBoundFields(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()
	SetLevel("DEBUG")
	SetFormat("json")

	log := With(TaskID(99))
	log.Info("bound fields present")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded))
	assert.EqualValues(t, 99, decoded[KeyTaskID])
}

func TestPrintfStyleHelpers(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()
	SetLevel("DEBUG")
	SetFormat("text")

	Infof("task %d finished with %d successes", 3, 10)
	assert.True(t, strings.Contains(buf.String(), "task 3 finished with 10 successes"))
}

func TestInitWithFilePath(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/app.log"

	require.NoError(t, Init(Config{Output: path, Level: "INFO", Format: "json"}))
	defer InitWithWriter(os.Stdout, "INFO", "text", false)

	Info("written to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}
