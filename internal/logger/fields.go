package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the task engine.
// Use these keys consistently so log aggregation/querying stays uniform.
const (
	// Correlation
	KeyTraceID = "trace_id" // per-run correlation id

	// Task identity
	KeyTaskID     = "task_id"
	KeyDataSource = "data_source"
	KeyTaskType   = "task_type"
	KeyStatus     = "status"
	KeyFromStatus = "from_status"
	KeyToStatus   = "to_status"

	// Queues
	KeyQueue       = "queue"
	KeyQueueItemID = "queue_item_id"
	KeyBatchSize   = "batch_size"

	// Progress counters
	KeySuccessCount  = "success_count"
	KeyFailureCount  = "failure_count"
	KeyNoOutputCount = "no_output_count"
	KeyRemaining     = "remaining"

	// Output sink / uploads
	KeySegmentPath = "segment_path"
	KeySize        = "size_bytes"
	KeyBucket      = "bucket"
	KeyKey         = "key"
	KeyRegion      = "region"
	KeyAttempt     = "attempt"
	KeyMaxRetries  = "max_retries"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorKind  = "error_kind"
	KeyOperation  = "operation"

	// HTTP
	KeyMethod     = "method"
	KeyPath       = "path"
	KeyStatusCode = "status_code"
	KeyRequestID  = "request_id"
	KeyClientIP   = "client_ip"
)

// TraceID returns a slog.Attr for the per-run correlation id.
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// TaskID returns a slog.Attr for a task id.
func TaskID(id uint) slog.Attr { return slog.Uint64(KeyTaskID, uint64(id)) }

// DataSource returns a slog.Attr for a task's data source.
func DataSource(ds string) slog.Attr { return slog.String(KeyDataSource, ds) }

// TaskType returns a slog.Attr for a task's task type.
func TaskType(t string) slog.Attr { return slog.String(KeyTaskType, t) }

// Status returns a slog.Attr for a task status value.
func Status(s string) slog.Attr { return slog.String(KeyStatus, s) }

// Transition returns attrs describing a state transition.
func Transition(from, to string) []any {
	return []any{KeyFromStatus, from, KeyToStatus, to}
}

// Queue returns a slog.Attr for a queue name.
func Queue(q string) slog.Attr { return slog.String(KeyQueue, q) }

// QueueItemID returns a slog.Attr for a queue item id.
func QueueItemID(id uint) slog.Attr { return slog.Uint64(KeyQueueItemID, uint64(id)) }

// BatchSize returns a slog.Attr for a batch size.
func BatchSize(n int) slog.Attr { return slog.Int(KeyBatchSize, n) }

// Counts returns attrs for the four progress counters.
func Counts(success, failure, noOutput, remaining int64) []any {
	return []any{
		KeySuccessCount, success,
		KeyFailureCount, failure,
		KeyNoOutputCount, noOutput,
		KeyRemaining, remaining,
	}
}

// SegmentPath returns a slog.Attr for a local segment file path.
func SegmentPath(p string) slog.Attr { return slog.String(KeySegmentPath, p) }

// Size returns a slog.Attr for a byte size.
func Size(n int64) slog.Attr { return slog.Int64(KeySize, n) }

// Bucket returns a slog.Attr for an S3 bucket name.
func Bucket(name string) slog.Attr { return slog.String(KeyBucket, name) }

// Key returns a slog.Attr for an S3 object key.
func Key(k string) slog.Attr { return slog.String(KeyKey, k) }

// Region returns a slog.Attr for an S3 region.
func Region(r string) slog.Attr { return slog.String(KeyRegion, r) }

// Attempt returns a slog.Attr for a retry attempt number.
func Attempt(n int) slog.Attr { return slog.Int(KeyAttempt, n) }

// MaxRetries returns a slog.Attr for a retry ceiling.
func MaxRetries(n int) slog.Attr { return slog.Int(KeyMaxRetries, n) }

// DurationMs returns a slog.Attr for an operation duration in milliseconds.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr for an error value; a nil error gives an empty
// error string.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// ErrorKind returns a slog.Attr for a taskerr.Kind string.
func ErrorKind(kind string) slog.Attr { return slog.String(KeyErrorKind, kind) }

// Operation returns a slog.Attr naming a sub-operation.
func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }

// Method returns a slog.Attr for an HTTP method.
func Method(m string) slog.Attr { return slog.String(KeyMethod, m) }

// Path returns a slog.Attr for an HTTP request path.
func Path(p string) slog.Attr { return slog.String(KeyPath, p) }

// StatusCode returns a slog.Attr for an HTTP status code.
func StatusCode(code int) slog.Attr { return slog.Int(KeyStatusCode, code) }

// RequestID returns a slog.Attr for an HTTP request id.
func RequestID(id string) slog.Attr { return slog.String(KeyRequestID, id) }

// ClientIP returns a slog.Attr for a client IP address.
func ClientIP(addr string) slog.Attr { return slog.String(KeyClientIP, addr) }
