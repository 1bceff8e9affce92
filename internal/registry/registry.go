// Package registry implements the Processor Registry & Recovery component
// of spec.md §4.6: a process-wide map from task id to live
// *taskprocessor.Processor, startup reconciliation of inconsistent persisted
// states, and background dispatch.
//
// Grounded on original_source/api-server/app/tasks/__init__.py's
// task_processors map, correct_stuck_tasks_state_to_pending and
// resume_pending_tasks, realized with the teacher's
// pkg/flusher/background.go bounded-worker-pool shape (Start/Stop,
// non-blocking Enqueue) instead of asyncio.create_task fire-and-forget.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/marmos91/taskengine/internal/bytesize"
	"github.com/marmos91/taskengine/internal/fetchfn"
	"github.com/marmos91/taskengine/internal/outputsink"
	"github.com/marmos91/taskengine/internal/queuestore"
	"github.com/marmos91/taskengine/internal/taskerr"
	"github.com/marmos91/taskengine/internal/taskmeta"
	"github.com/marmos91/taskengine/internal/taskprocessor"
	"github.com/marmos91/taskengine/internal/taskqueue"
	"github.com/marmos91/taskengine/internal/taskstate"
)

// Dependencies bundles everything needed to materialize a Processor for a
// persisted Task: the metadata store, the fetch function registry, the
// per-task log stream store, the upload destination, and the filesystem
// layout / tuning knobs named in spec.md §6.
type Dependencies struct {
	Meta  *taskmeta.Store
	Fetch *fetchfn.Registry
	TaskLogs interface {
		Logger(taskID uint) (*slog.Logger, error)
	}
	Uploader outputsink.Uploader

	// Metrics collects per-task Prometheus counters/gauges across every
	// Processor this Registry builds. Nil is a valid no-op collector.
	Metrics *taskprocessor.Metrics

	QueueDBDir  string // task_progress_dbs_dir
	OutputDir   string // task_output_dir
	ServerIP    string
	S3KeyPrefix func(task *taskmeta.Task) string
	Threshold   bytesize.ByteSize
	Cadence     time.Duration
}

// Registry is the process-wide live-processor map.
type Registry struct {
	deps Dependencies

	mu   sync.RWMutex
	live map[uint]*taskprocessor.Processor

	workers   int
	queue     chan uint
	wg        sync.WaitGroup
	stopOnce  sync.Once
	stopCh    chan struct{}
	stoppedCh chan struct{}
	started   bool
}

// Config configures the bounded background dispatcher.
type Config struct {
	// Workers bounds how many tasks may be dispatching/running concurrently
	// through this Registry's background worker pool. Default 8.
	Workers int
	// QueueSize bounds the number of pending dispatch requests. Default 256.
	QueueSize int
}

// New constructs a Registry. Call Start before Dispatch/Reconcile enqueue
// any work.
func New(deps Dependencies, cfg Config) *Registry {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Registry{
		deps:      deps,
		live:      make(map[uint]*taskprocessor.Processor),
		workers:   cfg.Workers,
		queue:     make(chan uint, cfg.QueueSize),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start launches the background dispatch workers.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
	go func() {
		r.wg.Wait()
		close(r.stoppedCh)
	}()
}

// Stop signals workers to drain and exit, waiting up to timeout.
func (r *Registry) Stop(timeout time.Duration) {
	r.stopOnce.Do(func() { close(r.stopCh) })
	select {
	case <-r.stoppedCh:
	case <-time.After(timeout):
	}
}

func (r *Registry) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case id, ok := <-r.queue:
			if !ok {
				return
			}
			r.run(ctx, id)
		}
	}
}

// Get returns the live processor for id, if one is currently running.
func (r *Registry) Get(id uint) (*taskprocessor.Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.live[id]
	return p, ok
}

// Dispatch requests execution of task id. It rejects a task that is already
// live (spec.md §4.5 tie-break: "concurrent execute while already running:
// reject; do not spawn a second processor"). The actual Pending->Running
// transition and Run() call happen asynchronously on a worker goroutine.
func (r *Registry) Dispatch(id uint) error {
	r.mu.Lock()
	if _, ok := r.live[id]; ok {
		r.mu.Unlock()
		return taskerr.NewIllegalState(fmt.Sprintf("task %d is already running", id))
	}
	r.live[id] = nil // reserve the slot until the worker installs the real processor
	r.mu.Unlock()

	select {
	case r.queue <- id:
		return nil
	default:
		r.mu.Lock()
		delete(r.live, id)
		r.mu.Unlock()
		return fmt.Errorf("registry: dispatch queue full")
	}
}

// run materializes a Processor for id and drives it to completion, removing
// it from the live map on exit (spec.md §4.6).
func (r *Registry) run(ctx context.Context, id uint) {
	proc, err := r.build(ctx, id)
	if err != nil {
		slog.Default().Error("registry: failed to build processor", "task_id", id, "error", err)
		r.mu.Lock()
		delete(r.live, id)
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	r.live[id] = proc
	r.mu.Unlock()

	if err := r.deps.Meta.UpdateStatus(ctx, id, taskstate.Running); err != nil {
		slog.Default().Error("registry: failed to persist running", "task_id", id, "error", err)
		_ = proc.Close()
		r.mu.Lock()
		delete(r.live, id)
		r.mu.Unlock()
		return
	}

	if err := proc.Run(ctx); err != nil {
		slog.Default().Error("registry: task run ended with error", "task_id", id, "error", err)
	}
	_ = proc.Close()

	r.mu.Lock()
	delete(r.live, id)
	r.mu.Unlock()
}

// build opens the queue store and output sink for id, resolves its fetch
// function against its persisted (data_source, task_type, params), and
// constructs a taskprocessor.Processor. The caller installs it in r.live.
func (r *Registry) build(ctx context.Context, id uint) (*taskprocessor.Processor, error) {
	task, err := r.deps.Meta.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("registry: load task %d: %w", id, err)
	}

	descriptor, err := r.deps.Fetch.Resolve(task.DataSource, task.TaskType, json.RawMessage(task.Params))
	if err != nil {
		return nil, fmt.Errorf("registry: resolve fetch function: %w", err)
	}

	store, err := queuestore.Open(filepath.Join(r.deps.QueueDBDir, fmt.Sprintf("%d.db", id)))
	if err != nil {
		return nil, fmt.Errorf("registry: open queue store: %w", err)
	}
	qm := taskqueue.New(store)

	prefix := task.DataSource + "/" + task.TaskType
	if r.deps.S3KeyPrefix != nil {
		prefix = r.deps.S3KeyPrefix(task)
	}

	sink, err := outputsink.Open(ctx, outputsink.Config{
		TaskID:      id,
		LocalDir:    r.deps.OutputDir,
		S3KeyPrefix: prefix,
		ServerIP:    r.deps.ServerIP,
		Threshold:   r.deps.Threshold,
		Uploader:    r.deps.Uploader,
		Recorder:    r.deps.Meta,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("registry: open output sink: %w", err)
	}

	log, err := r.deps.TaskLogs.Logger(id)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("registry: open task log: %w", err)
	}

	return taskprocessor.New(taskprocessor.Config{
		TaskID:          id,
		Queue:           qm,
		Sink:            sink,
		Fn:              descriptor,
		Status:          r.deps.Meta,
		Log:             log,
		ProgressCadence: r.deps.Cadence,
		Metrics:         r.deps.Metrics,
	}), nil
}

// RecoveryStats reports the outcome of a startup Reconcile pass, mirroring
// the teacher's flusher.RecoveryStats shape.
type RecoveryStats struct {
	CorrectedToPending int
	Dispatched         int
}

// Reconcile implements spec.md §4.6's startup sequence: every Running task
// (which cannot truly be running — no processor exists yet in a freshly
// started process) is rewritten to Pending, then every Pending task
// (including ones just corrected) is dispatched on the background worker
// pool.
func (r *Registry) Reconcile(ctx context.Context) (*RecoveryStats, error) {
	stats := &RecoveryStats{}

	stuck, err := r.deps.Meta.ListTasksByStatus(ctx, taskstate.Running)
	if err != nil {
		return nil, fmt.Errorf("registry: list running tasks: %w", err)
	}
	for _, t := range stuck {
		if err := r.deps.Meta.UpdateStatus(ctx, t.ID, taskstate.Pending); err != nil {
			return nil, fmt.Errorf("registry: correct task %d to pending: %w", t.ID, err)
		}
		stats.CorrectedToPending++
	}

	pending, err := r.deps.Meta.ListTasksByStatus(ctx, taskstate.Pending)
	if err != nil {
		return nil, fmt.Errorf("registry: list pending tasks: %w", err)
	}
	for _, t := range pending {
		if err := r.Dispatch(t.ID); err != nil {
			slog.Default().Warn("registry: failed to dispatch pending task on reconcile", "task_id", t.ID, "error", err)
			continue
		}
		stats.Dispatched++
	}

	slog.Default().Info("registry: reconciliation complete",
		"corrected_to_pending", stats.CorrectedToPending, "dispatched", stats.Dispatched)
	return stats, nil
}
