// Package taskprocessor implements the Task Processor: the per-task state
// machine and processing loop described in spec.md §4.5. It drives a
// taskqueue.Manager and an outputsink.Sink through a resolved
// fetchfn.Descriptor, persists status transitions via the Task Metadata
// Store, and exposes cooperative pause and progress reporting.
//
// Grounded on original_source/api-server/app/tasks/processing.py's loop
// shape (SequentialTaskProcessor/BatchTaskProcessor merged into one type
// branching on fetchfn.Descriptor.IsBatch), corrected per
// queue_item_management.py's ack-on-non-fatal/restore-on-fatal semantics,
// and on the teacher's pkg/flusher/background.go cooperative-worker idiom
// for the pause flag and progress-log cadence.
package taskprocessor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/taskengine/internal/fetchfn"
	"github.com/marmos91/taskengine/internal/outputsink"
	"github.com/marmos91/taskengine/internal/queuestore"
	"github.com/marmos91/taskengine/internal/taskerr"
	"github.com/marmos91/taskengine/internal/taskqueue"
	"github.com/marmos91/taskengine/internal/taskstate"
)

// StatusStore is the slice of the Task Metadata Store the processor needs:
// reading/writing a single task's status.
type StatusStore interface {
	UpdateStatus(ctx context.Context, id uint, to taskstate.Status) error
}

// DefaultBatchSize equals taskqueue.MinBatchSize. The loop does not read it:
// a batch-mode fetchfn.Descriptor always supplies its own MaxBatch.
const DefaultBatchSize = taskqueue.MinBatchSize

// DefaultProgressCadence is spec.md §4.5's "bounded cadence (default 60s)".
const DefaultProgressCadence = 60 * time.Second

// Progress is the synthesized progress snapshot of spec.md §4.5/§6.
type Progress struct {
	Success            int64
	Failure            int64
	NoOutput           int64
	Remaining          int64
	CurrentSegmentSize int64
}

// Config configures a Processor.
type Config struct {
	TaskID          uint
	Queue           *taskqueue.Manager
	Sink            *outputsink.Sink
	Fn              fetchfn.Descriptor
	Status          StatusStore
	Log             *slog.Logger
	ProgressCadence time.Duration // default DefaultProgressCadence
	Metrics         *Metrics      // nil is a valid no-op collector
}

// Processor owns one task's Queue Item Manager, Output Sink, and fetch
// function, and runs its processing loop.
type Processor struct {
	taskID uint
	queue  *taskqueue.Manager
	sink   *outputsink.Sink
	fn     fetchfn.Descriptor
	status  StatusStore
	log     *slog.Logger
	metrics *Metrics

	cadence time.Duration
	paused  atomic.Bool

	lastLoggedAt time.Time
	lastProgress Progress
	runID        string

	// sinkErr carries a Fatal error observed from inside the OnSuccess
	// callback passed to taskqueue back out to processOne's caller;
	// taskqueue.Callbacks has no error return of its own.
	sinkErr error
}

// New constructs a Processor from cfg.
func New(cfg Config) *Processor {
	cadence := cfg.ProgressCadence
	if cadence <= 0 {
		cadence = DefaultProgressCadence
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		taskID:  cfg.TaskID,
		queue:   cfg.Queue,
		sink:    cfg.Sink,
		fn:      cfg.Fn,
		status:  cfg.Status,
		log:     log,
		metrics: cfg.Metrics,
		cadence: cadence,
		runID:   uuid.NewString(),
	}
}

// TaskID reports the id of the task this Processor drives.
func (p *Processor) TaskID() uint { return p.taskID }

// RequestPause sets the cooperative pause flag, observed between work units.
// Already-issued fetch calls are never interrupted (spec.md §5).
func (p *Processor) RequestPause() {
	p.paused.Store(true)
	p.log.Info("pause requested", "task_id", p.taskID, "run_id", p.runID)
}

// Progress synthesizes the current queue counts plus the live segment size.
func (p *Processor) Progress() (Progress, error) {
	counts, err := p.queue.Counts()
	if err != nil {
		return Progress{}, err
	}
	return Progress{
		Success:            counts.Success,
		Failure:            counts.Failure,
		NoOutput:           counts.NoOutput,
		Remaining:          counts.Remaining,
		CurrentSegmentSize: p.sink.Size(),
	}, nil
}

// Run is the top-level loop (spec.md §4.5). The Pending->Running transition
// is the dispatcher's responsibility (internal/registry), per spec.md's
// state machine "dispatcher picks up -> running (from pending)"; Run
// assumes the task is already Running when called and persists every
// subsequent transition itself.
func (p *Processor) Run(ctx context.Context) error {
	counts, err := p.queue.Counts()
	if err != nil {
		return fmt.Errorf("taskprocessor: read initial counts: %w", err)
	}

	if counts.Remaining == 0 {
		return p.finishDone(ctx)
	}

	p.logProgressUnconditional()

	for {
		counts, err := p.queue.Counts()
		if err != nil {
			return p.finishError(ctx, fmt.Errorf("taskprocessor: read counts: %w", err))
		}
		if counts.Remaining == 0 {
			return p.finishDone(ctx)
		}

		p.logProgressIfDue()

		if p.paused.Load() {
			return p.finishPaused(ctx)
		}

		if err := p.processOne(ctx); err != nil {
			if taskerr.IsFatal(err) {
				return p.finishError(ctx, err)
			}
			return p.finishError(ctx, fmt.Errorf("taskprocessor: unexpected error: %w", err))
		}
	}
}

// processOne drives exactly one sequential item or one batch, depending on
// the resolved fetchfn.Descriptor.
func (p *Processor) processOne(ctx context.Context) error {
	cb := taskqueue.Callbacks{
		OnSuccess: func(input, output json.RawMessage) {
			if werr := p.sink.Write(ctx, output); werr != nil {
				// Output writes that fail are treated as Fatal (spec.md §7): the
				// segment's integrity is in doubt. There is no clean way to signal
				// this from inside the callback, so it is recorded for the loop to
				// observe via sinkErr.
				p.sinkErr = taskerr.NewFatal("write output", werr)
				return
			}
			p.metrics.RecordItem("success")
		},
		OnNoData: func(input json.RawMessage) {
			p.metrics.RecordItem("no_output")
		},
		OnNonFatal: func(input json.RawMessage, err error) {
			p.metrics.RecordItem("failure")
			p.log.Warn("non-fatal fetch error", "task_id", p.taskID, "error", err)
		},
	}

	var err error
	if p.fn.IsBatch() {
		err = p.queue.ProcessNextBatch(ctx, p.fn.Batch, p.fn.MaxBatch, cb)
	} else {
		err = p.queue.ProcessNext(ctx, p.fn.Single, cb)
	}

	if err == queuestore.ErrItemNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if p.sinkErr != nil {
		sinkErr := p.sinkErr
		p.sinkErr = nil
		return sinkErr
	}
	return nil
}

func (p *Processor) finishDone(ctx context.Context) error {
	if err := p.sink.Flush(ctx); err != nil {
		return p.finishError(ctx, fmt.Errorf("taskprocessor: tail flush: %w", err))
	}
	if err := p.status.UpdateStatus(ctx, p.taskID, taskstate.Done); err != nil {
		return fmt.Errorf("taskprocessor: persist done: %w", err)
	}
	p.metrics.RecordRun("done")
	p.log.Info("task done", "task_id", p.taskID, "run_id", p.runID)
	return nil
}

func (p *Processor) finishPaused(ctx context.Context) error {
	if err := p.sink.Close(); err != nil {
		p.log.Error("failed to close output sink on pause", "task_id", p.taskID, "error", err)
	}
	if err := p.status.UpdateStatus(ctx, p.taskID, taskstate.Paused); err != nil {
		return fmt.Errorf("taskprocessor: persist paused: %w", err)
	}
	p.metrics.RecordRun("paused")
	p.log.Info("task paused", "task_id", p.taskID, "run_id", p.runID)
	return nil
}

func (p *Processor) finishError(ctx context.Context, cause error) error {
	if err := p.sink.Close(); err != nil {
		p.log.Error("failed to close output sink on error", "task_id", p.taskID, "error", err)
	}
	if serr := p.status.UpdateStatus(ctx, p.taskID, taskstate.Error); serr != nil {
		p.log.Error("failed to persist error status", "task_id", p.taskID, "error", serr)
	}
	p.metrics.RecordRun("error")
	p.log.Error("task errored", "task_id", p.taskID, "run_id", p.runID, "error", cause)
	return cause
}

func (p *Processor) logProgressUnconditional() {
	prog, err := p.Progress()
	if err != nil {
		return
	}
	p.lastProgress = prog
	p.lastLoggedAt = time.Now()
	p.metrics.SetSegmentBytes(fmt.Sprint(p.taskID), prog.CurrentSegmentSize)
	p.log.Info("task progress", "task_id", p.taskID,
		"success", prog.Success, "failure", prog.Failure,
		"no_output", prog.NoOutput, "remaining", prog.Remaining,
		"segment_bytes", prog.CurrentSegmentSize)
}

// logProgressIfDue logs progress at most once per cadence, and only when it
// changed since the last report (spec.md §4.5).
func (p *Processor) logProgressIfDue() {
	if time.Since(p.lastLoggedAt) < p.cadence {
		return
	}
	prog, err := p.Progress()
	if err != nil {
		return
	}
	if prog == p.lastProgress {
		p.lastLoggedAt = time.Now()
		return
	}
	p.lastProgress = prog
	p.lastLoggedAt = time.Now()
	p.metrics.SetSegmentBytes(fmt.Sprint(p.taskID), prog.CurrentSegmentSize)
	p.log.Info("task progress", "task_id", p.taskID,
		"success", prog.Success, "failure", prog.Failure,
		"no_output", prog.NoOutput, "remaining", prog.Remaining,
		"segment_bytes", prog.CurrentSegmentSize)
}

// Close releases the processor's queue store. Call after Run returns, on
// every exit path. The output sink is not closed here; Run's exit paths
// flush or close it.
func (p *Processor) Close() error {
	var firstErr error
	if err := p.queue.Close(); err != nil {
		firstErr = err
	}
	return firstErr
}
