// Package taskqueue implements the Queue Item Manager: the higher-level
// processing primitives (add_inputs, process_next, process_next_batch)
// consumed by the Task Processor, wrapping internal/queuestore with the
// Fatal-vs-non-fatal routing described in spec.md §4.2 and §7.
//
// Routing semantics are grounded on the corrected source variant: non-fatal
// errors route the popped item(s) to failures and ack; only a Fatal error
// restores the pop and is returned to the caller.
package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marmos91/taskengine/internal/queuestore"
	"github.com/marmos91/taskengine/internal/taskerr"
)

// SingleItemFunc processes one input and returns its output, or nil for the
// no-output case, or an error classified via taskerr.
type SingleItemFunc func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// BatchFunc processes a batch of inputs and returns one output per input
// (nil entries are the no-output case), or an error classified via taskerr.
type BatchFunc func(ctx context.Context, inputs []json.RawMessage) ([]json.RawMessage, error)

// Callbacks are invoked by ProcessNext/ProcessNextBatch as items are routed.
type Callbacks struct {
	OnSuccess  func(input, output json.RawMessage)
	OnNoData   func(input json.RawMessage)
	OnNonFatal func(input json.RawMessage, err error)
}

// Manager wraps a queuestore.Store with the Task Processor's processing
// primitives.
type Manager struct {
	store *queuestore.Store
}

// New wraps store.
func New(store *queuestore.Store) *Manager {
	return &Manager{store: store}
}

// AddInputs validates and enqueues payloads into the inputs queue.
func (m *Manager) AddInputs(payloads []json.RawMessage) error {
	if len(payloads) == 0 {
		return taskerr.NewValidation("add_inputs requires at least one payload")
	}
	for _, p := range payloads {
		if err := m.store.Append(queuestore.Inputs, p); err != nil {
			return fmt.Errorf("taskqueue: append input: %w", err)
		}
	}
	return nil
}

// ProcessNext pops exactly one input, invokes fn, and routes the outcome.
// Returns queuestore.ErrItemNotFound when the inputs queue is empty — the
// caller treats that as steady-state "nothing to do right now", not an
// error. A Fatal error from fn restores the pop and is returned.
func (m *Manager) ProcessNext(ctx context.Context, fn SingleItemFunc, cb Callbacks) error {
	item, err := m.store.PopNext(queuestore.Inputs)
	if err != nil {
		return err
	}

	output, err := fn(ctx, item.Data)
	if err != nil {
		if taskerr.IsFatal(err) {
			if rerr := m.store.Restore(queuestore.Inputs); rerr != nil {
				return fmt.Errorf("taskqueue: restore after fatal: %w", rerr)
			}
			return err
		}

		if aerr := m.store.Append(queuestore.Failures, item.Data); aerr != nil {
			return fmt.Errorf("taskqueue: append failure: %w", aerr)
		}
		if aerr := m.store.Ack(queuestore.Inputs); aerr != nil {
			return fmt.Errorf("taskqueue: ack after non-fatal: %w", aerr)
		}
		if cb.OnNonFatal != nil {
			cb.OnNonFatal(item.Data, err)
		}
		return nil
	}

	if output == nil {
		if aerr := m.store.Append(queuestore.InputsWithoutData, item.Data); aerr != nil {
			return fmt.Errorf("taskqueue: append no-data: %w", aerr)
		}
		if aerr := m.store.Ack(queuestore.Inputs); aerr != nil {
			return fmt.Errorf("taskqueue: ack after no-data: %w", aerr)
		}
		if cb.OnNoData != nil {
			cb.OnNoData(item.Data)
		}
		return nil
	}

	if aerr := m.store.Append(queuestore.Successes, output); aerr != nil {
		return fmt.Errorf("taskqueue: append success: %w", aerr)
	}
	if aerr := m.store.Ack(queuestore.Inputs); aerr != nil {
		return fmt.Errorf("taskqueue: ack after success: %w", aerr)
	}
	if cb.OnSuccess != nil {
		cb.OnSuccess(item.Data, output)
	}
	return nil
}

// MinBatchSize is the minimum batch size accepted by ProcessNextBatch, per
// spec.md §8's boundary behavior: a batch of size 1 is rejected, the
// sequential processor (ProcessNext) exists for that case.
const MinBatchSize = 2

// ProcessNextBatch pops up to batchSize inputs, invokes fn once, and routes
// the outcome. If fn returns a number of outputs not equal to the number of
// inputs, the call is treated as Fatal (spec.md §4.2). On non-fatal error,
// every popped input routes to failures.
func (m *Manager) ProcessNextBatch(ctx context.Context, fn BatchFunc, batchSize int, cb Callbacks) error {
	if batchSize < MinBatchSize {
		return taskerr.NewValidation(fmt.Sprintf("batch size must be >= %d", MinBatchSize))
	}

	items, err := m.store.PopNextN(queuestore.Inputs, batchSize)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return queuestore.ErrItemNotFound
	}

	inputs := make([]json.RawMessage, len(items))
	for i, it := range items {
		inputs[i] = it.Data
	}

	outputs, err := fn(ctx, inputs)
	if err != nil {
		if taskerr.IsFatal(err) {
			if rerr := m.store.Restore(queuestore.Inputs); rerr != nil {
				return fmt.Errorf("taskqueue: restore after fatal batch: %w", rerr)
			}
			return err
		}

		for _, it := range items {
			if aerr := m.store.Append(queuestore.Failures, it.Data); aerr != nil {
				return fmt.Errorf("taskqueue: append batch failure: %w", aerr)
			}
			if cb.OnNonFatal != nil {
				cb.OnNonFatal(it.Data, err)
			}
		}
		if aerr := m.store.Ack(queuestore.Inputs); aerr != nil {
			return fmt.Errorf("taskqueue: ack after non-fatal batch: %w", aerr)
		}
		return nil
	}

	if len(outputs) != len(inputs) {
		if rerr := m.store.Restore(queuestore.Inputs); rerr != nil {
			return fmt.Errorf("taskqueue: restore after length mismatch: %w", rerr)
		}
		return taskerr.NewFatal(fmt.Sprintf(
			"batch fetch returned %d outputs for %d inputs", len(outputs), len(inputs)), nil)
	}

	for i, out := range outputs {
		if out == nil {
			if aerr := m.store.Append(queuestore.InputsWithoutData, items[i].Data); aerr != nil {
				return fmt.Errorf("taskqueue: append batch no-data: %w", aerr)
			}
			if cb.OnNoData != nil {
				cb.OnNoData(items[i].Data)
			}
			continue
		}
		if aerr := m.store.Append(queuestore.Successes, out); aerr != nil {
			return fmt.Errorf("taskqueue: append batch success: %w", aerr)
		}
		if cb.OnSuccess != nil {
			cb.OnSuccess(items[i].Data, out)
		}
	}

	if aerr := m.store.Ack(queuestore.Inputs); aerr != nil {
		return fmt.Errorf("taskqueue: ack after batch: %w", aerr)
	}
	return nil
}

// Counts returns the four queue depths used for progress reporting.
type Counts struct {
	Success       int64
	Failure       int64
	NoOutput      int64
	Remaining     int64
}

// Counts reports the current depth of every queue.
func (m *Manager) Counts() (Counts, error) {
	var c Counts
	var err error
	if c.Success, err = m.store.Count(queuestore.Successes); err != nil {
		return Counts{}, err
	}
	if c.Failure, err = m.store.Count(queuestore.Failures); err != nil {
		return Counts{}, err
	}
	if c.NoOutput, err = m.store.Count(queuestore.InputsWithoutData); err != nil {
		return Counts{}, err
	}
	if c.Remaining, err = m.store.Count(queuestore.Inputs); err != nil {
		return Counts{}, err
	}
	return c, nil
}

// Page lists a page of items from the named queue.
func (m *Manager) Page(queue queuestore.Name, cursor *uint, limit int) ([]queuestore.QueueItem, *uint, int64, error) {
	return m.store.Page(queue, cursor, limit)
}

// DeleteByIDs deletes the given ids from the named queue.
func (m *Manager) DeleteByIDs(queue queuestore.Name, ids []uint) (int64, error) {
	return m.store.DeleteByIDs(queue, ids)
}

// Close closes the underlying store.
func (m *Manager) Close() error { return m.store.Close() }
