// Package fetchfn implements the Fetch Function Registry: given
// (data_source, task_type, params) it produces either a single-item or
// batch fetch function plus the batch's max size.
//
// Grounded on the original source's per-data-source factory pattern
// (DataSourceSingleItemFetchFunctionFactory / DataSourceBatchFetchFunctionFactory),
// replaced per spec.md §9's polymorphism note with a Go interface and a
// registry keyed by (data_source, task_type) instead of an ABC hierarchy.
package fetchfn

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/marmos91/taskengine/internal/taskerr"
	"github.com/marmos91/taskengine/internal/taskqueue"
)

// SingleItemFunc processes one input.
type SingleItemFunc = taskqueue.SingleItemFunc

// BatchFunc processes a batch of inputs.
type BatchFunc = taskqueue.BatchFunc

// Descriptor is the tagged-union shape of one registered fetch function:
// exactly one of Single or Batch is set.
type Descriptor struct {
	Single   SingleItemFunc
	Batch    BatchFunc
	MaxBatch int // only meaningful when Batch is set; must be >= taskqueue.MinBatchSize
}

// IsBatch reports whether d describes a batch fetch function.
func (d Descriptor) IsBatch() bool { return d.Batch != nil }

// Factory produces a Descriptor for one (data_source, task_type) pair,
// given the task's params. It is the Go analogue of the source's
// per-data-source factory classes.
type Factory func(taskType string, params json.RawMessage) (Descriptor, error)

type key struct {
	dataSource string
	taskType   string
}

// Registry maps (data_source, task_type) to a Descriptor factory.
type Registry struct {
	mu        sync.RWMutex
	factories map[key]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[key]Factory)}
}

// Register associates a factory with one (data_source, task_type) pair.
// Registering the same pair twice overwrites the previous registration.
func (r *Registry) Register(dataSource, taskType string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key{dataSource, taskType}] = f
}

// Resolve constructs the Descriptor for (dataSource, taskType) given params.
// An unregistered pair is a configuration error surfaced to the caller
// (spec.md §4.4), never a panic or a Fatal runtime error.
func (r *Registry) Resolve(dataSource, taskType string, params json.RawMessage) (Descriptor, error) {
	r.mu.RLock()
	f, ok := r.factories[key{dataSource, taskType}]
	r.mu.RUnlock()

	if !ok {
		return Descriptor{}, taskerr.NewValidation(
			fmt.Sprintf("no fetch function registered for data_source=%q task_type=%q", dataSource, taskType))
	}

	d, err := f(taskType, params)
	if err != nil {
		return Descriptor{}, err
	}

	if d.Single == nil && d.Batch == nil {
		return Descriptor{}, taskerr.NewValidation(
			fmt.Sprintf("fetch function factory for data_source=%q task_type=%q returned neither Single nor Batch", dataSource, taskType))
	}
	if d.Batch != nil && d.MaxBatch < taskqueue.MinBatchSize {
		return Descriptor{}, taskerr.NewValidation(
			fmt.Sprintf("batch fetch function must declare MaxBatch >= %d", taskqueue.MinBatchSize))
	}

	return d, nil
}
