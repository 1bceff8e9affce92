package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/marmos91/taskengine/internal/fetchfn"
	"github.com/marmos91/taskengine/internal/taskerr"
)

// DummyAPI is the data source name used for local testing and demos,
// matching the original's "dummy-api" literal. It never calls out to the
// network; it exists to exercise the processor's non-fatal failure-routing
// path deterministically.
const DummyAPI = "dummy-api"

// flakyParams mirrors app.tasks.input_validation.dummy_api.FlakyParams.
type flakyParams struct {
	Flakiness float64 `json:"flakiness"`
}

// throwAboveThresholdParams mirrors
// app.tasks.input_validation.dummy_api.ThrowAboveThresholdParams.
type throwAboveThresholdParams struct {
	Threshold int64 `json:"threshold"`
}

// RegisterDummyAPI registers the dummy-api data source's two sequential
// task types. Like spotify-internal, dummy-api never supports batching.
func RegisterDummyAPI(r *fetchfn.Registry) {
	rng := &randSource{rng: rand.New(rand.NewSource(1))}

	r.Register(DummyAPI, "flaky", func(taskType string, raw json.RawMessage) (fetchfn.Descriptor, error) {
		var p flakyParams
		if err := decodeParams(raw, &p); err != nil {
			return fetchfn.Descriptor{}, err
		}
		return fetchfn.Descriptor{Single: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			time.Sleep(time.Millisecond) // simulate network latency without a real call
			if rng.chance() < p.Flakiness {
				return nil, taskerr.NewNonFatal(fmt.Sprintf("dummy endpoint failed (p=%.2f)", p.Flakiness), nil)
			}
			return json.RawMessage(input), nil
		}}, nil
	})

	r.Register(DummyAPI, "throw-above-threshold", func(taskType string, raw json.RawMessage) (fetchfn.Descriptor, error) {
		var p throwAboveThresholdParams
		if err := decodeParams(raw, &p); err != nil {
			return fetchfn.Descriptor{}, err
		}
		return fetchfn.Descriptor{Single: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			var id int64
			if err := json.Unmarshal(input, &id); err != nil {
				return nil, taskerr.NewNonFatal("input item is not a numeric id", err)
			}
			if id > p.Threshold {
				return nil, taskerr.NewNonFatal(fmt.Sprintf("id %d exceeds threshold %d", id, p.Threshold), nil)
			}
			return json.RawMessage(input), nil
		}}, nil
	})
}

// randSource is a tiny concurrency-safe wrapper around math/rand, since
// the dummy fetch functions may run from multiple goroutines in tests.
type randSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (r *randSource) chance() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}
