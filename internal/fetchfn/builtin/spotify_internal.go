package builtin

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/marmos91/taskengine/internal/fetchfn"
)

// RegisterSpotifyInternal registers every spotify-internal task_type
// against client. Grounded on spotify_internal.py: a single sequential
// task type, "related_artists", and no batch support at all.
func RegisterSpotifyInternal(r *fetchfn.Registry, client SpotifyAPIClient) {
	r.Register(SpotifyInternal, "related_artists", func(taskType string, raw json.RawMessage) (fetchfn.Descriptor, error) {
		return fetchfn.Descriptor{Single: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			artistID, err := decodeString(input)
			if err != nil {
				return nil, err
			}
			return client.Get(ctx, "/v1/artists/"+artistID+"/related-artists", url.Values{})
		}}, nil
	})
}

// Batch fetch functions are deliberately not registered for this data
// source: Resolve already returns a validation error for any unregistered
// task_type, matching spotify_internal.py's BatchFetchFunctionFactory
// which raises on every call.
