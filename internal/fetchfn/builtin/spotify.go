// Package builtin registers the stock fetch function factories bundled
// with the engine, one per supported data source.
//
// Grounded on original_source/api-server/app/tasks/fetch_functions/data_sources/
// (spotify_api.py, spotify_internal.py, dummy_api.py): the set of supported
// task_type values per data source, the sequential-vs-batch split, and the
// CredentialsBlockedException -> Fatal mapping are all carried over.
package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/marmos91/taskengine/internal/fetchfn"
	"github.com/marmos91/taskengine/internal/taskerr"
)

// SpotifyAPI is the data source name for the public Spotify Web API,
// matching the original's "spotify-api" literal.
const SpotifyAPI = "spotify-api"

// SpotifyInternal is the data source name for Spotify's internal API,
// matching the original's "spotify-internal" literal.
const SpotifyInternal = "spotify-internal"

// SpotifyAPIClient is the minimal HTTP surface the spotify-api fetch
// functions need. A thin interface keeps the factories testable without a
// live network dependency.
type SpotifyAPIClient interface {
	Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error)
}

// httpSpotifyClient is the default SpotifyAPIClient, a thin net/http
// wrapper. No HTTP client library appears anywhere in the retrieved
// examples, so this one concern is implemented directly against net/http
// rather than grounded on a third-party client (see DESIGN.md).
type httpSpotifyClient struct {
	baseURL string
	token   string
	hc      *http.Client
}

// NewHTTPSpotifyClient returns a SpotifyAPIClient backed by net/http.
func NewHTTPSpotifyClient(baseURL, token string) SpotifyAPIClient {
	return &httpSpotifyClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *httpSpotifyClient) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, taskerr.NewFatal("build spotify request", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, taskerr.NewNonFatal("spotify request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, taskerr.NewNonFatal("read spotify response", err)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		// Matches CredentialsBlockedException -> FatalProcessingError in the
		// original: blocked credentials stop the whole task, not just this item.
		return nil, taskerr.NewFatal(fmt.Sprintf("spotify credentials rejected: %s", resp.Status), nil)
	case http.StatusOK:
		return json.RawMessage(body), nil
	default:
		return nil, taskerr.NewNonFatal(fmt.Sprintf("spotify request returned %s", resp.Status), nil)
	}
}

// releaseTypesParams mirrors ArtistAlbumsParams.release_types.
type releaseTypesParams struct {
	Albums       bool `json:"albums"`
	Singles      bool `json:"singles"`
	Compilations bool `json:"compilations"`
	AppearsOn    bool `json:"appears_on"`
}

// artistAlbumsParams mirrors app.tasks.input_validation.spotify_api.ArtistAlbumsParams.
type artistAlbumsParams struct {
	Region       string             `json:"region"`
	ReleaseTypes releaseTypesParams `json:"release_types"`
}

// regionParams mirrors app.tasks.input_validation.spotify_api.RegionSpecificParams.
type regionParams struct {
	Region string `json:"region"`
}

// RegisterSpotifyAPI registers every spotify-api task_type against client.
func RegisterSpotifyAPI(r *fetchfn.Registry, client SpotifyAPIClient) {
	r.Register(SpotifyAPI, "artist-albums", func(taskType string, raw json.RawMessage) (fetchfn.Descriptor, error) {
		var p artistAlbumsParams
		if err := decodeParams(raw, &p); err != nil {
			return fetchfn.Descriptor{}, err
		}
		return fetchfn.Descriptor{Single: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			artistID, err := decodeString(input)
			if err != nil {
				return nil, err
			}
			q := url.Values{"region": {p.Region}}
			if p.ReleaseTypes.Albums {
				q.Add("include_groups", "album")
			}
			if p.ReleaseTypes.Singles {
				q.Add("include_groups", "single")
			}
			if p.ReleaseTypes.Compilations {
				q.Add("include_groups", "compilation")
			}
			if p.ReleaseTypes.AppearsOn {
				q.Add("include_groups", "appears_on")
			}
			return client.Get(ctx, "/v1/artists/"+artistID+"/albums", q)
		}}, nil
	})

	r.Register(SpotifyAPI, "playlists", func(taskType string, raw json.RawMessage) (fetchfn.Descriptor, error) {
		return fetchfn.Descriptor{Single: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			playlistID, err := decodeString(input)
			if err != nil {
				return nil, err
			}
			return client.Get(ctx, "/v1/playlists/"+playlistID, nil)
		}}, nil
	})

	r.Register(SpotifyAPI, "isrc-track-search", func(taskType string, raw json.RawMessage) (fetchfn.Descriptor, error) {
		var p regionParams
		if err := decodeParams(raw, &p); err != nil {
			return fetchfn.Descriptor{}, err
		}
		return fetchfn.Descriptor{Single: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			isrc, err := decodeString(input)
			if err != nil {
				return nil, err
			}
			q := url.Values{"q": {"isrc:" + isrc}, "type": {"track"}, "market": {p.Region}}
			return client.Get(ctx, "/v1/search", q)
		}}, nil
	})

	const maxBatch = 50 // Spotify's /v1/tracks, /v1/artists, /v1/albums cap at 50 ids per call

	r.Register(SpotifyAPI, "tracks", func(taskType string, raw json.RawMessage) (fetchfn.Descriptor, error) {
		var p regionParams
		if err := decodeParams(raw, &p); err != nil {
			return fetchfn.Descriptor{}, err
		}
		return fetchfn.Descriptor{MaxBatch: maxBatch, Batch: func(ctx context.Context, inputs []json.RawMessage) ([]json.RawMessage, error) {
			return fetchSpotifyBatch(ctx, client, "/v1/tracks", "tracks", inputs, p.Region)
		}}, nil
	})

	r.Register(SpotifyAPI, "artists", func(taskType string, raw json.RawMessage) (fetchfn.Descriptor, error) {
		return fetchfn.Descriptor{MaxBatch: maxBatch, Batch: func(ctx context.Context, inputs []json.RawMessage) ([]json.RawMessage, error) {
			return fetchSpotifyBatch(ctx, client, "/v1/artists", "artists", inputs, "")
		}}, nil
	})

	r.Register(SpotifyAPI, "albums", func(taskType string, raw json.RawMessage) (fetchfn.Descriptor, error) {
		var p regionParams
		if err := decodeParams(raw, &p); err != nil {
			return fetchfn.Descriptor{}, err
		}
		return fetchfn.Descriptor{MaxBatch: maxBatch, Batch: func(ctx context.Context, inputs []json.RawMessage) ([]json.RawMessage, error) {
			return fetchSpotifyBatch(ctx, client, "/v1/albums", "albums", inputs, p.Region)
		}}, nil
	})
}

// fetchSpotifyBatch calls one of Spotify's comma-separated-ids batch
// endpoints and splits the response's objectsKey array back into one
// output per input, in order.
func fetchSpotifyBatch(ctx context.Context, client SpotifyAPIClient, path, objectsKey string, inputs []json.RawMessage, region string) ([]json.RawMessage, error) {
	ids := make([]string, len(inputs))
	for i, in := range inputs {
		s, err := decodeString(in)
		if err != nil {
			return nil, err
		}
		ids[i] = s
	}

	q := url.Values{"ids": {strings.Join(ids, ",")}}
	if region != "" {
		q.Set("market", region)
	}

	body, err := client.Get(ctx, path, q)
	if err != nil {
		return nil, err
	}

	var decoded map[string][]json.RawMessage
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, taskerr.NewNonFatal("decode spotify batch response", err)
	}
	objects := decoded[objectsKey]
	if len(objects) != len(inputs) {
		return nil, taskerr.NewFatal(fmt.Sprintf(
			"spotify batch response for %s returned %d objects for %d ids", path, len(objects), len(inputs)), nil)
	}
	return objects, nil
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return taskerr.NewValidation("task params are required for this task_type")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return taskerr.NewValidation(fmt.Sprintf("invalid task params: %v", err))
	}
	return nil
}

func decodeString(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) >= 2 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", taskerr.NewNonFatal("input item is not a string", err)
		}
		return s, nil
	}
	return "", taskerr.NewNonFatal("input item is not a JSON string", nil)
}
