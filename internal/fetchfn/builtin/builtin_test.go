package builtin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/taskengine/internal/fetchfn"
	"github.com/marmos91/taskengine/internal/taskerr"
)

type stubClient struct {
	response json.RawMessage
	status   int
}

func (c *stubClient) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	if c.status == http.StatusUnauthorized {
		return nil, taskerr.NewFatal("spotify credentials rejected", nil)
	}
	return c.response, nil
}

func TestRegisterSpotifyAPIPlaylistsSingleItem(t *testing.T) {
	r := fetchfn.NewRegistry()
	RegisterSpotifyAPI(r, &stubClient{response: json.RawMessage(`{"id":"p1"}`)})

	d, err := r.Resolve(SpotifyAPI, "playlists", nil)
	require.NoError(t, err)
	require.False(t, d.IsBatch())

	out, err := d.Single(context.Background(), json.RawMessage(`"p1"`))
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"p1"}`, string(out))
}

func TestRegisterSpotifyAPITracksBatchSplitsObjects(t *testing.T) {
	r := fetchfn.NewRegistry()
	RegisterSpotifyAPI(r, &stubClient{response: json.RawMessage(`{"tracks":[{"id":"a"},{"id":"b"}]}`)})

	d, err := r.Resolve(SpotifyAPI, "tracks", json.RawMessage(`{"region":"US"}`))
	require.NoError(t, err)
	require.True(t, d.IsBatch())

	out, err := d.Batch(context.Background(), []json.RawMessage{json.RawMessage(`"a"`), json.RawMessage(`"b"`)})
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestRegisterSpotifyAPIRequiresParams(t *testing.T) {
	r := fetchfn.NewRegistry()
	RegisterSpotifyAPI(r, &stubClient{})

	_, err := r.Resolve(SpotifyAPI, "artist-albums", nil)
	require.True(t, taskerr.IsValidation(err))
}

func TestRegisterSpotifyInternalRelatedArtists(t *testing.T) {
	r := fetchfn.NewRegistry()
	RegisterSpotifyInternal(r, &stubClient{response: json.RawMessage(`{"artists":[]}`)})

	d, err := r.Resolve(SpotifyInternal, "related_artists", nil)
	require.NoError(t, err)

	out, err := d.Single(context.Background(), json.RawMessage(`"artist-1"`))
	require.NoError(t, err)
	require.JSONEq(t, `{"artists":[]}`, string(out))
}

func TestRegisterDummyAPIFlakyNeverFailsAtZeroFlakiness(t *testing.T) {
	r := fetchfn.NewRegistry()
	RegisterDummyAPI(r)

	d, err := r.Resolve(DummyAPI, "flaky", json.RawMessage(`{"flakiness":0}`))
	require.NoError(t, err)

	out, err := d.Single(context.Background(), json.RawMessage(`42`))
	require.NoError(t, err)
	require.Equal(t, json.RawMessage(`42`), out)
}

func TestRegisterDummyAPIThrowAboveThreshold(t *testing.T) {
	r := fetchfn.NewRegistry()
	RegisterDummyAPI(r)

	d, err := r.Resolve(DummyAPI, "throw-above-threshold", json.RawMessage(`{"threshold":10}`))
	require.NoError(t, err)

	_, err = d.Single(context.Background(), json.RawMessage(`11`))
	require.True(t, taskerr.IsNonFatal(err))

	out, err := d.Single(context.Background(), json.RawMessage(`5`))
	require.NoError(t, err)
	require.Equal(t, json.RawMessage(`5`), out)
}

func TestHTTPSpotifyClientMapsUnauthorizedToFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewHTTPSpotifyClient(srv.URL, "token")
	_, err := client.Get(context.Background(), "/v1/playlists/x", nil)
	require.True(t, taskerr.IsFatal(err))
}
