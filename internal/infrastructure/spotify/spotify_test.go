package spotify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playlist-hub/playlist-hub/internal/domain/workflow"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
	})
	mux.Handle("/", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh",
		APIURL:       srv.URL,
		TokenURL:     srv.URL + "/token",
	}, zerolog.Nop())
}

func TestFindCandidatesParsesTopThree(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "Salt Creek", r.URL.Query().Get("q"))
		assert.Equal(t, "track", r.URL.Query().Get("type"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))

		json.NewEncoder(w).Encode(map[string]any{
			"tracks": map[string]any{
				"items": []map[string]any{
					{
						"id": "t1", "name": "Salt Creek", "uri": "spotify:track:t1",
						"artists": []map[string]string{{"name": "Doc Watson"}, {"name": "Flatt"}},
						"album":   map[string]string{"name": "Live"},
						"external_urls": map[string]string{
							"spotify": "https://open.spotify.com/track/t1",
						},
					},
					{
						"id": "t2", "name": "Salt Creek (live)", "uri": "spotify:track:t2",
						"artists":       []map[string]string{{"name": "Tony Rice"}},
						"album":         map[string]string{"name": "Unit"},
						"external_urls": map[string]string{"spotify": "https://open.spotify.com/track/t2"},
					},
				},
			},
		})
	})

	matcher := NewMatcher(newTestClient(t, handler))
	candidates, err := matcher.FindCandidates(context.Background(), "Salt Creek")
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "t1", candidates[0].ExternalID)
	assert.Equal(t, "Doc Watson, Flatt", candidates[0].Artist)
	assert.Equal(t, "spotify:track:t1", candidates[0].URI)
	assert.Equal(t, "https://open.spotify.com/track/t2", candidates[1].URL)
}

func TestFindCandidatesEmptyResultIsNotAnError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"tracks": map[string]any{"items": []any{}}})
	})
	matcher := NewMatcher(newTestClient(t, handler))
	candidates, err := matcher.FindCandidates(context.Background(), "Unknown Tune")
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestFindCandidatesHonorsContextDeadline(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	matcher := NewMatcher(newTestClient(t, handler))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := matcher.FindCandidates(ctx, "Salt Creek")
	require.Error(t, err)
}

func TestBuildCreatesPlaylistInItemOrder(t *testing.T) {
	var addedURIs []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/me":
			json.NewEncoder(w).Encode(map[string]string{"id": "user-1"})
		case r.URL.Path == "/users/user-1/playlists":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Contains(t, body["name"], "Jam ")
			json.NewEncoder(w).Encode(map[string]any{
				"id":            "pl-1",
				"external_urls": map[string]string{"spotify": "https://open.spotify.com/playlist/pl-1"},
			})
		case r.URL.Path == "/playlists/pl-1/tracks":
			var body struct {
				URIs []string `json:"uris"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			addedURIs = body.URIs
			w.WriteHeader(http.StatusCreated)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	builder := NewBuilder(newTestClient(t, handler))
	wf := &workflow.Workflow{
		ID:        "wf-1",
		CreatedAt: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		Items:     []workflow.RequestItem{{Index: 0}, {Index: 1}, {Index: 2}},
		Selections: workflow.SelectionMap{
			2: {Candidate: &workflow.Candidate{ExternalID: "t3", URI: "spotify:track:t3"}},
			0: {Candidate: &workflow.Candidate{ExternalID: "t1", URI: "spotify:track:t1"}},
			1: {Override: &workflow.ManualOverride{Link: "https://open.spotify.com/track/manual"}},
		},
	}

	url, err := builder.Build(context.Background(), wf)
	require.NoError(t, err)
	assert.Equal(t, "https://open.spotify.com/playlist/pl-1", url)
	assert.Equal(t, []string{"spotify:track:t1", "spotify:track:manual", "spotify:track:t3"}, addedURIs)
}

func TestTrackURIFromLink(t *testing.T) {
	tests := []struct {
		link string
		uri  string
		ok   bool
	}{
		{"https://open.spotify.com/track/abc123", "spotify:track:abc123", true},
		{"https://open.spotify.com/track/abc123?si=xyz", "spotify:track:abc123", true},
		{"https://open.spotify.com/album/abc123", "", false},
		{"https://example.com/track/abc123", "", false},
		{"not a url at all ://", "", false},
	}
	for _, tt := range tests {
		uri, ok := trackURIFromLink(tt.link)
		assert.Equal(t, tt.ok, ok, tt.link)
		assert.Equal(t, tt.uri, uri, tt.link)
	}
}
