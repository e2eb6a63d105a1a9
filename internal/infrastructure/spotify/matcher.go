package spotify

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/playlist-hub/playlist-hub/internal/domain/workflow"
)

// Matcher implements workflow.Matcher via track search.
type Matcher struct {
	client *Client
}

func NewMatcher(client *Client) *Matcher {
	return &Matcher{client: client}
}

type searchResponse struct {
	Tracks struct {
		Items []struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			URI     string `json:"uri"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
			Album struct {
				Name string `json:"name"`
			} `json:"album"`
			ExternalURLs struct {
				Spotify string `json:"spotify"`
			} `json:"external_urls"`
		} `json:"items"`
	} `json:"tracks"`
}

// FindCandidates returns up to three ranked track matches for a label. An
// empty result is not an error; retries belong to the caller's retry of the
// whole operation, not here.
func (m *Matcher) FindCandidates(ctx context.Context, label string) ([]workflow.Candidate, error) {
	query := url.Values{}
	query.Set("q", label)
	query.Set("type", "track")
	query.Set("limit", strconv.Itoa(workflow.MaxCandidates))

	var resp searchResponse
	if err := m.client.do(ctx, "GET", "/search", query, nil, &resp); err != nil {
		return nil, err
	}

	candidates := make([]workflow.Candidate, 0, workflow.MaxCandidates)
	for _, item := range resp.Tracks.Items {
		if len(candidates) == workflow.MaxCandidates {
			break
		}
		artists := make([]string, len(item.Artists))
		for i, a := range item.Artists {
			artists[i] = a.Name
		}
		candidates = append(candidates, workflow.Candidate{
			ExternalID: item.ID,
			Name:       item.Name,
			Artist:     strings.Join(artists, ", "),
			Album:      item.Album.Name,
			URL:        item.ExternalURLs.Spotify,
			URI:        item.URI,
		})
	}
	return candidates, nil
}
