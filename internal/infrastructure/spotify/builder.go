package spotify

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/playlist-hub/playlist-hub/internal/domain/workflow"
)

// Builder implements workflow.Builder: it creates a playlist from a
// completed selection set and returns its shareable URL.
type Builder struct {
	client *Client
}

func NewBuilder(client *Client) *Builder {
	return &Builder{client: client}
}

// Build creates the playlist and adds every selected track in item order.
// Manual overrides contribute a track when their link resolves to one;
// otherwise they are skipped with a warning, since an arbitrary link cannot
// be added to a Spotify playlist.
func (b *Builder) Build(ctx context.Context, wf *workflow.Workflow) (string, error) {
	uris := make([]string, 0, len(wf.Selections))
	indices := make([]int, 0, len(wf.Selections))
	for idx := range wf.Selections {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	for _, idx := range indices {
		sel := wf.Selections[idx]
		switch {
		case sel.Candidate != nil && sel.Candidate.URI != "":
			uris = append(uris, sel.Candidate.URI)
		case sel.Candidate != nil:
			uris = append(uris, "spotify:track:"+sel.Candidate.ExternalID)
		case sel.Override != nil:
			if uri, ok := trackURIFromLink(sel.Override.Link); ok {
				uris = append(uris, uri)
			} else {
				b.client.logger.Warn().Str("workflow_id", wf.ID).Int("item", idx).Str("link", sel.Override.Link).
					Msg("manual override link is not a spotify track, skipping")
			}
		}
	}

	var me struct {
		ID string `json:"id"`
	}
	if err := b.client.do(ctx, "GET", "/me", nil, nil, &me); err != nil {
		return "", err
	}

	name := fmt.Sprintf("Jam %s", wf.CreatedAt.Format("2006-01-02"))
	var playlist struct {
		ID           string `json:"id"`
		ExternalURLs struct {
			Spotify string `json:"spotify"`
		} `json:"external_urls"`
	}
	createBody := map[string]any{
		"name":        name,
		"description": fmt.Sprintf("Jam setlist with %d songs", len(wf.Items)),
		"public":      true,
	}
	if err := b.client.do(ctx, "POST", "/users/"+me.ID+"/playlists", nil, createBody, &playlist); err != nil {
		return "", err
	}

	if len(uris) > 0 {
		addBody := map[string]any{"uris": uris}
		if err := b.client.do(ctx, "POST", "/playlists/"+playlist.ID+"/tracks", nil, addBody, nil); err != nil {
			return "", err
		}
	}

	b.client.logger.Info().Str("workflow_id", wf.ID).Str("playlist_id", playlist.ID).Int("tracks", len(uris)).
		Msg("playlist created")
	return playlist.ExternalURLs.Spotify, nil
}

// trackURIFromLink converts an open.spotify.com track link to a track URI.
func trackURIFromLink(link string) (string, bool) {
	u, err := url.Parse(link)
	if err != nil || !strings.HasSuffix(u.Host, "spotify.com") {
		return "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[0] != "track" || parts[1] == "" {
		return "", false
	}
	return "spotify:track:" + parts[1], true
}
