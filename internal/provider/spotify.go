package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"

	"trendpanel/internal/models"
)

// Spotify has no public chart endpoint, so category playlists act as
// the trend proxy: the top playlists of a genre category, deduplicated
// and re-ranked.
type SpotifyProvider struct {
	client *spotify.Client
	logger *zap.Logger
}

func NewSpotifyProvider(client *spotify.Client, logger *zap.Logger) *SpotifyProvider {
	return &SpotifyProvider{client: client, logger: logger}
}

func (p *SpotifyProvider) Name() models.Source { return models.SourceSpotify }

// spotifyCategories maps genre labels to Spotify browse category ids.
var spotifyCategories = map[string]string{
	"techhouse":  "edm_dance",
	"techno":     "edm_dance",
	"house":      "edm_dance",
	"electronic": "edm_dance",
	"pop":        "pop",
	"hiphop":     "hiphop",
	"rock":       "rock",
}

func (p *SpotifyProvider) FetchCharts(ctx context.Context, region, genre string) ([]models.SourceRecord, error) {
	category, ok := spotifyCategories[strings.ToLower(genre)]
	if !ok {
		category = "toplists"
	}

	page, err := p.client.GetCategoryPlaylists(ctx, category,
		spotify.Country(region), spotify.Limit(5))
	if err != nil {
		return nil, fmt.Errorf("spotify category playlists: %w", err)
	}

	var records []models.SourceRecord
	playlists := page.Playlists
	if len(playlists) > 3 {
		playlists = playlists[:3]
	}

	for _, pl := range playlists {
		full, err := p.client.GetPlaylist(ctx, pl.ID)
		if err != nil {
			p.logger.Warn("spotify playlist fetch failed",
				zap.String("playlist_id", string(pl.ID)), zap.Error(err))
			continue
		}
		for _, item := range full.Tracks.Tracks {
			if item.Track.ID == "" || item.IsLocal {
				continue
			}
			records = append(records, p.transform(item.Track, len(records)+1))
		}
	}

	records = dedupeBySpotifyID(records)
	if len(records) > chartLimit {
		records = records[:chartLimit]
	}
	for i := range records {
		records[i].Rank = i + 1
	}

	p.logger.Info("fetched spotify tracks",
		zap.Int("count", len(records)),
		zap.String("region", region),
		zap.String("category", category))
	return records, nil
}

func (p *SpotifyProvider) transform(st spotify.FullTrack, rank int) models.SourceRecord {
	artists := make([]string, len(st.Artists))
	for i, a := range st.Artists {
		artists[i] = a.Name
	}

	artworkURL := ""
	if len(st.Album.Images) > 0 {
		artworkURL = st.Album.Images[0].URL
	}

	return models.SourceRecord{
		Title:      st.Name,
		Artist:     strings.Join(artists, ", "),
		ISRC:       st.ExternalIDs["isrc"],
		DurationMS: int64(st.Duration),
		ArtworkURL: artworkURL,
		Source:     models.SourceSpotify,
		Rank:       rank,
		Metadata: map[string]any{
			"spotify_id":   string(st.ID),
			"popularity":   int(st.Popularity),
			"preview_url":  st.PreviewURL,
			"url":          st.ExternalURLs["spotify"],
			"album":        st.Album.Name,
			"release_date": st.Album.ReleaseDate,
			"explicit":     st.Explicit,
		},
	}
}

func dedupeBySpotifyID(records []models.SourceRecord) []models.SourceRecord {
	seen := map[string]bool{}
	out := records[:0]
	for _, r := range records {
		id, _ := r.Metadata["spotify_id"].(string)
		if id != "" && seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, r)
	}
	return out
}
