package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/kkdai/youtube/v2"
	"go.uber.org/zap"

	"trendpanel/internal/models"
)

// YouTube exposes no chart API to anonymous clients, so the adapter
// reads a curated chart playlist (YouTube publishes per-region "Top
// music videos" playlists) configured per deployment. Region and genre
// are baked into the playlist choice, not passed through.
type YouTubeProvider struct {
	client   youtube.Client
	playlist string
	logger   *zap.Logger
}

func NewYouTubeProvider(playlist string, logger *zap.Logger) *YouTubeProvider {
	return &YouTubeProvider{playlist: playlist, logger: logger}
}

func (p *YouTubeProvider) Name() models.Source { return models.SourceYouTube }

func (p *YouTubeProvider) FetchCharts(ctx context.Context, region, genre string) ([]models.SourceRecord, error) {
	playlist, err := p.client.GetPlaylistContext(ctx, p.playlist)
	if err != nil {
		return nil, fmt.Errorf("youtube chart playlist: %w", err)
	}

	entries := playlist.Videos
	if len(entries) > chartLimit {
		entries = entries[:chartLimit]
	}

	var records []models.SourceRecord
	for i, entry := range entries {
		title, author, duration := entry.Title, entry.Author, entry.Duration
		views := 0
		publishedAt := ""

		// Playlist entries carry no statistics; a per-video fetch adds
		// the view count used by the score fusion boost. Failure keeps
		// the entry-level data.
		video, err := p.client.VideoFromPlaylistEntryContext(ctx, entry)
		if err != nil {
			p.logger.Warn("youtube video fetch failed",
				zap.String("video_id", entry.ID), zap.Error(err))
		} else {
			title, author, duration, views = video.Title, video.Author, video.Duration, video.Views
			if !video.PublishDate.IsZero() {
				publishedAt = video.PublishDate.Format(time.RFC3339)
			}
		}

		artist, trackTitle := SplitVideoTitle(title, author)
		if artist == "" || trackTitle == "" {
			p.logger.Debug("skipping non-music video", zap.String("title", title))
			continue
		}

		records = append(records, models.SourceRecord{
			Title:      trackTitle,
			Artist:     artist,
			DurationMS: duration.Milliseconds(),
			ArtworkURL: bestThumbnail(entry.Thumbnails),
			Source:     models.SourceYouTube,
			Rank:       i + 1,
			Metadata: map[string]any{
				"video_id":     entry.ID,
				"view_count":   views,
				"url":          "https://www.youtube.com/watch?v=" + entry.ID,
				"channel":      author,
				"published_at": publishedAt,
			},
		})
	}

	p.logger.Info("fetched youtube tracks", zap.Int("count", len(records)))
	return records, nil
}

func bestThumbnail(thumbnails youtube.Thumbnails) string {
	best := ""
	width := uint(0)
	for _, t := range thumbnails {
		if t.Width >= width {
			width = t.Width
			best = t.URL
		}
	}
	return best
}
