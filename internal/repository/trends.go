package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"trendpanel/internal/models"
)

type trendRow struct {
	TrackID          int64   `db:"track_id"`
	Source           string  `db:"source"`
	Rank             *int    `db:"rank"`
	Score            float64 `db:"score"`
	Region           string  `db:"region"`
	Genre            string  `db:"genre"`
	ChartDate        string  `db:"chart_date"`
	Metadata         string  `db:"metadata"`
	Title            string  `db:"title"`
	Artist           string  `db:"artist"`
	NormalizedTitle  string  `db:"normalized_title"`
	NormalizedArtist string  `db:"normalized_artist"`
	ArtworkURL       *string `db:"artwork_url"`
	ISRC             *string `db:"isrc"`
}

// UpsertTrendEntry writes one per-source observation. A re-fetch for
// the same (track, source, region, genre, date) updates rank, score and
// metadata in place instead of duplicating the row.
func (r *Repository) UpsertTrendEntry(ctx context.Context, e models.TrendEntry) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal trend metadata: %w", err)
	}
	if e.Metadata == nil {
		meta = []byte("{}")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO trend_entries (track_id, source, rank, score, region, genre, chart_date, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (track_id, source, region, genre, chart_date) DO UPDATE SET
		   rank     = excluded.rank,
		   score    = excluded.score,
		   metadata = excluded.metadata`,
		e.TrackID, string(e.Source), e.Rank, e.Score, e.Region, e.Genre, e.ChartDate, string(meta))
	if err != nil {
		return fmt.Errorf("upsert trend entry: %w", err)
	}
	return nil
}

// CountEntriesFor reports how many trend entries exist for a region and
// date. Used to skip a refresh when today's data is already present.
func (r *Repository) CountEntriesFor(ctx context.Context, region, chartDate string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM trend_entries WHERE region = ? AND chart_date = ?`,
		region, chartDate)
	if err != nil {
		return 0, fmt.Errorf("count trend entries: %w", err)
	}
	return n, nil
}

// TrendView returns up to limit tracks with all their per-source
// entries for one (region, genre, date); limit <= 0 means the whole
// day. An empty genre matches all genres. Order is stable (track id
// ascending) so the ranker's tie-break by input order is deterministic.
func (r *Repository) TrendView(ctx context.Context, region, genre, chartDate string, limit int) ([]models.TrackTrends, error) {
	query := `SELECT te.track_id, te.source, te.rank, te.score, te.region, te.genre,
	                 te.chart_date, te.metadata,
	                 t.title, t.artist, t.normalized_title, t.normalized_artist,
	                 t.artwork_url, t.isrc
	          FROM trend_entries te
	          JOIN tracks t ON t.id = te.track_id
	          WHERE te.region = ? AND te.chart_date = ?`
	args := []any{region, chartDate}
	if genre != "" {
		query += ` AND te.genre = ?`
		args = append(args, genre)
	}
	query += ` ORDER BY te.track_id, te.source`

	var rows []trendRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("trend view: %w", err)
	}

	var out []models.TrackTrends
	index := map[int64]int{}
	for _, row := range rows {
		i, ok := index[row.TrackID]
		if !ok {
			if limit > 0 && len(out) >= limit {
				continue
			}
			i = len(out)
			index[row.TrackID] = i
			out = append(out, models.TrackTrends{Track: models.Track{
				ID:               row.TrackID,
				Title:            row.Title,
				Artist:           row.Artist,
				NormalizedTitle:  row.NormalizedTitle,
				NormalizedArtist: row.NormalizedArtist,
				ArtworkURL:       row.ArtworkURL,
				ISRC:             row.ISRC,
			}})
		}
		out[i].Entries = append(out[i].Entries, rowToEntry(row))
	}
	return out, nil
}

// TrendHistory returns a track's entries for a region/genre since a
// given date, oldest first. The caller folds them into a per-day
// combined score series for velocity.
func (r *Repository) TrendHistory(ctx context.Context, trackID int64, region, genre, since string) ([]models.TrendEntry, error) {
	query := `SELECT te.track_id, te.source, te.rank, te.score, te.region, te.genre,
	                 te.chart_date, te.metadata,
	                 t.title, t.artist, t.normalized_title, t.normalized_artist,
	                 t.artwork_url, t.isrc
	          FROM trend_entries te
	          JOIN tracks t ON t.id = te.track_id
	          WHERE te.track_id = ? AND te.region = ? AND te.chart_date >= ?`
	args := []any{trackID, region, since}
	if genre != "" {
		query += ` AND te.genre = ?`
		args = append(args, genre)
	}
	query += ` ORDER BY te.chart_date`

	var rows []trendRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("trend history: %w", err)
	}
	entries := make([]models.TrendEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, rowToEntry(row))
	}
	return entries, nil
}

func rowToEntry(row trendRow) models.TrendEntry {
	var meta map[string]any
	if row.Metadata != "" {
		// Corrupt metadata degrades to an empty bag rather than failing
		// the whole view.
		_ = json.Unmarshal([]byte(row.Metadata), &meta)
	}
	return models.TrendEntry{
		TrackID:   row.TrackID,
		Source:    models.Source(row.Source),
		Rank:      row.Rank,
		Score:     row.Score,
		Region:    row.Region,
		Genre:     row.Genre,
		ChartDate: row.ChartDate,
		Metadata:  meta,
	}
}

// BuyLinks returns the cached purchase links for a track.
func (r *Repository) BuyLinks(ctx context.Context, trackID int64) ([]models.BuyLink, error) {
	var links []models.BuyLink
	err := r.db.SelectContext(ctx, &links,
		`SELECT platform, url, verified FROM buy_links WHERE track_id = ? LIMIT 5`, trackID)
	if err != nil {
		return nil, fmt.Errorf("buy links: %w", err)
	}
	return links, nil
}

// SaveBuyLinks caches generated links, ignoring ones already present.
func (r *Repository) SaveBuyLinks(ctx context.Context, trackID int64, links []models.BuyLink) error {
	for _, l := range links {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO buy_links (track_id, platform, url, verified) VALUES (?, ?, ?, ?)
			 ON CONFLICT (track_id, platform) DO NOTHING`,
			trackID, l.Platform, l.URL, l.Verified)
		if err != nil {
			return fmt.Errorf("save buy link %s: %w", l.Platform, err)
		}
	}
	return nil
}
