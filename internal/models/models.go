package models

import "time"

// Source identifies where a chart observation came from.
type Source string

const (
	SourceAppleMusic Source = "apple_music"
	SourceSpotify    Source = "spotify"
	SourceYouTube    Source = "youtube"
	SourceLastFM     Source = "lastfm"
)

// SourceRecord is one provider's observation of a track at fetch time.
// It is ephemeral: the matcher folds it into a canonical track and the
// ingest loop folds it into a trend entry.
type SourceRecord struct {
	Title      string         `json:"title"`
	Artist     string         `json:"artist"`
	ISRC       string         `json:"isrc,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
	ArtworkURL string         `json:"artwork_url,omitempty"`
	Source     Source         `json:"source"`
	Rank       int            `json:"rank,omitempty"` // 0 = unranked
	Metadata   map[string]any `json:"metadata,omitempty"`

	// Filled by MusicBrainz enrichment when the internal tiers miss.
	RecordingID string `json:"recording_id,omitempty"`
}

// Ranked reports whether the record carries a usable chart position.
func (r SourceRecord) Ranked() bool { return r.Rank > 0 }

// Track is the deduplicated canonical identity of a recording.
type Track struct {
	ID               int64     `db:"id" json:"id"`
	Title            string    `db:"title" json:"title"`
	Artist           string    `db:"artist" json:"artist"`
	NormalizedTitle  string    `db:"normalized_title" json:"-"`
	NormalizedArtist string    `db:"normalized_artist" json:"-"`
	ISRC             *string   `db:"isrc" json:"isrc,omitempty"`
	RecordingID      *string   `db:"musicbrainz_recording_id" json:"musicbrainz_recording_id,omitempty"`
	DurationMS       *int64    `db:"duration_ms" json:"duration_ms,omitempty"`
	ArtworkURL       *string   `db:"artwork_url" json:"artwork_url,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// MatchCandidate is a fuzzy-search candidate row. It lives only inside
// one Resolve call.
type MatchCandidate struct {
	ID               int64  `db:"id"`
	NormalizedTitle  string `db:"normalized_title"`
	NormalizedArtist string `db:"normalized_artist"`
}

// TrendEntry links one canonical track to one source observation for a
// given day, region and genre. Unique on (track, source, region, genre,
// date); a re-fetch the same day updates rank/score/metadata in place.
type TrendEntry struct {
	TrackID   int64          `json:"track_id"`
	Source    Source         `json:"source"`
	Rank      *int           `json:"rank"`
	Score     float64        `json:"score"`
	Region    string         `json:"region"`
	Genre     string         `json:"genre"`
	ChartDate string         `json:"chart_date"` // YYYY-MM-DD
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// BuyLink is a purchase/search link for a track on one platform.
type BuyLink struct {
	Platform string `db:"platform" json:"platform"`
	URL      string `db:"url" json:"url"`
	Verified bool   `db:"verified" json:"verified"`
}

// TrackTrends groups a track with all its per-source entries for one
// (region, genre, date) view. Input to the ranker.
type TrackTrends struct {
	Track   Track        `json:"track"`
	Entries []TrendEntry `json:"trend_data"`
}

// RankedTrack is one row of the final trend view.
type RankedTrack struct {
	Track         Track        `json:"track"`
	CombinedScore float64      `json:"combined_score"`
	Rank          int          `json:"rank"`
	Sources       []string     `json:"sources"`
	Entries       []TrendEntry `json:"trend_data"`
	BuyLinks      []BuyLink    `json:"buy_links,omitempty"`
	Velocity      *float64     `json:"velocity,omitempty"`
}

// RefreshReport summarizes one ingestion run. Per-record failures are
// collected, never fatal to the run.
type RefreshReport struct {
	Status          string   `json:"status"`
	TracksProcessed int      `json:"tracks_processed"`
	Providers       []string `json:"providers"`
	DurationSeconds float64  `json:"duration_seconds"`
	Errors          []string `json:"errors"`
}
