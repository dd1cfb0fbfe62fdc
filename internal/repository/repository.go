// Package repository owns persistent storage for canonical tracks,
// trend entries and buy links. The matcher consumes TrackRepository
// only; it never sees SQL.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"trendpanel/internal/models"
)

// TrackFields carries everything needed to insert a canonical track.
type TrackFields struct {
	Title            string
	Artist           string
	NormalizedTitle  string
	NormalizedArtist string
	ISRC             *string
	RecordingID      *string
	DurationMS       *int64
	ArtworkURL       *string
}

// MergeFields carries the mergeable metadata of an observation. Merge
// is fill-missing-only: populated columns are never overwritten.
type MergeFields struct {
	ISRC        *string
	RecordingID *string
	DurationMS  *int64
	ArtworkURL  *string
}

// TrackRepository is the storage capability the identity matcher is
// constructed with. Lookups report a miss as (0, nil); errors are
// reserved for storage faults.
type TrackRepository interface {
	FindExact(ctx context.Context, normTitle, normArtist string) (int64, error)
	FindByISRC(ctx context.Context, isrc string) (int64, error)
	ScanCandidates(ctx context.Context, artistPrefix string, limit int) ([]models.MatchCandidate, error)
	Create(ctx context.Context, f TrackFields) (int64, error)
	MergeMetadata(ctx context.Context, id int64, f MergeFields) error
}

// Repository is the SQLite-backed implementation of both the track and
// trend stores.
type Repository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

var _ TrackRepository = (*Repository)(nil)

func New(db *sqlx.DB, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

func (r *Repository) FindExact(ctx context.Context, normTitle, normArtist string) (int64, error) {
	var id int64
	err := r.db.GetContext(ctx, &id,
		`SELECT id FROM tracks WHERE normalized_title = ? AND normalized_artist = ? LIMIT 1`,
		normTitle, normArtist)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find exact: %w", err)
	}
	return id, nil
}

func (r *Repository) FindByISRC(ctx context.Context, isrc string) (int64, error) {
	var id int64
	err := r.db.GetContext(ctx, &id, `SELECT id FROM tracks WHERE isrc = ? LIMIT 1`, isrc)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find by isrc: %w", err)
	}
	return id, nil
}

// ScanCandidates is the cheap pre-filter for fuzzy matching: rows whose
// normalized artist contains the given prefix, bounded by limit. Not a
// full scan; a duplicate whose artist diverges in its first characters
// will be missed, which is the accepted recall/cost trade-off.
func (r *Repository) ScanCandidates(ctx context.Context, artistPrefix string, limit int) ([]models.MatchCandidate, error) {
	var candidates []models.MatchCandidate
	err := r.db.SelectContext(ctx, &candidates,
		`SELECT id, normalized_title, normalized_artist FROM tracks
		 WHERE normalized_artist LIKE ? LIMIT ?`,
		"%"+artistPrefix+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("scan candidates: %w", err)
	}
	return candidates, nil
}

// Create inserts a new canonical track. When a concurrent resolution of
// the same normalized pair won the race, the unique index fires and the
// existing row's id is returned instead.
func (r *Repository) Create(ctx context.Context, f TrackFields) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO tracks (title, artist, normalized_title, normalized_artist,
		                     isrc, musicbrainz_recording_id, duration_ms, artwork_url)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Title, f.Artist, f.NormalizedTitle, f.NormalizedArtist,
		f.ISRC, f.RecordingID, f.DurationMS, f.ArtworkURL)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			id, ferr := r.FindExact(ctx, f.NormalizedTitle, f.NormalizedArtist)
			if ferr == nil && id != 0 {
				r.logger.Debug("create lost race, reselected existing track",
					zap.Int64("track_id", id))
				return id, nil
			}
		}
		return 0, fmt.Errorf("create track: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create track id: %w", err)
	}
	r.logger.Info("created track",
		zap.Int64("track_id", id),
		zap.String("title", f.Title),
		zap.String("artist", f.Artist))
	return id, nil
}

// MergeMetadata fills artwork, ISRC, recording id and duration only
// where the existing column is absent. COALESCE keeps populated values
// stable across re-observations.
func (r *Repository) MergeMetadata(ctx context.Context, id int64, f MergeFields) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tracks SET
		   artwork_url              = COALESCE(artwork_url, ?),
		   isrc                     = COALESCE(isrc, ?),
		   musicbrainz_recording_id = COALESCE(musicbrainz_recording_id, ?),
		   duration_ms              = COALESCE(duration_ms, ?),
		   updated_at               = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		f.ArtworkURL, f.ISRC, f.RecordingID, f.DurationMS, id)
	if err != nil {
		return fmt.Errorf("merge metadata: %w", err)
	}
	return nil
}

// GetTrack fetches one canonical track; (nil, nil) on a miss.
func (r *Repository) GetTrack(ctx context.Context, id int64) (*models.Track, error) {
	var t models.Track
	err := r.db.GetContext(ctx, &t, `SELECT * FROM tracks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get track: %w", err)
	}
	return &t, nil
}

// Ping verifies the storage connection for health checks.
func (r *Repository) Ping(ctx context.Context) error {
	var one int
	return r.db.GetContext(ctx, &one, `SELECT 1`)
}

// Date formats a chart date the way trend_entries stores it.
func Date(t time.Time) string { return t.Format("2006-01-02") }
