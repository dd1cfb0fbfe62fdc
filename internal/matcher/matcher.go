// Package matcher resolves noisy provider observations to canonical
// track ids. Resolution is tiered: exact normalized lookup, ISRC
// lookup, bounded fuzzy search, optional MusicBrainz enrichment, and
// finally creation. The first tier to succeed wins.
package matcher

import (
	"context"
	"fmt"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"go.uber.org/zap"

	"trendpanel/internal/models"
	"trendpanel/internal/normalize"
	"trendpanel/internal/repository"
)

const (
	// Bounded candidate set for the fuzzy tier.
	candidateLimit = 20
	// Artist prefix length used to pre-filter candidates.
	artistPrefixLen = 20
)

// Thresholds are the fuzzy-tier acceptance gates in [0,100]. Both are
// intentionally high: a false merge corrupts trend data permanently,
// a missed merge only duplicates it.
type Thresholds struct {
	Title  float64
	Artist float64
}

// DefaultThresholds biases toward precision over recall.
func DefaultThresholds() Thresholds { return Thresholds{Title: 92, Artist: 88} }

// Enricher is the optional external-catalog capability. Absence (nil)
// is a valid configuration, not an error path.
type Enricher interface {
	Lookup(ctx context.Context, artist, title string) *Enrichment
}

// Resolver deduplicates source records against the canonical track
// store.
type Resolver struct {
	repo       repository.TrackRepository
	enrich     Enricher // nil = enrichment disabled
	thresholds Thresholds
	lev        *metrics.Levenshtein
	logger     *zap.Logger
}

func NewResolver(repo repository.TrackRepository, enrich Enricher, thresholds Thresholds, logger *zap.Logger) *Resolver {
	lev := metrics.NewLevenshtein()
	// Substitutions cost the same as indels so the similarity is the
	// plain normalized edit-distance ratio.
	lev.ReplaceCost = 1
	return &Resolver{
		repo:       repo,
		enrich:     enrich,
		thresholds: thresholds,
		lev:        lev,
		logger:     logger,
	}
}

// Resolve returns the canonical track id for a record, creating one on
// a full miss. Lookup failures in tiers 1-4 are logged and skipped;
// only a storage fault on the final create is fatal for the record.
func (m *Resolver) Resolve(ctx context.Context, rec models.SourceRecord) (int64, error) {
	normTitle := normalize.Normalize(rec.Title)
	normArtist := normalize.Normalize(rec.Artist)

	if normTitle == "" || normArtist == "" {
		// Unmatchable by the exact and fuzzy tiers; still worth keeping.
		m.logger.Warn("track has empty normalized title or artist, skipping match tiers",
			zap.String("title", rec.Title),
			zap.String("artist", rec.Artist))
		return m.create(ctx, rec, normTitle, normArtist)
	}

	// 1. Exact normalized match
	id, err := m.repo.FindExact(ctx, normTitle, normArtist)
	if err != nil {
		m.logger.Warn("exact lookup failed, falling through", zap.Error(err))
	} else if id != 0 {
		m.logger.Debug("exact match", zap.Int64("track_id", id))
		m.merge(ctx, id, rec)
		return id, nil
	}

	// 2. ISRC match
	if rec.ISRC != "" {
		id, err = m.repo.FindByISRC(ctx, rec.ISRC)
		if err != nil {
			m.logger.Warn("isrc lookup failed, falling through", zap.Error(err))
		} else if id != 0 {
			m.logger.Debug("isrc match", zap.Int64("track_id", id), zap.String("isrc", rec.ISRC))
			m.merge(ctx, id, rec)
			return id, nil
		}
	}

	// 3. Fuzzy match
	if id = m.fuzzyMatch(ctx, normTitle, normArtist); id != 0 {
		m.merge(ctx, id, rec)
		return id, nil
	}

	// 4. MusicBrainz enrichment, last resort before creation
	if m.enrich != nil {
		if e := m.enrich.Lookup(ctx, rec.Artist, rec.Title); e != nil {
			rec.RecordingID = e.RecordingID
			if rec.ISRC == "" && e.ISRC != "" {
				rec.ISRC = e.ISRC
				id, err = m.repo.FindByISRC(ctx, rec.ISRC)
				if err != nil {
					m.logger.Warn("enriched isrc lookup failed, falling through", zap.Error(err))
				} else if id != 0 {
					m.logger.Info("matched via musicbrainz isrc",
						zap.Int64("track_id", id), zap.String("isrc", rec.ISRC))
					m.merge(ctx, id, rec)
					return id, nil
				}
			}
		}
	}

	// 5. Create new canonical track
	return m.create(ctx, rec, normTitle, normArtist)
}

func (m *Resolver) fuzzyMatch(ctx context.Context, normTitle, normArtist string) int64 {
	prefix := normArtist
	if len(prefix) > artistPrefixLen {
		prefix = prefix[:artistPrefixLen]
	}

	candidates, err := m.repo.ScanCandidates(ctx, prefix, candidateLimit)
	if err != nil {
		m.logger.Warn("candidate scan failed, falling through", zap.Error(err))
		return 0
	}

	for _, cand := range candidates {
		titleScore := m.similarity(normTitle, cand.NormalizedTitle)
		artistScore := m.similarity(normArtist, cand.NormalizedArtist)

		if titleScore >= m.thresholds.Title && artistScore >= m.thresholds.Artist {
			m.logger.Info("fuzzy match",
				zap.Int64("track_id", cand.ID),
				zap.Float64("title_score", titleScore),
				zap.Float64("artist_score", artistScore))
			return cand.ID
		}
	}
	return 0
}

// similarity is a normalized edit-distance ratio in [0,100].
func (m *Resolver) similarity(a, b string) float64 {
	return strutil.Similarity(a, b, m.lev) * 100
}

func (m *Resolver) create(ctx context.Context, rec models.SourceRecord, normTitle, normArtist string) (int64, error) {
	id, err := m.repo.Create(ctx, repository.TrackFields{
		Title:            rec.Title,
		Artist:           rec.Artist,
		NormalizedTitle:  normTitle,
		NormalizedArtist: normArtist,
		ISRC:             optional(rec.ISRC),
		RecordingID:      optional(rec.RecordingID),
		DurationMS:       optionalInt64(rec.DurationMS),
		ArtworkURL:       optional(rec.ArtworkURL),
	})
	if err != nil {
		return 0, fmt.Errorf("create canonical track: %w", err)
	}
	return id, nil
}

// merge fills absent canonical metadata from the new observation.
// Failures are logged only; the match itself already succeeded.
func (m *Resolver) merge(ctx context.Context, id int64, rec models.SourceRecord) {
	err := m.repo.MergeMetadata(ctx, id, repository.MergeFields{
		ISRC:        optional(rec.ISRC),
		RecordingID: optional(rec.RecordingID),
		DurationMS:  optionalInt64(rec.DurationMS),
		ArtworkURL:  optional(rec.ArtworkURL),
	})
	if err != nil {
		m.logger.Warn("metadata merge failed", zap.Int64("track_id", id), zap.Error(err))
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalInt64(v int64) *int64 {
	if v <= 0 {
		return nil
	}
	return &v
}
