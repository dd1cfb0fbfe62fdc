// Package scoring fuses heterogeneous per-source trend signals into one
// comparable combined score and produces the ranked trend view.
package scoring

import (
	"math"

	"trendpanel/internal/models"
)

// Weights is the per-source authority table. Relative ordering is a
// load-bearing choice: chart authority > streaming engagement >
// view-based popularity > community signal.
type Weights map[models.Source]float64

// unknownSourceWeight applies to sources missing from the table.
const unknownSourceWeight = 0.5

// DefaultWeights returns the reference authority weights.
func DefaultWeights() Weights {
	return Weights{
		models.SourceAppleMusic: 1.0,
		models.SourceSpotify:    0.85,
		models.SourceYouTube:    0.65,
		models.SourceLastFM:     0.40,
	}
}

// Engine computes combined scores under one weight configuration.
type Engine struct {
	weights Weights
}

// NewEngine builds a fusion engine; a nil table means defaults.
func NewEngine(weights Weights) *Engine {
	if weights == nil {
		weights = DefaultWeights()
	}
	return &Engine{weights: weights}
}

// BaseScore maps a source-assigned chart position to a 0-100 score:
// rank 1 scores 100, rank 100 and beyond score 0. An absent or
// non-positive rank means "presence, unranked" and scores 50.
func BaseScore(rank *int) float64 {
	if rank == nil || *rank <= 0 {
		return 50
	}
	return math.Max(0, float64(100-*rank))
}

// Combine fuses a track's per-source entries into one score in
// [0,100]. Weighted average, not winner-take-all: a track strong on one
// authoritative source and weak elsewhere still gets a blended score,
// and only sources actually present contribute to either sum.
func (e *Engine) Combine(entries []models.TrendEntry) float64 {
	if len(entries) == 0 {
		return 0
	}

	var totalScore, totalWeight float64

	for _, entry := range entries {
		weight, ok := e.weights[entry.Source]
		if !ok {
			weight = unknownSourceWeight
		}

		base := BaseScore(entry.Rank)
		boost := 0.0

		switch entry.Source {
		case models.SourceYouTube:
			// One point per million views, capped at +25.
			if views := metaNumber(entry.Metadata, "view_count"); views > 0 {
				boost = math.Min(25, views/1_000_000)
			}
		case models.SourceSpotify:
			// Spotify's native popularity (0-100) blends with the rank
			// score instead of stacking on top of it.
			if popularity := metaNumber(entry.Metadata, "popularity"); popularity > 0 {
				base = (base + popularity) / 2
			}
		case models.SourceAppleMusic:
			// Curated editorial charts get a flat authority boost.
			boost = 5
		}

		totalScore += (base + boost) * weight
		totalWeight += weight
	}

	if totalWeight == 0 {
		return 0
	}
	return round2(math.Min(100, totalScore/totalWeight))
}

// metaNumber reads a numeric value out of the opaque metadata bag,
// tolerating the types JSON round-trips produce.
func metaNumber(meta map[string]any, key string) float64 {
	if meta == nil {
		return 0
	}
	switch v := meta[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
