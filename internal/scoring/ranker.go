package scoring

import (
	"sort"
	"time"

	"trendpanel/internal/models"
)

// velocityWindow is the sliding window for the rising/falling signal.
const velocityWindow = 7 * 24 * time.Hour

// ScorePoint is one day of a track's combined score history.
type ScorePoint struct {
	Date  time.Time
	Score float64
}

// Rank orders tracks by combined score descending and assigns dense
// 1-based ranks. The sort is stable: equal scores keep their input
// order, since the source data has no secondary tiebreak key.
func (e *Engine) Rank(tracks []models.TrackTrends) []models.RankedTrack {
	ranked := make([]models.RankedTrack, 0, len(tracks))
	for _, t := range tracks {
		ranked = append(ranked, models.RankedTrack{
			Track:         t.Track,
			CombinedScore: e.Combine(t.Entries),
			Sources:       sourceList(t.Entries),
			Entries:       t.Entries,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].CombinedScore > ranked[j].CombinedScore
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// Velocity is the short-window score delta: current score minus the
// oldest score inside the last seven days, needing at least two points
// in the window. A discrete derivative, not a smoothed trend; the
// signal is advisory only.
func Velocity(current float64, history []ScorePoint, now time.Time) float64 {
	if len(history) < 2 {
		return 0
	}

	cutoff := now.Add(-velocityWindow)
	var recent []ScorePoint
	for _, p := range history {
		if !p.Date.Before(cutoff) {
			recent = append(recent, p)
		}
	}
	if len(recent) < 2 {
		return 0
	}

	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Date.Before(recent[j].Date)
	})
	return round2(current - recent[0].Score)
}

// sourceList returns the distinct sources present, in entry order.
func sourceList(entries []models.TrendEntry) []string {
	seen := map[models.Source]bool{}
	var out []string
	for _, e := range entries {
		if !seen[e.Source] {
			seen[e.Source] = true
			out = append(out, string(e.Source))
		}
	}
	return out
}
