package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"trendpanel/internal/buylinks"
	"trendpanel/internal/models"
	"trendpanel/internal/repository"
	"trendpanel/internal/scoring"
)

const (
	defaultTrendLimit = 50
	maxTrendLimit     = 100
)

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	region := q.Get("region")
	if region == "" {
		region = s.cfg.DefaultRegion
	}
	genre := q.Get("genre")
	if genre == "" {
		genre = s.cfg.DefaultGenre
	}
	chartDate := q.Get("date")
	if chartDate == "" {
		chartDate = repository.Date(time.Now())
	} else if _, err := time.Parse("2006-01-02", chartDate); err != nil {
		s.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	limit := defaultTrendLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxTrendLimit {
		limit = maxTrendLimit
	}

	ranked, err := s.rankedTrends(ctx, region, genre, chartDate, limit)
	if err != nil {
		s.logger.Error("trend view failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load trends")
		return
	}

	if s.cfg.EnableBuyLinks {
		for i := range ranked {
			ranked[i].BuyLinks = s.buyLinksFor(r, ranked[i].Track)
		}
	}

	if s.cfg.EnableVelocity || q.Get("velocity") == "true" {
		s.attachVelocity(r, ranked, region, genre, chartDate)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"region":     region,
		"genre":      genre,
		"chart_date": chartDate,
		"count":      len(ranked),
		"tracks":     ranked,
	})
}

// rankedTrends loads the whole day's view and ranks it, cutting to
// limit only afterwards. The cut must happen on combined score; any
// earlier bound (the repository orders by track id) could drop the
// strongest tracks. A day's volume is already capped by ingest, so the
// full fetch stays small.
func (s *Server) rankedTrends(ctx context.Context, region, genre, chartDate string, limit int) ([]models.RankedTrack, error) {
	view, err := s.repo.TrendView(ctx, region, genre, chartDate, 0)
	if err != nil {
		return nil, err
	}

	ranked := s.engine.Rank(view)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func (s *Server) handleBuyLinks(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "trackID"), 10, 64)
	if err != nil || id < 1 {
		s.writeError(w, http.StatusBadRequest, "invalid track id")
		return
	}

	track, err := s.repo.GetTrack(r.Context(), id)
	if err != nil {
		s.logger.Error("track lookup failed", zap.Int64("track_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load track")
		return
	}
	if track == nil {
		s.writeError(w, http.StatusNotFound, "track not found")
		return
	}

	links := s.buyLinksFor(r, *track)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"track_id": id,
		"links":    links,
	})
}

// buyLinksFor returns cached links for a track, generating and caching
// them on first access. Failures degrade to freshly generated links.
func (s *Server) buyLinksFor(r *http.Request, track models.Track) []models.BuyLink {
	ctx := r.Context()

	links, err := s.repo.BuyLinks(ctx, track.ID)
	if err != nil {
		s.logger.Warn("buy link lookup failed", zap.Int64("track_id", track.ID), zap.Error(err))
	}
	if len(links) > 0 {
		return links
	}

	links = buylinks.ForTrack(track.Artist, track.Title)
	if len(links) == 0 {
		return nil
	}
	if err := s.repo.SaveBuyLinks(ctx, track.ID, links); err != nil {
		s.logger.Warn("buy link save failed", zap.Int64("track_id", track.ID), zap.Error(err))
	}
	return links
}

// attachVelocity computes each track's seven-day score delta from its
// entry history. Lookup failures leave the field unset.
func (s *Server) attachVelocity(r *http.Request, ranked []models.RankedTrack, region, genre, chartDate string) {
	ctx := r.Context()
	now, err := time.Parse("2006-01-02", chartDate)
	if err != nil {
		return
	}
	since := repository.Date(now.AddDate(0, 0, -7))

	for i := range ranked {
		history, err := s.repo.TrendHistory(ctx, ranked[i].Track.ID, region, genre, since)
		if err != nil {
			s.logger.Warn("trend history failed",
				zap.Int64("track_id", ranked[i].Track.ID), zap.Error(err))
			continue
		}

		points := s.dailyScores(history)
		v := scoring.Velocity(ranked[i].CombinedScore, points, now)
		ranked[i].Velocity = &v
	}
}

// dailyScores folds per-source entries into one combined score per day.
func (s *Server) dailyScores(history []models.TrendEntry) []scoring.ScorePoint {
	byDay := map[string][]models.TrendEntry{}
	for _, e := range history {
		byDay[e.ChartDate] = append(byDay[e.ChartDate], e)
	}

	points := make([]scoring.ScorePoint, 0, len(byDay))
	for day, entries := range byDay {
		date, err := time.Parse("2006-01-02", day)
		if err != nil {
			continue
		}
		points = append(points, scoring.ScorePoint{
			Date:  date,
			Score: s.engine.Combine(entries),
		})
	}
	return points
}
