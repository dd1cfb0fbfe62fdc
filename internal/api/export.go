package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"trendpanel/internal/models"
	"trendpanel/internal/repository"
)

// handleExport renders the ranked view as csv, m3u or json for use in
// DJ software and playlist tools.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
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

	format := q.Get("format")
	if format == "" {
		format = "csv"
	}

	ranked, err := s.rankedTrends(r.Context(), region, genre, chartDate, defaultTrendLimit)
	if err != nil {
		s.logger.Error("export view failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load trends")
		return
	}

	filename := fmt.Sprintf("trends_%s_%s", region, chartDate)

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`.csv"`)
		s.writeCSV(w, ranked)
	case "m3u":
		w.Header().Set("Content-Type", "audio/x-mpegurl")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`.m3u"`)
		s.writeM3U(w, ranked)
	case "json":
		s.writeJSON(w, http.StatusOK, map[string]any{
			"region":     region,
			"genre":      genre,
			"chart_date": chartDate,
			"tracks":     ranked,
		})
	default:
		s.writeError(w, http.StatusBadRequest, "format must be csv, m3u or json")
	}
}

func (s *Server) writeCSV(w http.ResponseWriter, ranked []models.RankedTrack) {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	_ = cw.Write([]string{"rank", "title", "artist", "combined_score", "sources", "isrc"})
	for _, t := range ranked {
		isrc := ""
		if t.Track.ISRC != nil {
			isrc = *t.Track.ISRC
		}
		_ = cw.Write([]string{
			strconv.Itoa(t.Rank),
			t.Track.Title,
			t.Track.Artist,
			strconv.FormatFloat(t.CombinedScore, 'f', 2, 64),
			strings.Join(t.Sources, "|"),
			isrc,
		})
	}
}

// writeM3U emits an extended playlist. Each entry points at the best
// available stream: a preview clip when a provider supplied one, the
// provider page otherwise.
func (s *Server) writeM3U(w http.ResponseWriter, ranked []models.RankedTrack) {
	fmt.Fprintln(w, "#EXTM3U")
	for _, t := range ranked {
		duration := -1
		if t.Track.DurationMS != nil {
			duration = int(*t.Track.DurationMS / 1000)
		}
		fmt.Fprintf(w, "#EXTINF:%d,%s - %s\n", duration, t.Track.Artist, t.Track.Title)

		if u := streamURL(t.Entries); u != "" {
			fmt.Fprintln(w, u)
		} else {
			fmt.Fprintf(w, "# no stream url for track %d\n", t.Track.ID)
		}
	}
}

func streamURL(entries []models.TrendEntry) string {
	for _, key := range []string{"preview_url", "url"} {
		for _, e := range entries {
			if u, ok := e.Metadata[key].(string); ok && u != "" {
				return u
			}
		}
	}
	return ""
}
