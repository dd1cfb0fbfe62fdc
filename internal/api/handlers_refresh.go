package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"

	"trendpanel/internal/repository"
)

func setupSSE(w http.ResponseWriter) (http.Flusher, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return flusher, nil
}

func (s *Server) sendEvent(w http.ResponseWriter, flusher http.Flusher, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("sse marshal failed", zap.Error(err))
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", b)
	flusher.Flush()
}

// handleRefresh runs one ingestion cycle, streaming progress as SSE.
// Auth and the already-refreshed check happen before the stream starts
// so plain error responses still work.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.cfg.AdminTOTPSecret != "" {
		code := r.Header.Get("X-Admin-Code")
		if code == "" {
			s.writeError(w, http.StatusUnauthorized, "missing X-Admin-Code")
			return
		}
		if !totp.Validate(code, s.cfg.AdminTOTPSecret) {
			s.writeError(w, http.StatusUnauthorized, "invalid admin code")
			return
		}
	}

	q := r.URL.Query()
	region := q.Get("region")
	if region == "" {
		region = s.cfg.DefaultRegion
	}
	genre := q.Get("genre")
	if genre == "" {
		genre = s.cfg.DefaultGenre
	}
	force := q.Get("force") == "true"

	chartDate := repository.Date(time.Now())
	if !force {
		count, err := s.repo.CountEntriesFor(ctx, region, chartDate)
		if err != nil {
			s.logger.Error("refresh precheck failed", zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "failed to check existing data")
			return
		}
		if count > 0 {
			s.writeJSON(w, http.StatusOK, map[string]any{
				"status":     "skipped",
				"reason":     "already refreshed today, use force=true to rerun",
				"region":     region,
				"chart_date": chartDate,
			})
			return
		}
	}

	flusher, err := setupSSE(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	send := func(v any) { s.sendEvent(w, flusher, v) }

	send(map[string]string{"status": "started", "region": region, "genre": genre})

	report, err := s.runner.Run(ctx, region, genre, func(stage, detail string) {
		send(map[string]string{"status": stage, "detail": detail})
	})
	if err != nil {
		s.logger.Warn("refresh cancelled", zap.Error(err))
		return
	}

	send(map[string]any{"status": "complete", "report": report})
}
