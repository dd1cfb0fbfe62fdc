package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trendpanel/internal/config"
	"trendpanel/internal/database"
	"trendpanel/internal/ingest"
	"trendpanel/internal/models"
	"trendpanel/internal/repository"
	"trendpanel/internal/scoring"
)

type fakeRunner struct {
	report *models.RefreshReport
	ran    bool
}

func (f *fakeRunner) Run(ctx context.Context, region, genre string, progress ingest.ProgressFunc) (*models.RefreshReport, error) {
	f.ran = true
	if progress != nil {
		progress("fetching", "spotify")
	}
	if f.report == nil {
		f.report = &models.RefreshReport{Status: "completed", TracksProcessed: 1}
	}
	return f.report, nil
}

func newTestServer(t *testing.T, cfg config.Config) (*Server, *repository.Repository, *fakeRunner) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := repository.New(db, zap.NewNop())
	runner := &fakeRunner{}
	srv := NewServer(repo, runner, scoring.NewEngine(nil), cfg, zap.NewNop())
	return srv, repo, runner
}

func seedTrack(t *testing.T, repo *repository.Repository, title, artist, normTitle, normArtist string) int64 {
	t.Helper()
	id, err := repo.Create(context.Background(), repository.TrackFields{
		Title:            title,
		Artist:           artist,
		NormalizedTitle:  normTitle,
		NormalizedArtist: normArtist,
	})
	require.NoError(t, err)
	return id
}

func seedEntry(t *testing.T, repo *repository.Repository, trackID int64, source models.Source, rank int, score float64, chartDate string) {
	t.Helper()
	err := repo.UpsertTrendEntry(context.Background(), models.TrendEntry{
		TrackID:   trackID,
		Source:    source,
		Rank:      &rank,
		Score:     score,
		Region:    "DE",
		Genre:     "techno",
		ChartDate: chartDate,
	})
	require.NoError(t, err)
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, config.Config{DefaultRegion: "DE"})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestTrendsRankedView(t *testing.T) {
	cfg := config.Config{DefaultRegion: "DE", DefaultGenre: "techno", EnableBuyLinks: true}
	srv, repo, _ := newTestServer(t, cfg)

	losing := seedTrack(t, repo, "Losing It", "FISHER", "losing it", "fisher")
	padam := seedTrack(t, repo, "Padam Padam", "Kylie Minogue", "padam padam", "kylie minogue")

	seedEntry(t, repo, losing, models.SourceAppleMusic, 1, 99, "2026-08-30")
	seedEntry(t, repo, losing, models.SourceSpotify, 2, 98, "2026-08-30")
	seedEntry(t, repo, padam, models.SourceSpotify, 40, 60, "2026-08-30")

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/trends?date=2026-08-30")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Region    string               `json:"region"`
		Genre     string               `json:"genre"`
		ChartDate string               `json:"chart_date"`
		Count     int                  `json:"count"`
		Tracks    []models.RankedTrack `json:"tracks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, "DE", body.Region)
	assert.Equal(t, "techno", body.Genre)
	require.Equal(t, 2, body.Count)

	first := body.Tracks[0]
	assert.Equal(t, "Losing It", first.Track.Title)
	assert.Equal(t, 1, first.Rank)
	assert.Greater(t, first.CombinedScore, body.Tracks[1].CombinedScore)
	assert.ElementsMatch(t, []string{"apple_music", "spotify"}, first.Sources)
	assert.NotEmpty(t, first.BuyLinks)
}

func TestTrendsLimitCutsAfterRanking(t *testing.T) {
	cfg := config.Config{DefaultRegion: "DE", DefaultGenre: "techno"}
	srv, repo, _ := newTestServer(t, cfg)

	// The strongest track is created last, so any cut on track-id
	// order before ranking would drop it.
	weak := seedTrack(t, repo, "Filler One", "Nobody", "filler one", "nobody")
	weaker := seedTrack(t, repo, "Filler Two", "No One", "filler two", "no one")
	best := seedTrack(t, repo, "Losing It", "FISHER", "losing it", "fisher")

	seedEntry(t, repo, weak, models.SourceSpotify, 90, 10, "2026-08-30")
	seedEntry(t, repo, weaker, models.SourceSpotify, 80, 20, "2026-08-30")
	seedEntry(t, repo, best, models.SourceSpotify, 1, 99, "2026-08-30")

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/trends?date=2026-08-30&limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Count  int                  `json:"count"`
		Tracks []models.RankedTrack `json:"tracks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	require.Equal(t, 1, body.Count)
	assert.Equal(t, best, body.Tracks[0].Track.ID)
	assert.Equal(t, "Losing It", body.Tracks[0].Track.Title)
}

func TestTrendsBadParams(t *testing.T) {
	srv, _, _ := newTestServer(t, config.Config{DefaultRegion: "DE"})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, path := range []string{
		"/api/trends?limit=0",
		"/api/trends?limit=abc",
		"/api/trends?date=30.08.2026",
	} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}

func TestBuyLinksEndpoint(t *testing.T) {
	srv, repo, _ := newTestServer(t, config.Config{DefaultRegion: "DE"})
	id := seedTrack(t, repo, "Losing It", "FISHER", "losing it", "fisher")

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/trends/" + itoa(id) + "/buy-links")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		TrackID int64            `json:"track_id"`
		Links   []models.BuyLink `json:"links"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, id, body.TrackID)
	require.Len(t, body.Links, 4)
	assert.Contains(t, body.Links[0].URL, "beatport.com")

	// Second call serves the cached copy.
	resp2, err := http.Get(ts.URL + "/api/trends/" + itoa(id) + "/buy-links")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	missing, err := http.Get(ts.URL + "/api/trends/9999/buy-links")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestRefreshStreamsProgress(t *testing.T) {
	srv, _, runner := newTestServer(t, config.Config{DefaultRegion: "DE"})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/refresh", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	body := string(raw)
	assert.True(t, runner.ran)
	assert.Contains(t, body, `"status":"started"`)
	assert.Contains(t, body, `"status":"fetching"`)
	assert.Contains(t, body, `"status":"complete"`)
}

func TestRefreshSkipsWhenFresh(t *testing.T) {
	srv, repo, runner := newTestServer(t, config.Config{DefaultRegion: "DE"})
	id := seedTrack(t, repo, "Losing It", "FISHER", "losing it", "fisher")
	seedEntry(t, repo, id, models.SourceSpotify, 1, 99, repository.Date(time.Now()))

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/refresh", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "skipped", body["status"])
	assert.False(t, runner.ran)

	forced, err := http.Post(ts.URL+"/api/refresh?force=true", "application/json", nil)
	require.NoError(t, err)
	forced.Body.Close()
	assert.True(t, runner.ran)
}

func TestRefreshTOTPGate(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	srv, _, runner := newTestServer(t, config.Config{DefaultRegion: "DE", AdminTOTPSecret: secret})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/refresh", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, runner.ran)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/refresh", nil)
	require.NoError(t, err)
	req.Header.Set("X-Admin-Code", "000000")
	bad, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, bad.StatusCode)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	req2, err := http.NewRequest(http.MethodPost, ts.URL+"/api/refresh", nil)
	require.NoError(t, err)
	req2.Header.Set("X-Admin-Code", code)
	good, err := http.DefaultClient.Do(req2)
	require.NoError(t, err)
	good.Body.Close()
	assert.Equal(t, http.StatusOK, good.StatusCode)
	assert.True(t, runner.ran)
}

func TestExportCSV(t *testing.T) {
	cfg := config.Config{DefaultRegion: "DE", DefaultGenre: "techno"}
	srv, repo, _ := newTestServer(t, cfg)
	id := seedTrack(t, repo, "Losing It", "FISHER", "losing it", "fisher")
	seedEntry(t, repo, id, models.SourceSpotify, 1, 99, "2026-08-30")

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/export?format=csv&date=2026-08-30")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "rank,title,artist,combined_score,sources,isrc", lines[0])
	assert.Contains(t, lines[1], "Losing It")
	assert.Contains(t, lines[1], "FISHER")
}

func TestExportM3U(t *testing.T) {
	cfg := config.Config{DefaultRegion: "DE", DefaultGenre: "techno"}
	srv, repo, _ := newTestServer(t, cfg)
	id := seedTrack(t, repo, "Losing It", "FISHER", "losing it", "fisher")

	rank := 1
	err := repo.UpsertTrendEntry(context.Background(), models.TrendEntry{
		TrackID:   id,
		Source:    models.SourceSpotify,
		Rank:      &rank,
		Score:     99,
		Region:    "DE",
		Genre:     "techno",
		ChartDate: "2026-08-30",
		Metadata:  map[string]any{"preview_url": "https://p.scdn.co/mp3-preview/abc"},
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/export?format=m3u&date=2026-08-30")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)
	assert.True(t, strings.HasPrefix(body, "#EXTM3U"))
	assert.Contains(t, body, "#EXTINF:-1,FISHER - Losing It")
	assert.Contains(t, body, "https://p.scdn.co/mp3-preview/abc")
}

func TestExportBadParams(t *testing.T) {
	srv, _, _ := newTestServer(t, config.Config{DefaultRegion: "DE"})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, path := range []string{
		"/api/export?format=xml",
		"/api/export?format=csv&date=30.08.2026",
		"/api/export?format=m3u&date=notadate",
	} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}

func TestTrendsVelocity(t *testing.T) {
	cfg := config.Config{DefaultRegion: "DE", DefaultGenre: "techno", EnableVelocity: true}
	srv, repo, _ := newTestServer(t, cfg)
	id := seedTrack(t, repo, "Losing It", "FISHER", "losing it", "fisher")

	seedEntry(t, repo, id, models.SourceSpotify, 60, 40, "2026-08-24")
	seedEntry(t, repo, id, models.SourceSpotify, 10, 90, "2026-08-30")

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/trends?date=2026-08-30")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Tracks []models.RankedTrack `json:"tracks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Tracks, 1)
	require.NotNil(t, body.Tracks[0].Velocity)
	assert.Greater(t, *body.Tracks[0].Velocity, 0.0)
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
