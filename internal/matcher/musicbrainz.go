package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultMusicBrainzBase = "https://musicbrainz.org/ws/2"

// MusicBrainz requires a descriptive User-Agent.
const musicBrainzUserAgent = "MusicTrendPanel/1.0 (https://github.com/djlyric/music-trend-panel)"

// Enrichment is the result of an external catalog lookup: a recording
// id and possibly an ISRC the internal tiers did not have.
type Enrichment struct {
	RecordingID string
	ISRC        string
}

type musicBrainzResponse struct {
	Recordings []struct {
		ID    string   `json:"id"`
		ISRCs []string `json:"isrcs"`
		Score int      `json:"score"`
	} `json:"recordings"`
}

// MusicBrainzClient queries the MusicBrainz recording search. Lookups
// are strictly best-effort: rate limits, timeouts and malformed
// responses all collapse to "no result" and never surface as errors.
type MusicBrainzClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	logger     *zap.Logger
}

func NewMusicBrainzClient(logger *zap.Logger) *MusicBrainzClient {
	return &MusicBrainzClient{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		// 1 req/s per MB guidelines
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		baseURL: defaultMusicBrainzBase,
		logger:  logger,
	}
}

// Lookup searches for a recording by artist and title. Returns nil on
// any failure, including HTTP 429.
func (c *MusicBrainzClient) Lookup(ctx context.Context, artist, title string) *Enrichment {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil
	}

	query := fmt.Sprintf("artist:%q AND recording:%q", artist, title)
	searchURL := fmt.Sprintf("%s/recording?query=%s&fmt=json&limit=1", c.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", musicBrainzUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("musicbrainz lookup failed", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.logger.Warn("musicbrainz rate limit hit")
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("musicbrainz lookup failed", zap.Int("status", resp.StatusCode))
		return nil
	}

	var res musicBrainzResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil
	}

	for _, rec := range res.Recordings {
		if rec.Score <= 80 {
			continue
		}
		e := &Enrichment{RecordingID: rec.ID}
		if len(rec.ISRCs) > 0 {
			e.ISRC = rec.ISRCs[0]
		}
		c.logger.Debug("musicbrainz match",
			zap.String("recording_id", e.RecordingID),
			zap.String("isrc", e.ISRC))
		return e
	}
	return nil
}
