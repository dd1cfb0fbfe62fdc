package provider

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trendpanel/internal/models"
)

const appleChartsFixture = `{
	"results": {
		"songs": [{
			"data": [
				{
					"id": "1440833098",
					"attributes": {
						"name": "Losing It",
						"artistName": "FISHER",
						"albumName": "Losing It - Single",
						"isrc": "AUUM71800356",
						"durationInMillis": 248000,
						"releaseDate": "2018-07-16",
						"url": "https://music.apple.com/us/album/losing-it/1440833098",
						"genreNames": ["Dance", "Music"],
						"artwork": {"url": "https://is1-ssl.mzstatic.com/image/{w}x{h}bb.jpg"},
						"previews": [{"url": "https://audio-ssl.itunes.apple.com/preview.m4a"}]
					}
				},
				{
					"id": "1695706370",
					"attributes": {
						"name": "Padam Padam",
						"artistName": "Kylie Minogue",
						"albumName": "Tension",
						"isrc": "GBBKS2300153",
						"durationInMillis": 169000,
						"releaseDate": "2023-05-18",
						"url": "https://music.apple.com/us/album/padam-padam/1695706370",
						"genreNames": ["Pop"],
						"artwork": {"url": "https://is1-ssl.mzstatic.com/image/padam/{w}x{h}bb.jpg"},
						"previews": []
					}
				}
			]
		}]
	}
}`

func testAppleProvider(t *testing.T, srv *httptest.Server) *AppleMusicProvider {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return &AppleMusicProvider{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    srv.URL,
		teamID:     "TESTTEAM",
		keyID:      "TESTKEY",
		privateKey: key,
		logger:     zap.NewNop(),
	}
}

func TestAppleMusicFetchCharts(t *testing.T) {
	var gotPath, gotAuth, gotGenre string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotGenre = r.URL.Query().Get("genre")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(appleChartsFixture))
	}))
	defer srv.Close()

	p := testAppleProvider(t, srv)
	records, err := p.FetchCharts(context.Background(), "DE", "techno")
	require.NoError(t, err)

	assert.Equal(t, "/catalog/de/charts", gotPath)
	assert.True(t, strings.HasPrefix(gotAuth, "Bearer "))
	assert.Equal(t, "17", gotGenre)

	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "Losing It", first.Title)
	assert.Equal(t, "FISHER", first.Artist)
	assert.Equal(t, "AUUM71800356", first.ISRC)
	assert.Equal(t, int64(248000), first.DurationMS)
	assert.Equal(t, "https://is1-ssl.mzstatic.com/image/400x400bb.jpg", first.ArtworkURL)
	assert.Equal(t, models.SourceAppleMusic, first.Source)
	assert.Equal(t, 1, first.Rank)
	assert.Equal(t, "1440833098", first.Metadata["apple_music_id"])
	assert.Equal(t, "https://audio-ssl.itunes.apple.com/preview.m4a", first.Metadata["preview_url"])

	second := records[1]
	assert.Equal(t, 2, second.Rank)
	assert.Equal(t, "", second.Metadata["preview_url"])
}

func TestAppleMusicFetchChartsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := testAppleProvider(t, srv)
	_, err := p.FetchCharts(context.Background(), "US", "")
	assert.Error(t, err)
}

func TestAppleMusicDeveloperTokenCached(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	p := &AppleMusicProvider{
		teamID:     "TESTTEAM",
		keyID:      "TESTKEY",
		privateKey: key,
		logger:     zap.NewNop(),
	}

	first, err := p.developerToken()
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := p.developerToken()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
