package provider

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"trendpanel/internal/models"
)

const defaultAppleMusicBase = "https://api.music.apple.com/v1"

// appleGenres maps genre labels to Apple Music genre ids.
var appleGenres = map[string]string{
	"techhouse":  "17", // Electronic
	"techno":     "17",
	"house":      "17",
	"electronic": "17",
	"pop":        "14",
	"hiphop":     "18",
	"rock":       "21",
}

// AppleMusicProvider reads the catalog song charts. Apple requires a
// developer token: an ES256 JWT signed with the team's private key,
// cached until shortly before expiry.
type AppleMusicProvider struct {
	httpClient *http.Client
	baseURL    string
	teamID     string
	keyID      string
	privateKey *ecdsa.PrivateKey
	logger     *zap.Logger

	token       string
	tokenExpiry time.Time
}

func NewAppleMusicProvider(teamID, keyID, privateKeyPEM string, logger *zap.Logger) (*AppleMusicProvider, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("apple music private key: %w", err)
	}
	return &AppleMusicProvider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultAppleMusicBase,
		teamID:     teamID,
		keyID:      keyID,
		privateKey: key,
		logger:     logger,
	}, nil
}

func (p *AppleMusicProvider) Name() models.Source { return models.SourceAppleMusic }

func (p *AppleMusicProvider) developerToken() (string, error) {
	if p.token != "" && time.Now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	now := time.Now()
	// Six months is the maximum lifetime Apple allows.
	expiry := now.Add(6 * 30 * 24 * time.Hour)

	tok := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": p.teamID,
		"iat": now.Unix(),
		"exp": expiry.Unix(),
	})
	tok.Header["kid"] = p.keyID

	signed, err := tok.SignedString(p.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign apple music token: %w", err)
	}

	p.token = signed
	p.tokenExpiry = expiry.Add(-time.Hour)
	p.logger.Info("generated apple music developer token")
	return signed, nil
}

type appleChartsResponse struct {
	Results struct {
		Songs []struct {
			Data []appleSong `json:"data"`
		} `json:"songs"`
	} `json:"results"`
}

type appleSong struct {
	ID         string `json:"id"`
	Attributes struct {
		Name             string   `json:"name"`
		ArtistName       string   `json:"artistName"`
		AlbumName        string   `json:"albumName"`
		ISRC             string   `json:"isrc"`
		DurationInMillis int64    `json:"durationInMillis"`
		ReleaseDate      string   `json:"releaseDate"`
		URL              string   `json:"url"`
		GenreNames       []string `json:"genreNames"`
		Artwork          struct {
			URL string `json:"url"`
		} `json:"artwork"`
		Previews []struct {
			URL string `json:"url"`
		} `json:"previews"`
	} `json:"attributes"`
}

func (p *AppleMusicProvider) FetchCharts(ctx context.Context, region, genre string) ([]models.SourceRecord, error) {
	token, err := p.developerToken()
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("types", "songs")
	params.Set("limit", "50")
	if genre != "" {
		id, ok := appleGenres[strings.ToLower(genre)]
		if !ok {
			id = genre
		}
		params.Set("genre", id)
	}

	storefront := strings.ToLower(region)
	endpoint := fmt.Sprintf("%s/catalog/%s/charts?%s", p.baseURL, storefront, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apple music charts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("apple music charts: status %d", resp.StatusCode)
	}

	var charts appleChartsResponse
	if err := json.NewDecoder(resp.Body).Decode(&charts); err != nil {
		return nil, fmt.Errorf("apple music charts decode: %w", err)
	}

	var records []models.SourceRecord
	for _, chart := range charts.Results.Songs {
		for _, song := range chart.Data {
			records = append(records, p.transform(song, len(records)+1))
		}
	}

	p.logger.Info("fetched apple music tracks",
		zap.Int("count", len(records)),
		zap.String("storefront", storefront))
	return records, nil
}

func (p *AppleMusicProvider) transform(song appleSong, rank int) models.SourceRecord {
	attr := song.Attributes

	// Artwork URLs are templated; substitute a concrete size.
	artwork := strings.NewReplacer("{w}", "400", "{h}", "400").Replace(attr.Artwork.URL)

	previewURL := ""
	if len(attr.Previews) > 0 {
		previewURL = attr.Previews[0].URL
	}

	return models.SourceRecord{
		Title:      attr.Name,
		Artist:     attr.ArtistName,
		ISRC:       attr.ISRC,
		DurationMS: attr.DurationInMillis,
		ArtworkURL: artwork,
		Source:     models.SourceAppleMusic,
		Rank:       rank,
		Metadata: map[string]any{
			"apple_music_id": song.ID,
			"album":          attr.AlbumName,
			"preview_url":    previewURL,
			"release_date":   attr.ReleaseDate,
			"genre_names":    attr.GenreNames,
			"url":            attr.URL,
		},
	}
}
